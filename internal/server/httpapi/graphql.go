package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
)

// graphqlHandler serves a read-only view of the caller's account and files.
// It is mounted behind authenticate, so resolvers always find a user.
func (s *Server) graphqlHandler() http.Handler {
	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"username":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"email":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"firstName": &graphql.Field{Type: graphql.String},
			"lastName":  &graphql.Field{Type: graphql.String},
		},
	})

	fileType := graphql.NewObject(graphql.ObjectConfig{
		Name: "File",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"filename":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"description": &graphql.Field{Type: graphql.String},
			"contentType": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"sizeBytes":   &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"fileHash":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"createdAt":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"me": &graphql.Field{
				Type: graphql.NewNonNull(userType),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					u := userFrom(p.Context)
					if u == nil {
						return nil, common.ErrorUnauthorized
					}
					return userToMap(u), nil
				},
			},
			"files": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(fileType))),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					u := userFrom(p.Context)
					if u == nil {
						return nil, common.ErrorUnauthorized
					}
					files, err := s.files.List(p.Context, u.ID)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]any, 0, len(files))
					for _, f := range files {
						out = append(out, fileToMap(f))
					}
					return out, nil
				},
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: query})
	if err != nil {
		// The schema is static; failing here is a programming error.
		panic(err)
	}

	return handler.New(&handler.Config{Schema: &schema, Pretty: false, GraphiQL: false})
}

func userToMap(u *models.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"username":  u.UserName,
		"email":     u.Email,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
	}
}

func fileToMap(f *models.File) map[string]any {
	return map[string]any{
		"id":          f.ID,
		"filename":    f.Filename,
		"description": f.Description,
		"contentType": f.ContentType,
		"sizeBytes":   f.SizeBytes,
		"fileHash":    f.FileHash,
		"createdAt":   f.CreatedAt.Format(time.RFC3339),
	}
}
