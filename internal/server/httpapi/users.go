package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/go-chi/chi/v5"
)

const maxFormMemory = 1 << 20

type registerRequest struct {
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Password  string  `json:"password"`
}

// parseForm accepts urlencoded and multipart bodies.
func parseForm(r *http.Request) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		s.fail(w, r, fmt.Errorf("%w: invalid form", common.ErrorValidation), "")
		return
	}

	tok, err := s.users.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			w.Header().Set("WWW-Authenticate", common.BearerScheme)
			writeDetail(w, http.StatusUnauthorized, detailLogin)
			return
		}
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormMemory)).Decode(&req); err != nil {
			s.fail(w, r, fmt.Errorf("%w: invalid JSON body", common.ErrorValidation), "")
			return
		}
	} else {
		if err := parseForm(r); err != nil {
			s.fail(w, r, fmt.Errorf("%w: invalid form", common.ErrorValidation), "")
			return
		}
		req = registerRequest{
			Username:  r.PostFormValue("username"),
			Email:     r.PostFormValue("email"),
			FirstName: optional(r.PostFormValue("first_name")),
			LastName:  optional(r.PostFormValue("last_name")),
			Password:  r.PostFormValue("password"),
		}
	}

	user, err := s.users.Register(r.Context(), models.UserCreate{
		UserName:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err, detailUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
