// Package httpapi exposes the user and file services over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

const shutdownTimeout = 10 * time.Second

type UserService interface {
	Register(ctx context.Context, in models.UserCreate) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.Token, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type FileService interface {
	Upload(ctx context.Context, in models.FileUpload) (*models.File, error)
	List(ctx context.Context, ownerID int64) ([]*models.File, error)
	Delete(ctx context.Context, ownerID, id int64) (string, error)
	Open(ctx context.Context, ownerID, id int64) (*models.File, io.ReadCloser, error)
	DownloadURL(ctx context.Context, ownerID, id int64) (string, bool, error)
}

type Server struct {
	address        string
	users          UserService
	files          FileService
	log            logging.Logger
	limiter        *userLimiter
	maxUploadMB    int64
	maxUploadBytes int64
}

func NewServer(cfg *config.Config, us UserService, fs FileService, l logging.Logger) *Server {
	return &Server{
		address:        cfg.HTTPAddr,
		users:          us,
		files:          fs,
		log:            l.With("module", "http_server"),
		limiter:        newUserLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		maxUploadMB:    cfg.MaxUploadSizeMB,
		maxUploadBytes: cfg.MaxUploadBytes(),
	}
}

// Handler builds the routed handler wrapped with CORS.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/token", s.handleToken)
		r.Post("/register", s.handleRegister)
		r.With(s.authenticate).Get("/logined_user", s.handleCurrentUser)
		r.Get("/{username}", s.handleGetUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.limiter.middleware)

		r.Post("/files/upload", s.handleUpload)
		r.Get("/files", s.handleListFiles)
		r.Get("/files/", s.handleListFiles)
		r.Delete("/files/{file_id}", s.handleDeleteFile)
		r.Get("/files/{file_id}/download", s.handleDownload)

		r.Handle("/graphql", s.graphqlHandler())
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	})
	return c.Handler(r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.log.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	s.log.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
