package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

const (
	detailCredentials   = "Could not validate credentials"
	detailLogin         = "Invalid authentication credentials"
	detailUserExists    = "Username already registered"
	detailUserNotFound  = "User not found"
	detailFileNotFound  = "File not found"
	detailFilesNotFound = "Files not found"
	detailDuplicate     = "You already have File with same content"
	detailInternal      = "Internal server error"
)

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// describe maps a service error onto a status code and client message.
// notFound replaces the generic not-found message when non-empty.
func (s *Server) describe(err error, notFound string) (int, string) {
	switch {
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, detailCredentials
	case errors.Is(err, common.ErrorNotFound):
		if notFound == "" {
			notFound = "Not found"
		}
		return http.StatusNotFound, notFound
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusBadRequest, detailUserExists
	case errors.Is(err, common.ErrDuplicateContent):
		return http.StatusBadRequest, detailDuplicate
	case errors.Is(err, common.ErrPayloadTooLarge):
		return http.StatusUnprocessableEntity, fmt.Sprintf("Your file too big. Maximum size is %d MB", s.maxUploadMB)
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, detailInternal
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	status, detail := s.describe(err, notFound)
	switch status {
	case http.StatusInternalServerError:
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", common.BearerScheme)
	}
	writeDetail(w, status, detail)
}
