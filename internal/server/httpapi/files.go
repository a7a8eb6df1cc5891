package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead leaves room for boundaries and the description field
// on top of the configured file size.
const multipartOverhead = 1 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(w, r, common.ErrPayloadTooLarge, "")
			return
		}
		s.fail(w, r, fmt.Errorf("%w: invalid multipart form", common.ErrorValidation), "")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	part, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: file is required", common.ErrorValidation), "")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		s.fail(w, r, fmt.Errorf("read upload: %w", err), "")
		return
	}

	file, err := s.files.Upload(r.Context(), models.FileUpload{
		Filename:    header.Filename,
		Description: optional(r.FormValue("description")),
		OwnerID:     user.ID,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	list, err := s.files.List(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	if len(list) == 0 {
		writeDetail(w, http.StatusNotFound, detailFilesNotFound)
		return
	}

	byName := make(map[string]*models.File, len(list))
	for _, f := range list {
		byName[f.Filename] = f
	}
	writeJSON(w, http.StatusOK, byName)
}

func fileID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "file_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: file_id must be a positive integer", common.ErrorValidation)
	}
	return id, nil
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	id, err := fileID(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}

	name, err := s.files.Delete(r.Context(), user.ID, id)
	if err != nil {
		s.fail(w, r, err, detailFileNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("File %s successfully deleted", name))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	id, err := fileID(r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}

	url, presigned, err := s.files.DownloadURL(r.Context(), user.ID, id)
	if err != nil {
		s.fail(w, r, err, detailFileNotFound)
		return
	}
	if presigned {
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	file, rc, err := s.files.Open(r.Context(), user.ID, id)
	if err != nil {
		s.fail(w, r, err, detailFileNotFound)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn(r.Context(), "download interrupted", "file_id", id, "error", err)
	}
}
