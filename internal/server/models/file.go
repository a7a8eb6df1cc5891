// Package models defines server-side data models persisted in the database.
package models

import "time"

// File lifecycle states. Only ready files are visible to listings.
const (
	FileStatusPending  = "pending"
	FileStatusReady    = "ready"
	FileStatusDeleting = "deleting"
)

// File describes an uploaded object owned by a single user.
type File struct {
	ID int64 `json:"id"`
	// Filename is the base name supplied by the uploader.
	Filename string `json:"filename"`
	// FileDir is the directory (or key prefix) holding the object.
	FileDir     string  `json:"file_dir"`
	Description *string `json:"description"`
	OwnerID     int64   `json:"owner_id"`
	ContentType string  `json:"content_type"`
	SizeBytes   int64   `json:"file_size"`
	// FileHash is the content fingerprint of the raw bytes.
	FileHash string `json:"filehash"`
	// DedupKey carries the uniqueness constraint; it equals FileHash for
	// global deduplication and "<owner>:<hash>" for per-owner deduplication.
	DedupKey  string    `json:"-"`
	Status    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// FileUpload is the validated input of an upload.
type FileUpload struct {
	Filename    string
	Description *string
	OwnerID     int64
	ContentType string
	Data        []byte
}
