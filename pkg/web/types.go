package web

import (
	"slices"
	"strings"
)

// DefaultMaxFileSize is the per-file upload limit.
const DefaultMaxFileSize int64 = 100 << 20

// MaxFilesPerRequest bounds the request body together with the per-file limit.
const MaxFilesPerRequest = 20

// DefaultAllowedExtensions are the upload extensions accepted by execute.
var DefaultAllowedExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff",
}

// UploadPolicy limits the files accepted by the execute endpoint.
type UploadPolicy struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{
		MaxFileSize:       DefaultMaxFileSize,
		AllowedExtensions: DefaultAllowedExtensions,
	}
}

func (p UploadPolicy) allows(ext string) bool {
	return slices.Contains(p.AllowedExtensions, strings.ToLower(ext))
}

// BodyLimit is the request body size the HTTP server must accept.
func (p UploadPolicy) BodyLimit() int {
	return int(p.MaxFileSize) * MaxFilesPerRequest
}

// DeleteWorkflowResponse is returned by delete.
type DeleteWorkflowResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
