package domain

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	// DefaultFileSizeLimit caps a single uploaded image.
	DefaultFileSizeLimit = 5 << 20
	// DefaultMaxFiles caps the number of images per request.
	DefaultMaxFiles = 10
	// DefaultPromptsCount is how many prompts are requested per image.
	DefaultPromptsCount = 16
)

// SupportedImageTypes lists accepted upload MIME types.
var SupportedImageTypes = []string{"image/png", "image/jpeg", "image/jpg", "image/gif", "image/webp"}

// Upload is one image received with a process request.
type Upload struct {
	Filename string
	MIME     string
	Data     []byte
}

// Size returns the payload length in bytes.
func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// UploadLimits bounds what a single request may carry.
type UploadLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

// DefaultUploadLimits mirrors the service defaults.
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{MaxFiles: DefaultMaxFiles, MaxFileSize: DefaultFileSizeLimit}
}

// IsSupportedImageType reports whether mime is accepted.
func IsSupportedImageType(mime string) bool {
	mime = NormalizeMIME(mime)
	for _, t := range SupportedImageTypes {
		if t == mime {
			return true
		}
	}
	return false
}

// NormalizeMIME lowercases and strips parameters from a content type.
func NormalizeMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}

// DetectMIME prefers the sniffed content type when it names an image and falls
// back to the declared one otherwise.
func DetectMIME(data []byte, declared string) string {
	if len(data) > 0 {
		sniffed := NormalizeMIME(http.DetectContentType(data))
		if strings.HasPrefix(sniffed, "image/") {
			return sniffed
		}
	}
	return NormalizeMIME(declared)
}

// ValidateUploads checks count, type and size of every upload.
func ValidateUploads(uploads []Upload, limits UploadLimits) error {
	if len(uploads) == 0 {
		return ErrNoFiles
	}
	if limits.MaxFiles > 0 && len(uploads) > limits.MaxFiles {
		return fmt.Errorf("%w: maximum is %d", ErrTooManyFiles, limits.MaxFiles)
	}
	for _, u := range uploads {
		if !IsSupportedImageType(u.MIME) {
			return fmt.Errorf("%w: only image files are allowed (%s)", ErrUnsupportedFileType, strings.Join(SupportedImageTypes, ", "))
		}
		if limits.MaxFileSize > 0 && u.Size() > limits.MaxFileSize {
			return fmt.Errorf("%w: maximum size is %dMB", ErrFileTooLarge, limits.MaxFileSize>>20)
		}
	}
	return nil
}
