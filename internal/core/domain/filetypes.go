package domain

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// DefaultMaxUploadBytes mirrors the upload limit enforced by the API server.
const DefaultMaxUploadBytes int64 = 100 << 20

const (
	MediaPDF  = "application/pdf"
	MediaDOC  = "application/msword"
	MediaDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaXLS  = "application/vnd.ms-excel"
	MediaXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaText = "text/plain"
	MediaCSV  = "text/csv"
	MediaPNG  = "image/png"
	MediaJPEG = "image/jpeg"
	MediaGIF  = "image/gif"
	MediaTIFF = "image/tiff"
	MediaBMP  = "image/bmp"
	MediaWebP = "image/webp"
)

var extensionMediaTypes = map[string]string{
	".pdf":  MediaPDF,
	".doc":  MediaDOC,
	".docx": MediaDOCX,
	".xls":  MediaXLS,
	".xlsx": MediaXLSX,
	".txt":  MediaText,
	".csv":  MediaCSV,
	".png":  MediaPNG,
	".jpg":  MediaJPEG,
	".jpeg": MediaJPEG,
	".gif":  MediaGIF,
	".tif":  MediaTIFF,
	".tiff": MediaTIFF,
	".bmp":  MediaBMP,
	".webp": MediaWebP,
}

var allowedMediaTypes = func() map[string]struct{} {
	set := make(map[string]struct{}, len(extensionMediaTypes))
	for _, mediaType := range extensionMediaTypes {
		set[mediaType] = struct{}{}
	}
	return set
}()

// AllowedExtensions returns the extensions accepted for upload, without dots.
func AllowedExtensions() []string {
	out := make([]string, 0, len(extensionMediaTypes))
	for ext := range extensionMediaTypes {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	return out
}

// ResolveMediaType normalizes a declared media type, falling back to the
// filename extension when the declaration is missing or generic.
func ResolveMediaType(filename, declared string) string {
	mediaType := strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	if mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	if byExt, ok := extensionMediaTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	return mediaType
}

// IsAllowedMediaType reports whether the resolved media type may be processed.
func IsAllowedMediaType(mediaType string) bool {
	_, ok := allowedMediaTypes[mediaType]
	return ok
}

// ValidateUpload checks a file against the upload allow-list and size limit.
func ValidateUpload(filename, declaredType string, size, maxSize int64) error {
	if strings.TrimSpace(filename) == "" {
		return WrapError(ErrInvalidInput, "validate upload", errors.New("no file selected"))
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadBytes
	}
	mediaType := ResolveMediaType(filename, declaredType)
	if !IsAllowedMediaType(mediaType) {
		return WrapError(ErrInvalidInput, "validate upload", fmt.Errorf("file type not allowed: %s", filename))
	}
	if size <= 0 {
		return WrapError(ErrInvalidInput, "validate upload", fmt.Errorf("file is empty: %s", filename))
	}
	if size > maxSize {
		return WrapError(ErrInvalidInput, "validate upload", fmt.Errorf("file too large: %s (%d > %d bytes)", filename, size, maxSize))
	}
	return nil
}
