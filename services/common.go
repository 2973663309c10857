package services

import (
	"errors"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
)

var ErrUnsupportedImage = errors.New("only JPEG and PNG images are allowed")

var allowedImageExtensions = []string{".jpg", ".jpeg", ".png"}

var allowedMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
}

// DetectImageType sniffs the leading bytes of an upload and accepts only
// JPEG and PNG content.
func DetectImageType(head []byte) (string, error) {
	mimeType := http.DetectContentType(head)
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return "", ErrUnsupportedImage
	}
	return mimeType, nil
}

// ImageExtension keeps the original file extension when it is an accepted
// image extension and otherwise derives one from the content type.
func ImageExtension(fileName string, contentType string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if slices.Contains(allowedImageExtensions, ext) {
		return ext
	}
	if ext, ok := allowedMimeTypes[contentType]; ok {
		return ext
	}
	return ""
}

func floatPointer(f float32) *float32 {
	return &f
}
