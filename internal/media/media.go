// Package media stores uploaded profile pictures and resolves their public
// URLs. Profiles reference pictures by the relative path returned from Save.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ProfilePicDir is the prefix under which profile pictures are stored.
const ProfilePicDir = "profile_pics"

var (
	ErrInvalidImage = errors.New("upload a valid image. The file you uploaded was either not an image or a corrupted image")
	ErrTooLarge     = errors.New("uploaded file is too large")
)

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
}

// Storage persists media objects.
type Storage interface {
	// Save writes data under key and returns the path to reference it by.
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

// Image is a validated upload ready to be stored.
type Image struct {
	ContentType string
	Ext         string
	Width       int
	Height      int
	Data        []byte
}

// ValidateImage checks that data is a PNG, JPEG or GIF that decodes and fits
// within maxBytes.
func ValidateImage(data []byte, maxBytes int64) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrInvalidImage
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return Image{}, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	ext, ok := allowedTypes[mt.String()]
	if !ok {
		return Image{}, ErrInvalidImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return Image{}, ErrInvalidImage
	}

	return Image{
		ContentType: mt.String(),
		Ext:         ext,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Data:        data,
	}, nil
}

// SaveProfilePicture stores img under a fresh name in ProfilePicDir.
func SaveProfilePicture(ctx context.Context, s Storage, img Image) (string, error) {
	key := path.Join(ProfilePicDir, uuid.NewString()+img.Ext)
	p, err := s.Save(ctx, key, img.ContentType, img.Data)
	if err != nil {
		return "", fmt.Errorf("save profile picture: %w", err)
	}
	return p, nil
}

func joinURL(base, p string) string {
	if p == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}
