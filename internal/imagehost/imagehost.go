// Package imagehost uploads student images to an external host and returns a public URL.
package imagehost

import (
	"context"
	"errors"
	"fmt"

	"studentportal/internal/config"
)

// Image is an attached binary with its original name and sniffed content type.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Uploader stores an image and returns the URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, img Image) (string, error)
}

// ErrNotConfigured is returned by the disabled uploader.
var ErrNotConfigured = errors.New("imagehost: image storage not configured")

// Disabled rejects every upload.
type Disabled struct{}

// Upload always fails with ErrNotConfigured.
func (Disabled) Upload(context.Context, Image) (string, error) {
	return "", ErrNotConfigured
}

// New selects the uploader named by cfg.ImageHost.
func New(cfg config.App) (Uploader, error) {
	switch cfg.ImageHost {
	case "imgbb":
		if cfg.ImgBBAPIKey == "" {
			return Disabled{}, fmt.Errorf("imgbb: IMGBB_API_KEY not set")
		}
		return NewImgBB(cfg.ImgBBEndpoint, cfg.ImgBBAPIKey), nil
	case "cloudinary":
		if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			return Disabled{}, fmt.Errorf("cloudinary: CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set")
		}
		return NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder), nil
	case "s3":
		up, err := NewS3(S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKeyID:   cfg.S3AccessKeyID,
			SecretKey:     cfg.S3SecretKey,
			Prefix:        cfg.S3Prefix,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return Disabled{}, err
		}
		return up, nil
	case "none", "":
		return Disabled{}, nil
	default:
		return Disabled{}, fmt.Errorf("unknown IMAGE_HOST %q", cfg.ImageHost)
	}
}
