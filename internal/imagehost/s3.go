package imagehost

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

// S3Config names the bucket images are written to.
type S3Config struct {
	Region        string
	Bucket        string
	AccessKeyID   string
	SecretKey     string
	Prefix        string
	PublicBaseURL string
}

// S3 puts images into a bucket and returns their public object URL.
type S3 struct {
	cfg S3Config
	api s3iface.S3API
}

// NewS3 creates an uploader. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: S3_REGION and S3_BUCKET must be set")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3: create session: %w", err)
	}
	return &S3{cfg: cfg, api: s3.New(sess)}, nil
}

// Upload writes the image under Prefix with a random key.
func (u *S3) Upload(ctx context.Context, img Image) (string, error) {
	key := u.objectKey(img.Filename)
	input := &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(img.Data),
	}
	if img.ContentType != "" {
		input.ContentType = aws.String(img.ContentType)
	}
	if _, err := u.api.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}
	return u.objectURL(key), nil
}

func (u *S3) objectKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return strings.TrimLeft(u.cfg.Prefix+uuid.NewString()+ext, "/")
}

func (u *S3) objectURL(key string) string {
	if u.cfg.PublicBaseURL != "" {
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}
