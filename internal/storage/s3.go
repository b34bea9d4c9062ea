package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var ErrUnsupportedType = errors.New("unsupported image type")

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type UploadURL struct {
	URL       string    `json:"uploadUrl"`
	Method    string    `json:"method"`
	Key       string    `json:"key"`
	PublicURL string    `json:"publicUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// S3Presigner hands out short lived PUT urls so clients upload listing
// images straight to the bucket.
type S3Presigner struct {
	presign *s3.PresignClient
	bucket  string
	region  string
	ttl     time.Duration
}

func NewS3Presigner(ctx context.Context, region, bucket string, ttl time.Duration) (*S3Presigner, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Presigner(cfg, bucket, ttl), nil
}

func newS3Presigner(cfg aws.Config, bucket string, ttl time.Duration) *S3Presigner {
	return &S3Presigner{
		presign: s3.NewPresignClient(s3.NewFromConfig(cfg)),
		bucket:  bucket,
		region:  cfg.Region,
		ttl:     ttl,
	}
}

func (s *S3Presigner) PresignUpload(ctx context.Context, ownerID, contentType string) (*UploadURL, error) {
	ext, ok := imageExt[contentType]
	if !ok {
		return nil, ErrUnsupportedType
	}
	key := fmt.Sprintf("listings/%s/%s%s", ownerID, uuid.NewString(), ext)
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodPut
	}
	return &UploadURL{
		URL:       req.URL,
		Method:    method,
		Key:       key,
		PublicURL: fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key),
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}, nil
}
