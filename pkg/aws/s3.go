package aws

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

type S3Client struct {
	uploader   s3manageriface.UploaderAPI
	bucketName string
	mockMode   bool
	mockDir    string
}

// NewS3Client uploads to S3, or in mock mode writes under mockDir and returns file:// URLs.
func NewS3Client(region, bucketName string, mockMode bool, mockDir string) *S3Client {
	if mockMode {
		log.Printf("🔧 S3 client running in mock mode (development)")
		return &S3Client{
			bucketName: bucketName,
			mockMode:   true,
			mockDir:    mockDir,
		}
	}

	sess := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(region),
	}))

	return &S3Client{
		uploader:   s3manager.NewUploader(sess),
		bucketName: bucketName,
	}
}

func NewS3ClientWithUploader(uploader s3manageriface.UploaderAPI, bucketName string) *S3Client {
	return &S3Client{
		uploader:   uploader,
		bucketName: bucketName,
	}
}

// UploadFrame stores an image under key and returns its URL.
func (s *S3Client) UploadFrame(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.mockMode {
		path := filepath.Join(s.mockDir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create mock dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write mock frame: %w", err)
		}
		absPath, _ := filepath.Abs(path)
		mockURL := fmt.Sprintf("file://%s", absPath)
		log.Printf("📁 [MOCK] S3 upload: %s -> %s", key, mockURL)
		return mockURL, nil
	}

	result, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return result.Location, nil
}
