package snapshot

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// parseS3URL разбирает s3://bucket/key на bucket и key
func parseS3URL(url string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s (expected s3://bucket/key)", url)
	}
	return parts[0], parts[1], nil
}

// uploadS3 выгружает локальный файл в S3.
// Креденшелы и регион берутся из стандартного окружения AWS SDK
// (переменные окружения, ~/.aws, IAM role).
func uploadS3(localPath, destination string) error {
	bucket, key, err := parseS3URL(destination)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	uploader := manager.NewUploader(s3.NewFromConfig(cfg))
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/zstd"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
