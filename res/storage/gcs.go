package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSService archives generated documents in Google Cloud Storage
type GCSService struct {
	client     *storage.Client
	bucketName string
	projectID  string
}

// NewGCSService creates a new Google Cloud Storage service
func NewGCSService(ctx context.Context, bucketName, projectID, credentialsPath string) (*GCSService, error) {
	var client *storage.Client
	var err error

	if credentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(credentialsPath))
	} else {
		// Use default credentials (for GCE, Cloud Run, etc.)
		client, err = storage.NewClient(ctx)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSService{
		client:     client,
		bucketName: bucketName,
		projectID:  projectID,
	}, nil
}

// Close closes the GCS client
func (s *GCSService) Close() error {
	return s.client.Close()
}

// UploadPayrollStatement stores a CSV payroll statement and returns its gs:// URI
func (s *GCSService) UploadPayrollStatement(ctx context.Context, objectPath string, data []byte) (string, error) {
	if err := validateObjectPath(objectPath); err != nil {
		return "", err
	}
	return s.upload(ctx, bytes.NewReader(data), "text/csv", objectPath)
}

// StatementURL generates a signed URL for downloading an archived statement
func (s *GCSService) StatementURL(ctx context.Context, uri string, expiration time.Duration) (string, error) {
	objectPath, err := objectPathFromURI(s.bucketName, uri)
	if err != nil {
		return "", err
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiration),
	}

	url, err := s.client.Bucket(s.bucketName).SignedURL(objectPath, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return url, nil
}

func (s *GCSService) upload(ctx context.Context, reader io.Reader, contentType, objectPath string) (string, error) {
	obj := s.client.Bucket(s.bucketName).Object(objectPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, reader); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucketName, objectPath), nil
}

func validateObjectPath(objectPath string) error {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "..") {
		return fmt.Errorf("invalid object path %q", objectPath)
	}
	if !strings.HasSuffix(objectPath, ".csv") {
		return fmt.Errorf("statement %q must be a .csv file", objectPath)
	}
	return nil
}

// objectPathFromURI strips the gs://<bucket>/ prefix, rejecting URIs of other buckets
func objectPathFromURI(bucketName, uri string) (string, error) {
	prefix := fmt.Sprintf("gs://%s/", bucketName)
	if !strings.HasPrefix(uri, prefix) || len(uri) == len(prefix) {
		return "", fmt.Errorf("object %q is not in bucket %s", uri, bucketName)
	}
	return strings.TrimPrefix(uri, prefix), nil
}
