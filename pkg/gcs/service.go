package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSClient wraps a Cloud Storage client scoped to a single bucket.
type GCSClient struct {
	client     *storage.Client
	bucketName string
}

func NewGCSClient(ctx context.Context, bucketName string) (*GCSClient, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %v", err)
	}

	return &GCSClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Upload writes content to the bucket and returns the public object URL.
func (g *GCSClient) Upload(ctx context.Context, objectPath string, contentType string, content io.Reader) (string, error) {
	obj := g.client.Bucket(g.bucketName).Object(objectPath)

	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, content); err != nil {
		return "", fmt.Errorf("failed to copy content: %v", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %v", err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucketName, objectPath), nil
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
