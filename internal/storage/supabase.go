package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"
)

// objectAPI is the subset of the Supabase storage client used here
type objectAPI interface {
	UploadFile(bucketId string, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	GetPublicUrl(bucketId string, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse
	RemoveFile(bucketId string, paths []string) ([]storage_go.FileUploadResponse, error)
}

// supabaseStorage implements object storage on a public Supabase bucket
type supabaseStorage struct {
	client objectAPI
	bucket string
}

// NewSupabaseStorage creates a Supabase-backed storage using a service key
func NewSupabaseStorage(url, serviceKey, bucket string) (*supabaseStorage, error) {
	client, err := supa.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize supabase client: %w", err)
	}
	return &supabaseStorage{client: client.Storage, bucket: bucket}, nil
}

// Put uploads data under key with upsert semantics and returns the public URL
func (s *supabaseStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	upsert := true
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	url := s.client.GetPublicUrl(s.bucket, key).SignedURL
	if url == "" {
		return "", fmt.Errorf("failed to resolve public url for %s", key)
	}
	return url, nil
}

// Remove deletes the object stored under key
func (s *supabaseStorage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
