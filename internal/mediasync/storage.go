package mediasync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// Uploader pushes one object into the public bucket and returns its
// public URL.
type Uploader interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
}

// DefaultStorageBaseURL is the Firebase-style blob storage endpoint.
const DefaultStorageBaseURL = "https://firebasestorage.googleapis.com"

// FirebaseUploader talks the bucket's REST protocol directly: media
// upload, then a metadata round trip to obtain or assign the public
// download token.
type FirebaseUploader struct {
	httpClient *http.Client
	baseURL    string
	bucket     string
	newToken   func() string
}

// NewFirebaseUploader creates an uploader for the given bucket.
func NewFirebaseUploader(bucket string) *FirebaseUploader {
	return NewFirebaseUploaderWithBaseURL(DefaultStorageBaseURL, bucket)
}

// NewFirebaseUploaderWithBaseURL creates an uploader against an
// alternate endpoint.
func NewFirebaseUploaderWithBaseURL(baseURL, bucket string) *FirebaseUploader {
	return &FirebaseUploader{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		bucket:     bucket,
		newToken:   uuid.NewString,
	}
}

func (u *FirebaseUploader) objectURL(objectPath string) string {
	return fmt.Sprintf("%s/v0/b/%s/o/%s", u.baseURL, u.bucket, url.QueryEscape(objectPath))
}

// Upload stores the object and returns a tokenized public URL.
func (u *FirebaseUploader) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	uploadURL := fmt.Sprintf("%s/v0/b/%s/o?uploadType=media&name=%s", u.baseURL, u.bucket, url.QueryEscape(objectPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload object: unexpected status %s", resp.Status)
	}

	token, err := u.ensureDownloadToken(ctx, objectPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?alt=media&token=%s", u.objectURL(objectPath), token), nil
}

// ensureDownloadToken reads the object metadata and assigns a fresh
// token when the bucket has not minted one yet.
func (u *FirebaseUploader) ensureDownloadToken(ctx context.Context, objectPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.objectURL(objectPath), nil)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("read object metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("read object metadata: unexpected status %s", resp.Status)
	}
	var meta struct {
		DownloadTokens string `json:"downloadTokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode object metadata: %w", err)
	}
	if meta.DownloadTokens != "" {
		return meta.DownloadTokens, nil
	}

	token := u.newToken()
	payload, _ := json.Marshal(map[string]any{
		"metadata": map[string]string{"firebaseStorageDownloadTokens": token},
	})
	patch, err := http.NewRequestWithContext(ctx, http.MethodPatch, u.objectURL(objectPath), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	patch.Header.Set("Content-Type", "application/json")
	patchResp, err := u.httpClient.Do(patch)
	if err != nil {
		return "", fmt.Errorf("assign download token: %w", err)
	}
	defer patchResp.Body.Close()
	if patchResp.StatusCode < 200 || patchResp.StatusCode > 299 {
		return "", fmt.Errorf("assign download token: unexpected status %s", patchResp.Status)
	}
	return token, nil
}

// S3Uploader stores objects in an S3-compatible bucket instead of the
// Firebase-style one. Selected by configuration.
type S3Uploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewS3Uploader wraps an existing minio client. publicURL is the
// browser-reachable base for the bucket.
func NewS3Uploader(client *minio.Client, bucket, publicURL string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, publicURL: publicURL}
}

// Upload stores the object and returns its public URL.
func (u *S3Uploader) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, u.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectPath, err)
	}
	return fmt.Sprintf("%s/%s/%s", u.publicURL, u.bucket, objectPath), nil
}
