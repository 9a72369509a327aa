package mediasync

import (
	"context"
	"fmt"
	"log"
	"path"

	"galley/api/internal/sanitize"
)

// FailedFile records one file the sync could not copy.
type FailedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Result is the per-file outcome of one sync run.
type Result struct {
	Success []string     `json:"success"`
	Failed  []FailedFile `json:"failed"`
}

// ProgressFunc is called once per file, before that file's work
// begins. current is 1-based.
type ProgressFunc func(current, total int, name string)

// Syncer copies every image in a Drive folder into the storage bucket.
type Syncer struct {
	drive    *DriveClient
	uploader Uploader
}

// NewSyncer wires a folder client to an uploader.
func NewSyncer(drive *DriveClient, uploader Uploader) *Syncer {
	return &Syncer{drive: drive, uploader: uploader}
}

// SyncFolderToStorage downloads and re-uploads each file in turn.
// Files are processed sequentially so progress stays monotonic and the
// upload endpoint is never flooded. One file's failure is recorded and
// the loop moves on.
func (s *Syncer) SyncFolderToStorage(ctx context.Context, folderID, destPath string, onProgress ProgressFunc) (Result, error) {
	files, err := s.drive.ListFiles(ctx, folderID)
	if err != nil {
		return Result{}, fmt.Errorf("list source folder: %w", err)
	}

	result := Result{Success: []string{}, Failed: []FailedFile{}}
	for i, file := range files {
		if onProgress != nil {
			onProgress(i+1, len(files), file.Name)
		}
		publicURL, err := s.syncFile(ctx, file, destPath)
		if err != nil {
			log.Printf("mediasync: %s: %v", file.Name, err)
			result.Failed = append(result.Failed, FailedFile{Name: file.Name, Error: err.Error()})
			continue
		}
		result.Success = append(result.Success, publicURL)
	}
	return result, nil
}

func (s *Syncer) syncFile(ctx context.Context, file File, destPath string) (string, error) {
	data, err := s.drive.Download(ctx, file.ID)
	if err != nil {
		return "", err
	}
	objectPath := path.Join(destPath, sanitize.Filename(file.Name))
	return s.uploader.Upload(ctx, objectPath, data, file.MimeType)
}
