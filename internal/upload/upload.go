// Package upload hands harvested photos to a destination outside the
// project directory. Delivery is best-effort: callers log failures and move on.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// Sink accepts a canonically named local file for the given project.
type Sink interface {
	Upload(ctx context.Context, localPath, project string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, localPath, project string) error

func (f SinkFunc) Upload(ctx context.Context, localPath, project string) error {
	return f(ctx, localPath, project)
}

// Account describes the identity behind a remote storage connection.
type Account struct {
	ID    string
	Name  string
	Email string
}

// Storage is the remote storage client contract.
type Storage interface {
	AccountInfo(ctx context.Context) (Account, error)
	PutFile(ctx context.Context, remotePath string, body io.Reader) error
}

// RemotePath maps a file to /Photos/<project>/<file>.
func RemotePath(project, fileName string) string {
	return path.Join("/Photos", project, fileName)
}

// Remote streams files to a Storage under RemotePath.
type Remote struct {
	storage Storage
}

func NewRemote(storage Storage) *Remote {
	return &Remote{storage: storage}
}

func (r *Remote) Upload(ctx context.Context, localPath, project string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	remote := RemotePath(project, filepath.Base(localPath))
	if err := r.storage.PutFile(ctx, remote, f); err != nil {
		return fmt.Errorf("put %s: %w", remote, err)
	}
	return nil
}

// Directory mirrors files into <root>/Photos/<project>/, e.g. a mounted NAS share.
type Directory struct {
	root string
}

func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

func (d *Directory) Upload(_ context.Context, localPath, project string) error {
	target := filepath.Join(d.root, filepath.FromSlash(RemotePath(project, filepath.Base(localPath))))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("copy %s: %w", localPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename into %s: %w", target, err)
	}
	return nil
}
