package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Downloader streams files referenced by URL into the task's working directory
type Downloader struct {
	client     *http.Client
	logger     *zap.Logger
	maxElapsed time.Duration
}

func NewDownloader(client *http.Client, logger *zap.Logger) *Downloader {
	return &Downloader{client: client, logger: logger, maxElapsed: 30 * time.Second}
}

// DownloadFile writes the body of rawURL to dir/<last path segment> in fixed-size
// chunks and returns the local path. Transport errors and 5xx responses are retried.
func (d *Downloader) DownloadFile(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing download url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("download url %q has no file name", rawURL)
	}
	localPath := filepath.Join(dir, name)
	d.logger.Info("Downloading file", zap.String("file", name), zap.String("url", rawURL))

	b := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(d.maxElapsed)), ctx)
	err = backoff.Retry(func() error {
		return d.fetchOnce(ctx, u.String(), localPath)
	}, b)
	if err != nil {
		_ = os.Remove(localPath)
		return "", err
	}
	return localPath, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("Download attempt failed", zap.String("url", rawURL), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode))
	}

	f, err := os.Create(localPath)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer f.Close()

	if _, err := io.CopyBuffer(f, resp.Body, make([]byte, copyChunkSize)); err != nil {
		return err
	}
	return nil
}
