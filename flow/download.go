package flow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Downloader fetches a node's result URLs to local storage after a
// successful execution (step 13 of executeNode). Failures are logged by
// the caller and never fail the execution — the Execution row already
// reflects success by the time this runs.
type Downloader struct {
	client  *http.Client
	destDir string
}

// NewDownloader builds a Downloader that writes fetched files under
// destDir, one subdirectory per execution id.
func NewDownloader(destDir string) *Downloader {
	return &Downloader{client: &http.Client{}, destDir: destDir}
}

// DownloadResultURLs extracts every URL found in resultMetadata (string
// values or string-array values) and downloads each to
// destDir/executionID/<basename>, returning the local paths it managed to
// save and the first error it hit (callers log and continue rather than
// fail the execution on this error).
func (d *Downloader) DownloadResultURLs(ctx context.Context, executionID string, resultMetadata map[string]interface{}) ([]string, error) {
	if d == nil || resultMetadata == nil {
		return nil, nil
	}

	var urls []string
	for _, v := range resultMetadata {
		switch val := v.(type) {
		case string:
			if looksLikeURL(val) {
				urls = append(urls, val)
			}
		case []interface{}:
			for _, elem := range val {
				if s, ok := elem.(string); ok && looksLikeURL(s) {
					urls = append(urls, s)
				}
			}
		}
	}

	if len(urls) == 0 {
		return nil, nil
	}

	dir := filepath.Join(d.destDir, executionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("downloader: mkdir %s: %w", dir, err)
	}

	var saved []string
	var firstErr error
	for _, u := range urls {
		path, err := d.downloadOne(ctx, u, dir)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		saved = append(saved, path)
	}
	return saved, firstErr
}

func (d *Downloader) downloadOne(ctx context.Context, url, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("downloader: build request for %s: %w", url, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloader: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("downloader: fetch %s: status %d", url, resp.StatusCode)
	}

	name := filepath.Base(url)
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	path := filepath.Join(destDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("downloader: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("downloader: write %s: %w", path, err)
	}
	return path, nil
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
