package flow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDownloadResultURLsSavesFilesAndReturnsPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload-" + filepath.Base(r.URL.Path)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(dir)

	paths, err := d.DownloadResultURLs(context.Background(), "exec-1", map[string]interface{}{
		"single": srv.URL + "/a.txt",
		"multi":  []interface{}{srv.URL + "/b.txt", srv.URL + "/c.txt"},
		"other":  "not-a-url",
		"number": 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 saved files, got %d: %v", len(paths), paths)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected saved file at %s: %v", p, err)
		}
		if filepath.Dir(p) != filepath.Join(dir, "exec-1") {
			t.Fatalf("expected file under execution subdir, got %s", p)
		}
	}
}

func TestDownloadResultURLsNoURLsReturnsNil(t *testing.T) {
	d := NewDownloader(t.TempDir())
	paths, err := d.DownloadResultURLs(context.Background(), "exec-2", map[string]interface{}{"note": "no urls here"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paths != nil {
		t.Fatalf("expected nil paths, got %v", paths)
	}
}

func TestDownloadResultURLsNilDownloaderIsNoop(t *testing.T) {
	var d *Downloader
	paths, err := d.DownloadResultURLs(context.Background(), "exec-3", map[string]interface{}{"url": "http://example.com/x"})
	if err != nil || paths != nil {
		t.Fatalf("expected nil, nil from a nil Downloader, got %v, %v", paths, err)
	}
}

func TestDownloadResultURLsContinuesPastOneFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir())
	paths, err := d.DownloadResultURLs(context.Background(), "exec-4", map[string]interface{}{
		"bad":  srv.URL + "/missing.txt",
		"good": srv.URL + "/present.txt",
	})
	if err == nil {
		t.Fatal("expected the 404 to surface as an error")
	}
	if len(paths) != 1 {
		t.Fatalf("expected the successful fetch to still be saved, got %v", paths)
	}
}
