package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Resolve turns a document reference into a local path. http(s) references
// are fetched through cache; anything else is a path, taken relative to
// dataDir unless it is absolute or already exists as given.
func Resolve(ctx context.Context, cache *Cache, dataDir, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty document reference")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if cache == nil {
			return "", fmt.Errorf("no download cache for %s", ref)
		}
		return cache.Fetch(ctx, ref)
	}

	candidates := []string{ref}
	if !filepath.IsAbs(ref) && dataDir != "" {
		candidates = append(candidates, filepath.Join(dataDir, ref))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("document %q not found: %w", ref, os.ErrNotExist)
}

// Info describes one PDF available in the data directory.
type Info struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// List returns the PDFs directly inside dataDir, sorted by name.
func List(dataDir string) ([]Info, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	docs := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		docs = append(docs, Info{
			Name:    entry.Name(),
			Path:    filepath.Join(dataDir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}
