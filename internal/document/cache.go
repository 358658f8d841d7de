package document

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/csheth/citejump/internal/logger"
)

const (
	CacheEnvVar        = "CITEJUMP_CACHE_DIR"
	cacheSubdir        = "citejump/pdfs"
	cacheTTL           = 24 * time.Hour
	partialSuffix      = ".part"
	metaSuffix         = ".meta"
	defaultHTTPTimeout = 90 * time.Second
	pdfSignature       = "%PDF-"
)

// ErrNotPDF is returned when a download does not start with the PDF header.
var ErrNotPDF = errors.New("document: downloaded file is not a PDF")

// Cache keeps downloaded PDFs on disk. Fresh copies are reused for a day;
// stale ones are revalidated with ETag or Last-Modified, and interrupted
// downloads resume from their partial file.
type Cache struct {
	dir    string
	client *http.Client
	log    logger.Logger
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"lastModified"`
	CachedAt     time.Time `json:"cachedAt"`
	Size         int64     `json:"size"`
}

// NewCache creates the cache directory. An empty dir falls back to
// $CITEJUMP_CACHE_DIR, then the user cache directory.
func NewCache(dir string, client *http.Client, log logger.Logger) (*Cache, error) {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Cache{dir: dir, client: client, log: logger.Component(log, "pdfcache")}, nil
}

// DefaultCacheDir returns where downloaded PDFs live when nothing is configured.
func DefaultCacheDir() string {
	if dir := os.Getenv(CacheEnvVar); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = filepath.Join(os.TempDir(), "citejump-cache")
	}
	return filepath.Join(base, cacheSubdir)
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// cachedFile names the files one URL occupies in the cache directory.
type cachedFile struct {
	pdf  string
	meta string
	part string
}

func (c *Cache) files(key string) cachedFile {
	base := filepath.Join(c.dir, key)
	return cachedFile{pdf: base + ".pdf", meta: base + metaSuffix, part: base + partialSuffix}
}

// current returns the cached copy, if one with content exists.
func (f cachedFile) current() os.FileInfo {
	info, err := os.Stat(f.pdf)
	if err != nil || info.Size() == 0 {
		return nil
	}
	return info
}

// Fetch returns a local path for pdfURL, downloading it when needed. A stale
// copy is still returned when revalidation fails.
func (c *Cache) Fetch(ctx context.Context, pdfURL string) (string, error) {
	f := c.files(cacheKey(pdfURL))
	have := f.current()
	if have != nil && time.Since(have.ModTime()) < cacheTTL {
		return f.pdf, nil
	}

	meta, _ := readMeta(f.meta)
	err := c.refresh(ctx, pdfURL, f, meta, have != nil)
	switch {
	case err == nil:
		return f.pdf, nil
	case have != nil:
		c.log.Warn("revalidation failed, serving stale copy", "url", pdfURL, "error", err)
		return f.pdf, nil
	default:
		return "", err
	}
}

// refresh brings f up to date with the server: a conditional GET when a copy
// exists, a ranged GET when an interrupted download left a partial file.
func (c *Cache) refresh(ctx context.Context, pdfURL string, f cachedFile, meta cacheMeta, have bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return err
	}
	validator := meta.ETag
	if validator == "" {
		validator = meta.LastModified
	}
	if have {
		setIf(req, "If-None-Match", meta.ETag)
		setIf(req, "If-Modified-Since", meta.LastModified)
	}
	var resumeFrom int64
	if info, err := os.Stat(f.part); err == nil && info.Size() > 0 {
		resumeFrom = info.Size()
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
		setIf(req, "If-Range", validator)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if !have {
			// Nothing to keep; start over without validators.
			return c.refresh(ctx, pdfURL, f, cacheMeta{}, false)
		}
		meta.CachedAt = time.Now().UTC()
		if err := writeMeta(f.meta, meta); err != nil {
			return err
		}
		now := time.Now()
		return os.Chtimes(f.pdf, now, now)
	case http.StatusOK:
		return c.store(resp, f, false)
	case http.StatusPartialContent:
		return c.store(resp, f, resumeFrom > 0)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pdf download failed: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}
}

func setIf(req *http.Request, header, value string) {
	if value != "" {
		req.Header.Set(header, value)
	}
}

// store writes the body to the partial file, checks that the result is a PDF
// and moves it into place.
func (c *Cache) store(resp *http.Response, f cachedFile, resume bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resume {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	out, err := os.OpenFile(f.part, flags, 0o644)
	if err != nil {
		return err
	}
	size, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if err := checkSignature(f.part); err != nil {
		os.Remove(f.part)
		return err
	}
	if err := os.Rename(f.part, f.pdf); err != nil {
		return err
	}

	meta := cacheMeta{
		URL:          resp.Request.URL.String(),
		ETag:         resp.Header.Get("Etag"),
		LastModified: resp.Header.Get("Last-Modified"),
		CachedAt:     time.Now().UTC(),
	}
	if info, err := os.Stat(f.pdf); err == nil {
		meta.Size = info.Size()
	}
	c.log.Debug("cached", "url", meta.URL, "bytes", meta.Size, "received", size, "resumed", resume)
	return writeMeta(f.meta, meta)
}

// checkSignature rejects downloads that are not PDFs, such as an HTML login
// page served with status 200.
func checkSignature(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	head := make([]byte, len(pdfSignature))
	if _, err := io.ReadFull(file, head); err != nil || string(head) != pdfSignature {
		return ErrNotPDF
	}
	return nil
}

// cacheKey keeps the file's own name readable and disambiguates it with a
// short hash of the full URL.
func cacheKey(pdfURL string) string {
	sum := sha1.Sum([]byte(pdfURL))
	digest := hex.EncodeToString(sum[:])[:12]
	name := ""
	if u, err := url.Parse(pdfURL); err == nil {
		name = strings.TrimSuffix(path.Base(u.Path), ".pdf")
	}
	name = sanitizeKey(name)
	if name == "" || name == "." || name == "-" {
		return digest
	}
	return name + "-" + digest
}

func sanitizeKey(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "/", "-")
	value = strings.ReplaceAll(value, ":", "-")
	value = strings.ReplaceAll(value, "..", "-")
	return value
}

func readMeta(path string) (cacheMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cacheMeta{}, err
	}
	var meta cacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func writeMeta(path string, meta cacheMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
