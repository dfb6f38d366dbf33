// Package kaggle downloads dataset archives from the Kaggle API and extracts
// selected members to disk.
package kaggle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/klauspost/compress/zip"
)

// ErrNothingExtracted is returned when none of the requested members could be extracted.
var ErrNothingExtracted = errors.New("no dataset files extracted")

// Client talks to the Kaggle public API.
type Client struct {
	baseURL    string
	username   string
	key        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Kaggle client. Dataset archives can be large, so the
// request has no overall timeout; callers bound it with the context.
func NewClient(baseURL, username, key string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		key:      key,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: time.Minute,
			},
		},
		logger: logger,
	}
}

// Download fetches the dataset ("owner/name") and extracts files into destDir,
// keeping their archive-relative paths. The archive itself is removed afterwards.
func (c *Client) Download(ctx context.Context, dataset string, files []string, destDir string) (domain.DatasetReport, error) {
	owner, name, ok := strings.Cut(dataset, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return domain.DatasetReport{}, fmt.Errorf("invalid dataset %q: want owner/name", dataset)
	}

	tmpDir, err := os.MkdirTemp("", "kaggle-*")
	if err != nil {
		return domain.DatasetReport{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	c.logger.Info("dataset download started", "dataset", dataset)
	start := time.Now()
	zipPath := filepath.Join(tmpDir, name+".zip")
	size, err := c.fetchArchive(ctx, owner, name, zipPath)
	if err != nil {
		return domain.DatasetReport{}, err
	}
	c.logger.Info("dataset downloaded",
		"dataset", dataset,
		"bytes", size,
		"duration", time.Since(start),
	)

	res, err := extract(zipPath, files, destDir, c.logger)
	res.ArchiveBytes = size
	return res, err
}

func (c *Client) fetchArchive(ctx context.Context, owner, name, dst string) (int64, error) {
	u := fmt.Sprintf("%s/datasets/download/%s/%s", c.baseURL, owner, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dataset request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("kaggle API error: status %d: %s", resp.StatusCode, body)
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download archive: %w", err)
	}
	return n, f.Close()
}

func extract(zipPath string, files []string, destDir string, logger *slog.Logger) (domain.DatasetReport, error) {
	var res domain.DatasetReport

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return res, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		members[f.Name] = f
	}

	for _, name := range files {
		m, ok := members[name]
		if !ok {
			logger.Warn("dataset member missing", "file", name)
			res.Missing = append(res.Missing, name)
			continue
		}
		df, err := extractMember(m, destDir)
		if err != nil {
			logger.Error("dataset member extraction failed", "file", name, "error", err)
			res.Failed = append(res.Failed, name)
			continue
		}
		logger.Info("dataset member extracted", "file", name, "path", df.Path, "bytes", df.Size)
		res.Files = append(res.Files, df)
	}

	if len(res.Files) == 0 {
		return res, ErrNothingExtracted
	}
	return res, nil
}

func extractMember(m *zip.File, destDir string) (domain.DatasetFile, error) {
	target := filepath.Join(destDir, filepath.FromSlash(m.Name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return domain.DatasetFile{}, fmt.Errorf("member %q escapes destination", m.Name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return domain.DatasetFile{}, fmt.Errorf("create dir: %w", err)
	}

	src, err := m.Open()
	if err != nil {
		return domain.DatasetFile{}, fmt.Errorf("open member: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return domain.DatasetFile{}, fmt.Errorf("create %s: %w", target, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return domain.DatasetFile{}, fmt.Errorf("write %s: %w", target, err)
	}
	if err := dst.Close(); err != nil {
		return domain.DatasetFile{}, fmt.Errorf("close %s: %w", target, err)
	}
	return domain.DatasetFile{Name: m.Name, Path: target, Size: n}, nil
}
