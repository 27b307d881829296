// Package fetch downloads remote artifacts, unpacks archives and resolves mod-loader
// distributions.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/payperplay/easyservers/internal/progress"
	"github.com/payperplay/easyservers/pkg/config"
	"github.com/payperplay/easyservers/pkg/logger"
)

// Client talks to download hosts and loader metadata endpoints.
type Client struct {
	http    *http.Client
	sources config.Sources
	out     *progress.Sink
}

// NewClient creates a fetch client. A zero timeout means no client-side limit.
func NewClient(sources config.Sources, timeout time.Duration, out *progress.Sink) *Client {
	if out == nil {
		out = progress.Discard()
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		sources: sources,
		out:     out,
	}
}

// Sources returns the endpoints the client resolves against.
func (c *Client) Sources() config.Sources {
	return c.sources
}

// Download fetches link into destDir. The stored file is named after the
// Content-Disposition filename or the last URL path segment, prefixed with "<prefix>_"
// when prefix is set.
func (c *Client) Download(ctx context.Context, link, destDir, prefix string) (string, error) {
	resp, err := c.get(ctx, stripQuery(link))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	fileName := dispositionFileName(resp.Header.Get("Content-Disposition"))
	if fileName == "" {
		name, ok := urlFileName(link)
		if !ok {
			return "", fmt.Errorf("cannot determine a file name for %s", link)
		}
		fileName = name
	}
	if prefix != "" {
		fileName = prefix + "_" + fileName
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	target := filepath.Join(destDir, fileName)

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}

	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(target)
		return "", fmt.Errorf("failed to download %s: %w", link, err)
	}

	c.out.Printf("Downloaded %s (%s).", fileName, formatBytes(n))
	logger.Debug("Artifact downloaded", map[string]interface{}{
		"url":   link,
		"path":  target,
		"bytes": n,
	})
	return target, nil
}

// get performs a GET with the configured User-Agent and rejects non-2xx answers.
func (c *Client) get(ctx context.Context, link string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid link %s: %w", link, err)
	}

	// Set User-Agent (some hosts require it)
	req.Header.Set("User-Agent", c.sources.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", link, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("bad status from %s: %s", link, resp.Status)
	}

	return resp, nil
}

// IsRemote reports whether link should be downloaded rather than copied.
func IsRemote(link string) bool {
	lower := strings.ToLower(link)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func stripQuery(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func dispositionFileName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	// Only the last element counts, and it must name a file inside destDir.
	name := path.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// urlFileName returns the last path segment when it looks like a file name.
func urlFileName(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	last := path.Base(u.Path)
	if last == "." || last == "/" || !strings.Contains(last, ".") || strings.HasSuffix(last, ".") {
		return "", false
	}
	return last, true
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
