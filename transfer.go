package vidget

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
	"regexp"
	"strings"
	"time"
)

// idleTimeoutReader wraps an io.ReadCloser and fails any single Read that
// takes longer than timeout.
type idleTimeoutReader struct {
	r       io.ReadCloser
	timeout time.Duration
}

func newIdleTimeoutReader(r io.ReadCloser, timeout time.Duration) *idleTimeoutReader {
	return &idleTimeoutReader{r: r, timeout: timeout}
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	type readResult struct {
		n   int
		err error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		n, err := r.r.Read(p)
		resultCh <- readResult{n, err}
	}()

	select {
	case <-ctx.Done():
		// Closing unblocks the pending Read; its result is discarded.
		r.r.Close()
		return 0, fmt.Errorf("%w: no data received for %s", ErrTimeout, r.timeout)
	case res := <-resultCh:
		return res.n, res.err
	}
}

func (r *idleTimeoutReader) Close() error {
	return r.r.Close()
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	nonASCIIRuns        = regexp.MustCompile(`[^\x00-\x7F]+`)
)

// SanitizeFilename makes a video title safe to use as a file name.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = nonASCIIRuns.ReplaceAllString(name, "_")
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." || name == ".." {
		return "video"
	}
	return name
}

var mimeExtensions = map[string]string{
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"audio/mpeg":       ".mp3",
	"audio/mp4":        ".m4a",
}

// fileExtension picks an extension from the link's path, falling back to
// the response's Content-Type and finally ".mp4".
func fileExtension(downloadURL, contentType string) string {
	if u, err := url.Parse(downloadURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 6 {
			return ext
		}
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := mimeExtensions[mt]; ok {
			return ext
		}
	}
	return ".mp4"
}

// SaveFile streams downloadURL into destDir, naming the file after title.
// It returns the path written. Data goes to a ".part" file that is renamed
// only once the transfer completes.
func (c *Client) SaveFile(ctx context.Context, downloadURL, destDir, title string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", downloadURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Printf("Fetching %s into %s", downloadURL, destDir)
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		return "", fmt.Errorf("http request failed for %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, downloadURL)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", destDir, err)
	}

	fullPath := filepath.Join(destDir, SanitizeFilename(title)+fileExtension(downloadURL, resp.Header.Get("Content-Type")))
	partPath := fullPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return "", err
	}

	pw := &progressWriter{w: out, filepath: fullPath, totalSize: resp.ContentLength, c: c}
	c.sendTransfer(TransferProgress{Filepath: fullPath, TotalSize: resp.ContentLength})
	_, copyErr := io.Copy(pw, newIdleTimeoutReader(resp.Body, c.idleTimeout))
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(partPath)
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		return "", fmt.Errorf("failed to save %s: %w", fullPath, copyErr)
	}
	if err := os.Rename(partPath, fullPath); err != nil {
		return "", err
	}

	c.sendTransfer(TransferProgress{Filepath: fullPath, TotalSize: resp.ContentLength, CurrentSize: pw.written, Done: true})
	c.logger.Printf("Saved %d bytes to %s", pw.written, fullPath)
	return fullPath, nil
}

// sendTransfer never blocks; updates are dropped when nobody is reading.
func (c *Client) sendTransfer(p TransferProgress) {
	if c.transfers == nil {
		return
	}
	select {
	case c.transfers <- p:
	default:
	}
}

type progressWriter struct {
	w         io.Writer
	filepath  string
	totalSize int64
	written   int64
	c         *Client
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 {
		pw.written += int64(n)
		pw.c.sendTransfer(TransferProgress{Filepath: pw.filepath, TotalSize: pw.totalSize, CurrentSize: pw.written})
	}
	return n, err
}
