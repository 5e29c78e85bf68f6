package prebuilt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	ErrFetch            = errors.New("fetch failed")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrLocalOverride    = errors.New("local override not found")
)

var errStalled = errors.New("transfer stalled")

// fetch downloads url into dst. Redirects are followed by the client. The
// transfer is abandoned once no bytes have arrived for stall.
func fetch(ctx context.Context, client *http.Client, url, dst string, stall time.Duration) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	timer := time.AfterFunc(stall, func() { cancel(errStalled) })
	defer timer.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fetchError(ctx, url, stall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: status %d", ErrFetch, url, resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	body := &stallReader{r: resp.Body, timer: timer, stall: stall}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fetchError(ctx, url, stall, err)
	}
	return f.Close()
}

// fetchError reports a cancelled transfer by its cause rather than by the
// transport's error for it.
func fetchError(ctx context.Context, url string, stall time.Duration, err error) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errStalled):
		return fmt.Errorf("%w: %s: no data for %s: %w", ErrFetch, url, stall, errStalled)
	case cause != nil:
		return fmt.Errorf("%w: %s: %w", ErrFetch, url, cause)
	}
	return fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
}

// stallReader pushes the stall deadline back on every read that returns data.
type stallReader struct {
	r     io.Reader
	timer *time.Timer
	stall time.Duration
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.timer.Reset(s.stall)
	}
	return n, err
}

// copyFile copies src to dst, creating or truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func verifyChecksum(path, want string) error {
	got, err := fileSHA256(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	if got != strings.ToLower(strings.TrimSpace(want)) {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, want, got)
	}
	return nil
}
