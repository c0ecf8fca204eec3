package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/odvcencio/reforge/pkg/rewrite"
)

// HTTPConvert posts file content to URL and replaces it with the response
// body. A 204 response deletes the file. Requests answered with 429 or 5xx
// are retried with exponential backoff.
type HTTPConvert struct {
	URL      string
	Patterns *Matcher // empty selects every file
	Attempts int
	Backoff  time.Duration // initial delay between attempts, default 1s
	Client   *http.Client
}

func (h HTTPConvert) Name() string { return "http" }

func (h HTTPConvert) PathDependent() bool { return h.Patterns.PathDependent() }

func (h HTTPConvert) RewriteBlob(ctx context.Context, b *rewrite.Blob) ([]*rewrite.Blob, error) {
	if !h.Patterns.Empty() && !h.Patterns.Match(blobPath(ctx, b.Name)) {
		return keep(b), nil
	}
	in, err := b.Content()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("http convert: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Reforge-Name", b.Name)

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	backoff := h.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	resp, err := retryDo(ctx, client, req, h.Attempts, backoff)
	if err != nil {
		return nil, fmt.Errorf("http convert %s: %w", h.URL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("http convert %s: status %d: %s", h.URL, resp.StatusCode, bytes.TrimSpace(msg))
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http convert %s: read response: %w", h.URL, err)
	}
	if !bytes.Equal(out, in) {
		b.SetContent(out)
	}
	return keep(b), nil
}

// retryDo executes req with exponential backoff. Network errors, 429 and
// 5xx responses are retried; other 4xx responses are returned as is. The
// request body is buffered and replayed on every attempt.
func retryDo(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int, backoff time.Duration) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, lastResp = err, nil
			continue
		}
		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr, lastResp = nil, resp
	}

	if lastErr != nil {
		return nil, lastErr
	}
	// Body already drained; hand back the status only.
	lastResp.Body = io.NopCloser(bytes.NewReader(nil))
	return lastResp, nil
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
