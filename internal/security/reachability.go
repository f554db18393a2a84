package security

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// CheckReachable issues a HEAD request against a submitted source URL,
// retrying transient failures, so a permanently dead link fails the
// background download job quickly instead of after yt-dlp's own retries.
func CheckReachable(ctx context.Context, rawURL string) error {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil // the retryablehttp default logger writes to stderr; callers log via zerolog instead

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("reachability check: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reachability check: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("reachability check: server returned %s", resp.Status)
	}
	return nil
}
