package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// do sends req and turns any non-2xx answer into an error carrying a short
// excerpt of the body.
func do(ctx context.Context, c *http.Client, req *http.Request) error {
	resp, err := c.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Host, resp.StatusCode, strings.TrimSpace(string(body)))
}
