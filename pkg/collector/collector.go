// Package collector implements the multi-source collection fan-out. Every
// adapter maps one upstream schema into domain.RawCandidate and nothing else;
// filtering, scoring and storage live elsewhere.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-pkgz/repeater/v2"

	"github.com/umputun/benchscope/pkg/domain"
)

// Collector is the common contract for all source adapters. Collect returns
// the candidates it could retrieve; partial results with a nil error are
// valid when some upstream calls failed.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]domain.RawCandidate, error)
}

// userAgent is sent on every outbound request
const userAgent = "BenchScope/1.0"

// newHTTPClient builds a client with the per-source timeout
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// getBody performs a GET with retries and returns the response body.
// Any status other than 200 counts as a failure and is retried like a network error.
func getBody(ctx context.Context, client *http.Client, url string, headers map[string]string, retries int) ([]byte, error) {
	if retries < 1 {
		retries = 1
	}
	var body []byte

	retrier := repeater.NewBackoff(retries, time.Second, repeater.WithMaxDelay(10*time.Second))
	err := retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("get %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body %s: %w", url, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// getJSON performs a retried GET and decodes the response into out
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, retries int, out any) error {
	body, err := getBody(ctx, client, url, headers, retries)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// truncate caps a string at max characters
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
