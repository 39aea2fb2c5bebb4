package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	readyAttempts = 20
	readyInterval = 500 * time.Millisecond
)

// Version is the payload of the DevTools /json/version endpoint
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// FetchVersion queries baseURL/json/version once
func FetchVersion(ctx context.Context, baseURL string) (*Version, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/json/version"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("devtools returned %s", resp.Status)
	}

	var v Version
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode devtools version: %w", err)
	}
	return &v, nil
}

// WaitForDevTools polls /json/version until the browser answers
func WaitForDevTools(ctx context.Context, baseURL string) (*Version, error) {
	return waitForDevTools(ctx, baseURL, readyAttempts, readyInterval)
}

func waitForDevTools(ctx context.Context, baseURL string, attempts int, interval time.Duration) (*Version, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := FetchVersion(ctx, baseURL)
		if err == nil {
			return v, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, fmt.Errorf("browser did not become ready after %d attempts: %w", attempts, lastErr)
}
