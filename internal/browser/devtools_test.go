package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/version", r.URL.Path)
		w.Write([]byte(`{"Browser":"HeadlessChrome/120","webSocketDebuggerUrl":"ws://127.0.0.1:9222/devtools/browser/abc"}`))
	}))
	defer srv.Close()

	v, err := FetchVersion(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "HeadlessChrome/120", v.Browser)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", v.WebSocketDebuggerURL)
}

func TestWaitForDevTools_EventuallyReady(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"webSocketDebuggerUrl":"ws://x"}`))
	}))
	defer srv.Close()

	v, err := waitForDevTools(context.Background(), srv.URL, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ws://x", v.WebSocketDebuggerURL)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWaitForDevTools_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := waitForDevTools(context.Background(), srv.URL, 3, time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForDevTools_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := waitForDevTools(ctx, srv.URL, 10, time.Second)
	assert.Error(t, err)
}
