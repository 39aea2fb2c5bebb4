package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSource struct {
	url string
	err error
}

func (s staticSource) DebuggerURL(ctx context.Context) (string, error) {
	return s.url, s.err
}

// echoBrowser stands in for the DevTools endpoint and echoes frames back
func echoBrowser(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestHandleDevTools_Relays(t *testing.T) {
	browser := echoBrowser(t)
	defer browser.Close()

	srv := NewServer(staticSource{url: wsURL(browser.URL)}, zap.NewNop())
	front := httptest.NewServer(http.HandlerFunc(srv.HandleDevTools))
	defer front.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(front.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	payload := `{"id":1,"method":"Target.getTargets"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, payload, string(msg))
}

func TestHandleDevTools_Unavailable(t *testing.T) {
	srv := NewServer(staticSource{err: errors.New("not started")}, nil)

	rec := httptest.NewRecorder()
	srv.HandleDevTools(rec, httptest.NewRequest(http.MethodGet, "/debug/devtools", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleDevTools_BrowserUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(dead.URL)
	dead.Close()

	srv := NewServer(staticSource{url: url}, nil)

	rec := httptest.NewRecorder()
	srv.HandleDevTools(rec, httptest.NewRequest(http.MethodGet, "/debug/devtools", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleDevTools_RejectsForeignOrigin(t *testing.T) {
	browser := echoBrowser(t)
	defer browser.Close()

	srv := NewServer(staticSource{url: wsURL(browser.URL)}, zap.NewNop())
	front := httptest.NewServer(http.HandlerFunc(srv.HandleDevTools))
	defer front.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(front.URL), header)
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleDevTools_AllowsSameOrigin(t *testing.T) {
	browser := echoBrowser(t)
	defer browser.Close()

	srv := NewServer(staticSource{url: wsURL(browser.URL)}, zap.NewNop())
	front := httptest.NewServer(http.HandlerFunc(srv.HandleDevTools))
	defer front.Close()

	header := http.Header{"Origin": []string{front.URL}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(front.URL), header)
	require.NoError(t, err)
	conn.Close()
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://LOCALHOST:3000", true},
		{"http://localhost:4000", false},
		{"https://evil.example", false},
		{"null", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://localhost:3000/debug/devtools", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, sameOrigin(r), tt.origin)
	}
}
