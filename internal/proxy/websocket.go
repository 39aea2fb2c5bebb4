package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: sameOrigin,
}

// sameOrigin accepts clients without an Origin header (CDP tooling) and
// browser pages served by this host. Any other page could otherwise drive
// the logged-in browser.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// DebuggerSource resolves the browser's DevTools websocket URL
type DebuggerSource interface {
	DebuggerURL(ctx context.Context) (string, error)
}

// Server relays DevTools traffic between a client and the shared browser
type Server struct {
	source DebuggerSource
	logger *zap.Logger
}

func NewServer(source DebuggerSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		source: source,
		logger: logger.With(zap.String("component", "devtools_proxy")),
	}
}

// HandleDevTools handles GET /debug/devtools
func (s *Server) HandleDevTools(w http.ResponseWriter, r *http.Request) {
	if !sameOrigin(r) {
		s.logger.Warn("rejected devtools client", zap.String("origin", r.Header.Get("Origin")), zap.String("remote", r.RemoteAddr))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Resolve before upgrading so failures surface as plain HTTP errors.
	browserURL, err := s.source.DebuggerURL(ctx)
	if err != nil {
		s.logger.Warn("devtools unavailable", zap.Error(err))
		http.Error(w, "DevTools endpoint unavailable", http.StatusServiceUnavailable)
		return
	}

	browserConn, _, err := websocket.DefaultDialer.DialContext(ctx, browserURL, nil)
	if err != nil {
		s.logger.Error("failed to connect to browser", zap.String("url", browserURL), zap.Error(err))
		http.Error(w, "Failed to connect to browser", http.StatusBadGateway)
		return
	}
	defer browserConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	s.logger.Info("devtools client connected", zap.String("remote", r.RemoteAddr))

	errChan := make(chan error, 2)

	go func() {
		errChan <- s.proxyMessages(clientConn, browserConn, "client→browser")
	}()

	go func() {
		errChan <- s.proxyMessages(browserConn, clientConn, "browser→client")
	}()

	err = <-errChan
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("devtools proxy ended", zap.Error(err))
	}

	s.logger.Info("devtools client disconnected", zap.String("remote", r.RemoteAddr))
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			return fmt.Errorf("write %s: %w", direction, err)
		}
	}
}
