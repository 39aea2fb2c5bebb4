package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/lensshot/internal/proxy"
	"github.com/shehryarbajwa/lensshot/internal/storage"
)

// Routes lists the optional pieces mounted next to the API
type Routes struct {
	Images      *storage.Dir
	Screenshots *storage.Dir
	PublicDir   string
	Metrics     http.Handler
	DevTools    *proxy.Server
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(rt Routes) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/process-image", h.ProcessImage).Methods("POST", "OPTIONS")
	r.HandleFunc("/healthz", h.Health).Methods("GET")

	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics).Methods("GET")
	}
	if rt.DevTools != nil {
		r.HandleFunc("/debug/devtools", rt.DevTools.HandleDevTools).Methods("GET")
	}

	// Artifact directories are served read-only
	for _, dir := range []*storage.Dir{rt.Images, rt.Screenshots} {
		if dir == nil {
			continue
		}
		prefix := strings.TrimRight(dir.Route(), "/") + "/"
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, fileServer(dir.Root()))).Methods("GET", "HEAD")
	}

	if rt.PublicDir != "" {
		r.PathPrefix("/").Handler(spaHandler{root: rt.PublicDir, index: "index.html"}).Methods("GET", "HEAD")
	}

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(h.logger))
	r.Use(corsMiddleware)

	return r
}

// fileServer serves files from root without directory listings
func fileServer(root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// spaHandler serves static assets and falls back to the index page
type spaHandler struct {
	root  string
	index string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := filepath.Join(h.root, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))

	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		http.ServeFile(w, r, filepath.Join(h.root, h.index))
		return
	}

	http.FileServer(http.Dir(h.root)).ServeHTTP(w, r)
}
