package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/terminus-industrials/intake/internal/config"
	"github.com/terminus-industrials/intake/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

//go:embed copy/*.md
var copyFS embed.FS

// NewServer creates and configures the HTTP server for the public site.
func NewServer(db *sql.DB, cfg *config.Config, dispatcher session.Dispatcher, version, bind string, port int) *http.Server {
	h := &Handlers{
		db:         db,
		cfg:        cfg,
		renderer:   newEmbeddedRenderer(version),
		dispatcher: dispatcher,
		guard:      session.NewGuard(),
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", h.HandleHome)
	mux.HandleFunc("GET "+pathContact, h.HandleContactForm)
	mux.HandleFunc("POST "+pathContact, h.HandleContactSubmit)
	mux.HandleFunc("GET "+pathApply, h.HandleApplyForm)
	mux.HandleFunc("POST "+pathApply, h.HandleApplySave)
	mux.HandleFunc("GET "+pathReview, h.HandleReview)
	mux.HandleFunc("POST "+pathReview+"/{id}/submit", h.HandleReviewSubmit)
	mux.HandleFunc("POST /validate", h.HandleValidate)
	mux.HandleFunc("POST /theme", h.HandleTheme)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("/", h.HandleNotFound)

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	// Wrap with security headers
	handler := securityHeaders(mux)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newEmbeddedRenderer builds a Renderer over the embedded templates and copy.
func newEmbeddedRenderer(version string) *Renderer {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatalf("failed to create template sub-FS: %v", err)
	}
	copySub, err := fs.Sub(copyFS, "copy")
	if err != nil {
		log.Fatalf("failed to create copy sub-FS: %v", err)
	}
	return NewRenderer(templateSub, copySub, version)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
// In-flight dispatches are given the shutdown window to finish.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("Listening on http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
