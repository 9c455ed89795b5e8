package router

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/handlers"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/middleware"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

const viewerPrefix = "/pdf-viewer/"

type Options struct {
	ServiceName string
	// ViewerDir is served under /pdf-viewer/.
	ViewerDir string
	// StagingDir, when set, is served under StagingURLPath so the browser can
	// fetch staged files.
	StagingDir     string
	StagingURLPath string
}

func NewRouter(checkHandler *handlers.AccessibilityHandler, opts Options, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(opts.ServiceName))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())

	// Check endpoints answer every verb themselves so non-POST gets the JSON 405.
	r.HandleFunc("/api/checkAccessibility", checkHandler.CheckAccessibility)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	api.HandleFunc("/accessibility/check", checkHandler.CheckAccessibility)

	// Static files
	if opts.StagingDir != "" && opts.StagingURLPath != "" {
		prefix := "/" + strings.Trim(opts.StagingURLPath, "/") + "/"
		r.PathPrefix(prefix).Handler(noStore(http.StripPrefix(prefix, http.FileServer(http.Dir(opts.StagingDir))))).
			Methods(http.MethodGet, http.MethodHead)
	}
	if opts.ViewerDir != "" {
		r.PathPrefix(viewerPrefix).Handler(http.StripPrefix(viewerPrefix, http.FileServer(http.Dir(opts.ViewerDir)))).
			Methods(http.MethodGet, http.MethodHead)
	}

	return r
}

// noStore keeps browsers from caching staged documents.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
