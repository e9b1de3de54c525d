package http

import (
	"net/http"
	"strings"

	"github.com/atinyakov/GalleryKeeper/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler of the development gallery.
//
// The web service is mounted at {prefix}ws.php so that the gallery can be
// served below a sub path, the way real installations often are.
//
// Routes:
//
//	GET  {prefix}ws.php  → ws.Serve
//	POST {prefix}ws.php  → ws.Serve
//
// Middleware chain (applied in order):
//  1. Recoverer                   - turns panics into 500 responses
//  2. WithRequestLogging(logger)  - logs incoming requests
//  3. SessionAuth(ws.Sessions)    - resolves the pwg_id cookie
func NewRouter(ws *WSHandler, prefix string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.SessionAuth(ws.Sessions))

	prefix = "/" + strings.Trim(prefix, "/")
	if prefix != "/" {
		prefix += "/"
	}
	r.Get(prefix+"ws.php", ws.Serve)
	r.Post(prefix+"ws.php", ws.Serve)

	return r
}
