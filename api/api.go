// Package api wires the gallery's HTTP routes to the photo, upload and
// auth services.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stevecastle/galleria/auth"
	"github.com/stevecastle/galleria/focus"
	"github.com/stevecastle/galleria/imagecodec"
	"github.com/stevecastle/galleria/logging"
	"github.com/stevecastle/galleria/photos"
	"github.com/stevecastle/galleria/renderer"
	"github.com/stevecastle/galleria/selection"
	"github.com/stevecastle/galleria/storage"
	"github.com/stevecastle/galleria/stream"
	"github.com/stevecastle/galleria/upload"
)

// Dependencies holds the services the handlers share.
type Dependencies struct {
	DB         *sql.DB
	Auth       *auth.AuthService
	Photos     *photos.Store
	Uploads    *upload.Service
	Classifier *focus.Classifier
	Selections *selection.Registry

	// MaxUploadBytes bounds request bodies carrying an image.
	MaxUploadBytes int64
	// UploadDir, when set, is served under /uploads/ for the disk store.
	UploadDir string
	// Location groups the gallery by month; nil means local time.
	Location *time.Location
}

// NewMux registers every route and installs the auth middleware.
func NewMux(deps *Dependencies) *http.ServeMux {
	if deps.Selections == nil {
		deps.Selections = &selection.Registry{}
	}
	if deps.Classifier == nil {
		deps.Classifier = deps.Uploads.Classifier()
	}
	renderer.AuthMiddleware = authMiddleware(deps)

	mux := http.NewServeMux()

	// pages
	mux.HandleFunc("GET /{$}", renderer.ApplyMiddlewares(galleryPageHandler(deps), renderer.RolePage))
	mux.HandleFunc("GET /add", renderer.ApplyMiddlewares(addPageHandler(deps), renderer.RolePage))
	mux.HandleFunc("GET /login", renderer.ApplyMiddlewares(loginPageHandler(deps), renderer.RolePublic))

	// accounts
	mux.HandleFunc("POST /api/signup", renderer.ApplyMiddlewares(signupHandler(deps), renderer.RolePublic))
	mux.HandleFunc("POST /api/login", renderer.ApplyMiddlewares(loginHandler(deps), renderer.RolePublic))
	mux.HandleFunc("GET /api/me", renderer.ApplyMiddlewares(meHandler(deps), renderer.RoleUser))
	mux.HandleFunc("DELETE /api/me", renderer.ApplyMiddlewares(deleteAccountHandler(deps), renderer.RoleUser))

	// focus analysis
	mux.HandleFunc("POST /api/analyze", renderer.ApplyMiddlewares(analyzeHandler(deps), renderer.RoleUser))
	mux.HandleFunc("GET /api/analyze/current", renderer.ApplyMiddlewares(currentAnalysisHandler(deps), renderer.RoleUser))

	// photos
	mux.HandleFunc("POST /api/upload", renderer.ApplyMiddlewares(uploadHandler(deps), renderer.RoleUser))
	mux.HandleFunc("POST /api/photos", renderer.ApplyMiddlewares(createPhotoHandler(deps), renderer.RoleUser))
	mux.HandleFunc("GET /api/photos", renderer.ApplyMiddlewares(listPhotosHandler(deps), renderer.RoleUser))
	mux.HandleFunc("GET /api/photos/suggest", renderer.ApplyMiddlewares(suggestHandler(deps), renderer.RoleUser))
	mux.HandleFunc("DELETE /api/photos/{id}", renderer.ApplyMiddlewares(deletePhotoHandler(deps), renderer.RoleUser))

	mux.HandleFunc("GET /stream", renderer.ApplyMiddlewares(stream.Handler(userIDOf), renderer.RoleUser))
	mux.HandleFunc("GET /health", healthHandler(deps))

	if deps.UploadDir != "" {
		mux.Handle("GET "+storage.DefaultURLPrefix+"/",
			http.StripPrefix(storage.DefaultURLPrefix+"/", http.FileServer(http.Dir(deps.UploadDir))))
	}
	return mux
}

func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L().Error("error encoding JSON response", zap.Error(err))
	}
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	status := http.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, upload.ErrMissingFields):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, upload.ErrTooLarge), errors.Is(err, imagecodec.ErrTooLarge), errors.As(err, &tooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "Image is too large"
	case errors.Is(err, imagecodec.ErrUnsupported):
		status, msg = http.StatusUnsupportedMediaType, "Unsupported image type"
	case errors.Is(err, upload.ErrUploadFailed):
		status, msg = http.StatusBadGateway, "Upload failed, please try again"
	case errors.Is(err, photos.ErrNotFound):
		status, msg = http.StatusNotFound, "Photo not found"
	case errors.Is(err, photos.ErrForbidden):
		status, msg = http.StatusForbidden, "Not your photo"
	case errors.Is(err, auth.ErrInvalidCreds), errors.Is(err, auth.ErrUserNotFound):
		status, msg = http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, auth.ErrUserExists):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail):
		status, msg = http.StatusBadRequest, err.Error()
	}

	if status >= http.StatusInternalServerError {
		logging.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	http.Error(w, msg, status)
}

// healthHandler reports liveness plus stream connection statistics.
func healthHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if err := deps.DB.PingContext(r.Context()); err != nil {
			logging.L().Error("database ping failed", zap.Error(err))
			status, code = "degraded", http.StatusServiceUnavailable
		}

		writeJSON(w, code, map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"stream":    stream.GetConnectionStats(),
			"analysis":  deps.Classifier.Config(),
		})
	}
}
