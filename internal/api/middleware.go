package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	apperrors "github.com/vaidashi/apparel-order-pipeline/pkg/errors"
)

type ctxKey int

const userKey ctxKey = iota

// Identity headers set by the authentication proxy in front of the service
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
)

// loggingMiddleware logs each request with its status and duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
			"userID", r.Header.Get(HeaderUserID),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// userMiddleware builds the CurrentUser from the identity headers. A missing
// id is rejected; a missing role means viewer.
func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))

		if id == "" {
			s.respondWithServiceError(w, r, apperrors.NewUnauthorizedError("missing "+HeaderUserID+" header"))
			return
		}

		user := models.CurrentUser{
			ID:          id,
			DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
			Role:        models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
		}

		if user.DisplayName == "" {
			user.DisplayName = id
		}
		if user.Role == "" {
			user.Role = models.RoleViewer
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func currentUser(r *http.Request) models.CurrentUser {
	user, _ := r.Context().Value(userKey).(models.CurrentUser)
	return user
}

type permission func(models.Permissions) bool

func canCreate(p models.Permissions) bool      { return p.CanCreate }
func canEdit(p models.Permissions) bool        { return p.CanEdit }
func canAdvance(p models.Permissions) bool     { return p.CanAdvance }
func canDelete(p models.Permissions) bool      { return p.CanDelete }
func canViewReports(p models.Permissions) bool { return p.CanViewReports }

// require rejects callers whose role lacks the permission
func (s *Server) require(allowed permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)

		if !allowed(models.PermissionsFor(user.Role)) {
			s.logger.Warn("Permission denied", "userID", user.ID, "role", user.Role, "path", r.URL.Path)
			s.respondWithServiceError(w, r, apperrors.NewForbiddenError("role "+string(user.Role)+" may not do this"))
			return
		}

		next(w, r)
	}
}
