// Package api serves any gateway.Gateway as an authenticated HTTP document
// store. Every request is scoped to the owner named in its bearer token.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/session"
)

type API struct {
	Gateway gateway.Gateway
	Auth    *session.Manager
	Log     *log.Logger
}

func New(gw gateway.Gateway, auth *session.Manager) *API {
	return &API{Gateway: gw, Auth: auth, Log: logger.With("api")}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(a.loggingMiddleware)

	r.Get("/health", a.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)
		r.Route("/collections/{collection}", func(r chi.Router) {
			r.Use(collectionMiddleware)
			r.Get("/", a.handleList)
			r.Post("/", a.handleCreate)
			r.Patch("/{id}", a.handleUpdate)
			r.Delete("/{id}", a.handleDelete)
		})
	})

	return r
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.Log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "took", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := session.TokenFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing token")
			return
		}
		claims, err := a.Auth.ParseToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}
		ctx := session.WithOwner(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var collections = map[string]bool{
	"habits":      true,
	"completions": true,
}

func collectionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !collections[chi.URLParam(r, "collection")] {
			writeError(w, http.StatusNotFound, "UNKNOWN_COLLECTION", "Unknown collection")
			return
		}
		next.ServeHTTP(w, r)
	})
}
