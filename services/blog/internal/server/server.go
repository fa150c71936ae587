package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkpost/internal/metrics"
	"inkpost/internal/ratelimit"
	"inkpost/internal/util"
	"inkpost/pkg/domain"
	"inkpost/services/blog/internal/app"
)

const defaultMaxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// WriteLimiter throttles POST/PUT/DELETE per client IP. Nil disables it.
	WriteLimiter   ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
	// DevSignIn exposes POST /auth/session, which signs in by email alone.
	DevSignIn    bool
	CORSOrigins  []string
	MaxBodyBytes int64
	// Health reports dependency reachability for /healthz.
	Health func(context.Context) error
}

// Server exposes the blog HTTP API.
type Server struct {
	app          *app.App
	mux          *http.ServeMux
	limiter      ratelimit.Limiter
	trusted      *util.TrustedProxies
	devSignIn    bool
	corsOrigins  []string
	maxBodyBytes int64
	health       func(context.Context) error
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		app:          cfg.App,
		mux:          http.NewServeMux(),
		limiter:      cfg.WriteLimiter,
		trusted:      cfg.TrustedProxies,
		devSignIn:    cfg.DevSignIn,
		corsOrigins:  cfg.CORSOrigins,
		maxBodyBytes: cfg.MaxBodyBytes,
		health:       cfg.Health,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("blog",
			util.WithSecurityHeaders(
				util.WithCORS(s.corsOrigins, metrics.Instrument(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Exposer())

	// posts
	s.mux.HandleFunc("GET /posts", s.handleListPosts)
	s.mux.HandleFunc("POST /posts", s.limited(s.handleCreatePost))
	s.mux.HandleFunc("GET /posts/{id}", s.handleGetPost)
	s.mux.HandleFunc("PUT /posts/{id}", s.limited(s.handleUpdatePost))
	s.mux.HandleFunc("DELETE /posts/{id}", s.limited(s.handleDeletePost))

	// users
	s.mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	s.mux.HandleFunc("PUT /users/{id}", s.limited(s.handleUpdateUser))
	s.mux.HandleFunc("DELETE /users/{id}", s.limited(s.handleDeleteUser))

	// sessions
	s.mux.HandleFunc("POST /auth/session", s.limited(s.handleSignIn))
	s.mux.HandleFunc("DELETE /auth/session", s.handleSignOut)
	s.mux.HandleFunc("GET /auth/me", s.handleMe)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// posts

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePostFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	posts, err := s.app.ListPosts(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to fetch posts")
		return
	}
	items := make([]postListItem, 0, len(posts))
	for _, p := range posts {
		items = append(items, postListItem{Post: p, Excerpt: domain.Excerpt(p.Content, domain.ExcerptLength)})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.app.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err, "Failed to fetch post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	caller, ok := s.identify(w, r)
	if !ok {
		return
	}
	post, err := s.app.CreatePost(r.Context(), caller, app.CreatePostInput{
		Title:     req.Title,
		Content:   req.Content,
		Published: req.Published,
		AuthorID:  req.AuthorID,
	})
	if err != nil {
		s.writeAppError(w, r, err, "Failed to create post")
		return
	}
	metrics.Mutations.WithLabelValues("post", "create").Inc()
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req updatePostRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	caller, ok := s.identify(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	post, err := s.app.UpdatePost(r.Context(), caller, id, app.UpdatePostInput{
		Title:     req.Title,
		Content:   req.Content,
		Published: req.Published,
		AuthorID:  deref(req.AuthorID),
	})
	if err != nil {
		s.writeAppError(w, r, err, "Failed to update post", "post_id", id)
		return
	}
	metrics.Mutations.WithLabelValues("post", "update").Inc()
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.identify(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := s.app.DeletePost(r.Context(), caller, id, r.URL.Query().Get("authorId")); err != nil {
		s.writeAppError(w, r, err, "Failed to delete post", "post_id", id)
		return
	}
	metrics.Mutations.WithLabelValues("post", "delete").Inc()
	writeJSON(w, http.StatusOK, messageResponse{Message: "Post deleted successfully"})
}

// users

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.app.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err, "Failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	caller, ok := s.identify(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	user, err := s.app.UpdateUser(r.Context(), caller, id, app.UpdateUserInput{
		Email:     req.Email,
		Name:      req.Name.Value,
		ClearName: req.Name.Set && req.Name.Value == nil,
	})
	if err != nil {
		s.writeAppError(w, r, err, "Failed to update user", "user_id", id)
		return
	}
	metrics.Mutations.WithLabelValues("user", "update").Inc()
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.identify(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := s.app.DeleteUser(r.Context(), caller, id); err != nil {
		s.writeAppError(w, r, err, "Failed to delete user", "user_id", id)
		return
	}
	metrics.Mutations.WithLabelValues("user", "delete").Inc()
	s.audit(r, "blog.user.delete", "success", "user_id", id)
	writeJSON(w, http.StatusOK, messageResponse{Message: "User deleted successfully"})
}

// sessions

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !s.devSignIn {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req signInRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.SignIn(r.Context(), req.Email, req.Name)
	if err != nil {
		s.audit(r, "blog.signin", "fail", "reason", err.Error())
		s.writeAppError(w, r, err, "Failed to sign in")
		return
	}
	s.audit(r, "blog.signin", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, signInResponse{Token: token, User: user})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "blog.signout", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, app.ErrUnauthorized.Error())
		return
	}
	if err := s.app.SignOut(r.Context(), token); err != nil {
		s.writeAppError(w, r, err, "Failed to sign out")
		return
	}
	s.audit(r, "blog.signout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.identify(w, r)
	if !ok {
		return
	}
	user, err := s.app.Me(r.Context(), caller)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// identify resolves the bearer token, if any. It writes the response and
// returns false when the token is rejected.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (app.Identity, bool) {
	token, _ := bearerToken(r)
	caller, err := s.app.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, app.ErrUnauthorized) {
			s.audit(r, "blog.token.verify", "fail", "reason", "invalid_token")
		}
		s.writeAppError(w, r, err, "Failed to verify session")
		return app.Identity{}, false
	}
	return caller, true
}

// limited applies the write rate limit before next.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next(w, r)
			return
		}
		allowed, retryAfter := s.limiter.Allow(r.Context(), util.ClientIP(r, s.trusted))
		if !allowed {
			metrics.RateLimited.Inc()
			s.audit(r, "blog.write", "rate_limited")
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes)).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeAppError maps app errors to status codes. Internal errors are logged
// and answered with fallback so causes never reach the client.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error, fallback string, attrs ...any) {
	switch app.KindOf(err) {
	case app.KindInvalidInput:
		writeError(w, http.StatusBadRequest, err.Error())
	case app.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case app.KindForbidden:
		metrics.AuthorizationDenied.WithLabelValues("forbidden").Inc()
		s.audit(r, "blog.authorize", "fail", append([]any{"reason", err.Error()}, attrs...)...)
		writeError(w, http.StatusForbidden, err.Error())
	case app.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case app.KindUnauthorized:
		metrics.AuthorizationDenied.WithLabelValues("unauthorized").Inc()
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error(fallback, append([]any{"err", err}, attrs...)...)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func parsePostFilter(r *http.Request) (domain.PostFilter, error) {
	q := r.URL.Query()
	filter := domain.PostFilter{
		AuthorID: strings.TrimSpace(q.Get("authorId")),
		Query:    strings.TrimSpace(q.Get("q")),
	}
	if raw := strings.TrimSpace(q.Get("published")); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("published must be true or false")
		}
		filter.Published = &published
	}
	return filter, nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
