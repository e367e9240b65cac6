// Package api serves the JSON surface the dashboard and the note front-end
// use: verification, notes, tracked entity management and reports.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxseedlab/bonfire/internal/access"
	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/notes"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/foxseedlab/bonfire/internal/verify"
)

const (
	reasonInvalidBody  = "invalid_body"
	reasonInvalidToken = "invalid_token"
	reasonInvalidDays  = "invalid_days"
	reasonNotFound     = "not_found"
	reasonNotReady     = "bot_not_ready"

	defaultReportDays = 7
	shutdownTimeout   = 10 * time.Second
)

type Verifier interface {
	VerifyAndRegisterUser(ctx context.Context, name string) verify.Result
	VerifyAndRegisterChannel(ctx context.Context, name string) verify.Result
}

type MemberLookup interface {
	GetMember(ctx context.Context, userID string) (discord.Member, error)
}

type NoteService interface {
	Submit(ctx context.Context, in notes.NoteInput) notes.SubmitResult
	Feed(ctx context.Context, roles access.RoleSet) notes.Feed
}

type TokenParser interface {
	Parse(token string) (string, error)
}

type PresenceView interface {
	OpenSessionCount() int
}

type Deps struct {
	Store    repository.Repository
	Verifier Verifier
	Members  MemberLookup
	Notes    NoteService
	Links    TokenParser
	Presence PresenceView
	Gatherer prometheus.Gatherer
	Clock    quartz.Clock
	Location *time.Location
}

type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = quartz.NewReal()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, requestLogger)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Post("/verify_user", s.verifyUser)
	r.Post("/verify_channel", s.verifyChannel)
	r.Get("/member_info/{userID}", s.memberInfo)

	r.Route("/notes", func(r chi.Router) {
		r.Post("/", s.addNote)
		r.Get("/view", s.viewNotes)
	})

	r.Route("/tracked", func(r chi.Router) {
		r.Get("/users", s.listTrackedUsers)
		r.Delete("/users/{userID}", s.deleteTrackedUser)
		r.Get("/channels", s.listTrackedChannels)
		r.Delete("/channels/{channelID}", s.disableTrackedChannel)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/users", s.recordedUsers)
		r.Get("/users/{userID}", s.userReport)
		r.Get("/summary", s.summary)
		r.Get("/heatmap", s.heatmap)
		r.Get("/focus", s.focus)
		r.Get("/pareto", s.pareto)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type failure struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeFailure(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, failure{Reason: reason})
}

func decodeJSON(r *http.Request, dst any) bool {
	defer func() {
		_ = r.Body.Close()
	}()
	return json.NewDecoder(r.Body).Decode(dst) == nil
}

type health struct {
	Status       string `json:"status"`
	OpenSessions int    `json:"open_sessions"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	h := health{Status: "ok"}
	if s.deps.Presence != nil {
		h.OpenSessions = s.deps.Presence.OpenSessionCount()
	}
	writeJSON(w, http.StatusOK, h)
}
