package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"schoolsched/internal/config"
	appLog "schoolsched/internal/log"
	"schoolsched/internal/model"
	"schoolsched/internal/schedule"
	"schoolsched/internal/service"
)

const shutdownTimeout = 5 * time.Second

// ScheduleService is what the HTTP API needs from the schedule service.
type ScheduleService interface {
	Config() *config.Config
	Schedules() []config.ScheduleConfig
	Schedule(ctx context.Context, id string) (*schedule.Schedule, error)
	Refresh(ctx context.Context, id string) (*schedule.Schedule, error)
}

// Server provides the HTTP API for schedule access.
type Server struct {
	svc    ScheduleService
	router *mux.Router
}

// NewServer constructs a new Server with its routes registered.
func NewServer(svc ScheduleService) *Server {
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the API wrapped in Basic Auth when it is configured.
// Credentials are read per request so config reloads take effect.
func (s *Server) Handler() http.Handler {
	return s.basicAuthMiddleware(s.router)
}

// Run serves on listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen, "basic_auth", basicAuthEnabled(s.svc.Config()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Full paths on the root router: a subrouter reports 404 instead of 405
	// for a known path with the wrong method.
	s.router.HandleFunc("/api/schedules", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/api/schedules/{id}", s.handleSchedule).Methods(http.MethodGet)
	s.router.HandleFunc("/api/schedules/{id}/days/{date}", s.handleDay).Methods(http.MethodGet)
	s.router.HandleFunc("/api/schedules/{id}/refresh", s.handleRefresh).Methods(http.MethodPost)

	s.router.Use(logRequests)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func basicAuthEnabled(cfg *config.Config) bool {
	if cfg == nil || cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return cfg.BasicAuth.Username != "" && cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.svc.Config()
		if r.URL.Path == "/health" || !basicAuthEnabled(cfg) {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, cfg.BasicAuth.Username) || !secureCompare(p, cfg.BasicAuth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schoolsched", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start).String())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// scheduleSummary is the JSON shape of one /api/schedules entry.
type scheduleSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Feeds    int    `json:"feeds"`
	Division string `json:"division"`
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	cfg := s.svc.Config()
	scheds := s.svc.Schedules()
	out := make([]scheduleSummary, 0, len(scheds))
	for _, sc := range scheds {
		out = append(out, scheduleSummary{
			ID:       sc.ID,
			Name:     sc.Name,
			Feeds:    len(sc.Feeds),
			Division: cfg.DivisionFor(sc.ID).String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sched, err := s.svc.Schedule(r.Context(), id)
	if err != nil {
		writeServiceError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// dayResponse is the JSON shape for /api/schedules/{id}/days/{date}. A date
// without blocks has an empty block list.
type dayResponse struct {
	ID     string        `json:"id"`
	Date   model.DateKey `json:"date"`
	Blocks schedule.Day  `json:"blocks"`
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	key, err := model.ParseDateKey(vars["date"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched, err := s.svc.Schedule(r.Context(), id)
	if err != nil {
		writeServiceError(w, id, err)
		return
	}
	day, _ := sched.Day(key)
	writeJSON(w, http.StatusOK, dayResponse{ID: sched.ID, Date: key, Blocks: day})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sched, err := s.svc.Refresh(r.Context(), id)
	if err != nil {
		writeServiceError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// writeServiceError maps service errors to status codes. Source failures
// carry a message meant for end users, so it is passed through.
func writeServiceError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownSchedule):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		appLog.Warn("schedule request aborted", "id", id, "reason", err.Error())
		writeError(w, http.StatusGatewayTimeout, "schedule build timed out")
	default:
		appLog.Error("schedule build failed", err, "id", id)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
