package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solatis/metasync/internal/core/config"
	"github.com/solatis/metasync/internal/metadata"
	"github.com/solatis/metasync/internal/rules"
	"github.com/solatis/metasync/internal/types"
)

// Reloader republishes the registry from its source.
// Implemented by *descriptor.Reloader.
type Reloader interface {
	Reload() (*rules.Registry, error)
}

// Admin serves the operator HTTP endpoints:
//
//	GET  /healthz   liveness
//	GET  /registry  current snapshot (generation, digest, rules, mappings)
//	GET  /queue     deferred work counts by status
//	POST /reload    reload descriptors and publish a new snapshot
type Admin struct {
	holder   *rules.Holder
	reloader Reloader
	queue    *metadata.Queue
	logger   *slog.Logger
	server   *http.Server
}

// NewAdmin creates the admin endpoint. reloader and queue may be nil, which
// disables /reload and /queue.
func NewAdmin(cfg config.AdminConfig, holder *rules.Holder, reloader Reloader, queue *metadata.Queue, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Admin{holder: holder, reloader: reloader, queue: queue, logger: logger}
	a.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// Router returns the admin routes.
func (a *Admin) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Get("/registry", a.registry)
	if a.queue != nil {
		r.Get("/queue", a.queueCounts)
	}
	if a.reloader != nil {
		r.Post("/reload", a.reload)
	}
	return r
}

// Start serves until Shutdown.
func (a *Admin) Start() error {
	a.logger.Info("admin: listening", slog.String("address", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (a *Admin) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *Admin) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type registryView struct {
	Generation uint64                    `json:"generation"`
	Digest     string                    `json:"digest"`
	Rules      []types.RuleDescriptor    `json:"rules"`
	Mappings   []types.MappingDescriptor `json:"mappings"`
}

func viewOf(reg *rules.Registry) registryView {
	return registryView{
		Generation: reg.Generation(),
		Digest:     reg.Digest(),
		Rules:      reg.Rules(),
		Mappings:   reg.Mappings(),
	}
}

func (a *Admin) registry(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(a.holder.Load()))
}

func (a *Admin) reload(w http.ResponseWriter, _ *http.Request) {
	reg, err := a.reloader.Reload()
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(reg))
}

func (a *Admin) queueCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.queue.Counts(r.Context())
	if err != nil {
		a.logger.Error("admin: queue counts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("admin: json encode failed", slog.String("error", err.Error()))
	}
}
