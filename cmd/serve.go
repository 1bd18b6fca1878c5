package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/council-scraper/internal/catalogue"
	"github.com/sells-group/council-scraper/internal/dispatch"
	"github.com/sells-group/council-scraper/internal/monitoring"
	"github.com/sells-group/council-scraper/internal/queue"
	"github.com/sells-group/council-scraper/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background alert checker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		e, err := openEnv(ctx, cfg, envNeeds{catalogue: true, store: true, queue: true})
		if err != nil {
			return err
		}
		defer e.Close()

		collector := monitoring.NewCollector(e.Store, e.Queue)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		handler := newRouter(api{
			cat:       e.Catalogue,
			queue:     e.Queue,
			store:     e.Store,
			collector: collector,
			lookback:  cfg.Monitoring.LookbackWindowHours,
		}, cfg.Server.AllowedOrigins)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// api carries the handlers' collaborators.
type api struct {
	cat       *catalogue.Catalogue
	queue     queue.Queue
	store     store.Store
	collector *monitoring.Collector
	lookback  int
}

func newRouter(a api, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/councils", func(r chi.Router) {
		r.Get("/", a.listCouncils)
		r.Get("/{code}/councillors", a.councillors)
	})
	r.Get("/runs/latest", a.latestRuns)
	r.Get("/runs/failing", a.failingRuns)
	r.Get("/status", a.status)
	r.Post("/dispatch", a.dispatch)
	r.Get("/queue/dead", a.deadLetters)
	r.Post("/queue/dead/requeue", a.requeue)

	return r
}

func (a api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a api) listCouncils(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.cat.All())
}

func (a api) councillors(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	d, ok := a.cat.Get(code)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown council %q", code))
		return
	}
	recs, err := a.store.Councillors(r.Context(), d.Code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a api) latestRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.store.LastRuns(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a api) failingRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.store.Failing(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a api) status(w http.ResponseWriter, r *http.Request) {
	snap, err := a.collector.Collect(r.Context(), a.lookback)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type dispatchRequest struct {
	Councils     []string `json:"councils"`
	Tags         []string `json:"tags"`
	OnlyFailed   bool     `json:"only_failed"`
	RefreshHours int      `json:"refresh_hours"`
	Verbose      bool     `json:"verbose"`
}

func (a api) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tasks, err := dispatch.New(a.cat, a.queue, a.store).Dispatch(r.Context(), dispatch.Filter{
		Codes:      req.Councils,
		Tags:       req.Tags,
		OnlyFailed: req.OnlyFailed,
		Refresh:    time.Duration(req.RefreshHours) * time.Hour,
		Verbose:    req.Verbose,
	})
	if err != nil && len(tasks) == 0 {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]any{"dispatched": len(tasks), "tasks": tasks}
	if err != nil {
		zap.L().Error("dispatch partially failed", zap.Int("published", len(tasks)), zap.Error(err))
		resp["error"] = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a api) deadLetters(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.queue.DeadLetters(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (a api) requeue(w http.ResponseWriter, r *http.Request) {
	n, err := a.queue.Requeue(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}

func (a api) fail(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
