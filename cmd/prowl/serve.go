package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hazyhaar/prowl/dbopen"
	"github.com/hazyhaar/prowl/facegate"
	"github.com/hazyhaar/prowl/observability"
	"github.com/hazyhaar/prowl/revimage"
	"github.com/hazyhaar/prowl/scan"
	"github.com/hazyhaar/prowl/shield"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serviceName = "prowl-serve"

func serve(ctx context.Context, logger *slog.Logger) error {
	port := env("PORT", "8086")

	// Scan history DB. HISTORY_DB=off disables persistence entirely.
	var events *observability.EventLog
	var hb *observability.Heartbeat
	historyPath := env("HISTORY_DB", "db/prowl.db")
	var opts []func(*scan.Config)
	if historyPath != "off" {
		db, err := dbopen.Open(historyPath, dbopen.WithMkdirAll())
		if err != nil {
			return fmt.Errorf("history db: %w", err)
		}
		defer db.Close()
		if err := observability.Init(db); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
		events = observability.NewEventLog(db, 256)
		defer events.Close()
		opts = append(opts, func(c *scan.Config) { c.Events = events })

		hb = observability.NewHeartbeat(db, serviceName, 15*time.Second)
		hb.Start(ctx)
		defer hb.Stop()
	}

	app, err := buildApp(logger, 0, opts...)
	if err != nil {
		return err
	}
	go app.registry.Watch(ctx, 30*time.Second)

	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "prowl", Version: "1.0.0"}, nil)
		scan.RegisterMCPTools(mcpSrv, app.engine)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("prowl: mcp transport", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(app, events),
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	slog.Info("prowl: serving", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newRouter(app *app, events *observability.EventLog) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.APIStack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{
			"status":    "ok",
			"providers": app.registry.Snapshot().Len(),
			"jobs":      app.store.Len(),
		})
	})

	r.Post("/api/scan", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username  string   `json:"username"`
			Providers []string `json:"providers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		jobID, err := app.engine.Submit(scan.Request{
			Username:  req.Username,
			Providers: req.Providers,
		})
		if err != nil {
			writeError(w, 400, err)
			return
		}
		writeJSON(w, 200, map[string]string{"job_id": jobID})
	})

	r.Get("/api/scan/jobs/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		limit := -1
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, 400, fmt.Errorf("bad limit %q", raw))
				return
			}
			limit = n
		}
		view, ok := app.engine.Get(chi.URLParam(r, "jobID"), limit)
		if !ok {
			writeJSON(w, 404, map[string]string{"error": "unknown job"})
			return
		}
		writeJSON(w, 200, view)
	})

	r.Delete("/api/scan/jobs/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		if !app.engine.Cancel(chi.URLParam(r, "jobID")) {
			writeJSON(w, 404, map[string]string{"error": "unknown job"})
			return
		}
		writeJSON(w, 200, map[string]string{"status": "cancelled"})
	})

	r.Get("/api/providers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"providers": app.registry.Snapshot().Names()})
	})

	r.Post("/api/providers/reload", func(w http.ResponseWriter, _ *http.Request) {
		if err := app.registry.Reload(); err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]any{"providers": app.registry.Snapshot().Names()})
	})

	r.Get("/api/reverse-image", func(w http.ResponseWriter, r *http.Request) {
		links, err := revimage.Links(r.URL.Query().Get("image_url"))
		if err != nil {
			writeError(w, 400, err)
			return
		}
		writeJSON(w, 200, map[string]any{"links": links})
	})

	r.Post("/api/face/restore", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || len(raw) == 0 {
			writeError(w, 400, fmt.Errorf("image must be non-empty base64"))
			return
		}
		restored, err := app.gate.Restore(r.Context(), raw)
		if err != nil {
			if errors.Is(err, facegate.ErrUnavailable) {
				writeError(w, 502, err)
				return
			}
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]string{
			"image":    base64.StdEncoding.EncodeToString(restored),
			"data_uri": facegate.DataURI(restored, ""),
		})
	})

	if events != nil {
		r.Get("/api/history", func(w http.ResponseWriter, r *http.Request) {
			limit := 0
			if raw := r.URL.Query().Get("limit"); raw != "" {
				limit, _ = strconv.Atoi(raw)
			}
			recs, err := events.Query(r.Context(), &observability.EventFilter{
				Username: r.URL.Query().Get("username"),
				JobID:    r.URL.Query().Get("job_id"),
				Limit:    limit,
			})
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, map[string]any{"events": recs})
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
