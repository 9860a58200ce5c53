package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/model"
	"github.com/sells-group/claimtrace/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for extraction and lineage queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter wires the HTTP surface. baseCtx outlives individual requests and
// carries async extraction runs.
func newRouter(baseCtx context.Context, env *pipelineEnv) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, env.Collector.Snapshot())
	})

	r.Post("/extractions", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Document model.SourceDocument `json:"document"`
			Context  string               `json:"context"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Document.FullText == "" || body.Context == "" {
			writeError(w, http.StatusBadRequest, "document.full_text and context are required")
			return
		}
		doc := body.Document

		// Extraction runs asynchronously; rejections land in the review
		// queue and surface through /reviews, not this response.
		go func() {
			row, err := env.Orchestrator.Run(baseCtx, doc, body.Context)
			if err != nil {
				zap.L().Error("async extraction failed",
					zap.String("document", doc.URL),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("async extraction complete",
				zap.String("extraction_id", row.ExtractionID),
				zap.String("status", string(row.Status)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":   "accepted",
			"document": doc.URL,
		})
	})

	r.Get("/extractions/{id}", func(w http.ResponseWriter, req *http.Request) {
		row, err := env.Lineage.Get(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "extraction not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, row)
	})

	r.Post("/links/model", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ExtractionIDs []string `json:"extraction_ids"`
			ModelID       string   `json:"model_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		n, err := env.Lineage.LinkToModel(req.Context(), body.ExtractionIDs, body.ModelID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"newly_linked": n})
	})

	r.Post("/links/dashboard", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ModelID     string `json:"model_id"`
			DashboardID string `json:"dashboard_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		n, err := env.Lineage.LinkToDashboard(req.Context(), body.ModelID, body.DashboardID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"newly_linked": n})
	})

	r.Get("/impact/{hash}", func(w http.ResponseWriter, req *http.Request) {
		report, err := env.Lineage.ImpactAnalysis(req.Context(), chi.URLParam(req, "hash"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "impact analysis failed")
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Get("/reviews", func(w http.ResponseWriter, req *http.Request) {
		entries, err := env.Store.ListReviews(req.Context(), store.ReviewFilter{Limit: 100})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list reviews failed")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
