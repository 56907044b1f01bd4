package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/enrich"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/scrape"
	"github.com/sells-group/leadgen/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		search := newSearchClient()
		interactive := scrape.NewService(search, scrape.WithRetry(searchRetry()))
		orchestrator, wcfg, err := newOrchestrator(st)
		if err != nil {
			return err
		}

		api := &apiServer{
			store:        st,
			interactive:  interactive,
			orchestrator: orchestrator,
			creditCost:   wcfg.CreditCost,
			corsOrigins:  cfg.Server.CORSOrigins,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type apiServer struct {
	store        store.Store
	interactive  *scrape.Service
	orchestrator *enrich.Orchestrator
	creditCost   int
	corsOrigins  []string
}

func (s *apiServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/scrape", s.handleEnqueue)
		r.Get("/job-status", s.handleJobStatus)
		r.Post("/scrape/run", s.handleInteractiveScrape)
		r.Post("/enrich", s.handleEnrich)
		r.Get("/credits", s.handleCredits)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scrapeRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	model.ScrapeRequest
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if err := s.store.EnsureUser(ctx, req.UserID, req.Email); err != nil {
		zap.L().Error("ensure user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not enqueue job")
		return
	}

	job, err := s.store.EnqueueJob(ctx, req.UserID, req.ScrapeRequest)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		zap.L().Error("enqueue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not enqueue job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

type jobStatusResponse struct {
	Status model.JobStatus  `json:"status"`
	Error  string           `json:"error,omitempty"`
	Result *model.JobResult `json:"result,omitempty"`
}

func (s *apiServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}

	job, err := s.store.GetJob(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		zap.L().Error("job status lookup failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}

	writeJSON(w, http.StatusOK, jobStatusResponse{
		Status: job.Status,
		Error:  job.Error,
		Result: job.Result,
	})
}

func (s *apiServer) handleInteractiveScrape(w http.ResponseWriter, r *http.Request) {
	var req model.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	results, err := s.interactive.Run(r.Context(), req)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		zap.L().Error("interactive scrape failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "search provider failed")
		return
	}

	zap.L().Info("interactive scrape served",
		zap.String("category", req.Category),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *apiServer) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadID string `json:"lead_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LeadID == "" {
		writeError(w, http.StatusBadRequest, "lead_id is required")
		return
	}

	ctx := r.Context()
	lead, err := s.store.GetLead(ctx, req.LeadID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load lead")
		return
	}

	balance, err := s.store.GetCreditBalance(ctx, lead.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not check credits")
		return
	}
	if balance < s.creditCost {
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
		return
	}

	enriched, err := s.orchestrator.EnrichLead(ctx, req.LeadID)
	if err != nil {
		zap.L().Error("enrichment failed", zap.String("lead_id", req.LeadID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enrichment failed")
		return
	}
	writeJSON(w, http.StatusOK, enriched)
}

func (s *apiServer) handleCredits(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	balance, err := s.store.GetCreditBalance(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
