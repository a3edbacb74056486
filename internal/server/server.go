// Package server exposes the generation pipeline over HTTP: a generate
// endpoint, a server-sent-events progress stream, artifact download and
// run history, plus health and metrics endpoints.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxweave/voxweave/internal/assembler"
	"github.com/voxweave/voxweave/internal/config"
	"github.com/voxweave/voxweave/internal/dialogue"
	"github.com/voxweave/voxweave/internal/progress"
	"github.com/voxweave/voxweave/internal/protocol"
	"github.com/voxweave/voxweave/internal/runstore"
	"github.com/voxweave/voxweave/internal/synth"
)

const serviceName = "voxweave dialogue generator"

// Server wires the assembler, run store and optional progress bus
// behind the HTTP API. One generation run is active at a time; the
// tracker slot is per run and replaced at run start.
type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	generator *assembler.Generator
	store     *runstore.Store
	sinks     []progress.Sink

	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	runMu sync.Mutex // serializes generation runs

	mu      sync.Mutex
	current *progress.Tracker
}

func New(cfg config.Config, generator *assembler.Generator, store *runstore.Store, sinks []progress.Sink, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "server")),
		generator: generator,
		store:     store,
		sinks:     sinks,
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	s.tracerClose = shutdownTelemetry

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /api/generate-dialogue", s.handleGenerate)
	mux.HandleFunc("GET /api/progress-stream", s.handleProgressStream)
	mux.HandleFunc("GET /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.HTTP.Bind, s.cfg.HTTP.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	s.ready.Store(true)
	s.logger.Info("server started", slog.String("addr", addr))

	<-ctx.Done()
	s.logger.Info("server stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	s.wg.Wait()

	if s.tracerClose != nil {
		if err := s.tracerClose(shutdownCtx); err != nil {
			s.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// Handler returns the API routes without health/metrics, for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate-dialogue", s.handleGenerate)
	mux.HandleFunc("GET /api/progress-stream", s.handleProgressStream)
	mux.HandleFunc("GET /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.DialogueText) == "" {
		writeError(w, http.StatusBadRequest, "dialogue_text is required", "")
		return
	}
	s.applyDefaults(&req)

	if !s.runMu.TryLock() {
		writeError(w, http.StatusConflict, "a generation run is already in progress", "")
		return
	}
	defer s.runMu.Unlock()

	doc, err := dialogue.Parse(req.DialogueText, dialogue.Options{
		AllowDefaultVoice: s.cfg.Pipeline.AllowDefaultVoice,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "dialogue parsing failed", err.Error())
		return
	}

	runID := uuid.NewString()
	sinks := append([]progress.Sink{}, s.sinks...)
	if s.store != nil {
		sinks = append(sinks, &storeSink{store: s.store, logger: s.logger})
	}
	tracker := progress.NewTracker(runID, sinks...)
	s.mu.Lock()
	s.current = tracker
	s.mu.Unlock()

	ctx := r.Context()
	if s.store != nil {
		if err := s.store.CreateRun(ctx, runID, req.OutputPrefix, len(doc.Turns)); err != nil {
			s.logger.Warn("failed to record run", slog.String("error", err.Error()))
		}
	}

	result, err := s.generator.Generate(ctx, doc, tracker, assembler.Options{
		SilenceMS:      *req.SilenceMS,
		Language:       req.Language,
		Exaggeration:   req.Exaggeration,
		CFGWeight:      req.CFGWeight,
		SaveIndividual: *req.SaveIndividual,
		ProcessAudio:   *req.ProcessAudio,
		OutputPrefix:   req.OutputPrefix,
		OutputDir:      s.cfg.Pipeline.OutputDir,
		VoicesDir:      s.cfg.Pipeline.VoicesDir,
	})
	if err != nil {
		if s.store != nil {
			_ = s.store.FinishRun(context.Background(), runID, protocol.StatusError, "", 0)
		}
		writeError(w, statusForError(err), "generation failed", err.Error())
		return
	}

	if s.store != nil {
		if err := s.store.FinishRun(ctx, runID, protocol.StatusCompleted, result.OutputFile, result.DurationSeconds); err != nil {
			s.logger.Warn("failed to finalize run record", slog.String("error", err.Error()))
		}
	}

	var linesDir *string
	if result.LinesDir != "" {
		linesDir = &result.LinesDir
	}
	writeJSON(w, http.StatusOK, protocol.GenerateResponse{
		Status:          "success",
		OutputFile:      result.OutputFile,
		LinesDir:        linesDir,
		DurationSeconds: result.DurationSeconds,
		NumLines:        result.NumLines,
		Timestamp:       result.Timestamp.Format(time.RFC3339),
	})
}

func (s *Server) applyDefaults(req *protocol.GenerateRequest) {
	p := s.cfg.Pipeline
	if req.OutputPrefix == "" {
		req.OutputPrefix = "conversation"
	}
	if req.Language == "" {
		req.Language = p.Language
	}
	if req.Exaggeration == 0 {
		req.Exaggeration = p.Exaggeration
	}
	if req.CFGWeight == 0 {
		req.CFGWeight = p.CFGWeight
	}
	if req.SilenceMS == nil {
		req.SilenceMS = &p.SilenceMS
	}
	if req.SaveIndividual == nil {
		req.SaveIndividual = &p.SaveIndividual
	}
	if req.ProcessAudio == nil {
		req.ProcessAudio = &p.ProcessAudio
	}
}

// handleProgressStream streams tracker snapshots as server-sent events,
// emitting only on change and closing once the run reaches a terminal
// state.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last *protocol.ProgressUpdate
	for {
		s.mu.Lock()
		tracker := s.current
		s.mu.Unlock()

		update := protocol.ProgressUpdate{Status: protocol.StatusIdle}
		if tracker != nil {
			update = tracker.Snapshot()
		}

		if last == nil || *last != update {
			data, err := json.Marshal(update)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			snapshot := update
			last = &snapshot
		}

		switch update.Status {
		case protocol.StatusCompleted, protocol.StatusError, protocol.StatusIdle:
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// handleDownload serves a generated artifact. Only files under the
// configured output directory are reachable.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("path")
	if requested == "" {
		writeError(w, http.StatusBadRequest, "path is required", "")
		return
	}

	outputDir, err := filepath.Abs(s.cfg.Pipeline.OutputDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "download failed", err.Error())
		return
	}
	full, err := filepath.Abs(requested)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path", err.Error())
		return
	}
	if full != outputDir && !strings.HasPrefix(full, outputDir+string(filepath.Separator)) {
		writeError(w, http.StatusForbidden, "access denied",
			"can only download files from the output directory")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(full)))
	http.ServeFile(w, r, full)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run history disabled", "")
		return
	}
	runID := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found", runID)
			return
		}
		writeError(w, http.StatusInternalServerError, "run lookup failed", err.Error())
		return
	}
	events, err := s.store.ListRunEvents(r.Context(), runID, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "run lookup failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":    run,
		"events": events,
	})
}

// statusForError maps the error taxonomy onto HTTP codes: caller
// mistakes are 400s, engine and IO failures are 500s.
func statusForError(err error) int {
	var perr *dialogue.ParseError
	switch {
	case errors.As(err, &perr),
		errors.Is(err, dialogue.ErrUnknownVoice),
		errors.Is(err, dialogue.ErrNoTurns),
		errors.Is(err, synth.ErrTextTooShort),
		errors.Is(err, synth.ErrInvalidParameter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, protocol.ErrorResponse{
		Status:  "error",
		Error:   message,
		Details: details,
	})
}

// storeSink records every progress transition as a run event.
type storeSink struct {
	store  *runstore.Store
	logger *slog.Logger
}

func (s *storeSink) Publish(update protocol.ProgressUpdate) {
	evt := protocol.RunEvent{
		RunID:  update.RunID,
		Type:   update.Status,
		Line:   update.CurrentLine,
		Detail: update.Message,
	}
	if err := s.store.AppendEvent(context.Background(), evt); err != nil {
		s.logger.Warn("failed to record run event", slog.String("error", err.Error()))
	}
}
