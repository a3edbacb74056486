package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxweave/voxweave/internal/assembler"
	"github.com/voxweave/voxweave/internal/config"
	"github.com/voxweave/voxweave/internal/dsp"
	"github.com/voxweave/voxweave/internal/protocol"
	"github.com/voxweave/voxweave/internal/synth"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Pipeline.OutputDir = t.TempDir()
	cfg.Pipeline.VoicesDir = t.TempDir()

	for _, name := range []string{"alice.wav", "bob.wav"} {
		if err := os.WriteFile(filepath.Join(cfg.Pipeline.VoicesDir, name), []byte("ref"), 0o644); err != nil {
			t.Fatalf("write voice ref: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := synth.NewAdapter(synth.NewMockSynth(22050), logger)
	gen := assembler.NewGenerator(adapter, dsp.DefaultChain(), logger)
	return New(cfg, gen, nil, nil, logger)
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func postGenerate(t *testing.T, srv *Server, req protocol.GenerateRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/api/generate-dialogue", bytes.NewReader(body))
	srv.Handler().ServeHTTP(rec, httpReq)
	return rec
}

func TestGenerateEndpoint(t *testing.T) {
	srv := testServer(t)

	dialogueText := "alice_wav=\"alice.wav\"\n" +
		"bob_wav=\"bob.wav\"\n" +
		"alice=\"Hello there, how are you today?\"\n" +
		"bob=\"Doing well, thanks for asking.\"\n"

	rec := postGenerate(t, srv, protocol.GenerateRequest{
		DialogueText:   dialogueText,
		OutputPrefix:   "testrun",
		SilenceMS:      intPtr(200),
		SaveIndividual: boolPtr(true),
		ProcessAudio:   boolPtr(true),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp protocol.GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("expected success status, got %q", resp.Status)
	}
	if resp.NumLines != 2 {
		t.Errorf("expected 2 lines, got %d", resp.NumLines)
	}
	if _, err := os.Stat(resp.OutputFile); err != nil {
		t.Errorf("output file missing: %v", err)
	}
	if resp.LinesDir == nil {
		t.Error("expected lines dir in response")
	}
}

func TestGenerateAppliesPipelineDefaults(t *testing.T) {
	srv := testServer(t)

	// silence_ms, save_individual and process_audio omitted from the
	// request body; all three must fall back to the pipeline config
	// (500 ms, true, true), not to their zero values.
	rec := postGenerate(t, srv, protocol.GenerateRequest{
		DialogueText: "alice_wav=\"alice.wav\"\nalice=\"Just the one spoken line here.\"\n",
		OutputPrefix: "defaults",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp protocol.GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.LinesDir == nil {
		t.Error("expected per-line artifacts by default")
	} else if _, err := os.Stat(*resp.LinesDir); err != nil {
		t.Errorf("lines dir missing: %v", err)
	}
	if resp.DurationSeconds <= 0 {
		t.Errorf("expected positive duration, got %v", resp.DurationSeconds)
	}
}

func TestGenerateRejectsEmptyBody(t *testing.T) {
	srv := testServer(t)
	rec := postGenerate(t, srv, protocol.GenerateRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGenerateRejectsUnknownVoice(t *testing.T) {
	srv := testServer(t)
	rec := postGenerate(t, srv, protocol.GenerateRequest{
		DialogueText: "alice=\"nobody declared my voice\"\n",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp protocol.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("expected error status, got %q", resp.Status)
	}
	if !strings.Contains(resp.Details, "unknown voice") {
		t.Errorf("expected unknown voice details, got %q", resp.Details)
	}
}

func TestGenerateRejectsShortLine(t *testing.T) {
	srv := testServer(t)
	rec := postGenerate(t, srv, protocol.GenerateRequest{
		DialogueText: "alice_wav=\"alice.wav\"\nalice=\"Hi\"\n",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short line, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "text too short") {
		t.Errorf("expected text-too-short details, got %s", rec.Body.String())
	}
}

func TestGenerateRejectsInvalidExaggeration(t *testing.T) {
	srv := testServer(t)
	rec := postGenerate(t, srv, protocol.GenerateRequest{
		DialogueText: "alice_wav=\"alice.wav\"\nalice=\"A perfectly fine line.\"\n",
		Exaggeration: 5.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range exaggeration, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "exaggeration") {
		t.Errorf("expected exaggeration details, got %s", rec.Body.String())
	}
}

func TestDownloadRestrictedToOutputDir(t *testing.T) {
	srv := testServer(t)

	outside := filepath.Join(t.TempDir(), "secret.wav")
	if err := os.WriteFile(outside, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download?path="+outside, nil)
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for path outside output dir, got %d", rec.Code)
	}

	traversal := filepath.Join(srv.cfg.Pipeline.OutputDir, "..", "escape.wav")
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/download?path="+traversal, nil)
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for traversal path, got %d", rec.Code)
	}
}

func TestDownloadServesArtifact(t *testing.T) {
	srv := testServer(t)

	inside := filepath.Join(srv.cfg.Pipeline.OutputDir, "conversation.wav")
	if err := os.WriteFile(inside, []byte("RIFFdata"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download?path="+inside, nil)
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("expected audio/wav content type, got %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "conversation.wav") {
		t.Errorf("unexpected disposition header: %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestDownloadRequiresPath(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Errorf("expected healthy status, got %q", payload["status"])
	}
}

func TestRunLookupWithoutStore(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/some-id", nil)
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without run store, got %d", rec.Code)
	}
}

func TestProgressStreamIdle(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/progress-stream", nil)
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("expected SSE frame, got %q", body)
	}
	var update protocol.ProgressUpdate
	if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(body, "data: "))), &update); err != nil {
		t.Fatalf("decode SSE payload: %v", err)
	}
	if update.Status != protocol.StatusIdle {
		t.Errorf("expected idle status, got %q", update.Status)
	}
}
