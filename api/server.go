// Package api exposes the HTTP boundary: document upload, grounded chat,
// graph retrieval and session reset, keyed by the X-Session-ID header.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fabfab/cognigraph/chat"
	"github.com/fabfab/cognigraph/extract"
	"github.com/fabfab/cognigraph/graph"
	"github.com/fabfab/cognigraph/ingest"
	"github.com/fabfab/cognigraph/llm"
	"github.com/fabfab/cognigraph/session"
)

const (
	sessionHeader = "X-Session-ID"
	maxUploadSize = 32 << 20
)

type Server struct {
	sessions *session.Store
	ingest   *ingest.Service
	engine   *chat.Engine
	logger   *log.Logger
	handler  http.Handler
}

func New(sessions *session.Store, ingestSvc *ingest.Service, engine *chat.Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		sessions: sessions,
		ingest:   ingestSvc,
		engine:   engine,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Post("/upload", s.withSession(s.handleUpload))
	r.Post("/chat", s.withSession(s.handleChat))
	r.Post("/reset", s.withSession(s.handleReset))
	r.Get("/graph", s.withSession(s.handleGraph))

	s.handler = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

type errorResponse struct {
	Detail            string `json:"detail"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

type chatRequest struct {
	Message       string `json:"message"`
	ModelProvider string `json:"model_provider,omitempty"`
}

type chatResponse struct {
	Response         string   `json:"response"`
	HighlightedNodes []string `json:"highlighted_nodes"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, h *session.Handle)

// withSession requires the session header and resolves the session handle
// before the wrapped handler runs.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(sessionHeader)
		if id == "" {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %s header", sessionHeader), 0)
			return
		}
		next(w, r, s.sessions.Get(id))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form", 0)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field", 0)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "could not read uploaded file", 0)
		return
	}
	if len(data) > maxUploadSize {
		s.writeError(w, http.StatusBadRequest, "uploaded file too large", 0)
		return
	}

	sessionID := r.Header.Get(sessionHeader)
	var payload graph.Payload
	err = h.Update(func(_ *session.Session) (*session.Session, error) {
		sess, err := s.ingest.Ingest(r.Context(), sessionID, header.Filename, data)
		if err != nil {
			return nil, err
		}
		payload = sess.Graph.Payload()
		return sess, nil
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", 0)
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message must not be empty", 0)
		return
	}

	var answer chat.Answer
	err := h.Update(func(sess *session.Session) (*session.Session, error) {
		var err error
		answer, err = s.engine.Answer(r.Context(), sess, req.Message)
		return nil, err
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		Response:         answer.Text,
		HighlightedNodes: answer.HighlightedNodes,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request, h *session.Handle) {
	h.Reset()
	s.writeJSON(w, http.StatusOK, graph.EmptyPayload())
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request, h *session.Handle) {
	payload := graph.EmptyPayload()
	_ = h.Update(func(sess *session.Session) (*session.Session, error) {
		if sess != nil && sess.Graph != nil {
			payload = sess.Graph.Payload()
		}
		return nil, nil
	})
	s.writeJSON(w, http.StatusOK, payload)
}

// writeDomainError maps pipeline errors onto HTTP status codes. Rate limits
// surface the retry delay both in the detail text and as a structured field.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var rateLimited *llm.RateLimitError
	if errors.As(err, &rateLimited) {
		seconds := rateLimited.RetryAfterSeconds()
		detail := fmt.Sprintf("API rate limit hit. Please wait %d seconds (wait %ds) before trying again.", seconds, seconds)
		s.writeError(w, http.StatusTooManyRequests, detail, seconds)
		return
	}

	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, extract.ErrExtractionFailed),
		errors.Is(err, chat.ErrNoDocument):
		s.writeError(w, http.StatusBadRequest, err.Error(), 0)
		return
	}

	var provider *llm.ProviderError
	var extraction *graph.ExtractionError
	if errors.As(err, &provider) || errors.As(err, &extraction) {
		s.writeError(w, http.StatusBadGateway, err.Error(), 0)
		return
	}

	s.logger.Printf("internal error: %v", err)
	s.writeError(w, http.StatusInternalServerError, "internal server error", 0)
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}
	s.writeJSON(w, status, errorResponse{Detail: detail, RetryAfterSeconds: retryAfter})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}
