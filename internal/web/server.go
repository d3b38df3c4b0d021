// Package web exposes the JSON surface consumed by the capture UI: the
// submit-image identification boundary plus run reporting and health.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/cardvault/cardvault/internal/domain"
	"github.com/cardvault/cardvault/internal/identify"
	"github.com/cardvault/cardvault/internal/metrics"
	"github.com/cardvault/cardvault/internal/storage"
)

// maxUploadBytes bounds the in-memory size of one submitted card photo.
const maxUploadBytes = 10 << 20

// Identifier resolves a card photo to a match; satisfied by
// *identify.Client.
type Identifier interface {
	Identify(ctx context.Context, image io.Reader, filename string) (identify.Match, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db         *storage.DB
	identifier Identifier
	metrics    *metrics.Registry
	router     *http.ServeMux
}

// NewServer creates and configures a new server. metrics may be nil, in
// which case /metrics is not registered.
func NewServer(db *storage.DB, identifier Identifier, m *metrics.Registry) *Server {
	s := &Server{
		db:         db,
		identifier: identifier,
		metrics:    m,
		router:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/identify", s.handleIdentify())
	s.router.HandleFunc("/runs/latest", s.handleLatestRun())
	s.router.HandleFunc("/healthz", s.handleHealthz())
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}

// identifyResponse is the match plus the stored card row when the
// identified name is present in the catalog.
type identifyResponse struct {
	Name       string             `json:"name"`
	Confidence *float64           `json:"confidence,omitempty"`
	CardID     *int64             `json:"card_id,omitempty"`
	Card       *domain.CardRecord `json:"card,omitempty"`
}

// handleIdentify accepts an uploaded card photo, forwards it to the
// identification service, and enriches the answer with the stored card.
func (s *Server) handleIdentify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// Bound the whole request body, not just the in-memory parse
		// budget; otherwise an oversized upload spills to temp files.
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "Invalid upload", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()

		match, err := s.identifier.Identify(r.Context(), file, header.Filename)
		if err != nil {
			slog.Error("identification failed", "filename", header.Filename, "error", err)
			http.Error(w, "Identification failed", http.StatusBadGateway)
			return
		}

		resp := identifyResponse{
			Name:       match.Name,
			Confidence: match.Confidence,
			CardID:     match.CardID,
		}
		if match.Name != "" {
			card, err := s.db.FindCardByName(match.Name)
			if err != nil {
				slog.Warn("card lookup failed", "name", match.Name, "error", err)
			} else {
				resp.Card = card
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleLatestRun returns the most recent run summary, or 404 before the
// first run.
func (s *Server) handleLatestRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		run, err := s.db.LatestRun()
		if err != nil {
			slog.Error("latest run lookup failed", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "No runs recorded", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func (s *Server) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
