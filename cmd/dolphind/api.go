package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"dolphind/internal/dolphin"
)

// apiTimeout bounds how long a request waits on a full actor queue.
const apiTimeout = 5 * time.Second

// actorAPI is the part of the actor the HTTP API drives.
type actorAPI interface {
	Deed(ctx context.Context, deed dolphin.Deed) error
	Stats(ctx context.Context) (dolphin.Stats, error)
	Flush(ctx context.Context) error
	UpgradeLevel(ctx context.Context) error
}

type deedRequest struct {
	Deed string `json:"deed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newAPI serves the actor operations under /v1.
func newAPI(actor actorAPI, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()
		stats, err := actor.Stats(ctx)
		if err != nil {
			apiError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("POST /v1/deeds", func(w http.ResponseWriter, r *http.Request) {
		var req deedRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
			return
		}
		deed, err := dolphin.ParseDeed(req.Deed)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()
		if err := actor.Deed(ctx, deed); err != nil {
			apiError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /v1/flush", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()
		if err := actor.Flush(ctx); err != nil {
			apiError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /v1/level-up", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()
		if err := actor.UpgradeLevel(ctx); err != nil {
			apiError(w, logger, err)
			return
		}
		stats, err := actor.Stats(ctx)
		if err != nil {
			apiError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	return mux
}

func apiError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, dolphin.ErrStopped):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	logger.Warn("api request failed", "error", err, "status", code)
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
