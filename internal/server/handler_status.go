package server

import (
	"errors"
	"net/http"

	"github.com/me/prioadvisor/internal/advisor"
	"github.com/me/prioadvisor/pkg/model"
)

type statusResponse struct {
	advisor.Status
	MetricsPath   string `json:"metrics_path"`
	DirectivePath string `json:"directive_path"`
	PollInterval  string `json:"poll_interval"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, statusResponse{
		Status:        s.loop.Status(),
		MetricsPath:   s.config.MetricsPath,
		DirectivePath: s.config.DirectivePath,
		PollInterval:  s.config.PollInterval.String(),
	})
}

func (s *Server) handleLatestDirectives(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	b, err := s.exchange.ReadLatest(r.Context())
	if errors.Is(err, model.ErrTornBatch) {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrCodeUnavailable,
			Message: err.Error(),
		})
		return
	}
	if err != nil {
		s.logger.Error("read latest batch", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code:    model.ErrCodeInternal,
			Message: "failed to read published batch",
		})
		return
	}
	if b == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("batch", "latest"))
		return
	}
	respondOK(w, reqID, b)
}
