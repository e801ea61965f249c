package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/prioadvisor/pkg/model"
)

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: name + " must be an integer",
			})
			return
		}
		*dst = v
	}
	opts.Clamp()

	recs, total, err := s.store.ListBatches(r.Context(), opts)
	if err != nil {
		s.logger.Error("list history", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code:    model.ErrCodeInternal,
			Message: "failed to list history",
		})
		return
	}
	if recs == nil {
		recs = []*model.BatchRecord{}
	}
	respondList(w, reqID, recs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(recs) < total,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}

	raw := chi.URLParam(r, "tick")
	tick, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || tick < 0 {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrCodeValidation,
			Message: "tick must be a non-negative integer",
		})
		return
	}

	rec, err := s.store.GetBatch(r.Context(), model.Tick(tick))
	if err != nil {
		s.logger.Error("get history", "tick", tick, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code:    model.ErrCodeInternal,
			Message: "failed to read history",
		})
		return
	}
	if rec == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("batch", raw))
		return
	}
	respondOK(w, reqID, rec)
}

func (s *Server) requireStore(w http.ResponseWriter, reqID string) bool {
	if s.store != nil {
		return true
	}
	respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
		Code:    model.ErrCodeUnavailable,
		Message: "history is disabled",
	})
	return false
}
