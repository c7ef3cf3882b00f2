package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/authz-engine/trading-pdp/pkg/types"
)

// decodeJSON reads a size-limited JSON body. Numbers decode as json.Number
// so integer attributes keep their exact value.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}

func (s *Server) badRequest(w http.ResponseWriter, message string, err error) {
	s.metrics.RecordTransportError("http", "bad_request")
	var details map[string]interface{}
	if err != nil {
		details = map[string]interface{}{"error": err.Error()}
	}
	WriteError(w, http.StatusBadRequest, message, details)
}

// readDecisionRequest decodes and validates a single request body
func (s *Server) readDecisionRequest(w http.ResponseWriter, r *http.Request) (*types.Request, bool) {
	var req types.Request
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.logger.Debug("Failed to decode decision request", zap.Error(err))
		s.badRequest(w, "Invalid request body", err)
		return nil, false
	}
	if err := req.Validate(); err != nil {
		s.badRequest(w, err.Error(), nil)
		return nil, false
	}
	return &req, true
}

// decisionHandler handles POST /v1/decision
func (s *Server) decisionHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readDecisionRequest(w, r)
	if !ok {
		return
	}

	decision := s.engine.Evaluate(req)
	s.audit.LogDecision(r.Context(), decision)

	_ = WriteJSON(w, http.StatusOK, decision)
}

// batchDecisionHandler handles POST /v1/decision/batch
func (s *Server) batchDecisionHandler(w http.ResponseWriter, r *http.Request) {
	var batch BatchDecisionRequest
	if err := s.decodeJSON(w, r, &batch); err != nil {
		s.badRequest(w, "Invalid request body", err)
		return
	}

	if len(batch.Requests) > s.config.MaxBatchSize {
		s.badRequest(w, fmt.Sprintf("batch of %d exceeds limit of %d requests", len(batch.Requests), s.config.MaxBatchSize), nil)
		return
	}
	for i, req := range batch.Requests {
		if req == nil {
			s.badRequest(w, fmt.Sprintf("requests[%d]: request cannot be null", i), nil)
			return
		}
		if err := req.Validate(); err != nil {
			s.badRequest(w, fmt.Sprintf("requests[%d]: %v", i, err), nil)
			return
		}
	}

	decisions := s.engine.EvaluateBatch(r.Context(), batch.Requests)
	for _, d := range decisions {
		s.audit.LogDecision(r.Context(), d)
	}

	_ = WriteJSON(w, http.StatusOK, BatchDecisionResponse{Decisions: decisions})
}

// explainHandler handles POST /v1/decision/explain
func (s *Server) explainHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readDecisionRequest(w, r)
	if !ok {
		return
	}

	decision, checks := s.engine.Explain(req)
	s.audit.LogDecision(r.Context(), decision)

	_ = WriteJSON(w, http.StatusOK, ExplainResponse{
		Decision: decision,
		Code:     decision.Code,
		Checks:   checks,
	})
}
