package rest

import (
	"io"
	"net/http"

	"github.com/authz-engine/trading-pdp/internal/policy"
)

// getPolicyHandler handles GET /v1/policy
func (s *Server) getPolicyHandler(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()

	_ = WriteJSON(w, http.StatusOK, PolicyResponse{
		Fingerprint: cfg.Fingerprint(),
		Document:    cfg.Document(),
	})
}

// validatePolicyHandler handles POST /v1/policy/validate. The body is a YAML
// or JSON policy document; it is checked but never installed.
func (s *Server) validatePolicyHandler(w http.ResponseWriter, r *http.Request) {
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.badRequest(w, "Failed to read request body", err)
		return
	}

	doc, err := policy.Parse(content)
	if err != nil {
		_ = WriteJSON(w, http.StatusOK, PolicyValidationResponse{Error: "parse: " + err.Error()})
		return
	}

	cfg, err := policy.New(doc)
	if err != nil {
		_ = WriteJSON(w, http.StatusOK, PolicyValidationResponse{Error: err.Error()})
		return
	}

	_ = WriteJSON(w, http.StatusOK, PolicyValidationResponse{
		Valid:       true,
		Warnings:    policy.Warnings(doc),
		Fingerprint: cfg.Fingerprint(),
	})
}
