package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Lucifer7355/pii-anonymizer/anonymize"
)

func WriteJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, anonymize.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON body bounded by the configured size and writes the
// error response itself when decoding fails.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		WriteJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

// decodeRequest decodes one request body and rejects it with 422 when a field
// is missing.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (anonymize.AnonymizationRequest, bool) {
	var body AnonymizeBody
	if !s.decodeBody(w, r, &body) {
		return anonymize.AnonymizationRequest{}, false
	}
	req, err := body.Request()
	if err != nil {
		WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return anonymize.AnonymizationRequest{}, false
	}
	return req, true
}

func (s *Server) AnonymizeHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	out, err := s.engine.Anonymize(r.Context(), req)
	if err != nil {
		s.requestLogger(r).WithError(err).Error("Anonymization failed")
		WriteJSONError(w, http.StatusInternalServerError, "Anonymization failed")
		return
	}
	writeJSON(w, http.StatusOK, anonymize.AnonymizationResponse{Anonymized: out})
}

func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	var reqs BatchRequest
	if !s.decodeBody(w, r, &reqs) {
		return
	}
	if len(reqs) > maxBatchSize {
		WriteJSONError(w, http.StatusBadRequest, "Batch too large")
		return
	}

	batch := make([]anonymize.AnonymizationRequest, 0, len(reqs))
	for i, body := range reqs {
		req, err := body.Request()
		if err != nil {
			WriteJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("item %d: %v", i, err))
			return
		}
		batch = append(batch, req)
	}

	resp := make(BatchResponse, 0, len(batch))
	for _, req := range batch {
		out, err := s.engine.Anonymize(r.Context(), req)
		if err != nil {
			s.requestLogger(r).WithError(err).Error("Batch anonymization failed")
			WriteJSONError(w, http.StatusInternalServerError, "Anonymization failed")
			return
		}
		resp = append(resp, anonymize.AnonymizationResponse{Anonymized: out})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) DetectHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	entities, err := s.engine.Detect(r.Context(), req.RawData, req.Options, req.NamesList)
	if err != nil {
		s.requestLogger(r).WithError(err).Error("Detection failed")
		WriteJSONError(w, http.StatusInternalServerError, "Detection failed")
		return
	}
	writeJSON(w, http.StatusOK, DetectResponse{Entities: entities})
}

func (s *Server) GenerateAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		WriteJSONError(w, http.StatusServiceUnavailable, "API keys require Redis")
		return
	}

	key, err := s.keys.Create(r.Context())
	if err != nil {
		s.requestLogger(r).WithError(err).Error("API key creation failed")
		WriteJSONError(w, http.StatusInternalServerError, "Failed to store API key")
		return
	}
	writeJSON(w, http.StatusCreated, APIKeyResponse{Key: key})
}

// HealthHandler reports 503 when a configured Redis cannot be reached.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Redis: "disabled"}
	status := http.StatusOK
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			s.requestLogger(r).WithError(err).Warn("Redis health check failed")
			resp.Status = "degraded"
			resp.Redis = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Redis = "ok"
		}
	}
	writeJSON(w, status, resp)
}
