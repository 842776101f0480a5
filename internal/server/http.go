package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"StakePool/internal/projection"
)

// buildAPIMux wires the HTTP/JSON routes. The gateway mux gives us
// path parameters and consistent JSON error shapes without generated
// handlers.
func (s *Server) buildAPIMux() (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		path    string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/accounts/{account}/status", s.handleStatus},
		{"GET", "/v1/accounts/{account}/pot", s.handlePot},
		{"GET", "/v1/accounts/{account}/farm", s.handleFarm},
		{"GET", "/v1/history", s.handleHistory},
		{"GET", "/v1/rewards/totals", s.handleRewardTotals},
		{"GET", "/v1/admin/integrity", s.handleIntegrity},
		{"POST", "/v1/admin/config", s.publishAdmin("stake.admin.config.api")},
		{"POST", "/v1/admin/apr", s.publishAdmin("stake.admin.apr.api")},
		{"POST", "/v1/admin/token", s.publishAdmin("stake.admin.token.api")},
		{"POST", "/v1/admin/snapshot", s.handleSnapshot},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuild},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.handler); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.path, err)
		}
	}

	return mux, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	account := pathParams["account"]
	if account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	resp, err := s.deps.QueryService.GetStatus(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePot(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	account := pathParams["account"]
	if account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	resp, err := s.deps.QueryService.GetPot(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFarm(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	account := pathParams["account"]
	if account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	resp, err := s.deps.QueryService.GetFarm(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit := 51
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	resp, err := s.deps.QueryService.GetHistory(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRewardTotals(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := s.deps.QueryService.GetRewardTotals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// publishAdmin forwards an admin mutation to its NATS subject. The
// handler fills update_id and timestamp when the caller omits them,
// then the command travels the normal ingestion path.
func (s *Server) publishAdmin(subject string) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}

		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}

		if _, ok := payload["update_id"]; !ok {
			payload["update_id"] = uuid.NewString()
		}
		if _, ok := payload["timestamp"]; !ok {
			payload["timestamp"] = time.Now().Unix()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		pubCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if _, err := s.deps.JetStream.Publish(pubCtx, subject, data); err != nil {
			writeError(w, http.StatusBadGateway, "publish: "+err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"accepted":  true,
			"update_id": payload["update_id"],
		})
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.deps.Snapshot == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot trigger not wired")
		return
	}
	s.deps.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := projection.Rebuild(r.Context(), s.deps.DB, s.deps.Metrics, 1000); err != nil {
		writeError(w, http.StatusInternalServerError, "rebuild failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
