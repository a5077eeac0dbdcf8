// Package httpapi exposes the decision engine over HTTP. Handlers are
// thin adapters around the access service; no policy logic lives here.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/halloran/castellan/internal/entities"
	"github.com/halloran/castellan/internal/infrastructure/metrics"
	"github.com/halloran/castellan/internal/services/access"
)

// Server routes decision requests to the access service.
type Server struct {
	service   *access.Service
	logger    *zap.Logger
	router    *mux.Router
	collector *metrics.Collector
	exporter  *metrics.PrometheusExporter
}

// NewServer creates the HTTP API server.
func NewServer(service *access.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{service: service, logger: logger, router: mux.NewRouter()}
	s.routes()
	return s
}

// SetMetrics attaches check metrics recording. exporter may be nil.
func (s *Server) SetMetrics(collector *metrics.Collector, exporter *metrics.PrometheusExporter) {
	s.collector = collector
	s.exporter = exporter
}

func (s *Server) recordCheck(decision *checkResponse, elapsed time.Duration) {
	if s.collector == nil {
		return
	}
	outcome := "denied"
	if decision.Granted {
		outcome = "granted"
	}
	seconds := elapsed.Seconds()
	s.collector.RecordCheck(outcome, decision.Source)
	s.collector.RecordCheckDuration(outcome, seconds)
	if s.exporter != nil {
		s.exporter.RecordCheck(outcome, decision.Source)
		s.exporter.RecordCheckDuration(outcome, seconds)
	}
}

func (s *Server) routes() {
	s.router.HandleFunc("/v1/check", s.handleCheck).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/permissions", s.handlePermissions).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type checkRequest struct {
	UserID         string         `json:"userId"`
	Permission     string         `json:"permission"`
	BusinessID     string         `json:"businessId"`
	ResourceID     string         `json:"resourceId,omitempty"`
	ResourceKind   string         `json:"resourceKind,omitempty"`
	RequestContext map[string]any `json:"requestContext,omitempty"`
}

type checkResponse struct {
	Granted bool              `json:"granted"`
	Source  string            `json:"source,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Permission == "" {
		writeError(w, http.StatusBadRequest, "userId and permission are required")
		return
	}

	start := time.Now()
	decision, err := s.service.Check(r.Context(), req.UserID, req.Permission, access.Context{
		BusinessID:     req.BusinessID,
		ResourceID:     req.ResourceID,
		ResourceKind:   req.ResourceKind,
		RequestContext: req.RequestContext,
	})
	if err != nil {
		if _, malformed := err.(*entities.MalformedPermissionError); malformed {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("check failed", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := checkResponse{
		Granted: decision.Granted,
		Source:  string(decision.Source),
		Details: decision.Details,
	}
	s.recordCheck(&resp, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

type permissionsResponse struct {
	UserID      string   `json:"userId"`
	BusinessID  string   `json:"businessId"`
	Permissions []string `json:"permissions"`
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	businessID := r.URL.Query().Get("businessId")
	if userID == "" || businessID == "" {
		writeError(w, http.StatusBadRequest, "userId and businessId are required")
		return
	}

	perms, err := s.service.ResolvePermissions(r.Context(), userID, businessID)
	if err != nil {
		s.logger.Error("failed to resolve permissions",
			zap.String("user_id", userID),
			zap.String("business_id", businessID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.String()
	}
	writeJSON(w, http.StatusOK, permissionsResponse{
		UserID:      userID,
		BusinessID:  businessID,
		Permissions: names,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
