package status

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/pointzerver/internal/receiver"
	"github.com/mattjoyce/pointzerver/internal/storage"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 500
)

func (s *Server) uptime() int64 {
	return int64(time.Since(s.startedAt).Seconds())
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var snap receiver.Snapshot
	if s.stats != nil {
		snap = s.stats.Stats()
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Hostname:       s.identity.Hostname,
		IP:             s.identity.IP,
		DiscoveryPort:  s.identity.DiscoveryPort,
		CommandPort:    s.identity.CommandPort,
		AppDownloadURL: s.identity.AppDownloadURL,
		Version:        s.identity.Version,
		InstanceID:     s.identity.InstanceID,
		InputBackend:   s.identity.InputBackend,
		UptimeSeconds:  s.uptime(),
		EventsDropped:  s.events.Dropped(),
		Receiver:       snap,
	})
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: s.uptime(),
	})
}

// handleReports handles GET /reports?limit=N.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		respondJSON(w, http.StatusOK, ReportsResponse{Reports: []storage.Report{}})
		return
	}

	limit := defaultReportLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxReportLimit)
	}

	reports, err := s.reports.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list batch reports", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list batch reports")
		return
	}
	if reports == nil {
		reports = []storage.Report{}
	}
	respondJSON(w, http.StatusOK, ReportsResponse{Reports: reports})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
