package status

import (
	"github.com/mattjoyce/pointzerver/internal/receiver"
	"github.com/mattjoyce/pointzerver/internal/storage"
)

// StatusResponse is returned by GET /status. The first five fields are
// what the browser UI reads.
type StatusResponse struct {
	Hostname       string            `json:"hostname"`
	IP             string            `json:"ip"`
	DiscoveryPort  int               `json:"discovery_port"`
	CommandPort    int               `json:"command_port"`
	AppDownloadURL string            `json:"app_download_url"`
	Version        string            `json:"version"`
	InstanceID     string            `json:"instance_id"`
	InputBackend   string            `json:"input_backend"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	EventsDropped  uint64            `json:"events_dropped"`
	Receiver       receiver.Snapshot `json:"receiver"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReportsResponse is returned by GET /reports.
type ReportsResponse struct {
	Reports []storage.Report `json:"reports"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}
