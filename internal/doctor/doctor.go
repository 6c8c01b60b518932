// Package doctor checks a loaded pointzerver configuration against the
// host it is about to run on.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mattjoyce/pointzerver/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Env abstracts the host lookups so checks are testable.
type Env struct {
	LookPath func(file string) (string, error)
	Getenv   func(key string) string
}

// Doctor validates configuration against the runtime environment.
type Doctor struct {
	cfg *config.Config
	env Env
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config, env Env) *Doctor {
	return &Doctor{cfg: cfg, env: env}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateInputBackend(r)
	d.warnCommandTuning(r)
	d.warnDiscovery(r)
	d.warnStatusExposure(r)
	d.warnState(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateInputBackend checks the injection backend can actually run here.
func (d *Doctor) validateInputBackend(r *Result) {
	switch d.cfg.Input.Backend {
	case "log":
		d.addWarning(r, "input", "input.backend", "log backend records commands without injecting input")
	case "xdotool":
		if d.env.LookPath != nil {
			if _, err := d.env.LookPath(d.cfg.Input.XdotoolPath); err != nil {
				d.addError(r, "input", "input.xdotool_path",
					fmt.Sprintf("xdotool not found at %q: %v", d.cfg.Input.XdotoolPath, err))
			}
		}
		if d.env.Getenv != nil && d.env.Getenv("DISPLAY") == "" {
			d.addWarning(r, "input", "input.backend", "DISPLAY is not set; xdotool needs an X session")
		}
	}
}

func (d *Doctor) warnCommandTuning(r *Result) {
	c := d.cfg.Command
	if c.Port < 1024 {
		d.addWarning(r, "command", "command.port",
			fmt.Sprintf("port %d is privileged and needs elevated rights to bind", c.Port))
	}
	if c.BufferSize < 256 {
		d.addWarning(r, "command", "command.buffer_size",
			fmt.Sprintf("buffer of %d bytes drops longer text commands as malformed", c.BufferSize))
	}
	if c.DispatchTimeout > 0 && c.DispatchTimeout < c.SlowThreshold {
		d.addWarning(r, "command", "command.dispatch_timeout",
			fmt.Sprintf("dispatch_timeout %s is below slow_threshold %s", c.DispatchTimeout, c.SlowThreshold))
	}
	if c.LogDecodeErrors && d.cfg.Service.LogLevel != "debug" {
		d.addWarning(r, "command", "command.log_decode_errors",
			"decode errors are logged at debug; raise service.log_level to see them")
	}
}

func (d *Doctor) warnDiscovery(r *Result) {
	disc := d.cfg.Discovery
	if !disc.Enabled {
		d.addWarning(r, "discovery", "discovery.enabled", "discovery disabled; clients must be given the address manually")
		return
	}
	switch {
	case disc.Interval == 0:
		d.addWarning(r, "discovery", "discovery.interval", "periodic announcements disabled; only probes are answered")
	case disc.Interval < time.Second:
		d.addWarning(r, "discovery", "discovery.interval",
			fmt.Sprintf("interval %s floods the LAN with broadcasts", disc.Interval))
	}
}

// warnStatusExposure flags a status endpoint reachable from the network.
func (d *Doctor) warnStatusExposure(r *Result) {
	if !d.cfg.Status.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.Status.Listen)
	if err != nil {
		return
	}
	if host == "localhost" {
		return
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		d.addWarning(r, "status", "status.listen",
			fmt.Sprintf("%s is not loopback; the status endpoint has no authentication", d.cfg.Status.Listen))
	}
}

func (d *Doctor) warnState(r *Result) {
	if d.cfg.State.Path == "" {
		d.addWarning(r, "state", "state.path", "batch reports are not persisted")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
