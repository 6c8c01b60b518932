package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattjoyce/pointzerver/internal/config"
	"github.com/mattjoyce/pointzerver/internal/discovery"
	"github.com/mattjoyce/pointzerver/internal/events"
	"github.com/mattjoyce/pointzerver/internal/input"
	"github.com/mattjoyce/pointzerver/internal/lock"
	"github.com/mattjoyce/pointzerver/internal/log"
	"github.com/mattjoyce/pointzerver/internal/netutil"
	"github.com/mattjoyce/pointzerver/internal/receiver"
	"github.com/mattjoyce/pointzerver/internal/status"
	"github.com/mattjoyce/pointzerver/internal/storage"
	"github.com/spf13/pflag"
)

func runStart(args []string) int {
	fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(log.Options{
		Level:      cfg.Service.LogLevel,
		Format:     cfg.Service.LogFormat,
		File:       cfg.Service.LogFile,
		MaxSizeMB:  cfg.Service.LogMaxSize,
		MaxBackups: cfg.Service.LogBackups,
		MaxAgeDays: cfg.Service.LogMaxAge,
	})
	logger := log.WithComponent("main")
	if resolved == "" {
		logger.Info("no config file found, using defaults")
	}
	logger.Info("pointzerver starting", "version", version, "config", resolved)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Debug("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := startService(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer svc.Close()

	logger.Info("pointzerver running (press Ctrl+C to stop)", "command_port", svc.CommandPort())
	if err := svc.Run(ctx); err != nil {
		logger.Error("command loop stopped", "error", err)
		return 1
	}

	logger.Info("pointzerver stopped")
	return 0
}

// service wires the command loop and its sibling tasks. Only the command
// socket is required; every other component degrades to a logged warning.
type service struct {
	cfg    *config.Config
	logger *slog.Logger

	conn     *net.UDPConn
	receiver *receiver.Receiver
	hub      *events.Hub

	beacon     *discovery.Beacon
	beaconConn *net.UDPConn
	status     *status.Server
	db         *sql.DB
	reports    *storage.ReportStore

	wg sync.WaitGroup
}

// startService binds the command socket and builds the sibling tasks.
// A bind failure is returned; sibling failures are logged only.
func startService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service, error) {
	backend, err := input.NewBackend(cfg.Input.Backend, cfg.Input.XdotoolPath, log.WithComponent("input"))
	if err != nil {
		return nil, fmt.Errorf("input backend: %w", err)
	}
	dispatcher := input.NewDispatcher(backend)

	conn, err := receiver.Listen(ctx, cfg.Command.Port)
	if err != nil {
		return nil, err
	}

	s := &service{
		cfg:    cfg,
		logger: logger,
		conn:   conn,
		hub:    events.NewHub(256),
	}
	s.receiver = receiver.New(conn, dispatcher, receiver.Options{
		BufferSize:      cfg.Command.BufferSize,
		SlowThreshold:   cfg.Command.SlowThreshold,
		BatchSize:       cfg.Command.BatchSize,
		DispatchTimeout: cfg.Command.DispatchTimeout,
		LogDecodeErrors: cfg.Command.LogDecodeErrors,
	}, log.WithComponent("receiver"), s.hub)

	s.openReports(ctx)

	hostname, _ := os.Hostname()
	ip := ""
	if outbound, err := netutil.OutboundIP(); err == nil {
		ip = outbound.String()
	} else {
		logger.Warn("could not determine LAN address", "error", err)
	}
	instanceID := uuid.NewString()

	if cfg.Discovery.Enabled {
		s.setupDiscovery(ctx, discovery.Announcement{
			Service:     cfg.Service.Name,
			ID:          instanceID,
			Hostname:    hostname,
			IP:          ip,
			CommandPort: s.CommandPort(),
			Version:     version,
		})
	}

	if cfg.Status.Enabled {
		var reports status.ReportLister
		if s.reports != nil {
			reports = s.reports
		}
		s.status = status.New(status.Config{Listen: cfg.Status.Listen}, status.Identity{
			Hostname:       hostname,
			IP:             ip,
			InstanceID:     instanceID,
			Version:        version,
			CommandPort:    s.CommandPort(),
			DiscoveryPort:  cfg.Discovery.Port,
			AppDownloadURL: cfg.Status.AppDownloadURL,
			InputBackend:   dispatcher.Backend(),
		}, s.receiver, reports, s.hub, log.WithComponent("status"))
	}

	logger.Info("input dispatcher ready", "backend", dispatcher.Backend())
	return s, nil
}

func (s *service) openReports(ctx context.Context) {
	if s.cfg.State.Path == "" {
		return
	}
	db, err := storage.OpenSQLite(ctx, s.cfg.State.Path)
	if err != nil {
		s.logger.Warn("batch report store disabled", "path", s.cfg.State.Path, "error", err)
		return
	}
	s.db = db
	s.reports = storage.NewReportStore(db)
}

func (s *service) setupDiscovery(ctx context.Context, ann discovery.Announcement) {
	logger := log.WithComponent("discovery")
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(s.cfg.Discovery.Port))
	conn, err := netutil.ListenBroadcastUDP(ctx, addr)
	if err != nil {
		logger.Error("discovery disabled", "error", err)
		return
	}
	beacon, err := discovery.New(conn, ann, discovery.Options{
		Interval:         s.cfg.Discovery.Interval,
		BroadcastAddress: s.cfg.Discovery.BroadcastAddress,
		BroadcastPort:    s.cfg.Discovery.Port,
	}, logger)
	if err != nil {
		_ = conn.Close()
		logger.Error("discovery disabled", "error", err)
		return
	}
	s.beacon = beacon
	s.beaconConn = conn
}

// CommandPort is the bound command port, resolved when configured as 0.
func (s *service) CommandPort() int {
	return netutil.Port(s.conn)
}

// Run starts the sibling tasks and runs the command loop in the foreground.
// It returns nil on cancellation.
func (s *service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	if s.reports != nil {
		sub, unsubscribe := s.hub.Subscribe(events.TypeBatchReport)
		s.goSibling("reports", func() error {
			defer unsubscribe()
			s.reports.Record(ctx, sub, log.WithComponent("storage"))
			return nil
		})
	}
	if s.beacon != nil {
		s.goSibling("discovery", func() error { return s.beacon.Run(ctx) })
		s.hub.Publish(events.TypeDiscoveryStarted, map[string]int{"port": s.cfg.Discovery.Port})
	}
	if s.status != nil {
		s.goSibling("status", func() error { return s.status.Start(ctx) })
	}

	err := s.receiver.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// goSibling runs a background task whose failure is logged and never
// stops the command loop.
func (s *service) goSibling(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("background task failed", "task", name, "error", err)
		}
	}()
}

// Close releases sockets and the database.
func (s *service) Close() {
	_ = s.conn.Close()
	if s.beaconConn != nil {
		_ = s.beaconConn.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
