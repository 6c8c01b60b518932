package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/pointzerver/internal/events"
)

// Report is one persisted batch timing summary. Commands themselves are
// never stored.
type Report struct {
	ID             int64     `json:"id"`
	At             time.Time `json:"at"`
	Commands       int       `json:"commands"`
	MeanUS         int64     `json:"mean_us"`
	Successful     int       `json:"successful"`
	SuccessMeanUS  int64     `json:"success_mean_us"`
	Slow           int       `json:"slow"`
	DispatchErrors int       `json:"dispatch_errors"`
}

// ReportStore reads and writes batch reports.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Insert stores r and returns its id.
func (s *ReportStore) Insert(ctx context.Context, r Report) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_reports (at, commands, mean_us, successful, success_mean_us, slow, dispatch_errors) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.Commands, r.MeanUS, r.Successful, r.SuccessMeanUS, r.Slow, r.DispatchErrors,
	)
	if err != nil {
		return 0, fmt.Errorf("insert batch report: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit reports, newest first.
func (s *ReportStore) Recent(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, commands, mean_us, successful, success_mean_us, slow, dispatch_errors FROM batch_reports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batch reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		var at string
		if err := rows.Scan(&r.ID, &at, &r.Commands, &r.MeanUS, &r.Successful, &r.SuccessMeanUS, &r.Slow, &r.DispatchErrors); err != nil {
			return nil, fmt.Errorf("scan batch report: %w", err)
		}
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse report time %q: %w", at, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep reports.
func (s *ReportStore) Prune(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM batch_reports WHERE id NOT IN (SELECT id FROM batch_reports ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("prune batch reports: %w", err)
	}
	return nil
}

// batchEvent mirrors the receiver's batch report payload.
type batchEvent struct {
	Commands       int   `json:"commands"`
	MeanNS         int64 `json:"mean_ns"`
	Successful     int   `json:"successful"`
	SuccessMeanNS  int64 `json:"success_mean_ns"`
	Slow           int   `json:"slow"`
	DispatchErrors int   `json:"dispatch_errors"`
}

// maxReports bounds the table; older rows are pruned after each insert.
const maxReports = 1000

// Record persists batch reports from sub until it closes or ctx ends.
// Write failures are logged and never reach the receiver.
func (s *ReportStore) Record(ctx context.Context, sub <-chan events.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Type != events.TypeBatchReport {
				continue
			}
			var be batchEvent
			if err := json.Unmarshal(ev.Data, &be); err != nil {
				logger.Error("malformed batch event", "error", err)
				continue
			}
			_, err := s.Insert(ctx, Report{
				At:             ev.At,
				Commands:       be.Commands,
				MeanUS:         time.Duration(be.MeanNS).Microseconds(),
				Successful:     be.Successful,
				SuccessMeanUS:  time.Duration(be.SuccessMeanNS).Microseconds(),
				Slow:           be.Slow,
				DispatchErrors: be.DispatchErrors,
			})
			if err != nil {
				logger.Error("failed to store batch report", "error", err)
				continue
			}
			if err := s.Prune(ctx, maxReports); err != nil {
				logger.Warn("failed to prune batch reports", "error", err)
			}
		}
	}
}
