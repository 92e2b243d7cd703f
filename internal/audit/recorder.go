package audit

import (
	"context"

	"github.com/nerrad567/gray-logic-notify/internal/sources"
)

// Logger is the logging interface used by SyncRecorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// SyncRecorder writes every reconciliation report as a "sync" entry.
// It implements sources.Recorder.
type SyncRecorder struct {
	repo   Repository
	logger Logger
}

// NewSyncRecorder creates a SyncRecorder. logger may be nil.
func NewSyncRecorder(repo Repository, logger Logger) *SyncRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SyncRecorder{repo: repo, logger: logger}
}

// RecordSync implements sources.Recorder. Write failures are logged, never
// returned: history is best-effort.
func (r *SyncRecorder) RecordSync(ctx context.Context, report sources.Report) {
	details := map[string]any{
		"outcome":     string(report.Outcome),
		"inserted":    report.Inserted,
		"deleted":     report.Deleted,
		"renamed":     report.Renamed,
		"ignored":     report.Ignored,
		"skipped":     report.Skipped,
		"duration_ms": report.Duration.Milliseconds(),
	}
	if report.Reason != "" {
		details["reason"] = report.Reason
	}

	entry := &AuditLog{
		Action:     ActionSync,
		EntityType: EntityTypeSource,
		Source:     "bluetooth",
		Details:    details,
		CreatedAt:  report.At,
	}
	if err := r.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn("recording sync history failed", "outcome", report.Outcome, "error", err)
	}
}
