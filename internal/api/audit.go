package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-notify/internal/audit"
	"github.com/nerrad567/gray-logic-notify/internal/device"
)

// auditChanSize is the buffer size for the async audit log channel.
// Entries beyond this are dropped.
const auditChanSize = 256

// auditSourceChange enqueues an audit entry for an enable/disable request.
// It never blocks: if the channel is full the entry is dropped with a warning.
func (s *Server) auditSourceChange(r *http.Request, action string, d *device.Device) {
	if s.auditRepo == nil || s.auditCh == nil || d == nil {
		return
	}

	subject, _ := r.Context().Value(ctxKeySubject).(string) //nolint:errcheck // empty when auth is disabled
	entry := &audit.AuditLog{
		Action:     action,
		EntityType: audit.EntityTypeSource,
		EntityID:   d.Address,
		Subject:    subject,
		Source:     "api",
		Details:    map[string]any{"enabled": d.Enabled, "name": d.Name},
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit log channel full, dropping entry",
			"action", action,
			"address", d.Address,
		)
	}
}

// drainAuditLog writes queued entries serially until ctx is cancelled, then
// flushes whatever is still queued.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAudit(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAudit(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAudit(entry *audit.AuditLog) {
	if err := s.auditRepo.Create(context.Background(), entry); err != nil {
		s.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

// handleListAuditLogs returns paginated audit log entries, newest first.
//
// Query parameters:
//   - action: sync, toggle or set_enabled
//   - entity_id: a source address
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		EntityID: q.Get("entity_id"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
