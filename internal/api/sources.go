package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-notify/internal/audit"
	"github.com/nerrad567/gray-logic-notify/internal/device"
)

// setEnabledRequest is the body of PUT /sources/{address}/enabled.
type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleListSources returns every stored source ordered by name.
//
// Query parameters:
//   - enabled: "true" restricts the list to enabled sources
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enabledOnly := false
	if v := r.URL.Query().Get("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "enabled must be true or false")
			return
		}
		enabledOnly = b
	}

	store, err := s.sources.AwaitCurrent(ctx, s.awaitTimeout)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	var list []device.Device
	if enabledOnly {
		list, err = store.ListEnabled(ctx)
	} else {
		list, err = store.List(ctx)
	}
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	list = nonNil(list)
	writeJSON(w, http.StatusOK, map[string]any{"sources": list, "count": len(list)})
}

// handleGetSource returns a single source by address.
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}

	store, err := s.sources.AwaitCurrent(r.Context(), s.awaitTimeout)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	d, err := store.GetByAddress(r.Context(), address)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleToggleSource inverts a source's enabled flag.
func (s *Server) handleToggleSource(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}

	d, err := s.toggler.ToggleDevice(r.Context(), address)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if d == nil {
		writeNotFound(w, "source not found")
		return
	}
	s.auditSourceChange(r, audit.ActionToggle, d)
	writeJSON(w, http.StatusOK, d)
}

// handleSetSourceEnabled sets a source's enabled flag explicitly.
func (s *Server) handleSetSourceEnabled(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "enabled is required")
		return
	}

	d, err := s.toggler.SetDeviceEnabled(r.Context(), address, *req.Enabled)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.auditSourceChange(r, audit.ActionSetEnabled, d)
	writeJSON(w, http.StatusOK, d)
}

// handleSyncSources runs a probe-driven reconciliation and returns its report.
// A skipped run (permission denied, adapter unavailable) is still a 200.
func (s *Server) handleSyncSources(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeUnavailable(w, "bluetooth sync not configured")
		return
	}

	report, err := s.syncer.Resync(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeStoreError maps device and store errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "source not found")
	case errors.Is(err, device.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrStoreUnavailable), errors.Is(err, device.ErrStoreClosed):
		writeUnavailable(w, "source store unavailable")
	default:
		s.logger.Error("source request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "source request failed")
	}
}

// addressParam reads and unescapes the {address} URL parameter.
func addressParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	address, err := url.PathUnescape(chi.URLParam(r, "address"))
	if err != nil || address == "" {
		writeBadRequest(w, "invalid address")
		return "", false
	}
	return address, true
}
