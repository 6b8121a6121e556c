// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/validation"
)

func entryID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, badRequestf("entry id must be a positive integer, got %q", raw)
	}
	return id, nil
}

func (rt *Router) listDlq(w http.ResponseWriter, r *http.Request) {
	f, err := rt.parseDlqFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, total, err := rt.query.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	pageHeaders(w, total, f.Page, f.PageSize)
	writeJSON(w, r, http.StatusOK, models.NewPage(entries, total, f.Page, f.PageSize))
}

func (rt *Router) getDlqEntry(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := rt.query.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

func (rt *Router) dlqTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := rt.query.Timeline(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, events)
}

func (rt *Router) dlqSummary(w http.ResponseWriter, r *http.Request) {
	rangeDays, err := parseRangeDays(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := rt.query.Summary(r.Context(), rangeDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// parseRangeDays interprets the summary range parameter: empty means all
// time, "30" or "30d" means the last 30 days.
func parseRangeDays(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	trimmed := strings.TrimSuffix(raw, "d")
	days, err := strconv.Atoi(trimmed)
	if err != nil || days < 1 {
		return 0, badRequestf("range must be a positive day count such as 7 or 7d, got %q", raw)
	}
	return days, nil
}

func (rt *Router) patchDlqNotes(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req notesRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := rt.store.UpdateNotes(r.Context(), id, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entry)
}

// patchDlqStatus archives or discards an entry. All other statuses are
// owned by the replay executor; requesting them here is a validation
// error, while violating finality of the current status is a conflict.
func (rt *Router) patchDlqStatus(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Status != models.StatusArchived && req.Status != models.StatusDiscarded {
		writeError(w, r, badRequestf("status must be %s or %s, got %q",
			models.StatusArchived, models.StatusDiscarded, req.Status))
		return
	}

	entry, err := rt.store.SetStatus(r.Context(), id, req.Status, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Int64("entry_id", id).
		Str("status", string(req.Status)).
		Msg("DLQ entry status changed by operator")
	writeJSON(w, r, http.StatusOK, entry)
}

// replayEntry performs an operator-initiated replay. The body is optional;
// absent it means replay immediately to the origin entity.
func (rt *Router) replayEntry(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req replayRequest
	if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil && !errors.Is(derr, io.EOF) {
		writeError(w, r, badRequestf("invalid JSON body: %v", derr))
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeError(w, r, verr)
		return
	}

	action := models.RuleAction{
		TargetEntity:       req.TargetEntity,
		DelaySeconds:       req.DelaySeconds,
		MaxRetries:         req.MaxRetries,
		ExponentialBackoff: req.ExponentialBackoff,
	}
	result, err := rt.executor.Replay(r.Context(), id, action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// replayAll replays every Active entry the rule currently matches, up to
// the rule's remaining hourly replay budget; matches beyond the budget
// count as skipped.
func (rt *Router) replayAll(w http.ResponseWriter, r *http.Request) {
	ruleID := r.URL.Query().Get("ruleId")
	if ruleID == "" {
		writeError(w, r, badRequestf("ruleId query parameter is required"))
		return
	}

	rule, ids, err := rt.engine.MatchingActiveIDs(r.Context(), ruleID, 0)
	if err != nil {
		if errors.Is(err, dlqstore.ErrNotFound) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, badRequestf("rule %s cannot be evaluated: %v", ruleID, err))
		return
	}

	granted := rt.engine.ReserveReplays(rule, len(ids))
	result, err := rt.executor.ReplayAll(r.Context(), ids[:granted], rule.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result.Matched = len(ids)
	result.Skipped += len(ids) - granted

	logging.Ctx(r.Context()).Info().
		Str("rule", rule.Name).
		Int("matched", result.Matched).
		Int("replayed", result.Replayed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("Bulk replay completed")
	writeJSON(w, r, http.StatusOK, result)
}
