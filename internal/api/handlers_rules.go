// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/rules"
)

func (rt *Router) listRules(w http.ResponseWriter, r *http.Request) {
	list, err := rt.store.ListRules(r.Context(), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Rule{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (rt *Router) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := rules.ValidateConditions(req.Conditions); err != nil {
		writeError(w, r, err)
		return
	}

	rule := &models.Rule{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Description:       req.Description,
		Enabled:           true,
		Conditions:        req.Conditions,
		Action:            req.Action,
		MaxReplaysPerHour: req.MaxReplaysPerHour,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := rt.store.CreateRule(r.Context(), rule); err != nil {
		writeError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("rule", rule.Name).
		Str("rule_id", rule.ID).
		Bool("auto_replay", rule.Action.AutoReplay).
		Msg("Replay rule created")
	writeJSON(w, r, http.StatusCreated, rule)
}

func (rt *Router) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := rt.store.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rule)
}

// updateRule replaces the rule definition. A successful update clears any
// system-set disabled reason; re-enabling is the operator's explicit call
// via the enabled flag.
func (rt *Router) updateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := rules.ValidateConditions(req.Conditions); err != nil {
		writeError(w, r, err)
		return
	}

	rule, err := rt.store.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule.Name = req.Name
	rule.Description = req.Description
	rule.Conditions = req.Conditions
	rule.Action = req.Action
	rule.MaxReplaysPerHour = req.MaxReplaysPerHour
	rule.DisabledReason = ""
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := rt.store.UpdateRule(r.Context(), rule); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rule)
}

func (rt *Router) deleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rt.store.DeleteRule(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	// Drop the process-local rate budget so a recreated rule starts fresh.
	rt.engine.Forget(id)
	logging.Ctx(r.Context()).Info().Str("rule_id", id).Msg("Replay rule deleted")
	w.WriteHeader(http.StatusNoContent)
}

// testRuleDryRun evaluates a stored rule or ad-hoc conditions against
// Active entries without replaying anything.
func (rt *Router) testRuleDryRun(w http.ResponseWriter, r *http.Request) {
	var req ruleTestRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if (req.RuleID == "") == (len(req.Conditions) == 0) {
		writeError(w, r, badRequestf("exactly one of ruleId or conditions must be provided"))
		return
	}

	result, err := rt.engine.TestRule(r.Context(), rules.TestRequest{
		RuleID:      req.RuleID,
		Conditions:  req.Conditions,
		NamespaceID: req.NamespaceID,
		MaxMessages: req.MaxMessages,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
