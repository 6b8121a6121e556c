// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/credstore"
	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/replay"
	"github.com/debdevops/servicehub/internal/rules"
	"github.com/debdevops/servicehub/internal/validation"
)

// problemTypeBase prefixes the RFC 7807 type URI; the code is the last
// path segment so clients can key off either.
const problemTypeBase = "https://servicehub.dev/problems/"

var problemTitles = map[string]string{
	models.CodeValidationFailed:    "Request validation failed",
	models.CodeNotFound:            "Resource not found",
	models.CodeConflict:            "Conflict",
	models.CodeStatusFinal:         "Status is final",
	models.CodeNamespaceInactive:   "Namespace is inactive",
	models.CodeBrokerUnavailable:   "Broker unavailable",
	models.CodeBrokerUnauthorized:  "Broker rejected credentials",
	models.CodeRateLimited:         "Rate limit exceeded",
	models.CodeReplayNotReplayable: "Entry is not replayable",
	models.CodeInternal:            "Internal error",
}

// writeJSON writes v with the standard content type. Encoding failures are
// logged; the status line is already on the wire by then.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("Failed to encode response")
	}
}

// writeProblem writes an RFC 7807 document with the correlation id as
// traceId.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	title := problemTitles[code]
	if title == "" {
		title = http.StatusText(status)
	}
	p := models.Problem{
		Type:     problemTypeBase + code,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Code:     code,
		TraceID:  logging.CorrelationIDFromContext(r.Context()),
	}
	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("Failed to encode problem response")
	}
}

// writeError maps a domain error onto the problem vocabulary. Unrecognized
// errors become opaque 500s; the cause goes to the log, not the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		writeProblem(w, r, http.StatusBadRequest, models.CodeValidationFailed, verr.Detail())
		return
	}
	var breq *badRequestError
	if errors.As(err, &breq) {
		writeProblem(w, r, http.StatusBadRequest, models.CodeValidationFailed, breq.detail)
		return
	}
	var cerr *rules.ConditionError
	if errors.As(err, &cerr) {
		writeProblem(w, r, http.StatusBadRequest, models.CodeValidationFailed, cerr.Error())
		return
	}

	switch {
	case errors.Is(err, dlqstore.ErrNotFound), errors.Is(err, credstore.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, models.CodeNotFound, err.Error())
		return
	case errors.Is(err, dlqstore.ErrDuplicateRuleName), errors.Is(err, credstore.ErrNameTaken):
		writeProblem(w, r, http.StatusConflict, models.CodeConflict, err.Error())
		return
	case dlqstore.IsInvalidTransition(err):
		writeProblem(w, r, http.StatusConflict, models.CodeStatusFinal, err.Error())
		return
	case errors.Is(err, replay.ErrNotReplayable):
		writeProblem(w, r, http.StatusConflict, models.CodeReplayNotReplayable, err.Error())
		return
	case errors.Is(err, replay.ErrNamespaceInactive):
		writeProblem(w, r, http.StatusConflict, models.CodeNamespaceInactive, err.Error())
		return
	}

	var berr *broker.Error
	if errors.As(err, &berr) {
		switch {
		case broker.IsUnauthorized(err):
			writeProblem(w, r, http.StatusBadGateway, models.CodeBrokerUnauthorized, err.Error())
		case broker.IsNotFound(err):
			writeProblem(w, r, http.StatusNotFound, models.CodeNotFound, err.Error())
		default:
			writeProblem(w, r, http.StatusBadGateway, models.CodeBrokerUnavailable,
				"broker call failed; the condition is likely transient, retry later")
		}
		return
	}

	logging.CtxErr(r.Context(), err).Str("path", r.URL.Path).Msg("Unhandled error in handler")
	writeProblem(w, r, http.StatusInternalServerError, models.CodeInternal, "an internal error occurred")
}
