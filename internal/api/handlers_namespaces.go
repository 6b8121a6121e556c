// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/models"
)

func (rt *Router) listNamespaces(w http.ResponseWriter, r *http.Request) {
	list, err := rt.creds.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Namespace{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (rt *Router) createNamespace(w http.ResponseWriter, r *http.Request) {
	var req createNamespaceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ns := &models.Namespace{
		ID:          uuid.New().String(),
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Active:      true,
	}
	if ns.DisplayName == "" {
		ns.DisplayName = req.Name
	}
	if req.Active != nil {
		ns.Active = *req.Active
	}

	if err := rt.creds.Create(r.Context(), ns, req.ConnectionString); err != nil {
		writeError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("namespace", ns.Name).
		Str("namespace_id", ns.ID).
		Msg("Namespace registered")
	writeJSON(w, r, http.StatusCreated, ns)
}

func (rt *Router) getNamespace(w http.ResponseWriter, r *http.Request) {
	ns, err := rt.creds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ns)
}

func (rt *Router) updateNamespace(w http.ResponseWriter, r *http.Request) {
	var req updateNamespaceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ns, err := rt.creds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.DisplayName != nil {
		ns.DisplayName = *req.DisplayName
	}
	if req.Active != nil {
		ns.Active = *req.Active
	}

	if err := rt.creds.Update(r.Context(), ns, req.ConnectionString); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ConnectionString != nil {
		// The cached gateway was dialed with the old credential.
		rt.gateways.Invalidate(ns.ID)
	}
	writeJSON(w, r, http.StatusOK, ns)
}

// deleteNamespace refuses to remove a namespace that still has active DLQ
// history; operators resolve or discard the entries first.
func (rt *Router) deleteNamespace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := rt.creds.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	active, err := rt.store.CountActiveByNamespace(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if active > 0 {
		writeProblem(w, r, http.StatusConflict, models.CodeConflict,
			"namespace has "+strconv.FormatInt(active, 10)+" unresolved DLQ entries")
		return
	}

	if err := rt.creds.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	rt.gateways.Invalidate(id)
	logging.Ctx(r.Context()).Info().Str("namespace_id", id).Msg("Namespace removed")
	w.WriteHeader(http.StatusNoContent)
}

// connectionTestResult is the response of the namespace connection test.
type connectionTestResult struct {
	Succeeded bool      `json:"succeeded"`
	TestedAt  time.Time `json:"testedAt"`
	Error     string    `json:"error,omitempty"`
}

// testNamespace pings the broker with the stored credential and records
// the outcome on the namespace. A failed ping is a successful test run,
// so the response is 200 either way.
func (rt *Router) testNamespace(w http.ResponseWriter, r *http.Request) {
	ns, err := rt.creds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	result := connectionTestResult{Succeeded: true, TestedAt: time.Now().UTC()}
	gw, err := rt.gateways.Gateway(r.Context(), ns)
	if err == nil {
		err = gw.Ping(r.Context())
	}
	if err != nil {
		result.Succeeded = false
		result.Error = err.Error()
	}

	if rerr := rt.creds.RecordConnectionTest(r.Context(), ns.ID, result.Succeeded, result.Error); rerr != nil {
		logging.CtxErr(r.Context(), rerr).
			Str("namespace_id", ns.ID).
			Msg("Failed to record connection test outcome")
	}
	writeJSON(w, r, http.StatusOK, result)
}

// namespaceGateway resolves the namespace from the path and dials (or
// reuses) its gateway.
func (rt *Router) namespaceGateway(r *http.Request) (*models.Namespace, broker.Gateway, error) {
	ns, err := rt.creds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, nil, err
	}
	gw, err := rt.gateways.Gateway(r.Context(), ns)
	if err != nil {
		return nil, nil, err
	}
	return ns, gw, nil
}

func (rt *Router) listQueues(w http.ResponseWriter, r *http.Request) {
	_, gw, err := rt.namespaceGateway(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	queues, err := gw.ListQueues(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if queues == nil {
		queues = []models.EntityInfo{}
	}
	writeJSON(w, r, http.StatusOK, queues)
}

func (rt *Router) listTopics(w http.ResponseWriter, r *http.Request) {
	_, gw, err := rt.namespaceGateway(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	topics, err := gw.ListTopics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if topics == nil {
		topics = []models.EntityInfo{}
	}
	writeJSON(w, r, http.StatusOK, topics)
}

func (rt *Router) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	_, gw, err := rt.namespaceGateway(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	subs, err := gw.ListSubscriptions(r.Context(), chi.URLParam(r, "topic"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []models.EntityInfo{}
	}
	writeJSON(w, r, http.StatusOK, subs)
}

// pathEntity derives the broker entity from the matched route: a queue, a
// subscription under its topic, or the bare topic for sends.
func pathEntity(r *http.Request) broker.Entity {
	topic := chi.URLParam(r, "topic")
	entity := chi.URLParam(r, "entity")
	switch {
	case entity != "" && topic != "":
		return broker.Entity{Name: entity, Type: models.EntityTypeSubscription, TopicName: topic}
	case entity != "":
		return broker.Entity{Name: entity, Type: models.EntityTypeQueue}
	default:
		return broker.Entity{Name: topic, Type: models.EntityTypeTopic}
	}
}

func (rt *Router) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	_, gw, err := rt.namespaceGateway(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := broker.Message{
		MessageID:             req.MessageID,
		ContentType:           req.ContentType,
		CorrelationID:         req.CorrelationID,
		SessionID:             req.SessionID,
		Body:                  []byte(req.Body),
		ApplicationProperties: req.ApplicationProperties,
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}

	target := pathEntity(r)
	if err := gw.Send(r.Context(), target.Name, msg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"messageId": msg.MessageID})
}

// messageView is the peek response shape; the body comes back as a string
// (the monitor's lossy UTF-8 rules do not apply here, peeks are verbatim).
type messageView struct {
	MessageID      string     `json:"messageId"`
	SequenceNumber int64      `json:"sequenceNumber"`
	EnqueuedAt     *time.Time `json:"enqueuedAt,omitempty"`
	DeadLetteredAt *time.Time `json:"deadLetteredAt,omitempty"`

	DeadLetterReason           string `json:"deadLetterReason,omitempty"`
	DeadLetterErrorDescription string `json:"deadLetterErrorDescription,omitempty"`

	DeliveryCount int64  `json:"deliveryCount"`
	ContentType   string `json:"contentType,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`

	Body                  string         `json:"body"`
	ApplicationProperties map[string]any `json:"applicationProperties,omitempty"`
}

func toMessageView(m broker.Message) messageView {
	return messageView{
		MessageID:                  m.MessageID,
		SequenceNumber:             m.SequenceNumber,
		EnqueuedAt:                 m.EnqueuedAt,
		DeadLetteredAt:             m.DeadLetteredAt,
		DeadLetterReason:           m.DeadLetterReason,
		DeadLetterErrorDescription: m.DeadLetterErrorDescription,
		DeliveryCount:              m.DeliveryCount,
		ContentType:                m.ContentType,
		CorrelationID:              m.CorrelationID,
		SessionID:                  m.SessionID,
		Body:                       string(m.Body),
		ApplicationProperties:      m.ApplicationProperties,
	}
}

// peekMessages reads messages non-destructively from the live queue or the
// dead-letter sub-queue, selected by queueType. skip/take paginate over
// peek order; the gateway peeks from the head, so skip is applied here.
func (rt *Router) peekMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	queueType := q.Get("queueType")
	if queueType == "" {
		queueType = "active"
	}
	if queueType != "active" && queueType != "deadletter" {
		writeError(w, r, badRequestf("queueType must be active or deadletter, got %q", queueType))
		return
	}

	skip := 0
	if raw := q.Get("skip"); raw != "" {
		var err error
		if skip, err = strconv.Atoi(raw); err != nil || skip < 0 {
			writeError(w, r, badRequestf("skip must be a non-negative integer, got %q", raw))
			return
		}
	}
	take := rt.cfg.API.DefaultPageSize
	if raw := q.Get("take"); raw != "" {
		var err error
		if take, err = strconv.Atoi(raw); err != nil || take < 1 {
			writeError(w, r, badRequestf("take must be a positive integer, got %q", raw))
			return
		}
	}
	if take > rt.cfg.API.MaxPageSize {
		take = rt.cfg.API.MaxPageSize
	}

	_, gw, err := rt.namespaceGateway(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entity := pathEntity(r)
	peek := gw.PeekActive
	if queueType == "deadletter" {
		peek = gw.PeekDLQ
	}
	msgs, err := peek(r.Context(), entity, 0, skip+take)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if skip >= len(msgs) {
		msgs = nil
	} else {
		msgs = msgs[skip:]
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, toMessageView(m))
	}
	writeJSON(w, r, http.StatusOK, views)
}

// deadLetterMessage moves a live message onto the dead-letter sub-queue.
// Test tooling for exercising the monitor end to end; brokers without a
// direct dead-letter operation answer with a protocol error.
func (rt *Router) deadLetterMessage(w http.ResponseWriter, r *http.Request) {
	var req deadLetterRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	_, gw, err := rt.namespaceGateway(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := broker.Message{
		MessageID:                  req.MessageID,
		DeadLetterReason:           req.Reason,
		DeadLetterErrorDescription: req.ErrorDescription,
	}
	if err := broker.DeadLetter(r.Context(), gw, pathEntity(r), msg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"messageId": req.MessageID})
}
