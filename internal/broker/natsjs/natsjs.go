// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package natsjs implements the broker gateway on NATS JetStream. Each
// queue maps to a stream plus a companion dead-letter stream; topics map
// to streams whose subscriptions carry their own dead-letter streams.
// Paired with the embedded server it gives a fully self-contained broker
// for single-binary deployments.
package natsjs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/models"
)

// Stream naming scheme. The original entity names are kept in stream
// metadata; the stream name itself is a sanitized derivation.
const (
	queuePrefix = "SHQ_"
	topicPrefix = "SHT_"
	subPrefix   = "SHS_"
	dlqSuffix   = "_DLQ"

	metaEntity = "servicehub.entity"
	metaTopic  = "servicehub.topic"
)

// Message headers carrying broker metadata across JetStream.
const (
	hdrReason        = "SH-Dead-Letter-Reason"
	hdrErrDesc       = "SH-Dead-Letter-Error-Description"
	hdrDeliveryCount = "SH-Delivery-Count"
	hdrContentType   = "SH-Content-Type"
	hdrCorrelationID = "SH-Correlation-Id"
	hdrSessionID     = "SH-Session-Id"
	hdrEnqueuedAt    = "SH-Enqueued-At"
	hdrAppPrefix     = "SH-App-"
)

// Gateway is a broker.Gateway over one NATS JetStream account.
type Gateway struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// New connects to the given NATS URL and returns a gateway. Reconnection
// is handled by the client; transient disconnects are logged, not fatal.
func New(ctx context.Context, url string) (*Gateway, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, wrap("connect", "", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, wrap("connect", "", err)
	}
	return &Gateway{nc: nc, js: js}, nil
}

func sanitize(name string) string {
	r := strings.NewReplacer(".", "-", "*", "-", ">", "-", " ", "-", "/", "-")
	return r.Replace(name)
}

func queueStreamName(queue string) string   { return queuePrefix + sanitize(queue) }
func queueDlqStreamName(queue string) string { return queuePrefix + sanitize(queue) + dlqSuffix }
func topicStreamName(topic string) string   { return topicPrefix + sanitize(topic) }
func subDlqStreamName(topic, sub string) string {
	return subPrefix + sanitize(topic) + "_" + sanitize(sub) + dlqSuffix
}

func queueSubject(queue string) string    { return "shq." + sanitize(queue) }
func queueDlqSubject(queue string) string { return "shq." + sanitize(queue) + ".dlq" }
func topicSubject(topic string) string    { return "sht." + sanitize(topic) }
func subDlqSubject(topic, sub string) string {
	return "shs." + sanitize(topic) + "." + sanitize(sub) + ".dlq"
}

// wrap classifies a nats/jetstream error into the broker error taxonomy.
func wrap(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	kind := broker.KindTransient
	switch {
	case errors.Is(err, jetstream.ErrStreamNotFound),
		errors.Is(err, jetstream.ErrConsumerNotFound),
		errors.Is(err, jetstream.ErrMsgNotFound):
		kind = broker.KindNotFound
	case errors.Is(err, nats.ErrAuthorization),
		errors.Is(err, nats.ErrAuthExpired):
		kind = broker.KindUnauthorized
	case errors.Is(err, nats.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		kind = broker.KindTimeout
	case errors.Is(err, jetstream.ErrJetStreamNotEnabled),
		errors.Is(err, jetstream.ErrJetStreamNotEnabledForAccount):
		kind = broker.KindProtocol
	}
	return broker.NewError(kind, op, entity, err)
}

func (g *Gateway) Ping(ctx context.Context) error {
	if _, err := g.js.AccountInfo(ctx); err != nil {
		return wrap("Ping", "", err)
	}
	return nil
}

// listStreams collects stream infos matching the given filter.
func (g *Gateway) listStreams(ctx context.Context, keep func(*jetstream.StreamInfo) bool) ([]*jetstream.StreamInfo, error) {
	lister := g.js.ListStreams(ctx)
	var out []*jetstream.StreamInfo
	for info := range lister.Info() {
		if keep(info) {
			out = append(out, info)
		}
	}
	if err := lister.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func entityName(info *jetstream.StreamInfo, fallback string) string {
	if n, ok := info.Config.Metadata[metaEntity]; ok && n != "" {
		return n
	}
	return fallback
}

func (g *Gateway) ListQueues(ctx context.Context) ([]models.EntityInfo, error) {
	infos, err := g.listStreams(ctx, func(info *jetstream.StreamInfo) bool {
		return strings.HasPrefix(info.Config.Name, queuePrefix) &&
			!strings.HasSuffix(info.Config.Name, dlqSuffix)
	})
	if err != nil {
		return nil, wrap("ListQueues", "", err)
	}

	out := make([]models.EntityInfo, 0, len(infos))
	for _, info := range infos {
		name := entityName(info, strings.TrimPrefix(info.Config.Name, queuePrefix))
		counts := models.RuntimeCounts{Active: int64(info.State.Msgs)}
		if dlq, derr := g.js.Stream(ctx, queueDlqStreamName(name)); derr == nil {
			if dinfo, ierr := dlq.Info(ctx); ierr == nil {
				counts.DeadLetter = int64(dinfo.State.Msgs)
			}
		}
		counts.Total = counts.Active + counts.DeadLetter + counts.Scheduled + counts.Transfer
		out = append(out, models.EntityInfo{Name: name, Type: models.EntityTypeQueue, Counts: counts})
	}
	return out, nil
}

func (g *Gateway) ListTopics(ctx context.Context) ([]models.EntityInfo, error) {
	infos, err := g.listStreams(ctx, func(info *jetstream.StreamInfo) bool {
		return strings.HasPrefix(info.Config.Name, topicPrefix)
	})
	if err != nil {
		return nil, wrap("ListTopics", "", err)
	}

	out := make([]models.EntityInfo, 0, len(infos))
	for _, info := range infos {
		name := entityName(info, strings.TrimPrefix(info.Config.Name, topicPrefix))
		out = append(out, models.EntityInfo{
			Name:   name,
			Type:   models.EntityTypeTopic,
			Counts: models.RuntimeCounts{Active: int64(info.State.Msgs), Total: int64(info.State.Msgs)},
		})
	}
	return out, nil
}

func (g *Gateway) ListSubscriptions(ctx context.Context, topic string) ([]models.EntityInfo, error) {
	if _, err := g.js.Stream(ctx, topicStreamName(topic)); err != nil {
		return nil, wrap("ListSubscriptions", topic, err)
	}

	prefix := subPrefix + sanitize(topic) + "_"
	infos, err := g.listStreams(ctx, func(info *jetstream.StreamInfo) bool {
		return strings.HasPrefix(info.Config.Name, prefix) &&
			strings.HasSuffix(info.Config.Name, dlqSuffix)
	})
	if err != nil {
		return nil, wrap("ListSubscriptions", topic, err)
	}

	out := make([]models.EntityInfo, 0, len(infos))
	for _, info := range infos {
		name := entityName(info, strings.TrimSuffix(strings.TrimPrefix(info.Config.Name, prefix), dlqSuffix))
		out = append(out, models.EntityInfo{
			Name:      name,
			Type:      models.EntityTypeSubscription,
			TopicName: topic,
			Counts: models.RuntimeCounts{
				DeadLetter: int64(info.State.Msgs),
				Total:      int64(info.State.Msgs),
			},
		})
	}
	return out, nil
}

// dlqStreamFor resolves the dead-letter stream backing an entity.
func (g *Gateway) dlqStreamFor(ctx context.Context, entity broker.Entity) (jetstream.Stream, error) {
	var name string
	if entity.Type == models.EntityTypeSubscription {
		name = subDlqStreamName(entity.TopicName, entity.Name)
	} else {
		name = queueDlqStreamName(entity.Name)
	}
	return g.js.Stream(ctx, name)
}

// activeStreamFor resolves the live stream backing an entity. A
// subscription's live messages are those of its topic stream.
func (g *Gateway) activeStreamFor(ctx context.Context, entity broker.Entity) (jetstream.Stream, error) {
	if entity.Type == models.EntityTypeSubscription {
		return g.js.Stream(ctx, topicStreamName(entity.TopicName))
	}
	return g.js.Stream(ctx, queueStreamName(entity.Name))
}

// peekStream walks a stream by sequence number, skipping purged gaps.
func (g *Gateway) peekStream(ctx context.Context, op, entity string, stream jetstream.Stream, fromSequence int64, max int) ([]broker.Message, error) {
	info, err := stream.Info(ctx)
	if err != nil {
		return nil, wrap(op, entity, err)
	}

	seq := uint64(fromSequence)
	if seq < info.State.FirstSeq {
		seq = info.State.FirstSeq
	}

	out := make([]broker.Message, 0, max)
	for ; seq <= info.State.LastSeq && len(out) < max; seq++ {
		raw, gerr := stream.GetMsg(ctx, seq)
		if gerr != nil {
			if errors.Is(gerr, jetstream.ErrMsgNotFound) {
				continue // purged or rolled up
			}
			return nil, wrap(op, entity, gerr)
		}
		out = append(out, rawToMessage(raw))
	}
	return out, nil
}

func (g *Gateway) PeekActive(ctx context.Context, entity broker.Entity, fromSequence int64, max int) ([]broker.Message, error) {
	stream, err := g.activeStreamFor(ctx, entity)
	if err != nil {
		return nil, wrap("PeekActive", entity.Name, err)
	}
	return g.peekStream(ctx, "PeekActive", entity.Name, stream, fromSequence, max)
}

func (g *Gateway) PeekDLQ(ctx context.Context, entity broker.Entity, fromSequence int64, max int) ([]broker.Message, error) {
	stream, err := g.dlqStreamFor(ctx, entity)
	if err != nil {
		return nil, wrap("PeekDLQ", entity.Name, err)
	}
	return g.peekStream(ctx, "PeekDLQ", entity.Name, stream, fromSequence, max)
}

func rawToMessage(raw *jetstream.RawStreamMsg) broker.Message {
	h := nats.Header(raw.Header)
	msg := broker.Message{
		MessageID:                  h.Get(nats.MsgIdHdr),
		SequenceNumber:             int64(raw.Sequence),
		DeadLetterReason:           h.Get(hdrReason),
		DeadLetterErrorDescription: h.Get(hdrErrDesc),
		ContentType:                h.Get(hdrContentType),
		CorrelationID:              h.Get(hdrCorrelationID),
		SessionID:                  h.Get(hdrSessionID),
		Body:                       raw.Data,
	}

	// Stream receive time is the dead-letter time on DLQ streams and the
	// enqueue time on live streams.
	at := raw.Time
	if msg.DeadLetterReason != "" || msg.DeadLetterErrorDescription != "" {
		msg.DeadLetteredAt = &at
	} else {
		msg.EnqueuedAt = &at
	}

	if v := h.Get(hdrDeliveryCount); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			msg.DeliveryCount = n
		}
	}
	if v := h.Get(hdrEnqueuedAt); v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			msg.EnqueuedAt = &t
		}
	}

	for key, vals := range h {
		if !strings.HasPrefix(key, hdrAppPrefix) || len(vals) == 0 {
			continue
		}
		if msg.ApplicationProperties == nil {
			msg.ApplicationProperties = make(map[string]any)
		}
		msg.ApplicationProperties[strings.TrimPrefix(key, hdrAppPrefix)] = vals[0]
	}
	return msg
}

func messageToHeader(msg broker.Message) nats.Header {
	h := nats.Header{}
	if msg.MessageID != "" {
		h.Set(nats.MsgIdHdr, msg.MessageID)
	}
	if msg.ContentType != "" {
		h.Set(hdrContentType, msg.ContentType)
	}
	if msg.CorrelationID != "" {
		h.Set(hdrCorrelationID, msg.CorrelationID)
	}
	if msg.SessionID != "" {
		h.Set(hdrSessionID, msg.SessionID)
	}
	if msg.DeliveryCount > 0 {
		h.Set(hdrDeliveryCount, strconv.FormatInt(msg.DeliveryCount, 10))
	}
	if msg.EnqueuedAt != nil {
		h.Set(hdrEnqueuedAt, msg.EnqueuedAt.Format(time.RFC3339Nano))
	}
	if msg.DeadLetterReason != "" {
		h.Set(hdrReason, msg.DeadLetterReason)
	}
	if msg.DeadLetterErrorDescription != "" {
		h.Set(hdrErrDesc, msg.DeadLetterErrorDescription)
	}
	for key, val := range msg.ApplicationProperties {
		h.Set(hdrAppPrefix+key, fmt.Sprint(val))
	}
	return h
}

func (g *Gateway) Send(ctx context.Context, entityName string, msg broker.Message) error {
	var subject string
	if _, err := g.js.Stream(ctx, queueStreamName(entityName)); err == nil {
		subject = queueSubject(entityName)
	} else if _, terr := g.js.Stream(ctx, topicStreamName(entityName)); terr == nil {
		subject = topicSubject(entityName)
	} else {
		return wrap("Send", entityName, err)
	}

	nmsg := &nats.Msg{Subject: subject, Header: messageToHeader(msg), Data: msg.Body}
	if _, err := g.js.PublishMsg(ctx, nmsg); err != nil {
		return wrap("Send", entityName, err)
	}
	return nil
}

func (g *Gateway) Close() error {
	g.nc.Close()
	return nil
}
