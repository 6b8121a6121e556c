// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package natsjs

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/models"
)

// Provisioning helpers. The gateway interface is read-and-send only;
// entity creation is an administrative concern used by the dev profile
// seeding and by integration tests.

func (g *Gateway) ensureStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	if _, err := g.js.Stream(ctx, cfg.Name); err == nil {
		_, uerr := g.js.UpdateStream(ctx, cfg)
		return uerr
	}
	_, err := g.js.CreateStream(ctx, cfg)
	return err
}

func streamDefaults(name, subject string, meta map[string]string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        name,
		Subjects:    []string{subject},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      14 * 24 * time.Hour,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
		Metadata:    meta,
	}
}

// EnsureQueue creates or updates the stream pair backing a queue.
func (g *Gateway) EnsureQueue(ctx context.Context, queue string) error {
	meta := map[string]string{metaEntity: queue}
	if err := g.ensureStream(ctx, streamDefaults(queueStreamName(queue), queueSubject(queue), meta)); err != nil {
		return wrap("EnsureQueue", queue, err)
	}
	if err := g.ensureStream(ctx, streamDefaults(queueDlqStreamName(queue), queueDlqSubject(queue), meta)); err != nil {
		return wrap("EnsureQueue", queue, err)
	}
	return nil
}

// EnsureTopic creates or updates the stream backing a topic.
func (g *Gateway) EnsureTopic(ctx context.Context, topic string) error {
	meta := map[string]string{metaEntity: topic}
	if err := g.ensureStream(ctx, streamDefaults(topicStreamName(topic), topicSubject(topic), meta)); err != nil {
		return wrap("EnsureTopic", topic, err)
	}
	return nil
}

// EnsureSubscription creates or updates the dead-letter stream backing a
// subscription of a topic. The topic must already exist.
func (g *Gateway) EnsureSubscription(ctx context.Context, topic, sub string) error {
	if _, err := g.js.Stream(ctx, topicStreamName(topic)); err != nil {
		return wrap("EnsureSubscription", topic, err)
	}
	meta := map[string]string{metaEntity: sub, metaTopic: topic}
	cfg := streamDefaults(subDlqStreamName(topic, sub), subDlqSubject(topic, sub), meta)
	if err := g.ensureStream(ctx, cfg); err != nil {
		return wrap("EnsureSubscription", sub, err)
	}
	return nil
}

// DeadLetter places a message directly onto an entity's dead-letter
// stream. Consumers normally dead-letter via their own flows; this is the
// injection path for the dev profile and tests.
func (g *Gateway) DeadLetter(ctx context.Context, entity broker.Entity, msg broker.Message) error {
	var subject string
	if entity.Type == models.EntityTypeSubscription {
		subject = subDlqSubject(entity.TopicName, entity.Name)
	} else {
		subject = queueDlqSubject(entity.Name)
	}

	nmsg := &nats.Msg{Subject: subject, Header: messageToHeader(msg), Data: msg.Body}
	if _, err := g.js.PublishMsg(ctx, nmsg); err != nil {
		return wrap("DeadLetter", entity.Name, err)
	}
	return nil
}
