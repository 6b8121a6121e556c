// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/debdevops/servicehub/internal/api"
	"github.com/debdevops/servicehub/internal/broker/dial"
	"github.com/debdevops/servicehub/internal/broker/natsjs"
	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/credstore"
	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/monitor"
	"github.com/debdevops/servicehub/internal/query"
	"github.com/debdevops/servicehub/internal/replay"
	"github.com/debdevops/servicehub/internal/rules"
	"github.com/debdevops/servicehub/internal/supervisor"
	"github.com/debdevops/servicehub/internal/supervisor/services"
)

// version is stamped at build time via
// -ldflags "-X main.version=v1.2.3".
var version = "dev"

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("store_path", cfg.Store.Path).
		Dur("poll_interval", cfg.Monitor.PollInterval).
		Int("max_parallel_namespaces", cfg.Monitor.MaxParallelNamespaces).
		Msg("Starting ServiceHub")

	// Credential encryptor. A missing or weak key is fatal in production
	// (enforced by config.Validate); development falls back to an
	// ephemeral key so credentials are still never stored in plaintext,
	// at the cost of losing them on restart.
	encryptionKey := cfg.Security.EncryptionKey
	if encryptionKey == "" {
		logging.Warn().Msg("ENCRYPTION_KEY not set, using an ephemeral key (stored credentials will not survive restarts)")
		encryptionKey = ephemeralKey()
	}
	encryptor, err := config.NewCredentialEncryptor(encryptionKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential encryption")
	}

	creds, err := openCredStore(cfg, encryptor)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open credential store")
	}
	defer func() {
		if err := creds.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing credential store")
		}
	}()

	store, err := dlqstore.New(&cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open DLQ store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing DLQ store")
		}
	}()
	logging.Info().Msg("Stores initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Optional embedded JetStream server for the standalone profile.
	// Started before wiring so namespaces registered with its URL can
	// dial immediately; the data layer owns its shutdown.
	if cfg.Broker.EmbeddedNATS {
		embedded, err := natsjs.StartEmbedded(natsjs.EmbeddedConfig{
			Port:     -1,
			StoreDir: cfg.Broker.NATSStoreDir,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		tree.AddDataService(services.NewEmbeddedBrokerService(embedded, 10*time.Second))
		logging.Info().Str("url", embedded.ClientURL()).Msg("Embedded NATS JetStream server started")
	}

	// Explicit constructor wiring, leaves first: gateways, then the
	// replay executor, then the rule engine feeding it, then the monitor
	// feeding the engine, then the scheduler driving the monitor.
	gateways := dial.NewProvider(&cfg.Broker, creds)
	defer gateways.Close()

	executor := replay.New(store, creds, gateways, &cfg.Replay)
	engine := rules.NewEngine(store, executor)
	mon := monitor.New(store, creds, gateways, engine, nil,
		cfg.Monitor.PeekPageSize, cfg.Monitor.PerEntitySafetyCap)
	scheduler := monitor.NewScheduler(creds, mon, &cfg.Monitor)
	querySvc := query.NewService(store)

	router := api.NewRouter(cfg, creds, store, querySvc, engine, executor, gateways, version)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree.AddDlqService(services.Named("dlq-scheduler", scheduler))
	tree.AddDlqService(services.Named("replay-executor", executor))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("ServiceHub stopped gracefully")
}

// ephemeralKey generates a random 32-byte key for the development
// profile.
func ephemeralKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logging.Fatal().Err(err).Msg("Failed to generate ephemeral encryption key")
	}
	return hex.EncodeToString(buf)
}

// openCredStore opens the Badger-backed namespace store, in-memory
// when no path is configured (dev profile).
func openCredStore(cfg *config.Config, encryptor *config.CredentialEncryptor) (*credstore.Store, error) {
	if cfg.Store.CredentialPath == "" {
		logging.Warn().Msg("No credential store path configured, namespaces will not survive restarts")
		return credstore.OpenInMemory(encryptor)
	}
	return credstore.Open(cfg.Store.CredentialPath, encryptor)
}
