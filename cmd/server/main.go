package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"attestry/internal/authority"
	"attestry/internal/authproof"
	"attestry/internal/ownership"
	"attestry/internal/payment"
	"attestry/internal/platform/config"
	"attestry/internal/platform/httpserver"
	"attestry/internal/platform/logger"
	platformredis "attestry/internal/platform/redis"
	"attestry/internal/resolver"
	"attestry/internal/storage"
	"attestry/internal/token"
	httptransport "attestry/internal/transport/http"
	id "attestry/pkg/domain"
	"attestry/pkg/platform/audit"
	kafkaaudit "attestry/pkg/platform/audit/publishers/kafka"
	auditmemory "attestry/pkg/platform/audit/store/memory"
	auditworker "attestry/pkg/platform/audit/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	moduleAccount, err := id.ParseAddress(cfg.ModuleAccount)
	if err != nil {
		return fmt.Errorf("invalid module account: %w", err)
	}

	// Storage: one in-memory ledger by default, Postgres when configured.
	memory := storage.NewMemoryLedger()
	var (
		states       storage.ModuleStateStore = memory
		payments     storage.PaymentStore     = memory
		authorities  storage.AuthorityStore   = memory
		attestations storage.AttestationStore = memory
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		pg := storage.NewPostgresLedger(db)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		states, payments, authorities, attestations = pg, pg, pg, pg
		log.Info("using postgres ledger")
	}
	if cfg.RedisURL != "" {
		rc, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		redisPayments := storage.NewRedisPaymentLedger(rc.Client)
		payments = redisPayments
		// Registration consumes from the redis ledger while authority rows
		// stay in the primary store.
		authorities = storage.NewSplitAuthorityStore(redisPayments, authorities)
		log.Info("using redis payment ledger")
	}

	var tokens token.Client
	if cfg.TokenServiceURL != "" {
		tokens = token.NewBreakerClient(token.NewHTTPClient(cfg.TokenServiceURL), log)
	} else {
		tokens = token.NewMemoryClient()
		log.Warn("no token service configured, using in-memory token client")
	}

	proofs := authproof.New(cfg.JWTSigningKey, "attestry")

	// Audit pipeline: channel into the background worker, optionally fanned
	// out to Kafka for downstream consumers.
	channelPub := audit.NewChannelPublisher(cfg.AuditBuffer)
	var publisher audit.Publisher = channelPub
	var kafkaPub *kafkaaudit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err = kafkaaudit.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		defer kafkaPub.Close()
		publisher = fanout{channelPub, kafkaPub}
		log.Info("audit events forwarded to kafka", "topic", cfg.KafkaTopic)
	}
	auditStore := auditmemory.New()
	worker := auditworker.NewWorker(auditStore, channelPub.Inbox(), log)

	ownershipSvc, err := ownership.New(states, tokens, proofs,
		ownership.WithLogger(log), ownership.WithAuditPublisher(publisher))
	if err != nil {
		return err
	}
	paymentSvc, err := payment.New(payments, states, tokens, proofs, moduleAccount,
		payment.WithLogger(log), payment.WithAuditPublisher(publisher))
	if err != nil {
		return err
	}
	authoritySvc, err := authority.New(authorities, ownershipSvc, proofs,
		authority.WithLogger(log),
		authority.WithAuditPublisher(publisher),
		authority.WithRefMatchMode(authority.RefMatchMode(cfg.RefMatchMode)))
	if err != nil {
		return err
	}
	resolverSvc, err := resolver.New(attestations, states, authoritySvc, paymentSvc, ownershipSvc, tokens, proofs, moduleAccount,
		resolver.WithLogger(log), resolver.WithAuditPublisher(publisher))
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Ownership:      ownershipSvc,
		Payment:        paymentSvc,
		Authority:      authoritySvc,
		Resolver:       resolverSvc,
		AdminTokenHash: cfg.AdminTokenHash,
	})
	server := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// fanout emits to every publisher, keeping the first error.
type fanout []audit.Publisher

func (f fanout) Emit(ctx context.Context, event audit.Event) error {
	var firstErr error
	for _, p := range f {
		if err := p.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
