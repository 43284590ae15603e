package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"certflow/internal/application"
	"certflow/internal/certification"
	"certflow/internal/documents"
	"certflow/internal/forms"
	jwttoken "certflow/internal/jwt_token"
	"certflow/internal/payments"
	"certflow/internal/platform/config"
	"certflow/internal/platform/httpserver"
	"certflow/internal/platform/logger"
	"certflow/internal/platform/metrics"
	"certflow/internal/platform/postgres"
	platformredis "certflow/internal/platform/redis"
	"certflow/internal/progress"
	progresshandler "certflow/internal/progress/handler"
	"certflow/internal/reconciler"
	reconcilerhandler "certflow/internal/reconciler/handler"
	"certflow/internal/reconciler/lease"
	"certflow/internal/thirdparty"
	thirdpartyhandler "certflow/internal/thirdparty/handler"
	httptransport "certflow/internal/transport/http"
	"certflow/pkg/platform/events"
)

// main wires config, stores, services, and the two background workers,
// then runs everything under one errgroup with signal-driven shutdown.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("postgres unavailable", "error", err.Error())
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		certStore certification.Reader
		appStore  application.Store
		subStore  forms.Store
		payReader payments.Reader
		docReader documents.Reader
		tpStore   thirdparty.Store
	)
	if db != nil {
		certStore = certification.NewPostgres(db)
		appStore = application.NewPostgres(db)
		subStore = forms.NewPostgres(db)
		payReader = payments.NewPostgres(db)
		docReader = documents.NewPostgres(db)
		tpStore = thirdparty.NewPostgres(db)
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		certStore = certification.NewInMemoryStore()
		appStore = application.NewInMemoryStore()
		subStore = forms.NewInMemoryStore()
		payReader = payments.NewInMemoryStore()
		docReader = documents.NewInMemoryStore()
		tpStore = thirdparty.NewInMemoryStore()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka unavailable", "error", err.Error())
			os.Exit(1)
		}
		defer kafka.Close()
		publisher = kafka
	}
	eventInbox := make(chan events.Event, 256)
	eventWorker := events.NewWorker(events.NewInMemoryStore(), publisher, eventInbox, log)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
	jwtValidator := jwttoken.NewJWTServiceAdapter(jwtService)

	tpService := thirdparty.NewService(
		tpStore,
		subStore,
		thirdparty.NewLogSender(log, mailDomain(cfg.Outbound.ReplyAddress)),
		cfg.Outbound.BaseURL,
		cfg.Outbound.ReplyAddress,
		thirdparty.WithLogger(log),
		thirdparty.WithMetrics(m),
		thirdparty.WithEventSink(eventInbox),
		thirdparty.WithRetention(cfg.Retention),
		thirdparty.WithFromName(cfg.Outbound.FromName),
	)

	progressService := progress.NewService(
		appStore, certStore, subStore, payReader, docReader, tpStore,
		progress.WithLogger(log),
		progress.WithMetrics(m),
		progress.WithEventSink(eventInbox),
	)

	var pollLease *lease.Lease
	if redisClient != nil {
		pollLease = lease.New(redisClient.Client, cfg.Reconciler.RunTimeout+time.Minute)
	}
	var mailbox reconciler.Mailbox
	if imap := reconciler.NewIMAPMailbox(cfg.Mailbox); imap != nil {
		mailbox = imap
		defer imap.Close()
	}
	poller := reconciler.New(mailbox, tpService,
		reconciler.WithLogger(log),
		reconciler.WithMetrics(m),
		reconciler.WithLease(pollLease),
		reconciler.WithWindow(cfg.Reconciler.Window),
		reconciler.WithMaxMessages(cfg.Reconciler.MaxMessages),
		reconciler.WithRunTimeout(cfg.Reconciler.RunTimeout),
	)

	router := httptransport.NewRouter(
		progresshandler.New(progressService, log, m, jwtValidator),
		thirdpartyhandler.New(tpService, log, m, jwtValidator),
		reconcilerhandler.New(poller, log, cfg.Server.AdminTokenHash),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certflow", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := eventWorker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := reconciler.NewWorker(poller, cfg.Reconciler.Interval, log).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err.Error())
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// mailDomain returns the domain part of an address, used to stamp
// synthetic outbound message identifiers.
func mailDomain(addr string) string {
	if _, domain, ok := strings.Cut(addr, "@"); ok {
		return domain
	}
	return ""
}
