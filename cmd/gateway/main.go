// Command gateway is the wa-gateway entrypoint: it loads configuration,
// wires every collaborator (C1-C10), starts the background workers and
// the HTTP control plane, and drives the graceful shutdown sequence of
// spec §5. Grounded on the pack's cmd/server/main.go shutdown staging
// (signal.NotifyContext + successive context.WithTimeout phases per
// subsystem) since the teacher repo ships no cmd/ entrypoint of its own.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/api"
	"github.com/keyquest/wa-gateway/internal/behavior"
	"github.com/keyquest/wa-gateway/internal/broadcast"
	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/config"
	"github.com/keyquest/wa-gateway/internal/driver/whatsmeow"
	"github.com/keyquest/wa-gateway/internal/eventbus"
	"github.com/keyquest/wa-gateway/internal/receive"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/internal/session"
	"github.com/keyquest/wa-gateway/internal/store"
	"github.com/keyquest/wa-gateway/internal/workflow"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(log); err != nil {
		log.Fatal("gateway exited with error", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("reach redis: %w", err)
	}

	clk := clock.NewSystem()

	bhvCfg := behavior.DefaultConfig()
	bhvCfg.HourlyCap = cfg.HumanBehavior.HourlyCap
	bhvCfg.DailyCap = cfg.HumanBehavior.DailyCap
	bhvCfg.NetworkHiccupProbability = cfg.HumanBehavior.NetworkHiccupProbability
	bhvCfg.DedupCap = cfg.HumanBehavior.DedupCap
	bhv := behavior.NewManager(bhvCfg, clk, rdb, log)

	bus := eventbus.New(cfg.EventBus.SubscriberBuffer, log)

	newClient := func() whatsapp.Client {
		return whatsmeow.New(cfg.Database, cfg.Session.ID, log)
	}

	// sess is constructed with a nil admitter since the receive queue
	// (the admitter) itself needs the send queue, which needs sess.Client.
	// SetAdmitter closes the cycle below, before Start is ever called.
	sess := session.New(newClient, clk, bus, nil, log, cfg.Session)

	sendq := sendqueue.New(sess.Client, bhv, clk, log)

	wfEngine := workflow.New(st, sendq, clk, log, bus)
	workflow.RegisterDefaults(wfEngine)

	recvQueue := receive.New(bhv, sendq, wfEngine, clk, log)
	sess.SetAdmitter(recvQueue)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	bx := broadcast.New(st, sendq, sess.Client, clk, log, bus, workerCtx)

	router := api.New(cfg, sess, sendq, st, bx, bus, bhv, log, clk.Now())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go sendq.Run(workerCtx)
	go recvQueue.Run(workerCtx)
	go sess.RunWatchdog(workerCtx)
	go sess.RunMemoryMonitor(workerCtx)

	sess.Start(workerCtx)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("gateway listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}

	log.Info("starting graceful shutdown sequence")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}
	shutdownCancel()

	log.Info("draining send queue")
	drainDeadline := time.Now().Add(minDuration(10*time.Second, cfg.Server.ShutdownTimeout))
	for sendq.Len() > 0 && time.Now().Before(drainDeadline) {
		time.Sleep(100 * time.Millisecond)
	}
	cancelWorkers()

	if client := sess.Client(); client != nil {
		log.Info("destroying whatsapp client")
		destroyCtx, destroyCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Destroy(destroyCtx); err != nil {
			log.Warn("client destroy error", zap.Error(err))
		}
		destroyCancel()
	}

	log.Info("shutdown complete")
	return nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
