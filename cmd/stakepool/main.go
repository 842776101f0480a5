package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"StakePool/internal/coin"
	"StakePool/internal/command"
	"StakePool/internal/config"
	"StakePool/internal/core"
	"StakePool/internal/ingestion"
	"StakePool/internal/observability"
	"StakePool/internal/persistence"
	"StakePool/internal/pool"
	"StakePool/internal/projection"
	"StakePool/internal/query"
	"StakePool/internal/scheduler"
	"StakePool/internal/server"
	"StakePool/internal/umath"
)

const (
	persistBatchSize    = 50
	persistFlushTimeout = 10 * time.Millisecond
	replayBatchSize     = 1000
	migrationsDir       = "migrations"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: StakePool starting...")

	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: invalid config: %v", err)
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker("postgres", "nats", "core")

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("FATAL: postgres open: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: postgres ping: %v", err)
	}
	healthChecker.SetSubsystemReady("postgres", true)
	log.Println("INFO: Postgres connected")

	if err := persistence.NewMigrator(db, migrationsDir).Up(ctx); err != nil {
		log.Fatalf("FATAL: run migrations: %v", err)
	}
	log.Println("INFO: migrations applied")

	// --- Core state: snapshot restore or genesis ---
	registry := coin.MustDefaultRegistry()
	snapshotStore := persistence.NewSnapshotStore(db)

	snap, err := snapshotStore.LoadLatest(ctx)
	if err != nil {
		log.Printf("WARN: failed to load snapshot: %v", err)
	}

	var p *pool.Pool
	startSequence := int64(0)
	if snap != nil {
		p, err = pool.Restore(registry, snap.Pool)
		if err != nil {
			log.Fatalf("FATAL: restore pool from snapshot: %v", err)
		}
		startSequence = snap.Sequence + 1
		log.Printf("INFO: loaded snapshot at sequence %d", snap.Sequence)
	} else {
		params, err := poolParams(cfg, registry)
		if err != nil {
			log.Fatalf("FATAL: pool params: %v", err)
		}
		p = pool.New(registry, params, time.Now().Unix())
		log.Println("INFO: no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// Persist blocks (backpressure), projection and effects drop.
	persistChan := make(chan core.Output, cfg.Channels.PersistBuffer)
	projectionChan := make(chan core.Output, cfg.Channels.ProjectionBuffer)
	effectChan := make(chan pool.Effect, cfg.Channels.EffectBuffer)
	rawCommandChan := make(chan ingestion.RawCommand, cfg.Channels.CommandBuffer)

	// --- Engine ---
	dbChecker := persistence.NewPostgresDedupChecker(db)
	engine := core.NewEngine(p, startSequence, persistChan, projectionChan, effectChan, dbChecker, metrics)
	if snap != nil {
		engine.RestoreFromSnapshot(snap)
	}

	// --- Command replay from the log ---
	replayed, err := replayCommandLog(ctx, snapshotStore, engine, metrics)
	if err != nil {
		log.Fatalf("FATAL: command replay failed: %v", err)
	}
	if replayed > 0 {
		log.Printf("INFO: replayed %d commands (sequence now at %d)", replayed, engine.Sequence())
	}
	healthChecker.SetSubsystemReady("core", true)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}
	if err := ingestion.EnsureEffectStream(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure effect stream: %v", err)
	}

	subscriber := ingestion.NewNATSSubscriber(js, rawCommandChan)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatalf("FATAL: nats subscribe: %v", err)
	}
	healthChecker.SetSubsystemReady("nats", true)

	// --- Snapshot trigger (serialized with command processing) ---
	snapshotReqs := make(chan struct{}, 1)
	triggerSnapshot := func() {
		select {
		case snapshotReqs <- struct{}{}:
		default:
		}
	}

	// --- Services ---
	queryService := query.NewService(db, metrics)
	apiServer := server.New(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, cfg.Server.MetricsAddr, &server.Deps{
		DB:            db,
		QueryService:  queryService,
		JetStream:     js,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Snapshot:      triggerSnapshot,
		StartTime:     time.Now(),
	})

	// --- Scheduler ---
	sched := scheduler.NewScheduler(ctx, js, cfg.Pool.Treasury, triggerSnapshot)
	if err := sched.RegisterAll(cfg.Schedule.AccrualCron, cfg.Schedule.PotEpochCron, cfg.Schedule.SnapshotCron); err != nil {
		log.Fatalf("FATAL: register schedules: %v", err)
	}

	// --- Start goroutines ---
	errChan := make(chan error, 8)

	persistWorker := persistence.NewWorker(db, persistChan, persistBatchSize, persistFlushTimeout, metrics)
	go func() { errChan <- persistWorker.Run(ctx) }()

	projWorker := projection.NewWorker(db, projectionChan, metrics)
	go func() { errChan <- projWorker.Run(ctx) }()

	effectPublisher := ingestion.NewEffectPublisher(js, effectChan)
	go func() { errChan <- effectPublisher.Run(ctx) }()

	parser := ingestion.NewParser(registry)
	go runCommandLoop(ctx, rawCommandChan, snapshotReqs, parser, engine, snapshotStore, metrics)

	go func() { errChan <- apiServer.StartGRPC(ctx) }()
	go func() { errChan <- apiServer.StartHTTP(ctx) }()
	go func() { errChan <- apiServer.StartMetrics(ctx) }()

	go reportChannelDepths(ctx, metrics, persistChan, projectionChan, effectChan, rawCommandChan)

	sched.Start()

	log.Printf("INFO: StakePool ready (sequence=%d, grpc=%s, http=%s, metrics=%s)",
		engine.Sequence(), cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, cfg.Server.MetricsAddr)

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	sched.Stop()
	subscriber.Stop()
	cancel()

	// Final snapshot before exit
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := takeSnapshot(shutdownCtx, engine, snapshotStore, metrics); err != nil {
		log.Printf("ERROR: final snapshot failed: %v", err)
	} else {
		log.Println("INFO: final snapshot saved")
	}

	log.Println("INFO: StakePool shutdown complete")
}

// poolParams builds the genesis parameters from config.
func poolParams(cfg *config.Config, registry *coin.Registry) (pool.Params, error) {
	params := pool.Params{
		Owner:        pool.AccountID(cfg.Pool.Owner),
		Treasury:     pool.AccountID(cfg.Pool.Treasury),
		RewardWindow: cfg.Pool.RewardWindow,
	}

	for symbol, bps := range cfg.Pool.AprBps {
		slot, err := registry.SlotOf(symbol)
		if err != nil {
			return params, fmt.Errorf("apr_bps: %w", err)
		}
		params.AprBps[slot] = bps
	}
	for symbol, addr := range cfg.Pool.TokenAddresses {
		slot, err := registry.SlotOf(symbol)
		if err != nil {
			return params, fmt.Errorf("token_addresses: %w", err)
		}
		params.TokenAddresses[slot] = addr
	}

	emission, err := umath.ParseAmount(cfg.Farm.TotalEmission)
	if err != nil {
		return params, fmt.Errorf("farm.total_emission: %w", err)
	}
	tierSize, err := umath.ParseAmount(cfg.Farm.TierSize)
	if err != nil {
		return params, fmt.Errorf("farm.tier_size: %w", err)
	}

	params.Campaign = pool.CampaignConfig{
		StartTime:     cfg.Farm.StartTime,
		Duration:      cfg.Farm.Duration,
		TotalEmission: emission,
		BasePrice:     cfg.Farm.BasePrice,
		GrowthFactor:  cfg.Farm.GrowthFactor,
		TierSize:      tierSize,
	}
	return params, nil
}

// runCommandLoop is the single consumer of the engine. Commands and
// snapshot requests are serialized here, so nothing else ever touches
// the pool state.
func runCommandLoop(
	ctx context.Context,
	rawChan <-chan ingestion.RawCommand,
	snapshotReqs <-chan struct{},
	parser *ingestion.Parser,
	engine *core.Engine,
	store *persistence.SnapshotStore,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-snapshotReqs:
			if err := takeSnapshot(ctx, engine, store, metrics); err != nil {
				log.Printf("WARN: snapshot failed: %v", err)
			} else {
				log.Printf("INFO: snapshot saved at sequence %d", engine.Sequence()-1)
			}

		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			cmd, err := parser.Parse(raw)
			if err != nil {
				// Unparseable commands are acked so they don't redeliver
				log.Printf("WARN: parse command failed (subject=%s): %v", raw.Subject, err)
				raw.AckFunc()
				continue
			}

			if err := engine.Process(cmd); err != nil {
				// Rejections (dedup, sequence, validation) are final;
				// redelivery would hit the same outcome.
				log.Printf("WARN: command rejected (type=%s, key=%s): %v",
					cmd.CommandType(), cmd.IdempotencyKey(), err)
			}
			raw.AckFunc()
		}
	}
}

// replayCommandLog re-applies logged commands from the engine's current
// sequence to the head of the log, verifying the hash chain row by row.
func replayCommandLog(
	ctx context.Context,
	store *persistence.SnapshotStore,
	engine *core.Engine,
	metrics *observability.Metrics,
) (int64, error) {
	start := time.Now()
	from := engine.Sequence()
	var total int64

	for {
		rows, err := store.LoadCommandsFrom(ctx, from, replayBatchSize)
		if err != nil {
			return total, fmt.Errorf("load commands from seq %d: %w", from, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			cmdType, err := command.ParseType(row.CommandType)
			if err != nil {
				return total, fmt.Errorf("seq %d: %w", row.Sequence, err)
			}
			cmd, err := command.NewByType(cmdType)
			if err != nil {
				return total, fmt.Errorf("seq %d: %w", row.Sequence, err)
			}
			if err := json.Unmarshal(row.Payload, cmd); err != nil {
				return total, fmt.Errorf("decode payload at seq %d: %w", row.Sequence, err)
			}

			if err := engine.Replay(cmd); err != nil {
				return total, fmt.Errorf("replay seq %d: %w", row.Sequence, err)
			}
			total++

			var want [32]byte
			copy(want[:], row.StateHash)
			if engine.StateHash() != want {
				return total, fmt.Errorf("state hash mismatch at seq %d", row.Sequence)
			}
		}

		from = rows[len(rows)-1].Sequence + 1
	}

	if metrics != nil {
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	return total, nil
}

// takeSnapshot captures the in-memory state and persists it verified.
func takeSnapshot(
	ctx context.Context,
	engine *core.Engine,
	store *persistence.SnapshotStore,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	snap := engine.CreateSnapshotState()
	if err := store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Created from live state, so verified immediately
	if err := store.MarkVerified(ctx, snap.Sequence); err != nil {
		log.Printf("WARN: mark snapshot verified failed: %v", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	return nil
}

// reportChannelDepths samples channel utilization for the dashboards.
func reportChannelDepths(
	ctx context.Context,
	metrics *observability.Metrics,
	persistChan chan core.Output,
	projectionChan chan core.Output,
	effectChan chan pool.Effect,
	rawCommandChan chan ingestion.RawCommand,
) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
			metrics.SetChannelMetrics("projection", len(projectionChan), cap(projectionChan))
			metrics.SetChannelMetrics("effects", len(effectChan), cap(effectChan))
			metrics.SetChannelMetrics("commands", len(rawCommandChan), cap(rawCommandChan))
		}
	}
}
