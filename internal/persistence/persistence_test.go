package persistence_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StakePool/internal/command"
	"StakePool/internal/core"
	"StakePool/internal/persistence"
	"StakePool/internal/pool"
	"StakePool/internal/testutil"
)

func sampleOutput(sequence int64) core.Output {
	account := "alice.near"
	return core.Output{
		Envelope: &command.Envelope{
			Sequence:       sequence,
			IdempotencyKey: uuid.NewString(),
			CommandType:    command.TypeDeposit,
			Account:        &account,
			Timestamp:      1_700_000_000,
			SourceSequence: sequence,
		},
		Effects: []pool.Effect{
			{
				EffectID: uuid.New(),
				Type:     pool.EffectTransfer,
				To:       "treasury.near",
				Symbol:   "USDT",
				Amount:   *uint256.NewInt(1_000_000),
			},
		},
		StateDelta: []byte(`{"Users":null,"Pots":null,"PotRemovals":null,"Farms":null,"Campaign":null,"RewardTotals":null,"History":null}`),
		Payload:    []byte(`{"DepositID":"00000000-0000-0000-0000-000000000000"}`),
	}
}

func TestCommandLogRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewCommandLogWriter(db)
	out := sampleOutput(0)
	cmd, effects := persistence.RowsFromOutput(out)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := writer.WriteCommandBatch(ctx, tx, []persistence.CommandRow{cmd}); err != nil {
		t.Fatalf("write commands: %v", err)
	}
	if err := writer.WriteEffectBatch(ctx, tx, effects); err != nil {
		t.Fatalf("write effects: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	store := persistence.NewSnapshotStore(db)
	seq, err := store.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if seq != 0 {
		t.Errorf("latest sequence = %d, want 0", seq)
	}

	rows, err := store.LoadCommandsFrom(ctx, 0, 10)
	if err != nil {
		t.Fatalf("load commands: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("loaded %d rows, want 1", len(rows))
	}
	if rows[0].IdempotencyKey != cmd.IdempotencyKey {
		t.Errorf("idempotency key = %s, want %s", rows[0].IdempotencyKey, cmd.IdempotencyKey)
	}
	if rows[0].Account == nil || *rows[0].Account != "alice.near" {
		t.Errorf("account = %v, want alice.near", rows[0].Account)
	}
}

func TestWriteCommandBatch_IdempotentOnReplay(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewCommandLogWriter(db)
	cmd, effects := persistence.RowsFromOutput(sampleOutput(0))

	for i := 0; i < 2; i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		if err := writer.WriteCommandBatch(ctx, tx, []persistence.CommandRow{cmd}); err != nil {
			t.Fatalf("write commands attempt %d: %v", i, err)
		}
		if err := writer.WriteEffectBatch(ctx, tx, effects); err != nil {
			t.Fatalf("write effects attempt %d: %v", i, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit attempt %d: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM command_log.commands`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("command count = %d, want 1 after replay", count)
	}
}

func TestPostgresDedupChecker(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewCommandLogWriter(db)
	cmd, _ := persistence.RowsFromOutput(sampleOutput(0))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := writer.WriteCommandBatch(ctx, tx, []persistence.CommandRow{cmd}); err != nil {
		t.Fatalf("write commands: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	checker := persistence.NewPostgresDedupChecker(db)

	dup, err := checker.IsDuplicate(cmd.CommandType, cmd.IdempotencyKey)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if !dup {
		t.Error("persisted command not detected as duplicate")
	}

	dup, err = checker.IsDuplicate(cmd.CommandType, uuid.NewString())
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if dup {
		t.Error("unseen key reported as duplicate")
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := persistence.NewSnapshotStore(db)

	snap := &core.SnapshotState{
		Sequence:   41,
		Partitions: map[string]int64{"account:alice.near": 3},
		DedupKeys:  []string{"Deposit:" + uuid.NewString()},
	}

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Unverified snapshots are not restore candidates
	loaded, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatal("unverified snapshot should not load")
	}

	if err := store.MarkVerified(ctx, 41); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	loaded, err = store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("verified snapshot should load")
	}
	if loaded.Sequence != 41 {
		t.Errorf("sequence = %d, want 41", loaded.Sequence)
	}
	if loaded.Partitions["account:alice.near"] != 3 {
		t.Errorf("partition cursor = %d, want 3", loaded.Partitions["account:alice.near"])
	}
}
