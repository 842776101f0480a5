package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"StakePool/internal/command"
	"StakePool/internal/observability"
	"StakePool/internal/pool"
)

// Output is what the core emits per applied command: the envelope for
// the command log, the outbound effects, the state delta, and the
// typed command payload used for replay.
type Output struct {
	Envelope   *command.Envelope
	Effects    []pool.Effect
	Changes    *pool.ChangeSet
	StateDelta []byte
	Payload    []byte
}

// Engine is the single-threaded deterministic command processor. All
// state transitions flow through Process; the pool is never touched
// from any other goroutine.
type Engine struct {
	sequence  int64
	hasher    *StateHasher
	pool      *pool.Pool
	deduper   *Deduper
	validator *SequenceValidator
	metrics   *observability.Metrics

	persistChan    chan<- Output
	projectionChan chan<- Output
	effectChan     chan<- pool.Effect
}

func NewEngine(
	p *pool.Pool,
	startSequence int64,
	persistChan, projectionChan chan<- Output,
	effectChan chan<- pool.Effect,
	dbChecker DBDedupChecker,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		sequence:       startSequence,
		hasher:         NewStateHasher(),
		pool:           p,
		deduper:        NewDeduper(1_000_000, dbChecker, metrics),
		validator:      NewSequenceValidator(metrics),
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
		effectChan:     effectChan,
	}
}

// Process runs one command through the full pipeline: dedup, sequence
// validation, dispatch into the pool, envelope and hash, emit.
func (e *Engine) Process(cmd command.Command) error {
	start := time.Now()
	cmdType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()

	isDuplicate := e.deduper.IsDuplicate(cmdType, idempotencyKey)

	partition := partitionOf(cmd)
	if isTick(cmd) {
		if err := e.validator.ValidateTick(partition, cmd.SourceSequence()); err != nil {
			return err
		}
	} else {
		if err := e.validator.Validate(partition, cmd.SourceSequence(), isDuplicate); err != nil {
			e.reject(cmdType, "sequence")
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		e.reject(cmdType, "duplicate")
		return nil
	}

	applied, err := e.dispatch(cmd)
	if err != nil {
		e.reject(cmdType, "validation")
		return fmt.Errorf("dispatch %s: %w", cmdType, err)
	}

	stateDigest := computeStateDigest(applied.Changes)
	prevHash := e.hasher.PrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)

	envelope := &command.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: idempotencyKey,
		CommandType:    cmd.CommandType(),
		Account:        cmd.AccountKey(),
		Timestamp:      cmd.UnixTime(),
		SourceSequence: cmd.SourceSequence(),
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := Output{
		Envelope:   envelope,
		Effects:    applied.Effects,
		Changes:    applied.Changes,
		StateDelta: stateDigest,
		Payload:    marshalCommand(cmd),
	}

	// Persistence is a blocking send: the core stalls until the
	// persistence worker drains, so no applied command is ever lost.
	e.persistChan <- output

	// Projections are best-effort: drop on full, the workers catch up
	// from the command log.
	select {
	case e.projectionChan <- output:
	default:
		if e.metrics != nil {
			e.metrics.ProjectionDrops.Inc()
		}
	}

	// Effects are durable via the persist path; the live publish is
	// best-effort too.
	if e.effectChan != nil {
		for _, effect := range applied.Effects {
			select {
			case e.effectChan <- effect:
			default:
				if e.metrics != nil {
					e.metrics.EffectPublishDrops.Inc()
				}
			}
		}
	}

	e.sequence++
	e.deduper.MarkProcessed(cmdType, idempotencyKey)
	e.recordMetrics(cmd, applied, cmdType, start)
	return nil
}

func (e *Engine) dispatch(cmd command.Command) (*pool.Applied, error) {
	switch c := cmd.(type) {
	case *command.Deposit:
		return e.pool.Deposit(c.Account, c.Symbol, c.Amount, c.Qualified, c.Timestamp)
	case *command.WithdrawReserve:
		return e.pool.ReserveWithdraw(c.Account, c.Symbol, c.Amount)
	case *command.WithdrawExecute:
		return e.pool.Withdraw(c.Caller, c.Account, c.Symbol, c.Amount, pricesOrEmpty(c.Prices), c.Timestamp)
	case *command.RewardAccrual:
		return e.pool.AccrueRewards(c.Caller, c.Timestamp)
	case *command.FarmEpoch:
		return e.pool.RunFarmEpoch(c.Caller, pricesOrEmpty(c.Prices), c.Timestamp)
	case *command.PotEpoch:
		return e.pool.ProcessPotEpoch(c.Caller)
	case *command.ConfigUpdate:
		return e.pool.SetConfig(c.Caller, c.Owner, c.Treasury)
	case *command.AprUpdate:
		return e.pool.SetApr(c.Caller, c.Symbol, c.AprBps, c.Timestamp)
	case *command.TokenAddressUpdate:
		return e.pool.SetTokenAddress(c.Caller, c.Symbol, c.Address)
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

func (e *Engine) reject(cmdType, reason string) {
	if e.metrics != nil {
		e.metrics.CommandsRejected.WithLabelValues(cmdType, reason).Inc()
	}
}

func (e *Engine) recordMetrics(cmd command.Command, applied *pool.Applied, cmdType string, start time.Time) {
	if e.metrics == nil {
		return
	}

	e.metrics.CommandsApplied.WithLabelValues(cmdType).Inc()
	e.metrics.CommandDuration.WithLabelValues(cmdType).Observe(time.Since(start).Seconds())
	e.metrics.CoreSequence.Set(float64(e.sequence))

	switch cmd.(type) {
	case *command.RewardAccrual:
		e.metrics.AccrualAccountsSwept.Observe(float64(len(applied.Changes.Users)))
	case *command.FarmEpoch:
		if applied.Changes.Campaign != nil {
			e.metrics.FarmEpochsRun.Inc()
			if v, err := strconv.ParseFloat(applied.Changes.Campaign.UnitPrice, 64); err == nil {
				e.metrics.FarmUnitPrice.Set(v)
			}
			if v, err := strconv.ParseFloat(applied.Changes.Campaign.TotalFarmed, 64); err == nil {
				e.metrics.FarmTotalFarmed.Set(v)
			}
		}
	case *command.PotEpoch:
		e.metrics.PotRowsCollected.Add(float64(len(applied.Changes.PotRemovals)))
	}
}

// partitionOf determines the partition key for sequence validation.
func partitionOf(cmd command.Command) string {
	if acct := cmd.AccountKey(); acct != nil {
		return "account:" + *acct
	}
	return "global"
}

// isTick reports whether the command is a schedule-driven tick whose
// source sequence is a timestamp rather than a dense counter.
func isTick(cmd command.Command) bool {
	switch cmd.(type) {
	case *command.RewardAccrual, *command.FarmEpoch, *command.PotEpoch:
		return true
	}
	return false
}

func pricesOrEmpty(p *pool.PriceVector) *pool.PriceVector {
	if p == nil {
		return &pool.PriceVector{}
	}
	return p
}

// computeStateDigest builds the canonical bytes hashed into the state
// chain. The change set is already in deterministic order with amounts
// as decimal strings, so its JSON encoding is canonical.
func computeStateDigest(changes *pool.ChangeSet) []byte {
	digest, err := json.Marshal(changes)
	if err != nil {
		panic(fmt.Sprintf("FATAL: change set not serializable: %v", err))
	}
	return digest
}

// Replay re-applies a logged command during warm restart. Dedup is
// skipped on purpose: every replayed command is by definition already
// in the command log, and the DB checker would veto all of them. The
// caller verifies the resulting hash chain tip against the log.
func (e *Engine) Replay(cmd command.Command) error {
	partition := partitionOf(cmd)
	if isTick(cmd) {
		if err := e.validator.ValidateTick(partition, cmd.SourceSequence()); err != nil {
			return err
		}
	} else {
		e.validator.RestorePartition(partition, cmd.SourceSequence()+1)
	}

	applied, err := e.dispatch(cmd)
	if err != nil {
		return fmt.Errorf("replay dispatch %s: %w", cmd.CommandType(), err)
	}

	e.hasher.ComputeHash(e.sequence, computeStateDigest(applied.Changes))
	e.sequence++
	e.deduper.MarkProcessed(cmd.CommandType().String(), cmd.IdempotencyKey())

	if e.metrics != nil {
		e.metrics.ReplayCommands.Inc()
	}
	return nil
}

// marshalCommand serializes the typed command for the log's replay
// column. Command structs round-trip through encoding/json.
func marshalCommand(cmd command.Command) []byte {
	data, err := json.Marshal(cmd)
	if err != nil {
		panic(fmt.Sprintf("FATAL: command not serializable: %v", err))
	}
	return data
}

// OutputFromDelta reconstructs a projection-grade output from a stored
// state delta. Only the sequence and change set are recovered; effects
// and envelope metadata stay in their own columns.
func OutputFromDelta(sequence int64, delta []byte) (Output, error) {
	var changes pool.ChangeSet
	if err := json.Unmarshal(delta, &changes); err != nil {
		return Output{}, fmt.Errorf("decode state delta at seq=%d: %w", sequence, err)
	}
	return Output{
		Envelope: &command.Envelope{Sequence: sequence},
		Changes:  &changes,
	}, nil
}

// --- Snapshot restore and startup ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence   int64             `json:"sequence"`
	StateHash  [32]byte          `json:"state_hash"`
	Pool       *pool.Snapshot    `json:"pool"`
	Partitions map[string]int64  `json:"partitions"`
	DedupKeys  []string          `json:"dedup_keys"`
}

// RestoreFromSnapshot restores the engine's in-memory state. The pool
// itself is restored by the caller (it needs the coin registry) and
// handed to NewEngine; this restores the bookkeeping around it.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	e.sequence = snap.Sequence + 1
	e.hasher.SetPrevHash(snap.StateHash)
	for partition, next := range snap.Partitions {
		e.validator.RestorePartition(partition, next)
	}
	e.deduper.Warm(snap.DedupKeys)
}

// CreateSnapshotState captures the current in-memory state.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:   e.sequence - 1,
		StateHash:  e.hasher.PrevHash(),
		Pool:       e.pool.Snapshot(),
		Partitions: e.validator.Partitions(),
		DedupKeys:  e.deduper.Keys(),
	}
}

// Sequence returns the next sequence to assign.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// StateHash returns the current chain tip.
func (e *Engine) StateHash() [32]byte {
	return e.hasher.PrevHash()
}

// Pool exposes the live pool for read-only startup wiring.
func (e *Engine) Pool() *pool.Pool {
	return e.pool
}
