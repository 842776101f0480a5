package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"StakePool/internal/core"
	"StakePool/internal/observability"
)

// Worker applies change sets to the projection tables. The projection
// channel is non-blocking with drop on the core side: a dropped or
// failed update only makes the read model stale, and Rebuild can
// reconstruct every table from the command log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.Output
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan core.Output, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
}

// Run starts the projection loop. Blocks until ctx is cancelled or the
// channel closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := w.apply(ctx, output); err != nil {
				w.logger.Warn().Int64("sequence", output.Envelope.Sequence).Err(err).
					Msg("projection update failed")
				// Eventually consistent; Rebuild recovers lost updates
			}
			w.lastSeq = output.Envelope.Sequence

			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.Observe(time.Since(start).Seconds())
				w.metrics.ProjectionSequence.Set(float64(w.lastSeq))
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, output core.Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence
	changes := output.Changes

	for _, u := range changes.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.user_balances
				(account, symbol, principal, reward, withdraw_reserve, deposit_time, as_of_sequence)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7)
			ON CONFLICT (account, symbol) DO UPDATE SET
				principal = EXCLUDED.principal,
				reward = EXCLUDED.reward,
				withdraw_reserve = EXCLUDED.withdraw_reserve,
				deposit_time = EXCLUDED.deposit_time,
				as_of_sequence = EXCLUDED.as_of_sequence
		`, string(u.Account), u.Symbol, u.Principal, u.Reward, u.WithdrawReserve, u.DepositTime, seq); err != nil {
			return fmt.Errorf("user balance projection: %w", err)
		}
	}

	for _, p := range changes.Pots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.pot_entries
				(account, symbol, amount, qualified_amount, as_of_sequence)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5)
			ON CONFLICT (account, symbol) DO UPDATE SET
				amount = EXCLUDED.amount,
				qualified_amount = EXCLUDED.qualified_amount,
				as_of_sequence = EXCLUDED.as_of_sequence
		`, string(p.Account), p.Symbol, p.Amount, p.QualifiedAmount, seq); err != nil {
			return fmt.Errorf("pot projection: %w", err)
		}
	}

	for _, account := range changes.PotRemovals {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM projections.pot_entries WHERE account = $1
		`, string(account)); err != nil {
			return fmt.Errorf("pot removal projection: %w", err)
		}
	}

	for _, f := range changes.Farms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.farm_accounts (account, amount, as_of_sequence)
			VALUES ($1, $2::numeric, $3)
			ON CONFLICT (account) DO UPDATE SET
				amount = EXCLUDED.amount,
				as_of_sequence = EXCLUDED.as_of_sequence
		`, string(f.Account), f.Amount, seq); err != nil {
			return fmt.Errorf("farm projection: %w", err)
		}
	}

	if c := changes.Campaign; c != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.campaign
				(id, start_time, duration, total_emission, total_farmed, unit_price, cumulative_usd, last_run, as_of_sequence)
			VALUES (TRUE, $1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				start_time = EXCLUDED.start_time,
				duration = EXCLUDED.duration,
				total_emission = EXCLUDED.total_emission,
				total_farmed = EXCLUDED.total_farmed,
				unit_price = EXCLUDED.unit_price,
				cumulative_usd = EXCLUDED.cumulative_usd,
				last_run = EXCLUDED.last_run,
				as_of_sequence = EXCLUDED.as_of_sequence
		`, c.StartTime, c.Duration, c.TotalEmission, c.TotalFarmed, c.UnitPrice, c.CumulativeUSD, c.LastRun, seq); err != nil {
			return fmt.Errorf("campaign projection: %w", err)
		}
	}

	for _, r := range changes.RewardTotals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.reward_totals (symbol, total, as_of_sequence)
			VALUES ($1, $2::numeric, $3)
			ON CONFLICT (symbol) DO UPDATE SET
				total = EXCLUDED.total,
				as_of_sequence = EXCLUDED.as_of_sequence
		`, r.Symbol, r.Total, seq); err != nil {
			return fmt.Errorf("reward total projection: %w", err)
		}
	}

	for _, h := range changes.History {
		amounts, err := json.Marshal(h.Amounts)
		if err != nil {
			return fmt.Errorf("marshal history amounts: %w", err)
		}
		rewards, err := json.Marshal(h.Rewards)
		if err != nil {
			return fmt.Errorf("marshal history rewards: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.amount_history (time, amounts, rewards, as_of_sequence)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (time) DO UPDATE SET
				amounts = EXCLUDED.amounts,
				rewards = EXCLUDED.rewards,
				as_of_sequence = EXCLUDED.as_of_sequence
		`, h.Time, string(amounts), string(rewards), seq); err != nil {
			return fmt.Errorf("history projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// Rebuild reconstructs every projection table by replaying the change
// sets stored in the command log.
func Rebuild(ctx context.Context, db *sql.DB, metrics *observability.Metrics, batchSize int) error {
	truncateStatements := []string{
		`TRUNCATE projections.user_balances`,
		`TRUNCATE projections.pot_entries`,
		`TRUNCATE projections.farm_accounts`,
		`TRUNCATE projections.campaign`,
		`TRUNCATE projections.reward_totals`,
		`TRUNCATE projections.amount_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	worker := NewWorker(db, nil, metrics)
	from := int64(0)
	for {
		outputs, err := loadOutputs(ctx, db, from, batchSize)
		if err != nil {
			return fmt.Errorf("load command log: %w", err)
		}
		if len(outputs) == 0 {
			break
		}
		for _, out := range outputs {
			if err := worker.apply(ctx, out); err != nil {
				return fmt.Errorf("replay seq=%d: %w", out.Envelope.Sequence, err)
			}
		}
		from = outputs[len(outputs)-1].Envelope.Sequence + 1
	}

	worker.logger.Info().Int64("last_sequence", from-1).Msg("projection rebuild complete")
	return nil
}

func loadOutputs(ctx context.Context, db *sql.DB, fromSequence int64, limit int) ([]core.Output, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sequence, state_delta
		FROM command_log.commands
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []core.Output
	for rows.Next() {
		var seq int64
		var delta []byte
		if err := rows.Scan(&seq, &delta); err != nil {
			return nil, err
		}
		out, err := core.OutputFromDelta(seq, delta)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}
