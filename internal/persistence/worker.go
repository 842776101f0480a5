package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"StakePool/internal/core"
	"StakePool/internal/observability"
)

// Worker drains the persist channel and batch-writes the command log.
// The core uses BLOCKING sends on this channel: if the worker falls
// behind, the core stalls rather than lose an applied command.
type Worker struct {
	writer       *CommandLogWriter
	db           *sql.DB
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewCommandLogWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled or the channel
// closes; remaining rows are flushed on the way out.
func (w *Worker) Run(ctx context.Context) error {
	commandBatch := make([]CommandRow, 0, w.batchSize)
	effectBatch := make([]EffectRow, 0, w.batchSize*2)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(commandBatch) > 0 {
				if err := w.flush(context.Background(), commandBatch, effectBatch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				if len(commandBatch) > 0 {
					if err := w.flush(context.Background(), commandBatch, effectBatch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			cmd, effects := RowsFromOutput(output)
			commandBatch = append(commandBatch, cmd)
			effectBatch = append(effectBatch, effects...)

			if len(commandBatch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, commandBatch, effectBatch); err != nil {
					log.Printf("ERROR: batch flush failed: %v", err)
				}
				commandBatch = commandBatch[:0]
				effectBatch = effectBatch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(commandBatch) > 0 {
				if err := w.flushWithRetry(ctx, commandBatch, effectBatch); err != nil {
					log.Printf("ERROR: timeout flush failed: %v", err)
				}
				commandBatch = commandBatch[:0]
				effectBatch = effectBatch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never
// drops an applied command: it retries until the write lands or the
// context is cancelled, in which case it makes one final attempt with
// a background context.
func (w *Worker) flushWithRetry(ctx context.Context, commands []CommandRow, effects []EffectRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, commands=%d)",
				attempt, backoff, len(commands))
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), commands, effects); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, commands, effects)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, commands []CommandRow, effects []EffectRow) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteCommandBatch(ctx, tx, commands); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_commands").Inc()
		}
		return err
	}

	if err := w.writer.WriteEffectBatch(ctx, tx, effects); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_effects").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(commands)))
		w.metrics.PersistCommandsWritten.Add(float64(len(commands)))
		w.metrics.PersistEffectsWritten.Add(float64(len(effects)))
		if len(commands) > 0 {
			w.metrics.PersistLastSequence.Set(float64(commands[len(commands)-1].Sequence))
		}
	}

	return nil
}
