package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"StakePool/internal/core"
)

// CommandLogWriter writes applied commands and their effects to
// Postgres using multi-row INSERT with ON CONFLICT DO NOTHING, so a
// replayed batch after a crash is harmless.
type CommandLogWriter struct {
	db *sql.DB
}

// CommandRow is a row in command_log.commands.
type CommandRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	Account        *string
	Payload        []byte
	StateDelta     []byte
	StateHash      []byte
	PrevHash       []byte
	Timestamp      int64
	SourceSequence int64
}

// EffectRow is a row in command_log.effects.
type EffectRow struct {
	EffectID     string
	Sequence     int64
	EffectType   string
	ToAccount    string
	Symbol       string
	TokenAddress string
	Method       string
	Amount       string
	Timestamp    int64
}

func NewCommandLogWriter(db *sql.DB) *CommandLogWriter {
	return &CommandLogWriter{db: db}
}

// RowsFromOutput converts one core output into its command row plus
// effect rows.
func RowsFromOutput(out core.Output) (CommandRow, []EffectRow) {
	env := out.Envelope
	cmd := CommandRow{
		Sequence:       env.Sequence,
		CommandType:    env.CommandType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Account:        env.Account,
		Payload:        out.Payload,
		StateDelta:     out.StateDelta,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
		SourceSequence: env.SourceSequence,
	}

	effects := make([]EffectRow, 0, len(out.Effects))
	for _, e := range out.Effects {
		effects = append(effects, EffectRow{
			EffectID:     e.EffectID.String(),
			Sequence:     env.Sequence,
			EffectType:   e.Type.String(),
			ToAccount:    string(e.To),
			Symbol:       e.Symbol,
			TokenAddress: e.TokenAddress,
			Method:       e.Method,
			Amount:       e.Amount.Dec(),
			Timestamp:    env.Timestamp,
		})
	}
	return cmd, effects
}

// WriteCommandBatch inserts a batch of command rows inside tx.
func (w *CommandLogWriter) WriteCommandBatch(ctx context.Context, tx *sql.Tx, commands []CommandRow) error {
	if len(commands) == 0 {
		return nil
	}

	query := `INSERT INTO command_log.commands
		(sequence, command_type, idempotency_key, account, payload, state_delta, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(commands))
	args := make([]interface{}, 0, len(commands)*10)

	for i, c := range commands {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		// payload and state_delta are JSONB; lib/pq must see them as
		// text, not bytea
		args = append(args,
			c.Sequence, c.CommandType, c.IdempotencyKey, c.Account,
			string(c.Payload), string(c.StateDelta), c.StateHash, c.PrevHash, c.Timestamp, c.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteEffectBatch inserts a batch of effect rows inside tx.
func (w *CommandLogWriter) WriteEffectBatch(ctx context.Context, tx *sql.Tx, effects []EffectRow) error {
	if len(effects) == 0 {
		return nil
	}

	query := `INSERT INTO command_log.effects
		(effect_id, sequence, effect_type, to_account, symbol, token_address, method, amount, timestamp)
		VALUES `

	values := make([]string, 0, len(effects))
	args := make([]interface{}, 0, len(effects)*9)

	for i, e := range effects {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.EffectID, e.Sequence, e.EffectType, e.ToAccount,
			e.Symbol, e.TokenAddress, e.Method, e.Amount, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (effect_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
