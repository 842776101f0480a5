package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"StakePool/internal/observability"
)

// Service provides read-only access to the projection tables. Every
// response carries as_of_sequence so callers can reason about
// freshness against the core sequence.
type Service struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{db: db, metrics: metrics}
}

// GetStatus returns all balance rows plus the farm balance for one
// account.
func (s *Service) GetStatus(ctx context.Context, account string) (*StatusResponse, error) {
	defer s.observe("status", time.Now())

	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, principal::text, reward::text, withdraw_reserve::text, deposit_time
		FROM projections.user_balances
		WHERE account = $1
		ORDER BY symbol
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &StatusResponse{
		Account:      account,
		FarmAmount:   "0",
		AsOfSequence: asOfSeq,
	}
	for rows.Next() {
		var b BalanceEntry
		if err := rows.Scan(&b.Symbol, &b.Principal, &b.Reward, &b.WithdrawReserve, &b.DepositTime); err != nil {
			return nil, err
		}
		resp.Balances = append(resp.Balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var farm string
	err = s.db.QueryRowContext(ctx, `
		SELECT amount::text FROM projections.farm_accounts WHERE account = $1
	`, account).Scan(&farm)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err == nil {
		resp.FarmAmount = farm
	}

	return resp, nil
}

// GetPot returns the account's pot entries.
func (s *Service) GetPot(ctx context.Context, account string) (*PotResponse, error) {
	defer s.observe("pot", time.Now())

	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, amount::text, qualified_amount::text
		FROM projections.pot_entries
		WHERE account = $1
		ORDER BY symbol
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &PotResponse{Account: account, AsOfSequence: asOfSeq}
	for rows.Next() {
		var e PotEntryResponse
		if err := rows.Scan(&e.Symbol, &e.Amount, &e.QualifiedAmount); err != nil {
			return nil, err
		}
		resp.Entries = append(resp.Entries, e)
	}
	return resp, rows.Err()
}

// GetFarm returns the campaign state with the account's farm balance.
func (s *Service) GetFarm(ctx context.Context, account string) (*FarmResponse, error) {
	defer s.observe("farm", time.Now())

	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &FarmResponse{
		Account:       account,
		Amount:        "0",
		TotalEmission: "0",
		TotalFarmed:   "0",
		UnitPrice:     "0",
		CumulativeUSD: "0",
		AsOfSequence:  asOfSeq,
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT start_time, duration, total_emission::text, total_farmed::text,
		       unit_price::text, cumulative_usd::text, last_run
		FROM projections.campaign
	`).Scan(&resp.StartTime, &resp.Duration, &resp.TotalEmission, &resp.TotalFarmed,
		&resp.UnitPrice, &resp.CumulativeUSD, &resp.LastRun)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	var amount string
	err = s.db.QueryRowContext(ctx, `
		SELECT amount::text FROM projections.farm_accounts WHERE account = $1
	`, account).Scan(&amount)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err == nil {
		resp.Amount = amount
	}

	return resp, nil
}

// GetHistory returns the pool-wide amount history, newest first.
func (s *Service) GetHistory(ctx context.Context, limit int) (*HistoryResponse, error) {
	defer s.observe("history", time.Now())

	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT time, amounts, rewards
		FROM projections.amount_history
		ORDER BY time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &HistoryResponse{AsOfSequence: asOfSeq}
	for rows.Next() {
		var sample HistorySample
		var amounts, rewards []byte
		if err := rows.Scan(&sample.Time, &amounts, &rewards); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(amounts, &sample.Amounts); err != nil {
			return nil, fmt.Errorf("decode history amounts: %w", err)
		}
		if err := json.Unmarshal(rewards, &sample.Rewards); err != nil {
			return nil, fmt.Errorf("decode history rewards: %w", err)
		}
		resp.Samples = append(resp.Samples, sample)
	}
	return resp, rows.Err()
}

// GetRewardTotals returns the cumulative rewards paid per coin.
func (s *Service) GetRewardTotals(ctx context.Context) (*RewardTotalsResponse, error) {
	defer s.observe("reward_totals", time.Now())

	asOfSeq, err := s.watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, total::text
		FROM projections.reward_totals
		ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &RewardTotalsResponse{AsOfSequence: asOfSeq}
	for rows.Next() {
		var e RewardTotalEntry
		if err := rows.Scan(&e.Symbol, &e.Total); err != nil {
			return nil, err
		}
		resp.Totals = append(resp.Totals, e)
	}
	return resp, rows.Err()
}

// VerifyIntegrity checks hash chain continuity across the command log.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer s.observe("integrity", time.Now())

	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c1.sequence
		FROM command_log.commands c1
		LEFT JOIN command_log.commands c2 ON c2.sequence = c1.sequence - 1
		WHERE c1.sequence > 0 AND c1.prev_hash != COALESCE(c2.state_hash, c1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM command_log.commands
	`).Scan(&latest); err != nil {
		return nil, err
	}
	if latest.Valid {
		report.LatestSequence = latest.Int64
	} else {
		report.LatestSequence = -1
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

func (s *Service) watermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (s *Service) observe(endpoint string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
