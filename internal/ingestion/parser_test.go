package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"StakePool/internal/coin"
	"StakePool/internal/command"
	"StakePool/internal/ingestion"
)

func rawFromJSON(t *testing.T, commandType string, v any) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:     "test",
		CommandType: commandType,
		Data:        data,
		Received:    time.Now(),
		AckFunc:     func() {},
		NakFunc:     func() {},
	}
}

func newParser() *ingestion.Parser {
	return ingestion.NewParser(coin.MustDefaultRegistry())
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]any{
		"deposit_id": "550e8400-e29b-41d4-a716-446655440000",
		"account":    "alice.near",
		"symbol":     "USDT",
		"amount":     "1000000",
		"qualified":  true,
		"sequence":   int64(7),
		"timestamp":  int64(1_700_000_000),
	}

	cmd, err := newParser().Parse(rawFromJSON(t, "Deposit", payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	dep, ok := cmd.(*command.Deposit)
	if !ok {
		t.Fatalf("expected *command.Deposit, got %T", cmd)
	}
	if dep.Account != "alice.near" {
		t.Errorf("account = %s", dep.Account)
	}
	if dep.Amount.Uint64() != 1_000_000 {
		t.Errorf("amount = %s, want 1000000", dep.Amount.Dec())
	}
	if !dep.Qualified {
		t.Error("qualified flag lost")
	}
	if dep.SourceSequence() != 7 {
		t.Errorf("sequence = %d, want 7", dep.SourceSequence())
	}
	if dep.UnixTime() != 1_700_000_000 {
		t.Errorf("timestamp = %d", dep.UnixTime())
	}
	if dep.CommandType() != command.TypeDeposit {
		t.Errorf("type = %v", dep.CommandType())
	}
}

func TestParseDeposit_RejectsBadAmount(t *testing.T) {
	payload := map[string]any{
		"deposit_id": "550e8400-e29b-41d4-a716-446655440000",
		"account":    "alice.near",
		"symbol":     "USDT",
		"amount":     "-5",
		"sequence":   int64(0),
		"timestamp":  int64(1_700_000_000),
	}
	if _, err := newParser().Parse(rawFromJSON(t, "Deposit", payload)); err == nil {
		t.Error("negative amount should be rejected at the shell")
	}
}

func TestParseWithdrawExecute_PricesBySymbol(t *testing.T) {
	payload := map[string]any{
		"request_id": "660e8400-e29b-41d4-a716-446655440001",
		"caller":     "treasury.near",
		"account":    "alice.near",
		"symbol":     "USDT",
		"amount":     "500",
		"prices": map[string]string{
			"USDT": "1",
			"NEAR": "3",
		},
		"sequence":  int64(3),
		"timestamp": int64(1_700_000_000),
	}

	cmd, err := newParser().Parse(rawFromJSON(t, "WithdrawExecute", payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	we, ok := cmd.(*command.WithdrawExecute)
	if !ok {
		t.Fatalf("expected *command.WithdrawExecute, got %T", cmd)
	}

	reg := coin.MustDefaultRegistry()
	usdt, _ := reg.SlotOf("USDT")
	near, _ := reg.SlotOf("NEAR")
	if we.Prices[usdt].Uint64() != 1 || we.Prices[near].Uint64() != 3 {
		t.Errorf("prices not mapped to slots: usdt=%s near=%s",
			we.Prices[usdt].Dec(), we.Prices[near].Dec())
	}
}

func TestParseWithdrawExecute_UnknownPriceSymbol(t *testing.T) {
	payload := map[string]any{
		"request_id": "660e8400-e29b-41d4-a716-446655440001",
		"caller":     "treasury.near",
		"account":    "alice.near",
		"symbol":     "USDT",
		"amount":     "500",
		"prices":     map[string]string{"DOGE": "1"},
		"sequence":   int64(0),
		"timestamp":  int64(1_700_000_000),
	}
	if _, err := newParser().Parse(rawFromJSON(t, "WithdrawExecute", payload)); err == nil {
		t.Error("unknown price symbol should be rejected")
	}
}

func TestParseRewardAccrual_SequenceIsTimestamp(t *testing.T) {
	payload := map[string]any{
		"tick_id":   "770e8400-e29b-41d4-a716-446655440002",
		"caller":    "treasury.near",
		"timestamp": int64(1_700_000_000),
	}

	cmd, err := newParser().Parse(rawFromJSON(t, "RewardAccrual", payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.SourceSequence() != 1_700_000_000 {
		t.Errorf("tick sequence = %d, want the timestamp", cmd.SourceSequence())
	}
	if cmd.AccountKey() != nil {
		t.Error("tick should be pool-wide")
	}
}

func TestParseConfigUpdate_OptionalFields(t *testing.T) {
	payload := map[string]any{
		"update_id": "880e8400-e29b-41d4-a716-446655440003",
		"caller":    "owner.near",
		"treasury":  "vault.near",
		"sequence":  int64(0),
		"timestamp": int64(1_700_000_000),
	}

	cmd, err := newParser().Parse(rawFromJSON(t, "ConfigUpdate", payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cu, ok := cmd.(*command.ConfigUpdate)
	if !ok {
		t.Fatalf("expected *command.ConfigUpdate, got %T", cmd)
	}
	if cu.Owner != nil {
		t.Error("owner should be unset")
	}
	if cu.Treasury == nil || *cu.Treasury != "vault.near" {
		t.Errorf("treasury = %v, want vault.near", cu.Treasury)
	}
}

func TestParse_UnknownCommandType(t *testing.T) {
	raw := ingestion.RawCommand{CommandType: "Liquidate", Data: []byte("{}")}
	if _, err := newParser().Parse(raw); err == nil {
		t.Error("unknown command type should fail")
	}
}
