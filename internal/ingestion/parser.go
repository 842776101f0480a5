package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"StakePool/internal/coin"
	"StakePool/internal/command"
	"StakePool/internal/pool"
	"StakePool/internal/umath"
)

// Parser converts raw JSON commands into typed commands. Amounts
// travel as decimal strings on the wire; the parser rejects anything
// that does not fit the unsigned amount domain before the core sees
// it.
type Parser struct {
	registry *coin.Registry
}

func NewParser(registry *coin.Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse converts a RawCommand into a typed command.Command.
func (p *Parser) Parse(raw RawCommand) (command.Command, error) {
	switch raw.CommandType {
	case "Deposit":
		return p.parseDeposit(raw.Data)
	case "WithdrawReserve":
		return p.parseWithdrawReserve(raw.Data)
	case "WithdrawExecute":
		return p.parseWithdrawExecute(raw.Data)
	case "RewardAccrual":
		return p.parseRewardAccrual(raw.Data)
	case "FarmEpoch":
		return p.parseFarmEpoch(raw.Data)
	case "PotEpoch":
		return p.parsePotEpoch(raw.Data)
	case "ConfigUpdate":
		return p.parseConfigUpdate(raw.Data)
	case "AprUpdate":
		return p.parseAprUpdate(raw.Data)
	case "TokenAddressUpdate":
		return p.parseTokenAddressUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", raw.CommandType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type depositJSON struct {
	DepositID string `json:"deposit_id"`
	Account   string `json:"account"`
	Symbol    string `json:"symbol"`
	Amount    string `json:"amount"`
	Qualified bool   `json:"qualified"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func (p *Parser) parseDeposit(data []byte) (*command.Deposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	amount, err := umath.ParseAmount(j.Amount)
	if err != nil {
		return nil, err
	}
	return &command.Deposit{
		DepositID: depositID,
		Account:   pool.AccountID(j.Account),
		Symbol:    j.Symbol,
		Amount:    amount,
		Qualified: j.Qualified,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type withdrawReserveJSON struct {
	RequestID string `json:"request_id"`
	Account   string `json:"account"`
	Symbol    string `json:"symbol"`
	Amount    string `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func (p *Parser) parseWithdrawReserve(data []byte) (*command.WithdrawReserve, error) {
	var j withdrawReserveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawReserve: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	amount, err := umath.ParseAmount(j.Amount)
	if err != nil {
		return nil, err
	}
	return &command.WithdrawReserve{
		RequestID: requestID,
		Account:   pool.AccountID(j.Account),
		Symbol:    j.Symbol,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type withdrawExecuteJSON struct {
	RequestID string            `json:"request_id"`
	Caller    string            `json:"caller"`
	Account   string            `json:"account"`
	Symbol    string            `json:"symbol"`
	Amount    string            `json:"amount"`
	Prices    map[string]string `json:"prices"`
	Sequence  int64             `json:"sequence"`
	Timestamp int64             `json:"timestamp"`
}

func (p *Parser) parseWithdrawExecute(data []byte) (*command.WithdrawExecute, error) {
	var j withdrawExecuteJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawExecute: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	amount, err := umath.ParseAmount(j.Amount)
	if err != nil {
		return nil, err
	}
	prices, err := p.parsePrices(j.Prices)
	if err != nil {
		return nil, err
	}
	return &command.WithdrawExecute{
		RequestID: requestID,
		Caller:    pool.AccountID(j.Caller),
		Account:   pool.AccountID(j.Account),
		Symbol:    j.Symbol,
		Amount:    amount,
		Prices:    prices,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type tickJSON struct {
	TickID    string `json:"tick_id"`
	Caller    string `json:"caller"`
	Timestamp int64  `json:"timestamp"`
}

func (p *Parser) parseRewardAccrual(data []byte) (*command.RewardAccrual, error) {
	var j tickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RewardAccrual: %w", err)
	}
	tickID, err := uuid.Parse(j.TickID)
	if err != nil {
		return nil, fmt.Errorf("parse tick_id: %w", err)
	}
	return &command.RewardAccrual{
		TickID:    tickID,
		Caller:    pool.AccountID(j.Caller),
		Sequence:  j.Timestamp,
		Timestamp: j.Timestamp,
	}, nil
}

type farmEpochJSON struct {
	EpochID   string            `json:"epoch_id"`
	Caller    string            `json:"caller"`
	Prices    map[string]string `json:"prices"`
	Timestamp int64             `json:"timestamp"`
}

func (p *Parser) parseFarmEpoch(data []byte) (*command.FarmEpoch, error) {
	var j farmEpochJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FarmEpoch: %w", err)
	}
	epochID, err := uuid.Parse(j.EpochID)
	if err != nil {
		return nil, fmt.Errorf("parse epoch_id: %w", err)
	}
	prices, err := p.parsePrices(j.Prices)
	if err != nil {
		return nil, err
	}
	return &command.FarmEpoch{
		EpochID:   epochID,
		Caller:    pool.AccountID(j.Caller),
		Prices:    prices,
		Sequence:  j.Timestamp,
		Timestamp: j.Timestamp,
	}, nil
}

type potEpochJSON struct {
	EpochID   string `json:"epoch_id"`
	Caller    string `json:"caller"`
	Timestamp int64  `json:"timestamp"`
}

func (p *Parser) parsePotEpoch(data []byte) (*command.PotEpoch, error) {
	var j potEpochJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PotEpoch: %w", err)
	}
	epochID, err := uuid.Parse(j.EpochID)
	if err != nil {
		return nil, fmt.Errorf("parse epoch_id: %w", err)
	}
	return &command.PotEpoch{
		EpochID:   epochID,
		Caller:    pool.AccountID(j.Caller),
		Sequence:  j.Timestamp,
		Timestamp: j.Timestamp,
	}, nil
}

type configUpdateJSON struct {
	UpdateID  string  `json:"update_id"`
	Caller    string  `json:"caller"`
	Owner     *string `json:"owner,omitempty"`
	Treasury  *string `json:"treasury,omitempty"`
	Sequence  int64   `json:"sequence"`
	Timestamp int64   `json:"timestamp"`
}

func (p *Parser) parseConfigUpdate(data []byte) (*command.ConfigUpdate, error) {
	var j configUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConfigUpdate: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	cmd := &command.ConfigUpdate{
		UpdateID:  updateID,
		Caller:    pool.AccountID(j.Caller),
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}
	if j.Owner != nil {
		owner := pool.AccountID(*j.Owner)
		cmd.Owner = &owner
	}
	if j.Treasury != nil {
		treasury := pool.AccountID(*j.Treasury)
		cmd.Treasury = &treasury
	}
	return cmd, nil
}

type aprUpdateJSON struct {
	UpdateID  string `json:"update_id"`
	Caller    string `json:"caller"`
	Symbol    string `json:"symbol"`
	AprBps    uint16 `json:"apr_bps"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func (p *Parser) parseAprUpdate(data []byte) (*command.AprUpdate, error) {
	var j aprUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AprUpdate: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	return &command.AprUpdate{
		UpdateID:  updateID,
		Caller:    pool.AccountID(j.Caller),
		Symbol:    j.Symbol,
		AprBps:    j.AprBps,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type tokenAddressJSON struct {
	UpdateID  string `json:"update_id"`
	Caller    string `json:"caller"`
	Symbol    string `json:"symbol"`
	Address   string `json:"address"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func (p *Parser) parseTokenAddressUpdate(data []byte) (*command.TokenAddressUpdate, error) {
	var j tokenAddressJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TokenAddressUpdate: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	return &command.TokenAddressUpdate{
		UpdateID:  updateID,
		Caller:    pool.AccountID(j.Caller),
		Symbol:    j.Symbol,
		Address:   j.Address,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

// parsePrices converts a symbol-keyed price map into the slot-ordered
// vector the core consumes. Unknown symbols are rejected so a typo in
// a price feed cannot silently zero a coin's weight.
func (p *Parser) parsePrices(raw map[string]string) (*pool.PriceVector, error) {
	prices := &pool.PriceVector{}
	for symbol, value := range raw {
		slot, err := p.registry.SlotOf(symbol)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", symbol, err)
		}
		v, err := umath.ParseAmount(value)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", symbol, err)
		}
		prices[slot] = *v
	}
	return prices, nil
}
