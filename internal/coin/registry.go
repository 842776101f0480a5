package coin

import (
	"errors"
	"fmt"
)

// NumCoins is the fixed number of supported coin slots.
const NumCoins = 7

// ErrUnknownCoin is returned when a symbol is outside the fixed coin set.
var ErrUnknownCoin = errors.New("unknown coin")

// Slot is the fixed array index assigned to one supported coin.
type Slot uint8

// Definition describes one supported coin.
type Definition struct {
	Symbol   string
	Decimals uint32
}

// Registry maps coin symbols to slot indexes and decimal precision.
// It is immutable after construction; all public symbol-keyed calls
// are translated through it into slot-indexed internal operations.
type Registry struct {
	defs  [NumCoins]Definition
	slots map[string]Slot
}

// NewRegistry builds a registry from exactly NumCoins definitions.
func NewRegistry(defs []Definition) (*Registry, error) {
	if len(defs) != NumCoins {
		return nil, fmt.Errorf("registry requires %d coins, got %d", NumCoins, len(defs))
	}

	r := &Registry{slots: make(map[string]Slot, NumCoins)}
	for i, d := range defs {
		if d.Symbol == "" {
			return nil, fmt.Errorf("coin slot %d has empty symbol", i)
		}
		if _, dup := r.slots[d.Symbol]; dup {
			return nil, fmt.Errorf("duplicate coin symbol %q", d.Symbol)
		}
		r.defs[i] = d
		r.slots[d.Symbol] = Slot(i)
	}
	return r, nil
}

// DefaultDefinitions returns the deployment's standard coin set.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Symbol: "NEAR", Decimals: 24},
		{Symbol: "USDT", Decimals: 6},
		{Symbol: "USDC", Decimals: 6},
		{Symbol: "BTC", Decimals: 8},
		{Symbol: "ETH", Decimals: 18},
		{Symbol: "SOL", Decimals: 9},
		{Symbol: "AURORA", Decimals: 18},
	}
}

// MustDefaultRegistry builds the default registry. Panics only on a
// broken built-in table, never on user input.
func MustDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return r
}

// SlotOf resolves a symbol to its slot index.
func (r *Registry) SlotOf(symbol string) (Slot, error) {
	slot, ok := r.slots[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCoin, symbol)
	}
	return slot, nil
}

// DecimalsOf returns the decimal precision for a valid slot.
func (r *Registry) DecimalsOf(slot Slot) uint32 {
	return r.defs[slot].Decimals
}

// SymbolOf returns the canonical symbol for a valid slot.
func (r *Registry) SymbolOf(slot Slot) string {
	return r.defs[slot].Symbol
}

// Symbols returns all symbols in slot order.
func (r *Registry) Symbols() [NumCoins]string {
	var out [NumCoins]string
	for i, d := range r.defs {
		out[i] = d.Symbol
	}
	return out
}
