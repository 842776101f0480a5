package coin_test

import (
	"errors"
	"testing"

	"StakePool/internal/coin"
)

func TestNewRegistry_WrongCount(t *testing.T) {
	_, err := coin.NewRegistry([]coin.Definition{{Symbol: "NEAR", Decimals: 24}})
	if err == nil {
		t.Fatal("registry with too few coins should fail")
	}
}

func TestNewRegistry_DuplicateSymbol(t *testing.T) {
	defs := coin.DefaultDefinitions()
	defs[1].Symbol = defs[0].Symbol
	if _, err := coin.NewRegistry(defs); err == nil {
		t.Fatal("duplicate symbols should fail")
	}
}

func TestNewRegistry_EmptySymbol(t *testing.T) {
	defs := coin.DefaultDefinitions()
	defs[3].Symbol = ""
	if _, err := coin.NewRegistry(defs); err == nil {
		t.Fatal("empty symbol should fail")
	}
}

func TestRegistry_SlotRoundTrip(t *testing.T) {
	r := coin.MustDefaultRegistry()
	for i, sym := range r.Symbols() {
		slot, err := r.SlotOf(sym)
		if err != nil {
			t.Fatalf("slot of %s: %v", sym, err)
		}
		if int(slot) != i {
			t.Errorf("slot of %s = %d, want %d", sym, slot, i)
		}
		if r.SymbolOf(slot) != sym {
			t.Errorf("symbol of %d = %s, want %s", slot, r.SymbolOf(slot), sym)
		}
	}
}

func TestRegistry_UnknownSymbol(t *testing.T) {
	r := coin.MustDefaultRegistry()
	_, err := r.SlotOf("DOGE")
	if !errors.Is(err, coin.ErrUnknownCoin) {
		t.Errorf("got %v, want ErrUnknownCoin", err)
	}
}

func TestRegistry_Decimals(t *testing.T) {
	r := coin.MustDefaultRegistry()
	near, _ := r.SlotOf("NEAR")
	if got := r.DecimalsOf(near); got != 24 {
		t.Errorf("NEAR decimals = %d, want 24", got)
	}
	usdt, _ := r.SlotOf("USDT")
	if got := r.DecimalsOf(usdt); got != 6 {
		t.Errorf("USDT decimals = %d, want 6", got)
	}
}
