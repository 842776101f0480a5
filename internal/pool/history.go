package pool

import (
	"github.com/holiman/uint256"

	"StakePool/internal/coin"
	"StakePool/internal/umath"
)

const (
	// MaxAmountSamples bounds the aggregate deposit/reward series.
	MaxAmountSamples = 51

	// MaxAprSamples bounds each per-coin APR series.
	MaxAprSamples = 11
)

// HistorySample is an immutable-once-appended record of aggregate
// per-coin deposited totals and cumulative rewards at one instant.
type HistorySample struct {
	Amounts [coin.NumCoins]uint256.Int
	Rewards [coin.NumCoins]uint256.Int
	Time    int64
}

// AmountHistory is a capacity-bounded sliding window over aggregate
// pool totals: each append clones the latest sample, mutates it, and
// evicts the oldest sample once the window exceeds its cap. It is a
// chart feed, not a full audit log.
type AmountHistory struct {
	samples []HistorySample
}

func NewAmountHistory() *AmountHistory {
	return &AmountHistory{}
}

func (h *AmountHistory) Len() int {
	return len(h.samples)
}

// Latest returns the newest sample, if any.
func (h *AmountHistory) Latest() (HistorySample, bool) {
	if len(h.samples) == 0 {
		return HistorySample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Samples returns a copy of the window, oldest first.
func (h *AmountHistory) Samples() []HistorySample {
	out := make([]HistorySample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Append extends the series with the coin's aggregate amount moved up
// (deposit) or down (withdrawal), stamping current cumulative rewards.
func (h *AmountHistory) Append(slot coin.Slot, delta *uint256.Int, add bool, totals *[coin.NumCoins]uint256.Int, now int64) error {
	next, _ := h.Latest()

	if add {
		sum, err := umath.Add(&next.Amounts[slot], delta)
		if err != nil {
			return err
		}
		next.Amounts[slot] = *sum
	} else {
		diff, err := umath.Sub(&next.Amounts[slot], delta)
		if err != nil {
			return err
		}
		next.Amounts[slot] = *diff
	}

	next.Rewards = *totals
	next.Time = now
	h.push(next)
	return nil
}

// AppendRewards extends the series with amounts unchanged and the
// cumulative reward totals restamped (used after an accrual sweep).
func (h *AmountHistory) AppendRewards(totals *[coin.NumCoins]uint256.Int, now int64) {
	next, _ := h.Latest()
	next.Rewards = *totals
	next.Time = now
	h.push(next)
}

func (h *AmountHistory) push(s HistorySample) {
	h.samples = append(h.samples, s)
	for len(h.samples) > MaxAmountSamples {
		h.samples = h.samples[1:]
	}
}

// AprSample is one point in a coin's APR history.
type AprSample struct {
	AprBps uint16 `json:"apr_bps"`
	Time   int64  `json:"time"`
}

// AprHistory keeps a bounded per-coin series of APR changes.
type AprHistory struct {
	series [coin.NumCoins][]AprSample
}

func NewAprHistory() *AprHistory {
	return &AprHistory{}
}

// Append records an APR change for a coin, evicting the oldest sample
// once the series exceeds its cap.
func (h *AprHistory) Append(slot coin.Slot, aprBps uint16, now int64) {
	h.series[slot] = append(h.series[slot], AprSample{AprBps: aprBps, Time: now})
	for len(h.series[slot]) > MaxAprSamples {
		h.series[slot] = h.series[slot][1:]
	}
}

// Series returns a copy of one coin's APR history, oldest first.
func (h *AprHistory) Series(slot coin.Slot) []AprSample {
	out := make([]AprSample, len(h.series[slot]))
	copy(out, h.series[slot])
	return out
}
