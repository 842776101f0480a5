package core

import (
	"fmt"

	"StakePool/internal/observability"
)

// SequenceValidator validates source sequences per partition. Account
// partitions are strict: gaps and out-of-order deliveries are rejected.
// Pool-wide ticks use unix timestamps as sequences, so for the global
// partition gaps are expected and only regressions are rejected.
// Not thread-safe, only accessed from the single-threaded core.
type SequenceValidator struct {
	expectedNext map[string]int64
	metrics      *observability.Metrics
}

func NewSequenceValidator(metrics *observability.Metrics) *SequenceValidator {
	return &SequenceValidator{
		expectedNext: make(map[string]int64),
		metrics:      metrics,
	}
}

// Validate checks strict source sequence ordering for one partition.
func (sv *SequenceValidator) Validate(partition string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNext[partition]

	if sourceSequence < expected {
		if isDuplicate {
			return nil
		}
		if sv.metrics != nil {
			sv.metrics.OutOfOrder.WithLabelValues(partition).Inc()
		}
		return fmt.Errorf("out-of-order command: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNext[partition] = expected + 1
		return nil
	}

	if sv.metrics != nil {
		sv.metrics.SequenceGaps.WithLabelValues(partition).Inc()
	}
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// ValidateTick checks tick ordering for the global partition. Stale
// ticks are silently ignored; forward jumps of any size are accepted.
func (sv *SequenceValidator) ValidateTick(partition string, tickSequence int64) error {
	expected := sv.expectedNext[partition]

	if tickSequence <= expected {
		return nil
	}
	if tickSequence > expected+1 && sv.metrics != nil {
		sv.metrics.SequenceGaps.WithLabelValues(partition).Inc()
	}
	sv.expectedNext[partition] = tickSequence + 1
	return nil
}

// ExpectedNext returns the next expected sequence for a partition.
func (sv *SequenceValidator) ExpectedNext(partition string) int64 {
	return sv.expectedNext[partition]
}

// RestorePartition initializes the expected sequence during recovery.
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.expectedNext[partition] = seq
}

// Partitions exports the full partition map for snapshots.
func (sv *SequenceValidator) Partitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNext))
	for k, v := range sv.expectedNext {
		out[k] = v
	}
	return out
}
