package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"StakePool/internal/pool"
)

// EffectPublisher publishes outbound effects to NATS for the executor
// that performs the actual transfers and token calls. Effects are
// already durable in Postgres; this is the low-latency path.
// Subjects follow the pattern stake.effects.{type}.
type EffectPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan pool.Effect
}

// effectJSON is the wire form of one effect.
type effectJSON struct {
	EffectID     string `json:"effect_id"`
	Type         string `json:"type"`
	To           string `json:"to"`
	Symbol       string `json:"symbol"`
	TokenAddress string `json:"token_address,omitempty"`
	Method       string `json:"method,omitempty"`
	Amount       string `json:"amount"`
}

func NewEffectPublisher(js jetstream.JetStream, inputChan <-chan pool.Effect) *EffectPublisher {
	return &EffectPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the publisher loop.
func (ep *EffectPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case effect, ok := <-ep.inputChan:
			if !ok {
				return nil
			}
			if err := ep.publish(ctx, effect); err != nil {
				log.Printf("WARN: effect publish failed id=%s: %v", effect.EffectID, err)
				// Non-fatal: the executor can drain effects from Postgres
			}
		}
	}
}

func (ep *EffectPublisher) publish(ctx context.Context, effect pool.Effect) error {
	data, err := json.Marshal(effectJSON{
		EffectID:     effect.EffectID.String(),
		Type:         effect.Type.String(),
		To:           string(effect.To),
		Symbol:       effect.Symbol,
		TokenAddress: effect.TokenAddress,
		Method:       effect.Method,
		Amount:       effect.Amount.Dec(),
	})
	if err != nil {
		return fmt.Errorf("marshal effect: %w", err)
	}

	subject := fmt.Sprintf("stake.effects.%s", strings.ToLower(effect.Type.String()))
	_, err = ep.js.Publish(ctx, subject, data)
	return err
}

// EnsureEffectStream creates the outbound effects stream.
func EnsureEffectStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "STAKE_EFFECTS",
		Subjects:  []string{"stake.effects.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create effect stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream STAKE_EFFECTS")
	return nil
}
