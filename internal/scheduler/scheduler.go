package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/robfig/cron/v3"
)

// Scheduler emits tick commands on cron schedules. Ticks are published
// to NATS rather than injected into the core directly, so they flow
// through the same ingestion, dedup, and persistence path as every
// other command and survive a restart mid-schedule.
type Scheduler struct {
	Cron     *cron.Cron
	js       jetstream.JetStream
	treasury string
	snapshot func()
	ctx      context.Context
}

func NewScheduler(ctx context.Context, js jetstream.JetStream, treasury string, snapshot func()) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		js:       js,
		treasury: treasury,
		snapshot: snapshot,
		ctx:      ctx,
	}
}

// RegisterAll registers the accrual, pot epoch, and snapshot tasks.
func (s *Scheduler) RegisterAll(accrualCron, potEpochCron, snapshotCron string) error {
	if _, err := s.Cron.AddFunc(accrualCron, s.accrualTick); err != nil {
		return fmt.Errorf("register accrual task: %w", err)
	}
	if _, err := s.Cron.AddFunc(potEpochCron, s.potEpochTick); err != nil {
		return fmt.Errorf("register pot epoch task: %w", err)
	}
	if _, err := s.Cron.AddFunc(snapshotCron, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("INFO: scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("INFO: scheduler stopped")
}

type tickPayload struct {
	TickID    string `json:"tick_id"`
	Caller    string `json:"caller"`
	Timestamp int64  `json:"timestamp"`
}

type epochPayload struct {
	EpochID   string `json:"epoch_id"`
	Caller    string `json:"caller"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Scheduler) accrualTick() {
	payload := tickPayload{
		TickID:    uuid.NewString(),
		Caller:    s.treasury,
		Timestamp: time.Now().Unix(),
	}
	if err := s.publish("stake.rewards.accrue.tick", payload); err != nil {
		log.Printf("ERROR: publish accrual tick: %v", err)
		return
	}
	log.Printf("INFO: accrual tick published id=%s", payload.TickID)
}

func (s *Scheduler) potEpochTick() {
	payload := epochPayload{
		EpochID:   uuid.NewString(),
		Caller:    s.treasury,
		Timestamp: time.Now().Unix(),
	}
	if err := s.publish("stake.pot.epoch.tick", payload); err != nil {
		log.Printf("ERROR: publish pot epoch tick: %v", err)
		return
	}
	log.Printf("INFO: pot epoch tick published id=%s", payload.EpochID)
}

func (s *Scheduler) snapshotTask() {
	if s.snapshot == nil {
		return
	}
	log.Println("INFO: snapshot task triggered")
	s.snapshot()
}

func (s *Scheduler) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	_, err = s.js.Publish(ctx, subject, data)
	return err
}
