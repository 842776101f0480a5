package core

import (
	"container/list"
	"fmt"

	"StakePool/internal/observability"
)

// DBDedupChecker is the interface for the Postgres dedup lookup.
type DBDedupChecker interface {
	IsDuplicate(commandType, idempotencyKey string) (bool, error)
}

// Deduper implements two-tier deduplication: an in-memory LRU for the
// hot path and Postgres for keys that have aged out of the LRU.
// Not thread-safe, only accessed from the single-threaded core.
type Deduper struct {
	lru       *dedupLRU
	dbChecker DBDedupChecker
	metrics   *observability.Metrics
}

func NewDeduper(capacity int, dbChecker DBDedupChecker, metrics *observability.Metrics) *Deduper {
	return &Deduper{
		lru:       newDedupLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
	}
}

// IsDuplicate checks whether the command was already processed.
// A DB error is treated as not-duplicate so a Postgres hiccup cannot
// stall command processing; the sequence validator still rejects true
// replays in that case.
func (d *Deduper) IsDuplicate(commandType, idempotencyKey string) bool {
	key := commandType + ":" + idempotencyKey

	if d.lru.contains(key) {
		if d.metrics != nil {
			d.metrics.IdempotencyDuplicates.WithLabelValues(commandType, "lru").Inc()
		}
		return true
	}

	if d.dbChecker != nil {
		isDup, err := d.dbChecker.IsDuplicate(commandType, idempotencyKey)
		if err != nil {
			return false
		}
		if isDup {
			if d.metrics != nil {
				d.metrics.IdempotencyDuplicates.WithLabelValues(commandType, "postgres").Inc()
			}
			d.lru.add(key)
			return true
		}
	}

	return false
}

// MarkProcessed adds the key to the LRU after successful processing.
func (d *Deduper) MarkProcessed(commandType, idempotencyKey string) {
	d.lru.add(commandType + ":" + idempotencyKey)
	if d.metrics != nil {
		d.metrics.DedupLRUSize.Set(float64(d.lru.size()))
	}
}

// Warm loads a batch of composite keys into the LRU. Used on restart
// so recently processed commands skip the cold-path DB lookup.
func (d *Deduper) Warm(keys []string) {
	for _, key := range keys {
		d.lru.add(key)
	}
}

// Keys returns all composite keys currently in the LRU, newest first.
func (d *Deduper) Keys() []string {
	return d.lru.keys()
}

type dedupLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List

	evictions int64
}

func newDedupLRU(capacity int) *dedupLRU {
	if capacity <= 0 {
		panic(fmt.Sprintf("FATAL: dedup LRU capacity %d", capacity))
	}
	return &dedupLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (l *dedupLRU) contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.order.MoveToFront(elem)
	}
	return ok
}

func (l *dedupLRU) add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.order.MoveToFront(elem)
		return
	}

	l.cache[key] = l.order.PushFront(key)
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.cache, oldest.Value.(string))
		l.evictions++
	}
}

func (l *dedupLRU) size() int {
	return l.order.Len()
}

func (l *dedupLRU) keys() []string {
	out := make([]string, 0, l.order.Len())
	for elem := l.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(string))
	}
	return out
}
