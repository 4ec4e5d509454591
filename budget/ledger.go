// Package budget enforces daily, monthly, and per-PR cost limits on
// review work. Spend is tracked in a cost ledger backed by NATS KV.
package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// BucketCosts is the KV bucket holding cost records.
const BucketCosts = "REVU_COSTS"

// CostRecord is a single model-spend entry.
type CostRecord struct {
	Timestamp time.Time `json:"timestamp"`
	CostUSD   float64   `json:"cost_usd"`
	Repo      string    `json:"repo,omitempty"`
	PRNumber  int       `json:"pr_number,omitempty"`
}

// CostLedger records and aggregates model spend.
type CostLedger interface {
	// Record appends a cost entry.
	Record(ctx context.Context, rec CostRecord) error

	// SpendSince sums cost_usd of records at or after since, optionally
	// filtered to a "owner/name" repo. Empty repo means all repos.
	SpendSince(ctx context.Context, since time.Time, repo string) (float64, error)

	// SpendForPR sums cost_usd of records for one pull request.
	SpendForPR(ctx context.Context, repo string, prNumber int) (float64, error)
}

// KVLedger stores cost records in a NATS KV bucket, one key per record.
type KVLedger struct {
	kv jetstream.KeyValue
}

// NewKVLedger creates the costs bucket if needed and returns a ledger
// over it.
func NewKVLedger(ctx context.Context, js jetstream.JetStream) (*KVLedger, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketCosts)
	if err != nil {
		return nil, fmt.Errorf("create costs bucket: %w", err)
	}
	return &KVLedger{kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Revu model spend ledger",
		History:     1,
	})
}

// Record appends a cost entry under a fresh key.
func (l *KVLedger) Record(ctx context.Context, rec CostRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cost record: %w", err)
	}

	if _, err := l.kv.Create(ctx, uuid.New().String(), data); err != nil {
		return fmt.Errorf("store cost record: %w", err)
	}
	return nil
}

// SpendSince sums matching records. Entries that fail to load or decode
// are skipped.
func (l *KVLedger) SpendSince(ctx context.Context, since time.Time, repo string) (float64, error) {
	var total float64
	err := l.scan(ctx, func(rec CostRecord) {
		if rec.Timestamp.Before(since) {
			return
		}
		if repo != "" && rec.Repo != repo {
			return
		}
		total += rec.CostUSD
	})
	return total, err
}

// SpendForPR sums records for one pull request.
func (l *KVLedger) SpendForPR(ctx context.Context, repo string, prNumber int) (float64, error) {
	var total float64
	err := l.scan(ctx, func(rec CostRecord) {
		if rec.Repo == repo && rec.PRNumber == prNumber {
			total += rec.CostUSD
		}
	})
	return total, err
}

func (l *KVLedger) scan(ctx context.Context, visit func(CostRecord)) error {
	keys, err := l.kv.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil
		}
		return fmt.Errorf("list cost keys: %w", err)
	}

	for _, key := range keys {
		entry, err := l.kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var rec CostRecord
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		visit(rec)
	}
	return nil
}

// MemoryLedger is an in-memory CostLedger for tests and local runs.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []CostRecord

	// FailWith, when set, makes every query return this error.
	FailWith error
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Record appends a cost entry.
func (m *MemoryLedger) Record(_ context.Context, rec CostRecord) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// SpendSince sums matching records.
func (m *MemoryLedger) SpendSince(_ context.Context, since time.Time, repo string) (float64, error) {
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, rec := range m.records {
		if rec.Timestamp.Before(since) {
			continue
		}
		if repo != "" && rec.Repo != repo {
			continue
		}
		total += rec.CostUSD
	}
	return total, nil
}

// SpendForPR sums records for one pull request.
func (m *MemoryLedger) SpendForPR(_ context.Context, repo string, prNumber int) (float64, error) {
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, rec := range m.records {
		if rec.Repo == repo && rec.PRNumber == prNumber {
			total += rec.CostUSD
		}
	}
	return total, nil
}
