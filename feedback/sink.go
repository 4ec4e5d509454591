package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketFeedback is the KV bucket holding feedback records.
const BucketFeedback = "REVU_FEEDBACK"

// Sink receives classified feedback records.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// KVSink stores feedback records in a NATS KV bucket, one key per record.
type KVSink struct {
	kv jetstream.KeyValue
}

// NewKVSink creates the feedback bucket if needed and returns a sink
// over it.
func NewKVSink(ctx context.Context, js jetstream.JetStream) (*KVSink, error) {
	kv, err := js.KeyValue(ctx, BucketFeedback)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      BucketFeedback,
			Description: "Reviewer feedback on posted comments",
			History:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("create feedback bucket: %w", err)
		}
	}
	return &KVSink{kv: kv}, nil
}

// Append stores a record under its id.
func (s *KVSink) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal feedback record: %w", err)
	}
	if _, err := s.kv.Create(ctx, rec.ID, data); err != nil {
		return fmt.Errorf("store feedback record: %w", err)
	}
	return nil
}

// MemorySink is an in-memory Sink for tests and local runs.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record

	// FailWith, when set, makes every append return this error.
	FailWith error
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores a record.
func (m *MemorySink) Append(_ context.Context, rec Record) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a snapshot of stored records.
func (m *MemorySink) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
