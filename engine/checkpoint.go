package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketCheckpoints is the KV bucket holding review checkpoints.
const BucketCheckpoints = "REVU_CHECKPOINTS"

// CheckpointStore persists review snapshots keyed by thread id.
type CheckpointStore interface {
	// Save writes a checkpoint, replacing any previous one.
	Save(ctx context.Context, threadID string, cp *Checkpoint) error

	// Load returns the checkpoint for a thread, or found=false.
	Load(ctx context.Context, threadID string) (cp *Checkpoint, found bool, err error)

	// Delete removes a thread's checkpoint. Missing keys are not an error.
	Delete(ctx context.Context, threadID string) error
}

// KVCheckpointStore stores checkpoints in a NATS KV bucket.
type KVCheckpointStore struct {
	kv jetstream.KeyValue
}

// NewKVCheckpointStore creates the checkpoints bucket if needed.
func NewKVCheckpointStore(ctx context.Context, js jetstream.JetStream) (*KVCheckpointStore, error) {
	kv, err := js.KeyValue(ctx, BucketCheckpoints)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      BucketCheckpoints,
			Description: "Revu review workflow checkpoints",
			History:     3,
		})
		if err != nil {
			return nil, fmt.Errorf("create checkpoints bucket: %w", err)
		}
	}
	return &KVCheckpointStore{kv: kv}, nil
}

// kvKeyUnsafe matches characters NATS KV keys cannot contain.
var kvKeyUnsafe = regexp.MustCompile(`[^-/_=.a-zA-Z0-9]`)

func checkpointKey(threadID string) string {
	return kvKeyUnsafe.ReplaceAllString(threadID, "_")
}

// Save writes a checkpoint.
func (s *KVCheckpointStore) Save(ctx context.Context, threadID string, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if _, err := s.kv.Put(ctx, checkpointKey(threadID), data); err != nil {
		return fmt.Errorf("store checkpoint %s: %w", threadID, err)
	}
	return nil
}

// Load returns the checkpoint for a thread.
func (s *KVCheckpointStore) Load(ctx context.Context, threadID string) (*Checkpoint, bool, error) {
	entry, err := s.kv.Get(ctx, checkpointKey(threadID))
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get checkpoint %s: %w", threadID, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(entry.Value(), &cp); err != nil {
		return nil, false, fmt.Errorf("unmarshal checkpoint %s: %w", threadID, err)
	}
	return &cp, true, nil
}

// Delete removes a checkpoint.
func (s *KVCheckpointStore) Delete(ctx context.Context, threadID string) error {
	err := s.kv.Delete(ctx, checkpointKey(threadID))
	if err != nil && err != jetstream.ErrKeyNotFound {
		return fmt.Errorf("delete checkpoint %s: %w", threadID, err)
	}
	return nil
}

// MemoryCheckpointStore is an in-memory store for tests.
type MemoryCheckpointStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryCheckpointStore returns an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{items: make(map[string][]byte)}
}

// Save writes a checkpoint.
func (s *MemoryCheckpointStore) Save(_ context.Context, threadID string, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[threadID] = data
	return nil
}

// Load returns the checkpoint for a thread.
func (s *MemoryCheckpointStore) Load(_ context.Context, threadID string) (*Checkpoint, bool, error) {
	s.mu.RLock()
	data, ok := s.items[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, false, err
	}
	return &cp, true, nil
}

// Delete removes a checkpoint.
func (s *MemoryCheckpointStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, threadID)
	return nil
}
