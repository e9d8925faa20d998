package segment

import (
	"context"
	"sync"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// KeyLookup reports whether a session key was already persisted
type KeyLookup interface {
	Exists(ctx context.Context, key models.SessionKey) (bool, error)
}

// KeyIndex is an in-memory KeyLookup
type KeyIndex struct {
	mu   sync.RWMutex
	keys map[models.SessionKey]struct{}
}

// NewKeyIndex creates an empty index
func NewKeyIndex() *KeyIndex {
	return &KeyIndex{keys: make(map[models.SessionKey]struct{})}
}

// Exists implements KeyLookup
func (i *KeyIndex) Exists(_ context.Context, key models.SessionKey) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.keys[normalize(key)]
	return ok, nil
}

// Add records the keys of the given sessions
func (i *KeyIndex) Add(sessions ...models.Session) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range sessions {
		i.keys[normalize(s.Key())] = struct{}{}
	}
}

// Len returns the number of known keys
func (i *KeyIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.keys)
}

// normalize drops location and monotonic data so equal instants compare equal
func normalize(key models.SessionKey) models.SessionKey {
	key.Start = key.Start.UTC().Round(0)
	return key
}
