package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Memory keeps state in process. It is not durable across restarts and is meant for
// development and tests; each instance is isolated.
type Memory struct {
	states *ttlcache.Cache[string, State]

	mu    sync.RWMutex
	shops map[string]ShopRecord

	now func() time.Time
}

func NewMemory() *Memory {
	states := ttlcache.New[string, State](
		ttlcache.WithDisableTouchOnHit[string, State](),
	)
	go states.Start()

	return &Memory{
		states: states,
		shops:  make(map[string]ShopRecord),
		now:    time.Now,
	}
}

// Close stops the expiry goroutine.
func (m *Memory) Close() error {
	m.states.Stop()
	return nil
}

func (m *Memory) SaveState(_ context.Context, st State, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	if _, found := m.states.GetOrSet(st.Nonce, st, ttlcache.WithTTL[string, State](ttl)); found {
		return ErrStateExists
	}
	return nil
}

func (m *Memory) ConsumeState(_ context.Context, nonce string) (State, error) {
	item, found := m.states.GetAndDelete(nonce)
	if !found || item == nil {
		return State{}, ErrNotFound
	}
	return item.Value(), nil
}

func (m *Memory) PutShop(_ context.Context, rec ShopRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if prev, ok := m.shops[rec.ShopDomain]; ok {
		rec.ID = prev.ID
		rec.InstalledAt = prev.InstalledAt
	} else {
		rec.ID = uuid.NewString()
		rec.InstalledAt = now
	}
	rec.UpdatedAt = now
	m.shops[rec.ShopDomain] = rec
	return nil
}

func (m *Memory) GetShop(_ context.Context, shopDomain string) (ShopRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.shops[shopDomain]
	if !ok {
		return ShopRecord{}, ErrNotFound
	}
	return rec, nil
}

// Len returns the number of stored shop records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shops)
}
