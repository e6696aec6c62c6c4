package agent

import (
	"context"
	"sync"

	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

// Cache partitions for the local view of server data
const (
	PartitionEvents   = "events"
	PartitionMembers  = "members"
	PartitionSettings = "settings"
	PartitionDevices  = "devices"
)

// Cache is the client-side view of server data, split into partitions so a
// change message only invalidates the data it touches.
type Cache struct {
	mu         sync.RWMutex
	partitions map[string]map[string]any
}

func NewCache() *Cache {
	return &Cache{
		partitions: make(map[string]map[string]any),
	}
}

func (c *Cache) Put(partition, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.partitions[partition]
	if !ok {
		p = make(map[string]any)
		c.partitions[partition] = p
	}
	p[key] = value
}

func (c *Cache) Get(partition, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.partitions[partition][key]
	return value, ok
}

// Invalidate drops one partition
func (c *Cache) Invalidate(partition string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.partitions, partition)
}

// InvalidateAll drops everything
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitions = make(map[string]map[string]any)
}

func (c *Cache) Len(partition string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.partitions[partition])
}

// DefaultRouter wires the standard message kinds to their cache partitions.
// A full resync drops the whole cache and triggers the caller's refetch.
func DefaultRouter(cache *Cache, refetch func(ctx context.Context)) *Router {
	invalidate := func(partition string) Handler {
		return func(ctx context.Context, msg model.ChangeMessage) {
			cache.Invalidate(partition)
		}
	}

	r := NewRouter().
		On(types.MessageEventCreated, invalidate(PartitionEvents)).
		On(types.MessageEventUpdated, invalidate(PartitionEvents)).
		On(types.MessageEventDeleted, invalidate(PartitionEvents)).
		On(types.MessageCalendarSyncCompleted, invalidate(PartitionEvents)).
		On(types.MessageMemberChanged, invalidate(PartitionMembers)).
		On(types.MessageFamilySettingsChanged, invalidate(PartitionSettings)).
		On(types.MessageDeviceChanged, invalidate(PartitionDevices))

	r.On(types.MessageFullResyncRequired, func(ctx context.Context, msg model.ChangeMessage) {
		cache.InvalidateAll()
		if refetch != nil {
			refetch(ctx)
		}
	})

	return r
}
