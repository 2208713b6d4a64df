package grouping

import (
	"context"
	"sort"
	"sync"
	"time"

	"tvhook/internal/types"
)

// GroupLookup 是分组引擎读写历史分组的协作者，由存储层实现。
type GroupLookup interface {
	// ActiveGroups returns open groups for owner+instrument whose last
	// activity is at or after since. An empty direction matches both.
	ActiveGroups(ctx context.Context, owner, instrument string, direction types.Direction, since time.Time) ([]types.TradeGroup, error)
	SaveGroup(ctx context.Context, group *types.TradeGroup) error
	GroupEntryPrice(ctx context.Context, id string) (*float64, error)
	// RecentOrderIDs returns timestamps of stored records carrying orderID.
	RecentOrderIDs(ctx context.Context, owner, instrument, orderID string, since time.Time) ([]time.Time, error)
}

// RecordSaver is implemented by lookups that also keep records.
type RecordSaver interface {
	SaveRecord(ctx context.Context, rec *types.WebhookRecord) error
}

// MemoryLookup keeps groups and records in process memory.
type MemoryLookup struct {
	mu      sync.RWMutex
	nextID  uint64
	groups  map[string]types.TradeGroup
	order   []string
	records []types.WebhookRecord
}

func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{groups: make(map[string]types.TradeGroup)}
}

func (m *MemoryLookup) ActiveGroups(_ context.Context, owner, instrument string, direction types.Direction, since time.Time) ([]types.TradeGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.TradeGroup
	for _, id := range m.order {
		g := m.groups[id]
		if g.OwnerID != owner || g.Instrument != instrument || !g.IsActive() {
			continue
		}
		if direction != "" && g.Direction != direction {
			continue
		}
		if g.LastActivityAt.Before(since) {
			continue
		}
		g.Records = nil
		out = append(out, g)
	}
	return out, nil
}

func (m *MemoryLookup) SaveGroup(_ context.Context, group *types.TradeGroup) error {
	if group == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[group.ID]; !ok {
		m.order = append(m.order, group.ID)
	}
	g := *group
	g.Records = nil
	m.groups[group.ID] = g
	return nil
}

func (m *MemoryLookup) GroupEntryPrice(_ context.Context, id string) (*float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, nil
	}
	return g.EntryPrice, nil
}

func (m *MemoryLookup) RecentOrderIDs(_ context.Context, owner, instrument, orderID string, since time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []time.Time
	for _, rec := range m.records {
		if rec.OwnerID != owner || rec.Webhook.Instrument != instrument || rec.Webhook.ExternalOrderID != orderID {
			continue
		}
		if ts := rec.Timestamp(); !ts.Before(since) {
			out = append(out, ts)
		}
	}
	return out, nil
}

func (m *MemoryLookup) SaveRecord(_ context.Context, rec *types.WebhookRecord) error {
	if rec == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, *rec)
	return nil
}

// Groups returns the owner's groups in creation order with records attached.
func (m *MemoryLookup) Groups(owner string) []types.TradeGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := make(map[string][]types.WebhookRecord)
	for _, rec := range m.records {
		if rec.TradeGroupID != "" {
			members[rec.TradeGroupID] = append(members[rec.TradeGroupID], rec)
		}
	}
	var out []types.TradeGroup
	for _, id := range m.order {
		g := m.groups[id]
		if owner != "" && g.OwnerID != owner {
			continue
		}
		g.Records = members[id]
		types.SortRecords(g.Records)
		out = append(out, g)
	}
	return out
}

// Records returns the owner's records ordered by timestamp.
func (m *MemoryLookup) Records(owner string) []types.WebhookRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.WebhookRecord
	for _, rec := range m.records {
		if owner == "" || rec.OwnerID == owner {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp().Before(out[j].Timestamp()) })
	return out
}

// GroupRecords returns the records attached to groupID in timestamp order.
func (m *MemoryLookup) GroupRecords(_ context.Context, groupID string) ([]types.WebhookRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.WebhookRecord
	for _, rec := range m.records {
		if rec.TradeGroupID == groupID {
			out = append(out, rec)
		}
	}
	types.SortRecords(out)
	return out, nil
}

// UpdateChangeFlags copies SL/TP change flags onto stored records by id.
func (m *MemoryLookup) UpdateChangeFlags(_ context.Context, records []types.WebhookRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	flags := make(map[uint64]types.WebhookRecord, len(records))
	for _, rec := range records {
		flags[rec.ID] = rec
	}
	for i := range m.records {
		if rec, ok := flags[m.records[i].ID]; ok {
			m.records[i].StopLossChanged = rec.StopLossChanged
			m.records[i].TakeProfitChanged = rec.TakeProfitChanged
		}
	}
	return nil
}
