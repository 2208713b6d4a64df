package grouping

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"tvhook/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func seqIDs() Option {
	var mu sync.Mutex
	n := 0
	return WithIDGenerator(func(instrument string, dir types.Direction, ts time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%s-%d", instrument, dir, n)
	})
}

func entry(dir string, qty, price float64, at time.Duration) types.NormalizedWebhook {
	return types.NormalizedWebhook{
		Instrument: "BTCUSDT",
		OrderKind:  "enter_" + dir,
		Quantity:   types.Float(qty),
		OrderPrice: types.Float(price),
		Timestamp:  t0.Add(at),
	}
}

func exit(dir string, qty, price, remaining float64, at time.Duration) types.NormalizedWebhook {
	h := types.NormalizedWebhook{
		Instrument:            "BTCUSDT",
		OrderKind:             "reduce_" + dir,
		Quantity:              types.Float(qty),
		OrderPrice:            types.Float(price),
		RemainingPositionSize: types.Float(remaining),
		Timestamp:             t0.Add(at),
	}
	if remaining == 0 {
		h.State = types.PositionFlat
		h.IsPositionClosed = true
	}
	return h
}

func TestNewGroupIDFormat(t *testing.T) {
	id := NewGroupID("BTCUSDT", types.DirectionLong, t0)
	assert.Regexp(t, regexp.MustCompile(`^BTCUSDT-LONG-20240501090000-[0-9A-F]{8}$`), id)
	assert.Regexp(t, regexp.MustCompile(`^BTCUSDT-UNKNOWN-`), NewGroupID("BTCUSDT", "", t0))
}

func TestEntryThenExitsClosesGroup(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLookup()
	e := New(mem, seqIDs())

	d, err := e.Assign(ctx, "alice", entry("long", 1, 100, 0), types.AlertEntry)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, d.Outcome)
	assert.True(t, d.Created())
	require.NotNil(t, d.Group)
	gid := d.Group.ID
	assert.Equal(t, 100.0, *d.Group.EntryPrice)
	assert.Equal(t, 1.0, *d.Record.PositionSizeAfter)

	d, err = e.Assign(ctx, "alice", exit("long", 0.4, 105, 0.6, time.Minute), types.AlertTakeProfit1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAttached, d.Outcome)
	assert.Equal(t, gid, d.Record.TradeGroupID)
	assert.Equal(t, 100.0, *d.Record.EntryPriceCached)
	assert.False(t, d.Closed)

	d, err = e.Assign(ctx, "alice", exit("long", 0.6, 110, 0, 2*time.Minute), types.AlertTakeProfit2)
	require.NoError(t, err)
	assert.Equal(t, gid, d.Record.TradeGroupID)
	assert.True(t, d.Closed)
	assert.Equal(t, types.GroupClosed, d.Group.Status)

	groups := mem.Groups("alice")
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Records, 3)
	assert.False(t, groups[0].IsActive())

	// closed groups are never chosen again
	d, err = e.Assign(ctx, "alice", exit("long", 0.1, 111, 0.5, 3*time.Minute), types.AlertPartialClose)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrphan, d.Outcome)
	assert.NotEqual(t, gid, d.Record.TradeGroupID)
	assert.True(t, d.Group.Orphan)
}

func TestOverlappingEntriesOpenTwoGroups(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLookup()
	e := New(mem, seqIDs())

	first, err := e.Assign(ctx, "alice", entry("long", 1, 100, 0), types.AlertEntry)
	require.NoError(t, err)
	second, err := e.Assign(ctx, "alice", entry("long", 2, 101, time.Minute), types.AlertEntry)
	require.NoError(t, err)
	assert.NotEqual(t, first.Group.ID, second.Group.ID)

	active, err := mem.ActiveGroups(ctx, "alice", "BTCUSDT", types.DirectionLong, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSizeContinuityPicksMatchingGroup(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLookup()
	e := New(mem, seqIDs())

	small, _ := e.Assign(ctx, "alice", entry("long", 1, 100, 0), types.AlertEntry)
	_, _ = e.Assign(ctx, "alice", entry("long", 3, 100, time.Minute), types.AlertEntry)

	// 0.5 closed out of 1.0 leaves 0.5: matches the first group even
	// though the second one is more recent.
	d, err := e.Assign(ctx, "alice", exit("long", 0.5, 105, 0.5, 2*time.Minute), types.AlertTakeProfit1)
	require.NoError(t, err)
	assert.Equal(t, small.Group.ID, d.Record.TradeGroupID)

	// remaining-only hint matches the group's tracked size
	h := exit("long", 0.2, 106, 0.5, 3*time.Minute)
	h.Quantity = nil
	d, err = e.Assign(ctx, "alice", h, types.AlertPartialClose)
	require.NoError(t, err)
	assert.Equal(t, small.Group.ID, d.Record.TradeGroupID)
}

func TestNearestActivityBreaksTies(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLookup()
	e := New(mem, seqIDs())

	older, _ := e.Assign(ctx, "alice", entry("short", 1, 100, 0), types.AlertEntry)
	newer, _ := e.Assign(ctx, "alice", entry("short", 1, 100, time.Hour), types.AlertEntry)

	// out-of-order exit near the older group's activity
	h := exit("short", 0.3, 95, 0.7, 5*time.Minute)
	d, err := e.Assign(ctx, "alice", h, types.AlertTakeProfit1)
	require.NoError(t, err)
	assert.Equal(t, older.Group.ID, d.Record.TradeGroupID)

	// older is now at 5m and newer at 60m; equal distance favours the
	// most recent activity
	h = exit("short", 0.1, 95, 0.9, 32*time.Minute+30*time.Second)
	h.RemainingPositionSize = nil
	h.Quantity = nil
	d, err = e.Assign(ctx, "alice", h, types.AlertPartialClose)
	require.NoError(t, err)
	assert.Equal(t, newer.Group.ID, d.Record.TradeGroupID)
}

func TestDirectionMustMatch(t *testing.T) {
	ctx := context.Background()
	e := New(NewMemoryLookup(), seqIDs())
	long, _ := e.Assign(ctx, "alice", entry("long", 1, 100, 0), types.AlertEntry)

	d, err := e.Assign(ctx, "alice", exit("short", 1, 90, 0, time.Minute), types.AlertStopLoss)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrphan, d.Outcome)
	assert.NotEqual(t, long.Group.ID, d.Record.TradeGroupID)
	assert.Equal(t, types.DirectionShort, d.Group.Direction)
}

func TestLookbackWindow(t *testing.T) {
	ctx := context.Background()
	e := New(NewMemoryLookup(), seqIDs(), WithLookback(24*time.Hour))
	_, _ = e.Assign(ctx, "alice", entry("long", 1, 100, 0), types.AlertEntry)

	d, err := e.Assign(ctx, "alice", exit("long", 0.5, 105, 0.5, 48*time.Hour), types.AlertTakeProfit1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrphan, d.Outcome)
}

func TestUnknownKind(t *testing.T) {
	ctx := context.Background()
	e := New(NewMemoryLookup(), seqIDs())

	lone := types.NormalizedWebhook{Instrument: "BTCUSDT", Timestamp: t0}
	d, err := e.Assign(ctx, "alice", lone, types.AlertUnknown)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUngrouped, d.Outcome)
	assert.True(t, d.Skipped())
	assert.Empty(t, d.Record.TradeGroupID)

	g, _ := e.Assign(ctx, "alice", entry("long", 1, 100, 0), types.AlertEntry)
	lone.Timestamp = t0.Add(time.Minute)
	d, err = e.Assign(ctx, "alice", lone, types.AlertUnknown)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAttached, d.Outcome)
	assert.Equal(t, g.Group.ID, d.Record.TradeGroupID)
	assert.Equal(t, types.DirectionLong, d.Record.Direction)
}

func TestEntryWithoutDirectionIsSkipped(t *testing.T) {
	e := New(NewMemoryLookup(), seqIDs())
	d, err := e.Assign(context.Background(), "alice", types.NormalizedWebhook{Instrument: "BTCUSDT", OrderKind: "enter", Timestamp: t0}, types.AlertEntry)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoDirection, d.Outcome)
	assert.Nil(t, d.Group)
}

func TestExitWithoutDirectionOpensOrphan(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLookup()
	e := New(mem, seqIDs())
	h := types.NormalizedWebhook{
		Instrument:       "BTCUSDT",
		OrderKind:        "exit",
		Quantity:         types.Float(1),
		OrderPrice:       types.Float(110),
		State:            types.PositionFlat,
		IsPositionClosed: true,
		Timestamp:        t0,
	}
	d, err := e.Assign(ctx, "alice", h, types.AlertStopLoss)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrphan, d.Outcome)
	require.NotNil(t, d.Group)
	assert.True(t, d.Group.Orphan)
	assert.Empty(t, d.Group.Direction)
	assert.Equal(t, types.GroupClosed, d.Group.Status)
	assert.Equal(t, d.Group.ID, d.Record.TradeGroupID)
	assert.False(t, d.Skipped())
	assert.Len(t, mem.Groups("alice"), 1)
}

func TestDuplicateSuppression(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLookup()
	e := New(mem, seqIDs())

	h := entry("long", 1, 100, 0)
	h.ExternalOrderID = "Long Entry"
	_, err := e.Assign(ctx, "alice", h, types.AlertEntry)
	require.NoError(t, err)

	h.Timestamp = t0.Add(3 * time.Second)
	d, err := e.Assign(ctx, "alice", h, types.AlertEntry)
	require.NoError(t, err)
	assert.True(t, d.Duplicate())

	h.Timestamp = t0.Add(10 * time.Second)
	d, err = e.Assign(ctx, "alice", h, types.AlertEntry)
	require.NoError(t, err)
	assert.False(t, d.Duplicate())

	// other owners are unaffected
	h.Timestamp = t0
	d, err = e.Assign(ctx, "bob", h, types.AlertEntry)
	require.NoError(t, err)
	assert.False(t, d.Duplicate())

	assert.Len(t, mem.Records("alice"), 2)
}

func TestDuplicateSeededFromStorage(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLookup()
	rec := types.WebhookRecord{OwnerID: "alice", Webhook: types.NormalizedWebhook{Instrument: "BTCUSDT", ExternalOrderID: "x1", Timestamp: t0}}
	require.NoError(t, mem.SaveRecord(ctx, &rec))

	e := New(mem, seqIDs())
	h := entry("long", 1, 100, 2*time.Second)
	h.ExternalOrderID = "x1"
	d, err := e.Assign(ctx, "alice", h, types.AlertEntry)
	require.NoError(t, err)
	assert.True(t, d.Duplicate())
}

func TestConcurrentAssignSameKey(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryLookup()
	e := New(mem)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := entry("long", 1, 100, time.Duration(i)*time.Minute)
			h.ExternalOrderID = "dup"
			h.Timestamp = t0
			_, err := e.Assign(ctx, "alice", h, types.AlertEntry)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, mem.Groups("alice"), 1)
}

func TestCommitReceivesDecision(t *testing.T) {
	ctx := context.Background()
	e := New(NewMemoryLookup(), seqIDs())
	var seen *Decision
	d, err := e.AssignAndCommit(ctx, "alice", entry("long", 1, 100, 0), types.AlertEntry, func(_ context.Context, d *Decision) error {
		d.Record.ID = 42
		seen = d
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, uint64(42), d.Record.ID)

	_, err = e.AssignAndCommit(ctx, "alice", entry("long", 1, 100, time.Minute), types.AlertEntry, func(context.Context, *Decision) error {
		return errors.New("disk full")
	})
	assert.ErrorContains(t, err, "disk full")
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) ActiveGroups(ctx context.Context, owner, instrument string, direction types.Direction, since time.Time) ([]types.TradeGroup, error) {
	args := m.Called(ctx, owner, instrument, direction, since)
	groups, _ := args.Get(0).([]types.TradeGroup)
	return groups, args.Error(1)
}

func (m *mockLookup) SaveGroup(ctx context.Context, group *types.TradeGroup) error {
	return m.Called(ctx, group).Error(0)
}

func (m *mockLookup) GroupEntryPrice(ctx context.Context, id string) (*float64, error) {
	args := m.Called(ctx, id)
	price, _ := args.Get(0).(*float64)
	return price, args.Error(1)
}

func (m *mockLookup) RecentOrderIDs(ctx context.Context, owner, instrument, orderID string, since time.Time) ([]time.Time, error) {
	args := m.Called(ctx, owner, instrument, orderID, since)
	stamps, _ := args.Get(0).([]time.Time)
	return stamps, args.Error(1)
}

func TestLookupErrorsAreWrapped(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("ActiveGroups", mock.Anything, "alice", "BTCUSDT", types.DirectionLong, mock.Anything).
		Return(nil, errors.New("db locked"))

	e := New(lookup)
	_, err := e.Assign(context.Background(), "alice", exit("long", 1, 100, 0, 0), types.AlertStopLoss)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load active groups")
	lookup.AssertExpectations(t)
}

func TestStoredEntryPriceIsCached(t *testing.T) {
	lookup := &mockLookup{}
	group := types.TradeGroup{ID: "g1", OwnerID: "alice", Instrument: "BTCUSDT", Direction: types.DirectionLong, Status: types.GroupActive, LastActivityAt: t0}
	lookup.On("ActiveGroups", mock.Anything, "alice", "BTCUSDT", types.DirectionLong, t0.Add(time.Minute-DefaultLookback)).
		Return([]types.TradeGroup{group}, nil)
	lookup.On("GroupEntryPrice", mock.Anything, "g1").Return(types.Float(99.5), nil)
	lookup.On("SaveGroup", mock.Anything, mock.AnythingOfType("*types.TradeGroup")).Return(nil)

	e := New(lookup)
	d, err := e.Assign(context.Background(), "alice", exit("long", 1, 101, 0, time.Minute), types.AlertTakeProfit1)
	require.NoError(t, err)
	assert.Equal(t, 99.5, *d.Record.EntryPriceCached)
	assert.True(t, d.Closed)
	lookup.AssertExpectations(t)
}

func TestInferDirection(t *testing.T) {
	tests := []struct {
		name string
		hook types.NormalizedWebhook
		kind types.AlertKind
		want types.Direction
	}{
		{"order kind long", types.NormalizedWebhook{OrderKind: "reduce_long"}, types.AlertPartialClose, types.DirectionLong},
		{"order kind short", types.NormalizedWebhook{OrderKind: "enter_short"}, types.AlertEntry, types.DirectionShort},
		{"position state", types.NormalizedWebhook{State: types.PositionShort}, types.AlertUnknown, types.DirectionShort},
		{"buy entry", types.NormalizedWebhook{Side: types.SideBuy}, types.AlertEntry, types.DirectionLong},
		{"sell entry", types.NormalizedWebhook{Side: types.SideSell, State: types.PositionFlat}, types.AlertEntry, types.DirectionShort},
		{"sell exit closes long", types.NormalizedWebhook{Side: types.SideSell}, types.AlertStopLoss, types.DirectionLong},
		{"unknown", types.NormalizedWebhook{}, types.AlertEntry, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferDirection(tt.hook, tt.kind))
		})
	}
}
