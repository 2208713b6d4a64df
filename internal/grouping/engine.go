// Package grouping assigns classified alerts to trade groups.
package grouping

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"tvhook/internal/logger"
	"tvhook/internal/pkg/keylock"
	"tvhook/internal/types"

	"github.com/google/uuid"
)

const (
	DefaultLookback      = 7 * 24 * time.Hour
	DefaultDedupeWindow  = 5 * time.Second
	DefaultSizeTolerance = 1e-4
)

type Outcome string

const (
	OutcomeOpened      Outcome = "opened"
	OutcomeAttached    Outcome = "attached"
	OutcomeOrphan      Outcome = "orphan"
	OutcomeUngrouped   Outcome = "ungrouped"
	OutcomeNoDirection Outcome = "no_direction"
	OutcomeDuplicate   Outcome = "duplicate"
)

// Decision 描述一条告警的分组结果。
type Decision struct {
	Outcome   Outcome
	Direction types.Direction
	// Group is the group after the record was applied; nil when ungrouped.
	Group *types.TradeGroup
	// Record carries the grouping fields. Callers fill transport fields
	// (broker, receive time) before it is committed.
	Record types.WebhookRecord
	Closed bool
}

func (d Decision) Duplicate() bool { return d.Outcome == OutcomeDuplicate }

// Skipped reports whether the record stays outside any group.
func (d Decision) Skipped() bool {
	return d.Outcome == OutcomeUngrouped || d.Outcome == OutcomeNoDirection
}

func (d Decision) Created() bool {
	return d.Outcome == OutcomeOpened || d.Outcome == OutcomeOrphan
}

// CommitFunc persists a decision inside the per-key critical section.
type CommitFunc func(ctx context.Context, d *Decision) error

type Option func(*Engine)

func WithLookback(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookback = d
		}
	}
}

func WithDedupeWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.dedupe = NewDeduper(d)
		}
	}
}

func WithSizeTolerance(tol float64) Option {
	return func(e *Engine) {
		if tol > 0 {
			e.tolerance = tol
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithIDGenerator(gen func(instrument string, dir types.Direction, ts time.Time) string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

type Engine struct {
	lookup    GroupLookup
	locks     *keylock.Map
	dedupe    *Deduper
	lookback  time.Duration
	tolerance float64
	now       func() time.Time
	newID     func(instrument string, dir types.Direction, ts time.Time) string
}

func New(lookup GroupLookup, opts ...Option) *Engine {
	e := &Engine{
		lookup:    lookup,
		locks:     keylock.New(),
		lookback:  DefaultLookback,
		tolerance: DefaultSizeTolerance,
		now:       time.Now,
		newID:     NewGroupID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dedupe == nil {
		e.dedupe = NewDeduper(DefaultDedupeWindow)
	}
	return e
}

// NewGroupID 生成形如 BTCUSDT-LONG-20240501090000-1A2B3C4D 的分组 ID。
func NewGroupID(instrument string, dir types.Direction, ts time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	label := strings.ToUpper(string(dir))
	if label == "" {
		label = "UNKNOWN"
	}
	return fmt.Sprintf("%s-%s-%s-%s", instrument, label, ts.UTC().Format("20060102150405"), suffix)
}

// Assign groups hook and saves the resulting group through the lookup.
func (e *Engine) Assign(ctx context.Context, owner string, hook types.NormalizedWebhook, kind types.AlertKind) (Decision, error) {
	return e.AssignAndCommit(ctx, owner, hook, kind, nil)
}

// AssignAndCommit groups hook and runs commit before the key lock is
// released. With a nil commit the group and record are saved through the
// lookup. Duplicates never reach commit.
func (e *Engine) AssignAndCommit(ctx context.Context, owner string, hook types.NormalizedWebhook, kind types.AlertKind, commit CommitFunc) (Decision, error) {
	if hook.Timestamp.IsZero() {
		hook.Timestamp = e.now()
	}
	ts := hook.Timestamp
	unlock := e.locks.Lock(owner + "|" + hook.Instrument)
	defer unlock()

	dup, err := e.duplicate(ctx, owner, hook)
	if err != nil {
		return Decision{}, err
	}
	if dup {
		logger.Debugf("grouping: 丢弃重复告警 owner=%s instrument=%s order_id=%s", owner, hook.Instrument, hook.ExternalOrderID)
		return Decision{Outcome: OutcomeDuplicate, Record: e.baseRecord(owner, hook, kind)}, nil
	}

	d, err := e.decide(ctx, owner, hook, kind)
	if err != nil {
		return Decision{}, err
	}
	if commit == nil {
		commit = e.save
	}
	if err := commit(ctx, &d); err != nil {
		return Decision{}, fmt.Errorf("commit grouping decision: %w", err)
	}
	e.dedupe.Mark(owner, hook.Instrument, hook.ExternalOrderID, ts)
	return d, nil
}

func (e *Engine) duplicate(ctx context.Context, owner string, hook types.NormalizedWebhook) (bool, error) {
	orderID := strings.TrimSpace(hook.ExternalOrderID)
	if orderID == "" {
		return false, nil
	}
	if e.dedupe.Seen(owner, hook.Instrument, orderID, hook.Timestamp) {
		return true, nil
	}
	window := e.dedupe.Window()
	stored, err := e.lookup.RecentOrderIDs(ctx, owner, hook.Instrument, orderID, hook.Timestamp.Add(-window))
	if err != nil {
		return false, fmt.Errorf("load recent order ids: %w", err)
	}
	return e.dedupe.Seed(owner, hook.Instrument, orderID, stored, hook.Timestamp), nil
}

func (e *Engine) save(ctx context.Context, d *Decision) error {
	if d.Group != nil {
		if err := e.lookup.SaveGroup(ctx, d.Group); err != nil {
			return err
		}
	}
	if saver, ok := e.lookup.(RecordSaver); ok {
		return saver.SaveRecord(ctx, &d.Record)
	}
	return nil
}

func (e *Engine) baseRecord(owner string, hook types.NormalizedWebhook, kind types.AlertKind) types.WebhookRecord {
	return types.WebhookRecord{
		OwnerID:           owner,
		Webhook:           hook,
		Kind:              kind,
		PositionSizeAfter: hook.RemainingPositionSize,
	}
}

func (e *Engine) decide(ctx context.Context, owner string, hook types.NormalizedWebhook, kind types.AlertKind) (Decision, error) {
	dir := InferDirection(hook, kind)
	d := Decision{Direction: dir, Record: e.baseRecord(owner, hook, kind)}
	d.Record.Direction = dir

	if kind == types.AlertEntry {
		if dir == "" {
			d.Outcome = OutcomeNoDirection
			logger.Warnf("grouping: 无法判断开仓方向 owner=%s instrument=%s order_kind=%s", owner, hook.Instrument, hook.OrderKind)
			return d, nil
		}
		g := e.open(owner, hook, dir, false)
		d.Outcome = OutcomeOpened
		e.attach(&d, g, hook, kind, g.EntryPrice)
		logger.Infof("grouping: 新建分组 %s owner=%s", g.ID, owner)
		return d, nil
	}

	candidates, err := e.lookup.ActiveGroups(ctx, owner, hook.Instrument, dir, hook.Timestamp.Add(-e.lookback))
	if err != nil {
		return Decision{}, fmt.Errorf("load active groups: %w", err)
	}
	if best := e.choose(candidates, hook); best != nil {
		entry, err := e.lookup.GroupEntryPrice(ctx, best.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("load group entry price: %w", err)
		}
		if entry == nil {
			entry = best.EntryPrice
		}
		if d.Direction == "" {
			d.Direction = best.Direction
			d.Record.Direction = best.Direction
		}
		d.Outcome = OutcomeAttached
		e.attach(&d, best, hook, kind, entry)
		logger.Debugf("grouping: 告警 %s 归入分组 %s", kind, best.ID)
		return d, nil
	}

	if !kind.IsExit() {
		d.Outcome = OutcomeUngrouped
		return d, nil
	}
	if dir == "" {
		logger.Warnf("grouping: 平仓告警无法判断方向 owner=%s instrument=%s，按未知方向建孤立分组", owner, hook.Instrument)
	}
	g := e.open(owner, hook, dir, true)
	d.Outcome = OutcomeOrphan
	e.attach(&d, g, hook, kind, g.EntryPrice)
	logger.Warnf("grouping: 未找到可匹配的开仓，创建孤立分组 %s kind=%s", g.ID, kind)
	return d, nil
}

func (e *Engine) open(owner string, hook types.NormalizedWebhook, dir types.Direction, orphan bool) *types.TradeGroup {
	ts := hook.Timestamp
	g := &types.TradeGroup{
		ID:             e.newID(hook.Instrument, dir, ts),
		OwnerID:        owner,
		Instrument:     hook.Instrument,
		Direction:      dir,
		Status:         types.GroupActive,
		Orphan:         orphan,
		Leverage:       hook.Leverage,
		OpenedAt:       ts,
		LastActivityAt: ts,
	}
	if orphan {
		g.EntryPrice = hook.EntryPrice
		return g
	}
	g.EntryPrice = hook.EntryPrice
	if g.EntryPrice == nil {
		g.EntryPrice = hook.OrderPrice
	}
	g.EntryQuantity = hook.Quantity
	g.StopLossAtEntry = hook.StopLossPrice
	g.LastPositionSize = hook.RemainingPositionSize
	if g.LastPositionSize == nil {
		g.LastPositionSize = hook.Quantity
	}
	return g
}

// attach applies hook to g and fills the record's grouping fields.
func (e *Engine) attach(d *Decision, g *types.TradeGroup, hook types.NormalizedWebhook, kind types.AlertKind, entry *float64) {
	ts := hook.Timestamp
	if ts.After(g.LastActivityAt) {
		g.LastActivityAt = ts
	}
	if g.EntryPrice == nil && hook.EntryPrice != nil {
		g.EntryPrice = hook.EntryPrice
		if entry == nil {
			entry = hook.EntryPrice
		}
	}
	if kind != types.AlertEntry {
		switch {
		case hook.RemainingPositionSize != nil:
			g.LastPositionSize = hook.RemainingPositionSize
		case kind.IsExit() && hook.Quantity != nil && g.LastPositionSize != nil:
			g.LastPositionSize = types.Float(math.Max(0, *g.LastPositionSize-*hook.Quantity))
		}
	}
	if hook.IsPositionClosed {
		g.LastPositionSize = types.Float(0)
		g.Close(ts)
		d.Closed = true
		logger.Infof("grouping: 分组 %s 已平仓", g.ID)
	}
	d.Group = g
	d.Record.TradeGroupID = g.ID
	d.Record.EntryPriceCached = entry
	d.Record.PositionSizeAfter = g.LastPositionSize
}

// choose picks the best candidate: size continuity first, then the nearest
// last activity, then the most recent.
func (e *Engine) choose(candidates []types.TradeGroup, hook types.NormalizedWebhook) *types.TradeGroup {
	active := make([]types.TradeGroup, 0, len(candidates))
	for _, g := range candidates {
		if g.IsActive() {
			active = append(active, g)
		}
	}
	if len(active) == 0 {
		return nil
	}
	pool := active
	for _, hint := range sizeHints(hook) {
		var matched []types.TradeGroup
		for _, g := range active {
			if g.LastPositionSize != nil && math.Abs(*g.LastPositionSize-hint) <= e.tolerance {
				matched = append(matched, g)
			}
		}
		if len(matched) > 0 {
			pool = matched
			break
		}
	}
	ts := hook.Timestamp
	sort.SliceStable(pool, func(i, j int) bool {
		di, dj := absDuration(pool[i].LastActivityAt.Sub(ts)), absDuration(pool[j].LastActivityAt.Sub(ts))
		if di != dj {
			return di < dj
		}
		return pool[i].LastActivityAt.After(pool[j].LastActivityAt)
	})
	best := pool[0]
	return &best
}

// sizeHints returns the expected pre-exit sizes to match against.
func sizeHints(hook types.NormalizedWebhook) []float64 {
	rem := hook.RemainingPositionSize
	if rem == nil {
		return nil
	}
	if hook.Quantity != nil {
		return []float64{*rem + *hook.Quantity, *rem}
	}
	return []float64{*rem}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// InferDirection 推断告警对应的持仓方向，无法判断时返回空。
// 开仓时 buy/sell 直接对应 long/short；平仓时取反。
func InferDirection(hook types.NormalizedWebhook, kind types.AlertKind) types.Direction {
	orderKind := strings.ToLower(hook.OrderKind)
	switch {
	case strings.Contains(orderKind, "long"):
		return types.DirectionLong
	case strings.Contains(orderKind, "short"):
		return types.DirectionShort
	}
	switch hook.State {
	case types.PositionLong:
		return types.DirectionLong
	case types.PositionShort:
		return types.DirectionShort
	}
	if kind.IsExit() {
		switch hook.Side {
		case types.SideSell:
			return types.DirectionLong
		case types.SideBuy:
			return types.DirectionShort
		}
		return ""
	}
	switch hook.Side {
	case types.SideBuy:
		return types.DirectionLong
	case types.SideSell:
		return types.DirectionShort
	}
	return ""
}
