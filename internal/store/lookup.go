package store

import (
	"context"
	"fmt"
	"time"

	"tvhook/internal/grouping"
	"tvhook/internal/types"
)

// Lookup adapts a Store to the grouping engine.
type Lookup struct {
	Store Store
}

var (
	_ grouping.GroupLookup = Lookup{}
	_ grouping.RecordSaver = Lookup{}
)

func (l Lookup) ActiveGroups(ctx context.Context, owner, instrument string, direction types.Direction, since time.Time) ([]types.TradeGroup, error) {
	return l.Store.Groups().ListActive(ctx, owner, instrument, direction, since)
}

func (l Lookup) SaveGroup(ctx context.Context, group *types.TradeGroup) error {
	return l.Store.Groups().Save(ctx, group)
}

func (l Lookup) GroupEntryPrice(ctx context.Context, id string) (*float64, error) {
	return l.Store.Groups().EntryPrice(ctx, id)
}

func (l Lookup) RecentOrderIDs(ctx context.Context, owner, instrument, orderID string, since time.Time) ([]time.Time, error) {
	return l.Store.Records().OrderTimestamps(ctx, owner, instrument, orderID, since)
}

func (l Lookup) SaveRecord(ctx context.Context, rec *types.WebhookRecord) error {
	return l.Store.Records().Save(ctx, rec)
}

// SaveAssignment persists a record and its group in one transaction.
func SaveAssignment(ctx context.Context, s Store, rec *types.WebhookRecord, group *types.TradeGroup) (err error) {
	uow, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = uow.Rollback()
		}
	}()
	if group != nil {
		if err = uow.Groups().Save(ctx, group); err != nil {
			return fmt.Errorf("save group %s: %w", group.ID, err)
		}
	}
	if err = uow.Records().Save(ctx, rec); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return uow.Commit()
}
