package ingest

import (
	"context"
	"fmt"

	"tvhook/internal/grouping"
	"tvhook/internal/store"
	"tvhook/internal/types"
)

// Sink persists grouping decisions and reads a group's records back for
// change tracking.
type Sink interface {
	Commit(ctx context.Context, d *grouping.Decision) error
	GroupRecords(ctx context.Context, groupID string) ([]types.WebhookRecord, error)
	UpdateChangeFlags(ctx context.Context, records []types.WebhookRecord) error
}

// StoreSink writes through the relational store.
type StoreSink struct {
	Store store.Store
}

var _ Sink = StoreSink{}

// Commit saves the record and its group in one transaction.
func (s StoreSink) Commit(ctx context.Context, d *grouping.Decision) error {
	return store.SaveAssignment(ctx, s.Store, &d.Record, d.Group)
}

func (s StoreSink) GroupRecords(ctx context.Context, groupID string) ([]types.WebhookRecord, error) {
	members, err := s.Store.Records().ListByGroups(ctx, []string{groupID})
	if err != nil {
		return nil, fmt.Errorf("load records of %s: %w", groupID, err)
	}
	return members[groupID], nil
}

func (s StoreSink) UpdateChangeFlags(ctx context.Context, records []types.WebhookRecord) error {
	return s.Store.Records().UpdateChangeFlags(ctx, records)
}

// MemorySink keeps everything in a grouping.MemoryLookup; used by dry runs.
type MemorySink struct {
	Lookup *grouping.MemoryLookup
}

var _ Sink = MemorySink{}

func (m MemorySink) Commit(ctx context.Context, d *grouping.Decision) error {
	if d.Group != nil {
		if err := m.Lookup.SaveGroup(ctx, d.Group); err != nil {
			return err
		}
	}
	return m.Lookup.SaveRecord(ctx, &d.Record)
}

func (m MemorySink) GroupRecords(ctx context.Context, groupID string) ([]types.WebhookRecord, error) {
	return m.Lookup.GroupRecords(ctx, groupID)
}

func (m MemorySink) UpdateChangeFlags(ctx context.Context, records []types.WebhookRecord) error {
	return m.Lookup.UpdateChangeFlags(ctx, records)
}
