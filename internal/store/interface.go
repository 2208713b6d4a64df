package store

import (
	"context"
	"errors"
	"time"

	"tvhook/internal/types"
)

var ErrNotFound = errors.New("store: record not found")

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction.
	Rollback() error

	// Groups returns the trade group repository within this transaction.
	Groups() GroupRepository
	// Records returns the webhook record repository within this transaction.
	Records() RecordRepository
}

// Store is the entry point for database access.
type Store interface {
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)
	Groups() GroupRepository
	Records() RecordRepository
	// Close closes the store connection.
	Close() error
}

// GroupFilter narrows trade group listings. Zero values match everything.
type GroupFilter struct {
	Symbol    string
	Broker    string
	Status    types.GroupStatus
	Direction types.Direction
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// RecordFilter narrows webhook record listings.
type RecordFilter struct {
	Broker string
	// Symbol matches as a case-insensitive substring.
	Symbol string
	Kind   types.AlertKind
	Limit  int
	Offset int
}

// GroupRepository handles trade group persistence.
type GroupRepository interface {
	Save(ctx context.Context, group *types.TradeGroup) error
	FindByID(ctx context.Context, owner, id string) (*types.TradeGroup, error)
	ListActive(ctx context.Context, owner, instrument string, direction types.Direction, since time.Time) ([]types.TradeGroup, error)
	List(ctx context.Context, owner string, filter GroupFilter) ([]types.TradeGroup, error)
	// EntryPrice returns the stored entry price, falling back to the
	// group's entry record.
	EntryPrice(ctx context.Context, id string) (*float64, error)
}

// RecordRepository handles webhook record persistence.
type RecordRepository interface {
	Save(ctx context.Context, rec *types.WebhookRecord) error
	ListByGroups(ctx context.Context, groupIDs []string) (map[string][]types.WebhookRecord, error)
	List(ctx context.Context, owner string, filter RecordFilter) ([]types.WebhookRecord, int64, error)
	OrderTimestamps(ctx context.Context, owner, instrument, orderID string, since time.Time) ([]time.Time, error)
	UpdateChangeFlags(ctx context.Context, records []types.WebhookRecord) error
	CountByKind(ctx context.Context, owner string) (map[types.AlertKind]int64, error)
}
