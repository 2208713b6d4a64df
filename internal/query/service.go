// Package query exposes read models over stored trade groups and webhook
// logs.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tvhook/internal/store"
	"tvhook/internal/store/auditlog"
	"tvhook/internal/tracker"
	"tvhook/internal/types"
)

var ErrNotFound = errors.New("query: not found")

const defaultTPCount = 3

// SymbolSettings resolves per-symbol reporting options.
type SymbolSettings interface {
	TPCount(owner, broker, symbol string) int
	DisplayName(owner, broker, symbol string) string
}

// AuditReader reads the raw webhook audit log.
type AuditReader interface {
	List(ctx context.Context, owner string, q auditlog.Query) ([]auditlog.Entry, int64, error)
	StatusCounts(ctx context.Context, owner string) (map[auditlog.Status]int64, error)
}

// Filter narrows trade group listings.
type Filter struct {
	Symbol    string    `form:"symbol"`
	Broker    string    `form:"broker"`
	Status    string    `form:"status" binding:"omitempty,oneof=active closed ACTIVE CLOSED"`
	Direction string    `form:"direction" binding:"omitempty,oneof=long short"`
	Since     time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until     time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int       `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int       `form:"offset" binding:"omitempty,min=0"`
}

func (f Filter) storeFilter() store.GroupFilter {
	return store.GroupFilter{
		Symbol:    f.Symbol,
		Broker:    f.Broker,
		Status:    types.GroupStatus(strings.ToUpper(strings.TrimSpace(f.Status))),
		Direction: types.ParseDirection(f.Direction),
		Since:     f.Since,
		Until:     f.Until,
		Limit:     f.Limit,
		Offset:    f.Offset,
	}
}

// LogFilter narrows webhook record listings.
type LogFilter struct {
	Broker string `form:"broker"`
	Symbol string `form:"symbol"`
	Kind   string `form:"kind"`
	Status string `form:"status" binding:"omitempty,oneof=received duplicate parse_error rejected failed"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

type LogPage struct {
	Records []types.WebhookRecord `json:"records"`
	Total   int64                 `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

type AuditPage struct {
	Entries []auditlog.Entry `json:"entries"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

type Stats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	ByKind   map[string]int64 `json:"by_kind"`
}

// GroupDetail is a summary plus its raw records and SL/TP history.
type GroupDetail struct {
	GroupSummary
	Records  []types.WebhookRecord `json:"records"`
	Timeline []tracker.Point       `json:"timeline"`
}

type Service struct {
	store   store.Store
	audit   AuditReader
	symbols SymbolSettings
}

func NewService(s store.Store, audit AuditReader, symbols SymbolSettings) *Service {
	return &Service{store: s, audit: audit, symbols: symbols}
}

func (s *Service) summarize(owner string, g types.TradeGroup, records []types.WebhookRecord) GroupSummary {
	if s.symbols == nil {
		return Summarize(g, records, defaultTPCount)
	}
	sum := Summarize(g, records, s.symbols.TPCount(owner, sumBroker(g, records), g.Instrument))
	sum.DisplayName = s.symbols.DisplayName(owner, sum.Broker, g.Instrument)
	return sum
}

// sumBroker is the group's broker, falling back to its first record's.
func sumBroker(g types.TradeGroup, records []types.WebhookRecord) string {
	if g.Broker != "" || len(records) == 0 {
		return g.Broker
	}
	return records[0].Broker
}

// TradeGroups lists the owner's groups, newest first.
func (s *Service) TradeGroups(ctx context.Context, owner string, f Filter) ([]GroupSummary, error) {
	groups, err := s.store.Groups().List(ctx, owner, f.storeFilter())
	if err != nil {
		return nil, fmt.Errorf("list trade groups: %w", err)
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	members, err := s.store.Records().ListByGroups(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load group records: %w", err)
	}
	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, s.summarize(owner, g, members[g.ID]))
	}
	return out, nil
}

func (s *Service) TradeGroup(ctx context.Context, owner, id string) (GroupDetail, error) {
	g, err := s.store.Groups().FindByID(ctx, owner, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return GroupDetail{}, ErrNotFound
		}
		return GroupDetail{}, fmt.Errorf("find trade group %s: %w", id, err)
	}
	members, err := s.store.Records().ListByGroups(ctx, []string{g.ID})
	if err != nil {
		return GroupDetail{}, fmt.Errorf("load group records: %w", err)
	}
	records := members[g.ID]
	types.SortRecords(records)
	if records == nil {
		records = []types.WebhookRecord{}
	}
	return GroupDetail{
		GroupSummary: s.summarize(owner, *g, records),
		Records:      records,
		Timeline:     tracker.Timeline(records),
	}, nil
}

func (s *Service) Logs(ctx context.Context, owner string, f LogFilter) (LogPage, error) {
	records, total, err := s.store.Records().List(ctx, owner, store.RecordFilter{
		Broker: f.Broker,
		Symbol: f.Symbol,
		Kind:   kindFilter(f.Kind),
		Limit:  f.Limit,
		Offset: f.Offset,
	})
	if err != nil {
		return LogPage{}, fmt.Errorf("list webhook records: %w", err)
	}
	if records == nil {
		records = []types.WebhookRecord{}
	}
	return LogPage{Records: records, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Audit lists raw webhook requests, including rejected ones.
func (s *Service) Audit(ctx context.Context, owner string, f LogFilter) (AuditPage, error) {
	if s.audit == nil {
		return AuditPage{Entries: []auditlog.Entry{}}, nil
	}
	entries, total, err := s.audit.List(ctx, owner, auditlog.Query{
		Broker: f.Broker,
		Status: auditlog.Status(f.Status),
		Symbol: f.Symbol,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
	if err != nil {
		return AuditPage{}, fmt.Errorf("list audit entries: %w", err)
	}
	if entries == nil {
		entries = []auditlog.Entry{}
	}
	return AuditPage{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *Service) Stats(ctx context.Context, owner string) (Stats, error) {
	out := Stats{ByStatus: map[string]int64{}, ByKind: map[string]int64{}}
	if s.audit != nil {
		counts, err := s.audit.StatusCounts(ctx, owner)
		if err != nil {
			return Stats{}, fmt.Errorf("count audit statuses: %w", err)
		}
		for status, n := range counts {
			out.ByStatus[string(status)] = n
			out.Total += n
		}
	}
	kinds, err := s.store.Records().CountByKind(ctx, owner)
	if err != nil {
		return Stats{}, fmt.Errorf("count alert kinds: %w", err)
	}
	for kind, n := range kinds {
		out.ByKind[string(kind)] = n
	}
	return out, nil
}

func kindFilter(raw string) types.AlertKind {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return types.ParseAlertKind(raw)
}
