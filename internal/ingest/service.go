// Package ingest 把一次 webhook 请求串成完整处理链路：
// 校验、规范化、分类、分组、盈亏、持久化、审计、指标与推送。
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tvhook/internal/classifier"
	"tvhook/internal/gateway/tradingview"
	"tvhook/internal/grouping"
	"tvhook/internal/logger"
	"tvhook/internal/metrics"
	"tvhook/internal/pkg/symbol"
	"tvhook/internal/pkg/text"
	"tvhook/internal/pnl"
	"tvhook/internal/store/auditlog"
	"tvhook/internal/tracker"
	"tvhook/internal/transport/ws"
	"tvhook/internal/types"

	"github.com/tidwall/gjson"
)

// ErrInvalidPayload is returned for bodies that are not a JSON object.
var ErrInvalidPayload = errors.New("ingest: payload is not a JSON object")

// Auditor records every raw request.
type Auditor interface {
	Insert(ctx context.Context, e auditlog.Entry) (int64, error)
}

// Publisher pushes events to live subscribers.
type Publisher interface {
	Publish(owner, eventType string, data any)
}

type Request struct {
	Owner      string
	Broker     string
	Identifier string
	SourceIP   string
	Body       []byte
	ReceivedAt time.Time
}

// Result 是单条告警的处理结果。
type Result struct {
	RecordID     uint64               `json:"record_id,omitempty"`
	TradeGroupID string               `json:"trade_group_id,omitempty"`
	AlertKind    types.AlertKind      `json:"alert_kind"`
	Rule         string               `json:"rule,omitempty"`
	Outcome      grouping.Outcome     `json:"outcome"`
	Duplicate    bool                 `json:"duplicate"`
	GroupClosed  bool                 `json:"group_closed"`
	Warnings     []types.ParseWarning `json:"warnings,omitempty"`
	Record       types.WebhookRecord  `json:"record"`
	Group        *types.TradeGroup    `json:"group,omitempty"`
}

type Option func(*Service)

func WithAudit(a Auditor) Option { return func(s *Service) { s.audit = a } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

func WithClassifier(c *classifier.Classifier) Option {
	return func(s *Service) {
		if c != nil {
			s.classifier = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	engine     *grouping.Engine
	sink       Sink
	classifier *classifier.Classifier
	audit      Auditor
	events     Publisher
	now        func() time.Time
}

func NewService(engine *grouping.Engine, sink Sink, opts ...Option) *Service {
	s := &Service{
		engine:     engine,
		sink:       sink,
		classifier: classifier.New(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle 处理一条 webhook。非 JSON 对象返回 ErrInvalidPayload，其余字段问题只产生 warning。
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	broker := strings.ToLower(strings.TrimSpace(req.Broker))
	defer metrics.ObserveIngest(broker, started)
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = s.now()
	}
	entry := auditlog.Entry{
		OwnerID:    req.Owner,
		Broker:     broker,
		Identifier: req.Identifier,
		SourceIP:   req.SourceIP,
		Body:       string(req.Body),
		ReceivedAt: req.ReceivedAt,
	}

	raw, err := decodeBody(req.Body)
	if err != nil {
		entry.Status = auditlog.StatusParseError
		entry.Error = err.Error()
		s.writeAudit(ctx, entry)
		metrics.WebhooksRejected.WithLabelValues(broker, string(auditlog.StatusParseError)).Inc()
		logger.Warnf("ingest: 拒绝无效 payload owner=%s broker=%s: %v body=%q", req.Owner, broker, err, text.Truncate(entry.Body, 200))
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	hook := tradingview.NormalizeAt(raw, req.ReceivedAt)
	for _, w := range hook.Warnings {
		metrics.NormalizeWarnings.WithLabelValues(w.Field).Inc()
	}
	hook.Instrument = symbol.Canonical(hook.Instrument)
	brokerSymbol := ""
	if conv, ok := symbol.ForBroker(broker); ok && hook.Instrument != "" {
		brokerSymbol = conv.ToExchange(hook.Instrument)
	}
	kind, rule := s.classifier.Explain(hook)
	entry.AlertKind = string(kind)
	entry.Symbol = hook.Instrument

	commit := func(ctx context.Context, d *grouping.Decision) error {
		d.Record.Broker = broker
		d.Record.BrokerSymbol = brokerSymbol
		d.Record.ReceivedAt = req.ReceivedAt
		if d.Group != nil && d.Group.Broker == "" {
			d.Group.Broker = broker
		}
		applyPnL(&d.Record)
		return s.sink.Commit(ctx, d)
	}
	d, err := s.engine.AssignAndCommit(ctx, req.Owner, hook, kind, commit)
	if err != nil {
		entry.Status = auditlog.StatusFailed
		entry.Error = err.Error()
		s.writeAudit(ctx, entry)
		metrics.WebhooksRejected.WithLabelValues(broker, string(auditlog.StatusFailed)).Inc()
		return Result{}, fmt.Errorf("ingest %s: %w", hook.Instrument, err)
	}

	res := Result{
		AlertKind: kind,
		Rule:      rule,
		Outcome:   d.Outcome,
		Duplicate: d.Duplicate(),
		Warnings:  hook.Warnings,
		Record:    d.Record,
		Group:     d.Group,
	}
	if res.Duplicate {
		entry.Status = auditlog.StatusDuplicate
		s.writeAudit(ctx, entry)
		metrics.WebhookDuplicates.WithLabelValues(broker).Inc()
		return res, nil
	}
	res.RecordID = d.Record.ID
	res.TradeGroupID = d.Record.TradeGroupID
	res.GroupClosed = d.Closed

	if d.Group != nil {
		if flags, ok := s.refreshChangeFlags(ctx, d.Group.ID); ok {
			if f, hit := flags[res.RecordID]; hit {
				res.Record.StopLossChanged = f.StopLossChanged
				res.Record.TakeProfitChanged = f.TakeProfitChanged
			}
		}
	}

	entry.Status = auditlog.StatusReceived
	entry.RecordID = res.RecordID
	entry.TradeGroupID = res.TradeGroupID
	s.writeAudit(ctx, entry)

	metrics.WebhooksReceived.WithLabelValues(broker, string(kind)).Inc()
	if d.Created() {
		metrics.GroupOpened(string(d.Group.Direction), d.Group.Orphan)
	}
	if d.Closed {
		metrics.GroupClosed(string(d.Group.Direction), string(kind.ExitType()))
	}
	if s.events != nil {
		s.events.Publish(req.Owner, ws.EventWebhookReceived, res)
	}
	logger.With("owner", req.Owner, "broker", broker, "group", res.TradeGroupID).
		Infof("ingest: symbol=%s kind=%s rule=%s outcome=%s", hook.Instrument, kind, rule, d.Outcome)
	return res, nil
}

// refreshChangeFlags recomputes SL/TP flags over the whole group and writes
// back only the records whose flags moved.
func (s *Service) refreshChangeFlags(ctx context.Context, groupID string) (map[uint64]types.WebhookRecord, bool) {
	records, err := s.sink.GroupRecords(ctx, groupID)
	if err != nil {
		logger.Warnf("ingest: 读取分组 %s 记录失败: %v", groupID, err)
		return nil, false
	}
	prev := make(map[uint64]types.WebhookRecord, len(records))
	for _, rec := range records {
		prev[rec.ID] = rec
	}
	annotated := tracker.Annotate(records)
	out := make(map[uint64]types.WebhookRecord, len(annotated))
	var changed []types.WebhookRecord
	for _, rec := range annotated {
		out[rec.ID] = rec
		old := prev[rec.ID]
		if old.StopLossChanged != rec.StopLossChanged || old.TakeProfitChanged != rec.TakeProfitChanged {
			changed = append(changed, rec)
		}
	}
	if len(changed) > 0 {
		if err := s.sink.UpdateChangeFlags(ctx, changed); err != nil {
			logger.Warnf("ingest: 更新分组 %s 的止盈止损变更标记失败: %v", groupID, err)
			return out, false
		}
	}
	return out, true
}

func (s *Service) writeAudit(ctx context.Context, e auditlog.Entry) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Insert(ctx, e); err != nil {
		logger.Errorf("ingest: 写入审计日志失败 owner=%s status=%s: %v", e.OwnerID, e.Status, err)
	}
}

func decodeBody(body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid json")
	}
	if !gjson.ParseBytes(body).IsObject() {
		return nil, errors.New("json body is not an object")
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// applyPnL fills realized P&L on exits that carry enough information.
func applyPnL(rec *types.WebhookRecord) {
	if !rec.Kind.IsExit() || rec.Webhook.Quantity == nil || *rec.Webhook.Quantity <= 0 {
		return
	}
	res, ok := pnl.ExitPnL(rec.EntryPriceCached, rec.Webhook.OrderPrice, rec.Direction, *rec.Webhook.Quantity)
	if !ok {
		return
	}
	rec.RealizedPnLPercent = types.Float(res.Percent)
	rec.RealizedPnLAbsolute = types.Float(res.Absolute)
}
