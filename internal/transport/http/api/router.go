package apihttp

import (
	"context"
	"net/http"

	"tvhook/internal/ingest"
	"tvhook/internal/query"
	"tvhook/internal/store/auditlog"

	"github.com/gin-gonic/gin"
)

// Ingestor handles one accepted webhook.
type Ingestor interface {
	Handle(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

// QueryService 是 owner 维度的只读查询。
type QueryService interface {
	TradeGroups(ctx context.Context, owner string, f query.Filter) ([]query.GroupSummary, error)
	TradeGroup(ctx context.Context, owner, id string) (query.GroupDetail, error)
	Logs(ctx context.Context, owner string, f query.LogFilter) (query.LogPage, error)
	Audit(ctx context.Context, owner string, f query.LogFilter) (query.AuditPage, error)
	Stats(ctx context.Context, owner string) (query.Stats, error)
}

// WebhookPolicy decides who may post. config.WebhookConfig implements it.
type WebhookPolicy interface {
	BrokerEnabled(broker string) bool
	ResolveOwner(identifier string) (string, bool)
	IPAllowed(owner, ip string) bool
}

// Auditor records requests rejected before ingestion.
type Auditor interface {
	Insert(ctx context.Context, e auditlog.Entry) (int64, error)
}

// Subscriber serves websocket subscriptions.
type Subscriber interface {
	Serve(w http.ResponseWriter, r *http.Request, owner string)
}

type Router struct {
	ingest  Ingestor
	query   QueryService
	policy  WebhookPolicy
	audit   Auditor
	hub     Subscriber
	maxBody int64
}

func NewRouter(cfg ServerConfig) *Router {
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Router{
		ingest:  cfg.Ingest,
		query:   cfg.Query,
		policy:  cfg.Policy,
		audit:   cfg.Audit,
		hub:     cfg.Hub,
		maxBody: maxBody,
	}
}

// RegisterWebhook 挂载 POST /webhook/:broker/:identifier。
func (r *Router) RegisterWebhook(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/:broker/:identifier", r.handleWebhook)
}

// RegisterOwnerAPI 挂载 /api/owners/:owner 下的查询接口。
func (r *Router) RegisterOwnerAPI(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/trade-groups", r.handleTradeGroups)
	group.GET("/trade-groups/:id", r.handleTradeGroup)
	group.GET("/webhook-logs", r.handleLogs)
	group.GET("/webhook-logs/stats", r.handleStats)
	group.GET("/webhook-logs/audit", r.handleAudit)
	if r.hub != nil {
		group.GET("/ws", r.handleWS)
	}
}
