package apihttp

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"tvhook/internal/ingest"
	"tvhook/internal/logger"
	"tvhook/internal/metrics"
	"tvhook/internal/store/auditlog"

	"github.com/gin-gonic/gin"
)

type webhookResponse struct {
	Success      bool   `json:"success"`
	RecordID     uint64 `json:"record_id,omitempty"`
	TradeGroupID string `json:"trade_group_id,omitempty"`
	AlertKind    string `json:"alert_kind,omitempty"`
	Duplicate    bool   `json:"duplicate"`
	Error        string `json:"error,omitempty"`
}

func (r *Router) handleWebhook(c *gin.Context) {
	broker := strings.ToLower(strings.TrimSpace(c.Param("broker")))
	identifier := strings.TrimSpace(c.Param("identifier"))
	ip := sourceIP(c.Request)

	body, readErr := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, r.maxBody))
	reject := func(status int, reason, owner string, err error) {
		metrics.WebhooksRejected.WithLabelValues(broker, reason).Inc()
		r.auditRejected(c, auditlog.Entry{
			OwnerID:    owner,
			Broker:     broker,
			Identifier: identifier,
			SourceIP:   ip,
			Body:       string(body),
			Error:      reason + ": " + err.Error(),
		})
		logger.Warnf("webhook 拒绝 broker=%s identifier=%s ip=%s reason=%s", broker, identifier, ip, reason)
		c.JSON(status, webhookResponse{Error: err.Error()})
	}

	if !r.policy.BrokerEnabled(broker) {
		reject(http.StatusNotFound, "unknown_broker", "", errors.New("broker not supported"))
		return
	}
	owner, ok := r.policy.ResolveOwner(identifier)
	if !ok {
		reject(http.StatusUnauthorized, "unknown_owner", "", errors.New("unknown webhook identifier"))
		return
	}
	if !r.policy.IPAllowed(owner, ip) {
		reject(http.StatusForbidden, "ip_denied", owner, errors.New("source address not allowed"))
		return
	}
	if readErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(readErr, &tooLarge) {
			reject(http.StatusRequestEntityTooLarge, "too_large", owner, readErr)
			return
		}
		reject(http.StatusBadRequest, "read_error", owner, readErr)
		return
	}

	res, err := r.ingest.Handle(c.Request.Context(), ingest.Request{
		Owner:      owner,
		Broker:     broker,
		Identifier: identifier,
		SourceIP:   ip,
		Body:       body,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidPayload) {
			c.JSON(http.StatusBadRequest, webhookResponse{Error: err.Error()})
			return
		}
		logger.Errorf("webhook 处理失败 owner=%s broker=%s: %v", owner, broker, err)
		c.JSON(http.StatusInternalServerError, webhookResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, webhookResponse{
		Success:      true,
		RecordID:     res.RecordID,
		TradeGroupID: res.TradeGroupID,
		AlertKind:    string(res.AlertKind),
		Duplicate:    res.Duplicate,
	})
}

func (r *Router) auditRejected(c *gin.Context, e auditlog.Entry) {
	if r.audit == nil {
		return
	}
	e.Status = auditlog.StatusRejected
	if _, err := r.audit.Insert(c.Request.Context(), e); err != nil {
		logger.Errorf("webhook 审计写入失败: %v", err)
	}
}

// sourceIP prefers X-Real-IP, then the first X-Forwarded-For hop, then the
// connection address.
func sourceIP(req *http.Request) string {
	if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
