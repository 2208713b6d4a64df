package apihttp

import (
	"errors"
	"net/http"
	"strings"

	"tvhook/internal/logger"
	"tvhook/internal/query"

	"github.com/gin-gonic/gin"
)

func (r *Router) handleTradeGroups(c *gin.Context) {
	var f query.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := c.Param("owner")
	groups, err := r.query.TradeGroups(c.Request.Context(), owner, f)
	if err != nil {
		r.internalError(c, "trade groups", owner, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade_groups": groups, "count": len(groups)})
}

func (r *Router) handleTradeGroup(c *gin.Context) {
	owner := c.Param("owner")
	id := strings.TrimSpace(c.Param("id"))
	detail, err := r.query.TradeGroup(c.Request.Context(), owner, id)
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trade group not found"})
			return
		}
		r.internalError(c, "trade group", owner, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (r *Router) handleLogs(c *gin.Context) {
	var f query.LogFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := c.Param("owner")
	page, err := r.query.Logs(c.Request.Context(), owner, f)
	if err != nil {
		r.internalError(c, "webhook logs", owner, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (r *Router) handleAudit(c *gin.Context) {
	var f query.LogFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := c.Param("owner")
	page, err := r.query.Audit(c.Request.Context(), owner, f)
	if err != nil {
		r.internalError(c, "webhook audit", owner, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (r *Router) handleStats(c *gin.Context) {
	owner := c.Param("owner")
	stats, err := r.query.Stats(c.Request.Context(), owner)
	if err != nil {
		r.internalError(c, "webhook stats", owner, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (r *Router) handleWS(c *gin.Context) {
	r.hub.Serve(c.Writer, c.Request, c.Param("owner"))
}

func (r *Router) internalError(c *gin.Context, what, owner string, err error) {
	logger.Errorf("[api] %s 查询失败 owner=%s ip=%s err=%v", what, owner, sourceIP(c.Request), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
