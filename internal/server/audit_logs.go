package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/minghua-center/minghua/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = n
	}

	logs, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Action:  c.Query("action"),
		ActorID: c.Query("actor_id"),
		Limit:   limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
}
