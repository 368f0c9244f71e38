package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
)

func (s *Server) CommitSettlement(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))

	var req settlementdomain.CommitSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.settlementSvc.CommitSettlement(c.Request.Context(), orderID, req.Breakdown)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) GetSettlement(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))

	view, err := s.settlementSvc.GetSnapshot(c.Request.Context(), settlementdomain.SubjectTypeOrder, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
