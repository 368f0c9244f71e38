package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
)

func (s *Server) ComputeBreakdown(c *gin.Context) {
	var req pricingdomain.EvaluationContext
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	breakdown, err := s.pricingEngine.ComputePriceBreakdown(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": breakdown})
}
