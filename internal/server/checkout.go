package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/banadama/pricing/internal/checkout/domain"
	"github.com/banadama/pricing/internal/observability/logger"
	"go.uber.org/zap"
)

func (s *Server) PlaceOrder(c *gin.Context) {
	var req checkoutdomain.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.IdempotencyKey = strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))

	result, err := s.checkoutSvc.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(orderStatus(result), gin.H{"data": result})
}

func (s *Server) QuoteRFQ(c *gin.Context) {
	var req checkoutdomain.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RFQID = strings.TrimSpace(c.Param("rfq_id"))

	result, err := s.checkoutSvc.QuoteRFQ(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) AcceptQuote(c *gin.Context) {
	var req checkoutdomain.AcceptQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RFQID = strings.TrimSpace(c.Param("rfq_id"))
	req.QuoteID = strings.TrimSpace(req.QuoteID)

	ctx := c.Request.Context()
	if req.QuoteID != "" {
		token, ok, err := s.limiter.TryLockQuote(ctx, req.QuoteID)
		if err != nil {
			logger.FromContext(ctx).Warn("quote accept lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !ok {
			AbortWithError(c, ErrConflict)
			return
		}
		defer s.limiter.ReleaseQuote(ctx, req.QuoteID, token)
	}

	result, err := s.checkoutSvc.AcceptQuote(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(orderStatus(result), gin.H{"data": result})
}

func orderStatus(result *checkoutdomain.OrderResult) int {
	if result.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}
