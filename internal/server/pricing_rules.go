package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	"github.com/banadama/pricing/pkg/db/pagination"
)

type listPricingRulesQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	Scope      string `form:"scope"`
	ScopeValue string `form:"scope_value"`
	RuleType   string `form:"rule_type"`
	ActiveOnly string `form:"active_only"`
}

func (s *Server) ListPricingRules(c *gin.Context) {
	var query listPricingRulesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	resp, err := s.pricingRuleSvc.List(c.Request.Context(), pricingruledomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Scope:      strings.TrimSpace(query.Scope),
		ScopeValue: strings.TrimSpace(query.ScopeValue),
		RuleType:   strings.TrimSpace(query.RuleType),
		ActiveOnly: activeOnly != nil && *activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Rules, "page_info": resp.PageInfo})
}

func (s *Server) GetPricingRule(c *gin.Context) {
	rule, err := s.pricingRuleSvc.GetRule(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) CreatePricingRule(c *gin.Context) {
	var req pricingruledomain.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.pricingRuleSvc.CreateRule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

func (s *Server) UpdatePricingRule(c *gin.Context) {
	var req pricingruledomain.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.pricingRuleSvc.UpdateRule(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeactivatePricingRule(c *gin.Context) {
	rule, err := s.pricingRuleSvc.DeactivateRule(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeletePricingRule(c *gin.Context) {
	if err := s.pricingRuleSvc.DeleteRule(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
