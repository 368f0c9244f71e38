package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/banadama/pricing/internal/authorization"
	checkoutdomain "github.com/banadama/pricing/internal/checkout/domain"
	"github.com/banadama/pricing/internal/observability"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
	taxdomain "github.com/banadama/pricing/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) ComputePriceBreakdown(ctx context.Context, in pricingdomain.EvaluationContext) (*pricingdomain.PriceBreakdown, error) {
	args := m.Called(ctx, in)
	breakdown, _ := args.Get(0).(*pricingdomain.PriceBreakdown)
	return breakdown, args.Error(1)
}

type mockPricingRuleSvc struct {
	mock.Mock
}

func (m *mockPricingRuleSvc) ListActiveRules(ctx context.Context, scope *pricingruledomain.Scope, scopeValue *string) ([]pricingruledomain.PricingRule, error) {
	args := m.Called(ctx, scope, scopeValue)
	rules, _ := args.Get(0).([]pricingruledomain.PricingRule)
	return rules, args.Error(1)
}

func (m *mockPricingRuleSvc) GetRule(ctx context.Context, id string) (*pricingruledomain.PricingRule, error) {
	args := m.Called(ctx, id)
	rule, _ := args.Get(0).(*pricingruledomain.PricingRule)
	return rule, args.Error(1)
}

func (m *mockPricingRuleSvc) List(ctx context.Context, req pricingruledomain.ListRequest) (*pricingruledomain.ListResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*pricingruledomain.ListResponse)
	return resp, args.Error(1)
}

func (m *mockPricingRuleSvc) CreateRule(ctx context.Context, req pricingruledomain.CreateRuleRequest) (*pricingruledomain.PricingRule, error) {
	args := m.Called(ctx, req)
	rule, _ := args.Get(0).(*pricingruledomain.PricingRule)
	return rule, args.Error(1)
}

func (m *mockPricingRuleSvc) UpdateRule(ctx context.Context, id string, req pricingruledomain.UpdateRuleRequest) (*pricingruledomain.PricingRule, error) {
	args := m.Called(ctx, id, req)
	rule, _ := args.Get(0).(*pricingruledomain.PricingRule)
	return rule, args.Error(1)
}

func (m *mockPricingRuleSvc) DeactivateRule(ctx context.Context, id string) (*pricingruledomain.PricingRule, error) {
	args := m.Called(ctx, id)
	rule, _ := args.Get(0).(*pricingruledomain.PricingRule)
	return rule, args.Error(1)
}

func (m *mockPricingRuleSvc) DeleteRule(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockTaxSvc struct {
	mock.Mock
}

func (m *mockTaxSvc) Create(ctx context.Context, req taxdomain.CreateRequest) (*taxdomain.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*taxdomain.Response)
	return resp, args.Error(1)
}

func (m *mockTaxSvc) List(ctx context.Context, req taxdomain.ListRequest) ([]taxdomain.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).([]taxdomain.Response)
	return resp, args.Error(1)
}

func (m *mockTaxSvc) Update(ctx context.Context, req taxdomain.UpdateRequest) (*taxdomain.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*taxdomain.Response)
	return resp, args.Error(1)
}

func (m *mockTaxSvc) Disable(ctx context.Context, id string) (*taxdomain.Response, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*taxdomain.Response)
	return resp, args.Error(1)
}

type testDeps struct {
	engine  *mockEngine
	rules   *mockPricingRuleSvc
	taxes   *mockTaxSvc
	handler http.Handler
}

func newTestServer(t *testing.T) testDeps {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authorization.NewInMemoryEnforcer()
	require.NoError(t, err)

	deps := testDeps{
		engine: &mockEngine{},
		rules:  &mockPricingRuleSvc{},
		taxes:  &mockTaxSvc{},
	}
	srv := NewServer(ServerParams{
		Gin:            NewEngine(observability.Config{}, nil),
		AuthzSvc:       authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		PricingEngine:  deps.engine,
		PricingRuleSvc: deps.rules,
		TaxSvc:         deps.taxes,
	})
	deps.handler = srv.Engine()
	return deps
}

func doRequest(t *testing.T, h http.Handler, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(encoded)
		}
		reader = bytes.NewReader([]byte(raw))
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(HeaderActorRole, role)
		req.Header.Set(HeaderActorID, "acct-1")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestComputeBreakdown(t *testing.T) {
	deps := newTestServer(t)
	evaluatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deps.engine.On("ComputePriceBreakdown", mock.Anything, mock.MatchedBy(func(in pricingdomain.EvaluationContext) bool {
		return in.Subtotal == 500000 && in.Currency == "NGN" && in.AccountID == "buyer-1"
	})).Return(&pricingdomain.PriceBreakdown{
		Subtotal:       500000,
		PlatformFee:    10000,
		BuyerFee:       5000,
		Total:          515000,
		Currency:       "NGN",
		RuleSetVersion: 3,
		EvaluatedAt:    evaluatedAt,
	}, nil).Once()

	rec := doRequest(t, deps.handler, http.MethodPost, "/api/pricing/breakdowns", "buyer", map[string]any{
		"currency":   "NGN",
		"subtotal":   500000,
		"account_id": "buyer-1",
		"country":    "NG",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data pricingdomain.PriceBreakdown `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(515000), resp.Data.Total)
	assert.Equal(t, int64(3), resp.Data.RuleSetVersion)
	assert.True(t, evaluatedAt.Equal(resp.Data.EvaluatedAt))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	deps.engine.AssertExpectations(t)
}

func TestComputeBreakdownErrors(t *testing.T) {
	tests := []struct {
		name       string
		engineErr  error
		wantStatus int
		wantType   string
		wantCode   string
		wantRuleID string
	}{
		{
			name:       "validation",
			engineErr:  pricingdomain.NewValidationError("invalid_subtotal", "subtotal must not be negative"),
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
			wantCode:   "invalid_subtotal",
		},
		{
			name:       "configuration",
			engineErr:  pricingdomain.NewConfigurationError("fee_exceeds_cap", "fee exceeds cap", "rule-9", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "configuration_error",
			wantCode:   "fee_exceeds_cap",
			wantRuleID: "rule-9",
		},
		{
			name:       "rule vanished",
			engineErr:  pricingdomain.NewNotFoundError("rule rule-4 no longer exists", "rule-4"),
			wantStatus: http.StatusNotFound,
			wantType:   "not_found",
			wantCode:   "rule_not_found",
			wantRuleID: "rule-4",
		},
		{
			name:       "unexpected",
			engineErr:  errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestServer(t)
			deps.engine.On("ComputePriceBreakdown", mock.Anything, mock.Anything).Return(nil, tt.engineErr).Once()

			rec := doRequest(t, deps.handler, http.MethodPost, "/api/pricing/breakdowns", "supplier", map[string]any{
				"currency": "NGN",
				"subtotal": 1000,
			})
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			payload := decodeError(t, rec)
			assert.Equal(t, tt.wantType, payload.Type)
			assert.Equal(t, tt.wantCode, payload.Code)
			assert.Equal(t, tt.wantRuleID, payload.RuleID)
		})
	}
}

func TestComputeBreakdownRejectsMalformedBody(t *testing.T) {
	deps := newTestServer(t)

	rec := doRequest(t, deps.handler, http.MethodPost, "/api/pricing/breakdowns", "buyer", `{"subtotal": "lots"`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)
	deps.engine.AssertNotCalled(t, "ComputePriceBreakdown", mock.Anything, mock.Anything)
}

func TestActorRequired(t *testing.T) {
	deps := newTestServer(t)

	rec := doRequest(t, deps.handler, http.MethodPost, "/api/pricing/breakdowns", "", map[string]any{"subtotal": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestRoleChecks(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "supplier cannot manage rules", role: "supplier", method: http.MethodPost, path: "/admin/pricing-rules", wantStatus: http.StatusForbidden},
		{name: "finance cannot manage rules", role: "finance", method: http.MethodDelete, path: "/admin/pricing-rules/1", wantStatus: http.StatusForbidden},
		{name: "buyer cannot read audit log", role: "buyer", method: http.MethodGet, path: "/admin/audit-logs", wantStatus: http.StatusForbidden},
		{name: "unknown role", role: "intern", method: http.MethodGet, path: "/admin/pricing-rules", wantStatus: http.StatusForbidden},
		{name: "buyer cannot commit settlement", role: "buyer", method: http.MethodPost, path: "/api/settlements/42", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestServer(t)
			rec := doRequest(t, deps.handler, tt.method, tt.path, tt.role, map[string]any{})
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestPricingRuleHandlers(t *testing.T) {
	t.Run("get missing rule", func(t *testing.T) {
		deps := newTestServer(t)
		deps.rules.On("GetRule", mock.Anything, "77").Return(nil, pricingruledomain.ErrNotFound).Once()

		rec := doRequest(t, deps.handler, http.MethodGet, "/admin/pricing-rules/77", "finance", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeError(t, rec).Type)
	})

	t.Run("create rejects invalid fee", func(t *testing.T) {
		deps := newTestServer(t)
		deps.rules.On("CreateRule", mock.Anything, mock.Anything).Return(nil, pricingruledomain.ErrInvalidFeeValue).Once()

		rec := doRequest(t, deps.handler, http.MethodPost, "/admin/pricing-rules", "admin", map[string]any{
			"scope":     "global",
			"rule_type": "platform_fee",
			"fee_type":  "percentage",
			"fee_value": "-1",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		payload := decodeError(t, rec)
		assert.Equal(t, "invalid_fee_value", payload.Code)
		require.Len(t, payload.Errors, 1)
		assert.Equal(t, "fee_value", payload.Errors[0].Field)
	})

	t.Run("list passes filters", func(t *testing.T) {
		deps := newTestServer(t)
		deps.rules.On("List", mock.Anything, mock.MatchedBy(func(req pricingruledomain.ListRequest) bool {
			return req.Scope == "country" && req.ScopeValue == "NG" && req.ActiveOnly && req.PageSize == 10
		})).Return(&pricingruledomain.ListResponse{Rules: []pricingruledomain.PricingRule{}}, nil).Once()

		rec := doRequest(t, deps.handler, http.MethodGet, "/admin/pricing-rules?scope=country&scope_value=NG&active_only=true&page_size=10", "admin", nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		deps.rules.AssertExpectations(t)
	})

	t.Run("delete", func(t *testing.T) {
		deps := newTestServer(t)
		deps.rules.On("DeleteRule", mock.Anything, "12").Return(nil).Once()

		rec := doRequest(t, deps.handler, http.MethodDelete, "/admin/pricing-rules/12", "admin", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		deps.rules.AssertExpectations(t)
	})
}

func TestTaxDefinitionHandlers(t *testing.T) {
	t.Run("create maps invalid rate", func(t *testing.T) {
		deps := newTestServer(t)
		deps.taxes.On("Create", mock.Anything, mock.MatchedBy(func(req taxdomain.CreateRequest) bool {
			return req.Country == "NG" && req.Kind == taxdomain.KindSales
		})).Return(nil, taxdomain.ErrInvalidTaxRate).Once()

		rec := doRequest(t, deps.handler, http.MethodPost, "/admin/tax-definitions", "finance", map[string]any{
			"country": " NG ",
			"kind":    "sales",
			"code":    "VAT",
			"name":    "Value added tax",
			"rate":    "1.5",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_tax_rate", decodeError(t, rec).Code)
	})

	t.Run("list rejects bad flag", func(t *testing.T) {
		deps := newTestServer(t)

		rec := doRequest(t, deps.handler, http.MethodGet, "/admin/tax-definitions?is_enabled=maybe", "finance", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		payload := decodeError(t, rec)
		require.Len(t, payload.Errors, 1)
		assert.Equal(t, "is_enabled", payload.Errors[0].Field)
		deps.taxes.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})

	t.Run("disable missing", func(t *testing.T) {
		deps := newTestServer(t)
		deps.taxes.On("Disable", mock.Anything, "5").Return(nil, taxdomain.ErrNotFound).Once()

		rec := doRequest(t, deps.handler, http.MethodPost, "/admin/tax-definitions/5/disable", "admin", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUnknownRoute(t *testing.T) {
	deps := newTestServer(t)

	rec := doRequest(t, deps.handler, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestMapErrorConcurrency(t *testing.T) {
	status, payload := mapError(&pricingdomain.Error{Kind: pricingdomain.KindConcurrency, Code: "rule_set_changed", Message: "retry"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, "rule_set_changed", payload.Code)

	status, _ = mapError(ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestMapErrorShipping(t *testing.T) {
	status, payload := mapError(checkoutdomain.ErrShippingRequired)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "shipping_required", payload.Code)

	status, payload = mapError(settlementdomain.ErrShippingPending)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "shipping_pending", payload.Code)
}
