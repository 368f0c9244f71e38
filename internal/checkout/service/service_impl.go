package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	checkoutdomain "github.com/banadama/pricing/internal/checkout/domain"
	"github.com/banadama/pricing/internal/clock"
	"github.com/banadama/pricing/internal/observability/logger"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
	pkgdb "github.com/banadama/pricing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errAlreadyAccepted aborts an acceptance that lost the race for a quote.
var errAlreadyAccepted = errors.New("quote already accepted")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       checkoutdomain.Repository
	Engine     pricingdomain.Engine
	Settlement settlementdomain.Service
	Audit      auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       checkoutdomain.Repository
	engine     pricingdomain.Engine
	settlement settlementdomain.Service
	audit      auditdomain.Service
}

func New(p Params) checkoutdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		engine:     p.Engine,
		settlement: p.Settlement,
		audit:      p.Audit,
	}
}

func (s *Service) PlaceOrder(ctx context.Context, req checkoutdomain.PlaceOrderRequest) (*checkoutdomain.OrderResult, error) {
	if err := validateParty(req.Party, req.LineItems); err != nil {
		return nil, err
	}
	if req.Shipping == nil {
		return nil, checkoutdomain.ErrShippingRequired
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindOrderByIdempotencyKey(ctx, s.db, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.replayOrder(ctx, existing)
		}
	}

	breakdown, err := s.engine.ComputePriceBreakdown(ctx, evaluationContext(req.Party, req.Currency, req.LineItems, req.Shipping))
	if err != nil {
		return nil, err
	}

	order := s.newOrder(req.Party, breakdown, req.LineItems)
	if key != "" {
		order.IdempotencyKey = &key
	}

	var settlement settlementdomain.EscrowSettlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertOrder(ctx, tx, &order); err != nil {
			return err
		}
		result, err := s.settlement.CommitSettlementTx(ctx, tx, settlementdomain.CommitInput{
			SubjectID: order.ID.String(),
			Breakdown: *breakdown,
			LineItems: req.LineItems,
		})
		if err != nil {
			return err
		}
		settlement = result.Settlement

		orderID := order.ID.String()
		metadata := map[string]any{
			"total":            order.Total,
			"currency":         order.Currency,
			"rule_set_version": breakdown.RuleSetVersion,
		}
		if key != "" {
			metadata["idempotency_key"] = key
		}
		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionOrderPlace,
			TargetType: "order",
			TargetID:   &orderID,
			Metadata:   metadata,
		})
	})
	if err != nil {
		if key != "" && pkgdb.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindOrderByIdempotencyKey(ctx, s.db, key)
			if findErr == nil && existing != nil {
				return s.replayOrder(ctx, existing)
			}
		}
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.Int64("total", order.Total),
		zap.String("currency", order.Currency),
	)
	return &checkoutdomain.OrderResult{Order: order, Breakdown: *breakdown, Settlement: settlement}, nil
}

func (s *Service) QuoteRFQ(ctx context.Context, req checkoutdomain.QuoteRequest) (*checkoutdomain.QuoteResult, error) {
	rfqID := strings.TrimSpace(req.RFQID)
	if rfqID == "" {
		return nil, checkoutdomain.ErrInvalidRFQID
	}
	if err := validateParty(req.Party, req.LineItems); err != nil {
		return nil, err
	}

	evalCtx := evaluationContext(req.Party, req.Currency, req.LineItems, nil)
	breakdown, err := s.engine.ComputePriceBreakdown(ctx, evalCtx)
	if err != nil {
		return nil, err
	}
	// acceptance replays the quote at its own evaluation time
	evalCtx.EvaluatedAt = breakdown.EvaluatedAt
	if evalCtx, err = evalCtx.Normalize(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	quote := checkoutdomain.Quote{
		ID:               s.genID.Generate(),
		RFQID:            rfqID,
		Status:           checkoutdomain.QuoteStatusOpen,
		Context:          datatypes.NewJSONType(evalCtx),
		RuleSetVersion:   breakdown.RuleSetVersion,
		ProvisionalTotal: breakdown.Total,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertQuote(ctx, tx, &quote); err != nil {
			return err
		}
		if _, err := s.settlement.RecordQuoteSnapshotTx(ctx, tx, settlementdomain.CommitInput{
			SubjectID: quote.ID.String(),
			Breakdown: *breakdown,
			LineItems: req.LineItems,
		}); err != nil {
			return err
		}
		quoteID := quote.ID.String()
		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionQuoteCreate,
			TargetType: "quote",
			TargetID:   &quoteID,
			Metadata: map[string]any{
				"rfq_id":            rfqID,
				"provisional_total": breakdown.Total,
				"rule_set_version":  breakdown.RuleSetVersion,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return &checkoutdomain.QuoteResult{Quote: quote, Breakdown: *breakdown}, nil
}

// AcceptQuote turns an open quote into an order. While the rule set is
// unchanged the quote is re-evaluated at its original time, so the applied
// rules match the quote and only shipping moves the total.
func (s *Service) AcceptQuote(ctx context.Context, req checkoutdomain.AcceptQuoteRequest) (*checkoutdomain.OrderResult, error) {
	rfqID := strings.TrimSpace(req.RFQID)
	if rfqID == "" {
		return nil, checkoutdomain.ErrInvalidRFQID
	}
	quoteID, err := snowflake.ParseString(strings.TrimSpace(req.QuoteID))
	if err != nil || quoteID == 0 {
		return nil, checkoutdomain.ErrInvalidQuoteID
	}

	quote, err := s.repo.FindQuote(ctx, s.db, rfqID, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, checkoutdomain.ErrQuoteNotFound
	}
	if quote.Status == checkoutdomain.QuoteStatusAccepted {
		return s.replayAcceptedQuote(ctx, quote)
	}
	if req.Shipping == nil {
		return nil, checkoutdomain.ErrShippingRequired
	}

	provisional, err := s.settlement.GetSnapshot(ctx, settlementdomain.SubjectTypeQuote, quote.ID.String())
	if err != nil {
		return nil, err
	}

	evalCtx := quote.Context.Data()
	shipping := *req.Shipping
	evalCtx.ShippingEstimate = &shipping

	final, err := s.engine.ComputePriceBreakdown(ctx, evalCtx)
	if err != nil {
		return nil, err
	}
	rulesChanged := final.RuleSetVersion != quote.RuleSetVersion
	if rulesChanged {
		evalCtx.EvaluatedAt = time.Time{}
		if final, err = s.engine.ComputePriceBreakdown(ctx, evalCtx); err != nil {
			return nil, err
		}
	} else if !pricingdomain.SameSelection(provisional.Snapshot.Breakdown(), *final) {
		return nil, pricingdomain.NewConfigurationError("quote_selection_changed",
			"accepted quote resolved different rules under the same rule set", "", checkoutdomain.ErrQuoteSelectionChanged)
	}

	lineItems := evalCtx.LineItems
	party := checkoutdomain.Party{
		BuyerAccountID:    evalCtx.AccountID,
		SupplierAccountID: evalCtx.SupplierAccountID,
		Country:           evalCtx.Country,
		SupplierCountry:   evalCtx.SupplierCountry,
		CategorySlug:      evalCtx.CategorySlug,
	}
	order := s.newOrder(party, final, lineItems)
	order.QuoteID = &quote.ID

	var settlement settlementdomain.EscrowSettlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertOrder(ctx, tx, &order); err != nil {
			return err
		}

		quote.OrderID = &order.ID
		quote.UpdatedAt = s.clock.Now().UTC()
		accepted, err := s.repo.MarkQuoteAccepted(ctx, tx, quote)
		if err != nil {
			return err
		}
		if !accepted {
			return errAlreadyAccepted
		}

		result, err := s.settlement.CommitSettlementTx(ctx, tx, settlementdomain.CommitInput{
			SubjectID: order.ID.String(),
			Breakdown: *final,
			LineItems: lineItems,
		})
		if err != nil {
			return err
		}
		settlement = result.Settlement

		target := quote.ID.String()
		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionQuoteAccept,
			TargetType: "quote",
			TargetID:   &target,
			Metadata: map[string]any{
				"rfq_id":            rfqID,
				"order_id":          order.ID.String(),
				"provisional_total": quote.ProvisionalTotal,
				"total":             final.Total,
				"rule_set_version":  final.RuleSetVersion,
				"rule_set_changed":  rulesChanged,
			},
		})
	})
	if err != nil {
		if errors.Is(err, errAlreadyAccepted) || pkgdb.IsDuplicateKeyErr(err) {
			current, findErr := s.repo.FindQuote(ctx, s.db, rfqID, quoteID)
			if findErr == nil && current != nil && current.Status == checkoutdomain.QuoteStatusAccepted {
				return s.replayAcceptedQuote(ctx, current)
			}
		}
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("quote accepted",
		zap.String("quote_id", quote.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.Bool("rule_set_changed", rulesChanged),
	)
	return &checkoutdomain.OrderResult{Order: order, Breakdown: *final, Settlement: settlement}, nil
}

func (s *Service) replayAcceptedQuote(ctx context.Context, quote *checkoutdomain.Quote) (*checkoutdomain.OrderResult, error) {
	if quote.OrderID == nil {
		return nil, checkoutdomain.ErrQuoteNotFound
	}
	order, err := s.repo.FindOrderByID(ctx, s.db, *quote.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, settlementdomain.ErrNotFound
	}
	return s.replayOrder(ctx, order)
}

func (s *Service) replayOrder(ctx context.Context, order *checkoutdomain.Order) (*checkoutdomain.OrderResult, error) {
	view, err := s.settlement.GetSnapshot(ctx, settlementdomain.SubjectTypeOrder, order.ID.String())
	if err != nil {
		return nil, err
	}
	return &checkoutdomain.OrderResult{
		Order:      *order,
		Breakdown:  view.Snapshot.Breakdown(),
		Settlement: view.Settlement,
		Replayed:   true,
	}, nil
}

func (s *Service) newOrder(party checkoutdomain.Party, breakdown *pricingdomain.PriceBreakdown, lineItems []pricingdomain.LineItem) checkoutdomain.Order {
	return checkoutdomain.Order{
		ID:                s.genID.Generate(),
		BuyerAccountID:    strings.TrimSpace(party.BuyerAccountID),
		SupplierAccountID: strings.TrimSpace(party.SupplierAccountID),
		Status:            checkoutdomain.OrderStatusPlaced,
		Currency:          breakdown.Currency,
		Subtotal:          breakdown.Subtotal,
		Total:             breakdown.Total,
		LineItems:         datatypes.NewJSONType(lineItems),
		CreatedAt:         s.clock.Now().UTC(),
	}
}

func validateParty(party checkoutdomain.Party, lineItems []pricingdomain.LineItem) error {
	if strings.TrimSpace(party.SupplierAccountID) == "" {
		return checkoutdomain.ErrMissingSupplier
	}
	if len(lineItems) == 0 {
		return checkoutdomain.ErrMissingLineItems
	}
	return nil
}

func evaluationContext(party checkoutdomain.Party, currency string, lineItems []pricingdomain.LineItem, shipping *int64) pricingdomain.EvaluationContext {
	return pricingdomain.EvaluationContext{
		Currency:          currency,
		LineItems:         lineItems,
		AccountID:         party.BuyerAccountID,
		SupplierAccountID: party.SupplierAccountID,
		Country:           party.Country,
		SupplierCountry:   party.SupplierCountry,
		CategorySlug:      party.CategorySlug,
		ShippingEstimate:  shipping,
	}
}
