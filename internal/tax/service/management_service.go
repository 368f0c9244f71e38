package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	"github.com/banadama/pricing/internal/clock"
	taxdomain "github.com/banadama/pricing/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const auditTargetType = "tax_definition"

type serviceParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  taxdomain.Repository
	Audit auditdomain.Service
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  taxdomain.Repository
	audit auditdomain.Service
}

func NewService(p serviceParams) taxdomain.Service {
	return &Service{
		log:   p.Log.Named("tax.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) List(ctx context.Context, req taxdomain.ListRequest) ([]taxdomain.Response, error) {
	filter := taxdomain.ListRequest{
		Country:   strings.ToUpper(strings.TrimSpace(req.Country)),
		Kind:      strings.ToLower(strings.TrimSpace(req.Kind)),
		Code:      strings.TrimSpace(req.Code),
		IsEnabled: req.IsEnabled,
		SortBy:    strings.TrimSpace(req.SortBy),
		OrderBy:   strings.TrimSpace(req.OrderBy),
	}
	if filter.Kind != "" && !taxdomain.Kind(filter.Kind).Valid() {
		return nil, taxdomain.ErrInvalidKind
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]taxdomain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(&item))
	}

	return resp, nil
}

func (s *Service) Create(ctx context.Context, req taxdomain.CreateRequest) (*taxdomain.Response, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, taxdomain.ErrInvalidTaxCode
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, taxdomain.ErrInvalidName
	}

	isEnabled := true
	if req.IsEnabled != nil {
		isEnabled = *req.IsEnabled
	}

	now := s.clock.Now().UTC()
	record := &taxdomain.TaxDefinition{
		ID:          s.genID.Generate(),
		Country:     strings.ToUpper(strings.TrimSpace(req.Country)),
		Kind:        taxdomain.Kind(strings.ToLower(strings.TrimSpace(string(req.Kind)))),
		Name:        name,
		Code:        code,
		Rate:        req.Rate,
		Description: trimmedOrNil(req.Description),
		IsEnabled:   isEnabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	resp := toResponse(record)
	s.record(ctx, auditdomain.ActionTaxDefinitionCreate, record, map[string]any{"after": resp})
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req taxdomain.UpdateRequest) (*taxdomain.Response, error) {
	item, err := s.find(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	before := toResponse(item)

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, taxdomain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Rate != nil {
		item.Rate = *req.Rate
	}
	if req.Description != nil {
		item.Description = trimmedOrNil(req.Description)
	}

	item.UpdatedAt = s.clock.Now().UTC()
	if err := item.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}

	resp := toResponse(item)
	s.record(ctx, auditdomain.ActionTaxDefinitionUpdate, item, map[string]any{"before": before, "after": resp})
	return &resp, nil
}

func (s *Service) Disable(ctx context.Context, id string) (*taxdomain.Response, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	item.IsEnabled = false
	item.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}

	resp := toResponse(item)
	s.record(ctx, auditdomain.ActionTaxDefinitionDisable, item, nil)
	return &resp, nil
}

func (s *Service) find(ctx context.Context, id string) (*taxdomain.TaxDefinition, error) {
	defID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, taxdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, defID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, taxdomain.ErrNotFound
	}
	return item, nil
}

// record audits a definition change. Failures are logged, not returned,
// because the definition row is already committed.
func (s *Service) record(ctx context.Context, action string, def *taxdomain.TaxDefinition, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["country"] = def.Country
	metadata["kind"] = string(def.Kind)
	metadata["code"] = def.Code

	targetID := def.ID.String()
	if err := s.audit.AuditLog(ctx, "", nil, action, auditTargetType, &targetID, metadata); err != nil {
		s.log.Warn("failed to write tax definition audit log",
			zap.String("action", action),
			zap.String("tax_definition_id", targetID),
			zap.Error(err),
		)
	}
}

func toResponse(def *taxdomain.TaxDefinition) taxdomain.Response {
	return taxdomain.Response{
		ID:          def.ID.String(),
		Country:     def.Country,
		Kind:        def.Kind,
		Code:        def.Code,
		Name:        def.Name,
		Rate:        def.Rate,
		Description: def.Description,
		IsEnabled:   def.IsEnabled,
		CreatedAt:   def.CreatedAt,
		UpdatedAt:   def.UpdatedAt,
	}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
