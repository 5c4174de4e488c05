package commissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/money"
)

// CreatePolicyInput is a new policy version. Versions are assigned in order.
type CreatePolicyInput struct {
	Method        enums.CalculationMethod `json:"method" validate:"required"`
	RateBp        int64                   `json:"rateBp" validate:"gte=0,lte=10000"`
	FixedAmount   int64                   `json:"fixedAmount" validate:"gte=0"`
	HunterBp      int64                   `json:"hunterBp" validate:"gte=0,lte=10000"`
	ConsultantBp  int64                   `json:"consultantBp" validate:"gte=0,lte=10000"`
	BrokerBp      int64                   `json:"brokerBp" validate:"gte=0,lte=10000"`
	SystemBp      int64                   `json:"systemBp" validate:"gte=0,lte=10000"`
	Rounding      enums.RoundingRule      `json:"rounding" validate:"required"`
	Currency      string                  `json:"currency" validate:"required,len=3"`
	EffectiveFrom time.Time               `json:"effectiveFrom" validate:"required"`
	EffectiveTo   *time.Time              `json:"effectiveTo,omitempty"`
}

func (in CreatePolicyInput) validate() error {
	if !in.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid calculation method %q", in.Method))
	}
	if !in.Rounding.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid rounding rule %q", in.Rounding))
	}
	if in.RateBp < 0 || in.RateBp > money.BasisPointsScale {
		return pkgerrors.New(pkgerrors.CodeValidation, "rateBp must be between 0 and 10000")
	}
	if in.FixedAmount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "fixedAmount must not be negative")
	}
	var sum int64
	for _, bp := range []int64{in.HunterBp, in.ConsultantBp, in.BrokerBp, in.SystemBp} {
		if bp < 0 || bp > money.BasisPointsScale {
			return pkgerrors.New(pkgerrors.CodeValidation, "split basis points must be between 0 and 10000")
		}
		sum += bp
	}
	if sum != money.BasisPointsScale {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("split basis points must sum to 10000, got %d", sum))
	}
	if len(strings.TrimSpace(in.Currency)) != 3 {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3 letter code")
	}
	if in.EffectiveFrom.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "effectiveFrom is required")
	}
	if in.EffectiveTo != nil && !in.EffectiveTo.After(in.EffectiveFrom) {
		return pkgerrors.New(pkgerrors.CodeValidation, "effectiveTo must be after effectiveFrom")
	}
	return nil
}

// DefaultPolicy is the version materialized when none has ever been created.
func DefaultPolicy(cfg config.CommissionConfig) models.CommissionPolicyVersion {
	rounding := enums.RoundingRule(strings.ToUpper(strings.TrimSpace(cfg.DefaultRounding)))
	if !rounding.IsValid() {
		rounding = enums.RoundingHalfUp
	}
	return models.CommissionPolicyVersion{
		Method:        enums.CalculationMethodPercentage,
		RateBp:        cfg.DefaultRateBp,
		HunterBp:      cfg.DefaultHunterBp,
		ConsultantBp:  cfg.DefaultConsultantBp,
		BrokerBp:      cfg.DefaultBrokerBp,
		SystemBp:      cfg.DefaultSystemBp,
		Rounding:      rounding,
		Currency:      strings.ToUpper(cfg.DefaultCurrency),
		EffectiveFrom: time.Unix(0, 0).UTC(),
		IsActive:      true,
	}
}

func (s *service) CreatePolicy(ctx context.Context, actor auth.Actor, input CreatePolicyInput) (*models.CommissionPolicyVersion, error) {
	if actor.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can create commission policies")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	policy := &models.CommissionPolicyVersion{
		Method:          input.Method,
		RateBp:          input.RateBp,
		FixedAmount:     input.FixedAmount,
		HunterBp:        input.HunterBp,
		ConsultantBp:    input.ConsultantBp,
		BrokerBp:        input.BrokerBp,
		SystemBp:        input.SystemBp,
		Rounding:        input.Rounding,
		Currency:        strings.ToUpper(strings.TrimSpace(input.Currency)),
		EffectiveFrom:   models.Timestamp(input.EffectiveFrom),
		IsActive:        true,
		CreatedByUserID: actor.UserIDPtr(),
	}
	if input.EffectiveTo != nil {
		to := models.Timestamp(*input.EffectiveTo)
		policy.EffectiveTo = &to
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		max, err := repo.MaxPolicyVersion(ctx)
		if err != nil {
			return err
		}
		policy.Version = max + 1
		return repo.CreatePolicy(ctx, policy)
	})
	if err != nil {
		return nil, s.storeError(err, "create commission policy")
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionPolicyCreated,
		EntityType: audit.EntityPolicy,
		EntityID:   policy.ID.String(),
		After:      policy,
	})
	return policy, nil
}

func (s *service) ActivePolicy(ctx context.Context, at time.Time) (*models.CommissionPolicyVersion, error) {
	if at.IsZero() {
		at = s.now()
	}
	var policy *models.CommissionPolicyVersion
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		policy, err = s.resolvePolicy(ctx, s.repo.WithTx(tx), at)
		return err
	})
	if err != nil {
		return nil, s.storeError(err, "resolve commission policy")
	}
	return policy, nil
}

// resolvePolicy returns the version effective at the instant. When no version
// covers it, the configured default is saved as the next version and used.
// The default is open-ended from the epoch, so it is materialized at most once.
func (s *service) resolvePolicy(ctx context.Context, repo Repository, at time.Time) (*models.CommissionPolicyVersion, error) {
	at = models.Timestamp(at)
	policy, err := repo.FindPolicyAt(ctx, at)
	if err != nil || policy != nil {
		return policy, err
	}

	latest, err := repo.MaxPolicyVersion(ctx)
	if err != nil {
		return nil, err
	}
	def := DefaultPolicy(s.cfg)
	def.Version = latest + 1
	if err := repo.CreatePolicy(ctx, &def); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "policy_id", def.ID.String()), "default commission policy materialized")
	return &def, nil
}
