package hierarchy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
)

const (
	// DefaultMaxDepth bounds parent walks on write and default upline reads.
	DefaultMaxDepth = 10
	// MaxUplineDepth is the largest depth a caller may request.
	MaxUplineDepth = 50
)

var hundred = decimal.NewFromInt(100)

// UplineEntry is one ancestor, nearest first.
type UplineEntry struct {
	UserID uuid.UUID      `json:"userId"`
	Role   enums.UserRole `json:"role"`
	Depth  int            `json:"depth"`
}

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service resolves the sales hierarchy and per-role commission splits.
type Service interface {
	// WithTx binds reads to tx. Mutations on the returned service still open
	// their own transaction.
	WithTx(tx *gorm.DB) Service
	SetParent(ctx context.Context, actor auth.Actor, child uuid.UUID, parent *uuid.UUID) error
	GetUpline(ctx context.Context, user uuid.UUID, maxDepth int) ([]UplineEntry, error)
	GetEffectiveCommissionSplit(ctx context.Context, role enums.CommissionRole, defaultPercent decimal.Decimal) (decimal.Decimal, error)
	SetCommissionSplit(ctx context.Context, actor auth.Actor, role enums.CommissionRole, percent decimal.Decimal) (*models.CommissionSplitConfig, error)
}

type service struct {
	db       transactor
	repo     Repository
	audit    audit.Recorder
	maxDepth int
}

// NewService wires the hierarchy service. maxDepth <= 0 uses DefaultMaxDepth.
func NewService(db transactor, repo Repository, recorder audit.Recorder, maxDepth int) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("transactor required")
	}
	if repo == nil {
		return nil, fmt.Errorf("hierarchy repository required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if maxDepth <= 0 || maxDepth > MaxUplineDepth {
		maxDepth = DefaultMaxDepth
	}
	return &service{db: db, repo: repo, audit: recorder, maxDepth: maxDepth}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	bound := *s
	bound.repo = s.repo.WithTx(tx)
	return &bound
}

func (s *service) SetParent(ctx context.Context, actor auth.Actor, child uuid.UUID, parent *uuid.UUID) error {
	if !actor.IsSystem() && !actor.Role.IsPrivileged() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only brokers and admins can change the hierarchy")
	}
	if child == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if parent != nil && *parent == child {
		return pkgerrors.New(pkgerrors.CodeValidation, "a user cannot be their own parent")
	}

	var before *uuid.UUID
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.FindUser(ctx, child)
		if err != nil {
			return err
		}
		if user == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		before = user.ParentID

		if parent != nil {
			if err := s.checkAncestry(ctx, repo, child, *parent); err != nil {
				return err
			}
		}
		return repo.SetParent(ctx, child, parent)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set parent")
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionUserParentSet,
		EntityType: audit.EntityUser,
		EntityID:   child.String(),
		Before:     map[string]any{"parentId": idOrNil(before)},
		After:      map[string]any{"parentId": idOrNil(parent)},
	})
	return nil
}

// checkAncestry walks from parent upward and fails if child is reachable or
// the chain is deeper than the configured bound.
func (s *service) checkAncestry(ctx context.Context, repo Repository, child, parent uuid.UUID) error {
	seen := map[uuid.UUID]struct{}{}
	current := parent
	for depth := 0; ; depth++ {
		if current == child {
			return pkgerrors.New(pkgerrors.CodeConflict, "parent assignment would create a cycle")
		}
		if _, ok := seen[current]; ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "existing hierarchy contains a cycle")
		}
		if depth >= s.maxDepth {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("hierarchy deeper than %d levels", s.maxDepth))
		}
		seen[current] = struct{}{}

		user, err := repo.FindUser(ctx, current)
		if err != nil {
			return err
		}
		if user == nil {
			if current == parent {
				return pkgerrors.New(pkgerrors.CodeNotFound, "parent user not found")
			}
			return nil
		}
		if user.ParentID == nil {
			return nil
		}
		current = *user.ParentID
	}
}

func (s *service) GetUpline(ctx context.Context, user uuid.UUID, maxDepth int) ([]UplineEntry, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxDepth > MaxUplineDepth {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("max depth must be at most %d", MaxUplineDepth))
	}

	start, err := s.repo.FindUser(ctx, user)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if start == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	upline := []UplineEntry{}
	seen := map[uuid.UUID]struct{}{user: {}}
	next := start.ParentID
	for depth := 1; next != nil && depth <= maxDepth; depth++ {
		if _, ok := seen[*next]; ok {
			break
		}
		seen[*next] = struct{}{}

		ancestor, err := s.repo.FindUser(ctx, *next)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ancestor")
		}
		if ancestor == nil {
			break
		}
		upline = append(upline, UplineEntry{UserID: ancestor.ID, Role: ancestor.Role, Depth: depth})
		next = ancestor.ParentID
	}
	return upline, nil
}

func (s *service) GetEffectiveCommissionSplit(ctx context.Context, role enums.CommissionRole, defaultPercent decimal.Decimal) (decimal.Decimal, error) {
	if !role.IsValid() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "invalid commission role")
	}
	if !inPercentRange(defaultPercent) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "default percent must be between 0 and 100")
	}
	cfg, err := s.repo.FindSplit(ctx, role)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission split")
	}
	if cfg == nil {
		return defaultPercent, nil
	}
	return cfg.Percent, nil
}

func (s *service) SetCommissionSplit(ctx context.Context, actor auth.Actor, role enums.CommissionRole, percent decimal.Decimal) (*models.CommissionSplitConfig, error) {
	if actor.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can change commission splits")
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid commission role")
	}
	if !inPercentRange(percent) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percent must be between 0 and 100")
	}

	var before *decimal.Decimal
	var saved *models.CommissionSplitConfig
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindSplit(ctx, role)
		if err != nil {
			return err
		}
		if existing != nil {
			p := existing.Percent
			before = &p
		}
		if err := repo.UpsertSplit(ctx, &models.CommissionSplitConfig{
			Role:            role,
			Percent:         percent,
			UpdatedByUserID: actor.UserIDPtr(),
		}); err != nil {
			return err
		}
		saved, err = repo.FindSplit(ctx, role)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save commission split")
	}

	var beforeValue any
	if before != nil {
		beforeValue = before.String()
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionCommissionSplitSet,
		EntityType: audit.EntitySplit,
		EntityID:   string(role),
		Before:     map[string]any{"percent": beforeValue},
		After:      map[string]any{"percent": percent.String()},
	})
	return saved, nil
}

func inPercentRange(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

func idOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
