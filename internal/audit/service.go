package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/metrics"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

const (
	DefaultIntegrityWindow = 5000
	MaxIntegrityWindow     = 20000
)

// Entry is one state change to append to the chain.
type Entry struct {
	Actor      auth.Actor
	Action     string
	EntityType string
	EntityID   string
	Before     any
	After      any
	Meta       any
}

// Recorder is the narrow surface business services depend on.
type Recorder interface {
	// Record appends entry and never fails the caller; errors are logged.
	Record(ctx context.Context, entry Entry)
}

// Service appends to and reads the audit trail.
type Service interface {
	Recorder
	Append(ctx context.Context, entry Entry) (*models.AuditLog, error)
	Query(ctx context.Context, actor auth.Actor, filter Filter) (pagination.Page[models.AuditLog], error)
	Mine(ctx context.Context, actor auth.Actor, filter Filter) (pagination.Page[models.AuditLog], error)
	ForEntity(ctx context.Context, actor auth.Actor, entityType, entityID string, page pagination.Params) (pagination.Page[models.AuditLog], error)
	IntegrityReport(ctx context.Context, limit int) (IntegrityReport, error)
}

// Options tunes the service; zero values fall back to defaults.
type Options struct {
	IntegrityWindow    int
	IntegrityWindowMax int
	Now                func() time.Time
}

type service struct {
	repo    Repository
	owners  OwnershipResolver
	logg    *logger.Logger
	metrics *metrics.AuditMetrics
	opts    Options
}

// NewService wires an audit service.
func NewService(repo Repository, owners OwnershipResolver, logg *logger.Logger, m *metrics.AuditMetrics, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if owners == nil {
		return nil, fmt.Errorf("ownership resolver required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.IntegrityWindowMax <= 0 {
		opts.IntegrityWindowMax = MaxIntegrityWindow
	}
	if opts.IntegrityWindow <= 0 {
		opts.IntegrityWindow = DefaultIntegrityWindow
	}
	if opts.IntegrityWindow > opts.IntegrityWindowMax {
		opts.IntegrityWindow = opts.IntegrityWindowMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{repo: repo, owners: owners, logg: logg, metrics: m, opts: opts}, nil
}

func (s *service) Record(ctx context.Context, entry Entry) {
	if _, err := s.Append(ctx, entry); err != nil {
		s.metrics.IncWriteFailure()
		ctx = s.logg.WithFields(ctx, map[string]any{
			"audit_action":      entry.Action,
			"audit_entity_type": entry.EntityType,
			"audit_entity_id":   entry.EntityID,
		})
		s.logg.Error(ctx, "audit append failed", err)
	}
}

func (s *service) Append(ctx context.Context, entry Entry) (*models.AuditLog, error) {
	action := CanonicalAction(strings.TrimSpace(entry.Action))
	entityType := CanonicalEntityType(strings.TrimSpace(entry.EntityType))
	if action == "" || entityType == "" || strings.TrimSpace(entry.EntityID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "audit action, entity type and entity id are required")
	}

	before, err := stableOrNil(entry.Before)
	if err != nil {
		return nil, err
	}
	after, err := stableOrNil(entry.After)
	if err != nil {
		return nil, err
	}
	meta, err := stableOrNil(entry.Meta)
	if err != nil {
		return nil, err
	}

	return s.repo.Append(ctx, func(prevHash *string) (*models.AuditLog, error) {
		row := &models.AuditLog{
			CreatedAt:   chainTime(s.opts.Now()),
			ActorUserID: entry.Actor.UserIDPtr(),
			ActorRole:   entry.Actor.RolePtr(),
			Action:      action,
			EntityType:  entityType,
			EntityID:    entry.EntityID,
			Before:      before,
			After:       after,
			Meta:        meta,
			PrevHash:    prevHash,
		}
		hash, err := ComputeHash(*row)
		if err != nil {
			return nil, err
		}
		row.Hash = &hash
		return row, nil
	})
}

func (s *service) Query(ctx context.Context, actor auth.Actor, filter Filter) (pagination.Page[models.AuditLog], error) {
	if !actor.Role.IsPrivileged() {
		return pagination.Page[models.AuditLog]{}, pkgerrors.New(pkgerrors.CodeForbidden, "audit search requires broker or admin role")
	}
	return s.list(ctx, filter)
}

func (s *service) Mine(ctx context.Context, actor auth.Actor, filter Filter) (pagination.Page[models.AuditLog], error) {
	if actor.IsSystem() {
		return pagination.Page[models.AuditLog]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated actor required")
	}
	id := actor.UserID
	filter.ActorID = &id
	return s.list(ctx, filter)
}

func (s *service) ForEntity(ctx context.Context, actor auth.Actor, entityType, entityID string, page pagination.Params) (pagination.Page[models.AuditLog], error) {
	if strings.TrimSpace(entityType) == "" || strings.TrimSpace(entityID) == "" {
		return pagination.Page[models.AuditLog]{}, pkgerrors.New(pkgerrors.CodeValidation, "entity type and id are required")
	}
	if !actor.Role.IsPrivileged() {
		owns, err := s.owners.Owns(ctx, actor, entityType, entityID)
		if err != nil {
			return pagination.Page[models.AuditLog]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve entity ownership")
		}
		if !owns {
			return pagination.Page[models.AuditLog]{}, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to read this audit trail")
		}
	}
	return s.list(ctx, Filter{EntityType: entityType, EntityID: entityID, Page: page})
}

func (s *service) list(ctx context.Context, filter Filter) (pagination.Page[models.AuditLog], error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return pagination.Page[models.AuditLog]{}, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	if filter.Page.Take > pagination.MaxTake {
		return pagination.Page[models.AuditLog]{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("take must be between 1 and %d", pagination.MaxTake))
	}
	filter.Page = filter.Page.Normalize(pagination.DefaultAuditTake)

	rows, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return pagination.Page[models.AuditLog]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query audit log")
	}
	return pagination.Page[models.AuditLog]{Items: rows, Total: total, Take: filter.Page.Take, Skip: filter.Page.Skip}, nil
}

func (s *service) IntegrityReport(ctx context.Context, limit int) (IntegrityReport, error) {
	if limit <= 0 {
		limit = s.opts.IntegrityWindow
	}
	if limit > s.opts.IntegrityWindowMax {
		limit = s.opts.IntegrityWindowMax
	}

	rows, predecessor, err := s.repo.Window(ctx, limit)
	if err != nil {
		return IntegrityReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load audit window")
	}
	report := VerifyChain(rows, predecessor)
	s.metrics.SetChainFindings(report.Checked, len(report.MismatchedRows), len(report.BrokenPrevRows), len(report.MissingHashRows))
	return report, nil
}
