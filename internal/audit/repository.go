package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/brokerledger/internal/repo"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

// chainLockKey serializes appends on Postgres through an advisory lock.
const chainLockKey int64 = 0x6175646974 // "audit"

// Filter narrows an audit query. Action and EntityType may be canonical or
// legacy spellings.
type Filter struct {
	EntityType string
	EntityID   string
	ActorID    *uuid.UUID
	Action     string
	Search     string
	From       *time.Time
	To         *time.Time
	Page       pagination.Params
}

// Repository persists the audit chain. It exposes no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, build func(prevHash *string) (*models.AuditLog, error)) (*models.AuditLog, error)
	Query(ctx context.Context, filter Filter) ([]models.AuditLog, int64, error)
	Window(ctx context.Context, limit int) (rows []models.AuditLog, predecessor *models.AuditLog, err error)
}

type repository struct {
	repo.Base
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// Append reads the chain head and inserts the row built from its hash inside
// one transaction.
func (r *repository) Append(ctx context.Context, build func(prevHash *string) (*models.AuditLog, error)) (*models.AuditLog, error) {
	var created *models.AuditLog
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", chainLockKey).Error; err != nil {
				return err
			}
		}

		var head models.AuditLog
		var prevHash *string
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Order("id DESC").
			Limit(1).
			Take(&head).Error
		switch {
		case err == nil:
			prevHash = head.Hash
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		row, err := build(prevHash)
		if err != nil {
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *repository) Query(ctx context.Context, filter Filter) ([]models.AuditLog, int64, error) {
	query := r.DB(ctx).Model(&models.AuditLog{})

	if filter.EntityType != "" {
		query = query.Where("audit_logs.entity_type IN ?", ExpandEntityType(filter.EntityType))
	}
	if filter.EntityID != "" {
		query = query.Where("audit_logs.entity_id = ?", filter.EntityID)
	}
	if filter.ActorID != nil {
		query = query.Where("audit_logs.actor_user_id = ?", *filter.ActorID)
	}
	if filter.Action != "" {
		query = query.Where("audit_logs.action IN ?", ExpandAction(filter.Action))
	}
	if filter.From != nil {
		query = query.Where("audit_logs.created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("audit_logs.created_at <= ?", filter.To.UTC())
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		like := "%" + term + "%"
		query = query.
			Joins("LEFT JOIN users ON users.id = audit_logs.actor_user_id").
			Where(
				"LOWER(audit_logs.entity_id) LIKE ? OR LOWER(users.email) LIKE ? OR LOWER(users.first_name || ' ' || users.last_name) LIKE ?",
				like, like, like,
			)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.AuditLog
	if err := query.
		Select("audit_logs.*").
		Order("audit_logs.id DESC").
		Scopes(repo.Paginate(filter.Page)).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Window returns the newest limit rows in chain order plus the row right
// before them, if any.
func (r *repository) Window(ctx context.Context, limit int) ([]models.AuditLog, *models.AuditLog, error) {
	var rows []models.AuditLog
	if err := r.DB(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if len(rows) == 0 {
		return rows, nil, nil
	}

	var predecessor models.AuditLog
	err := r.DB(ctx).
		Where("id < ?", rows[0].ID).
		Order("id DESC").
		Limit(1).
		Take(&predecessor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rows, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return rows, &predecessor, nil
}
