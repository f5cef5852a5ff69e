package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	workflowdomain "github.com/smallbiznis/estate/internal/workflow/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() workflowdomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, workflow *workflowdomain.Workflow) error {
	return db.WithContext(ctx).Create(workflow).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*workflowdomain.Workflow, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repository) FindByProperty(ctx context.Context, db *gorm.DB, propertyID int64) (*workflowdomain.Workflow, error) {
	return r.findOne(ctx, db, "property_id = ?", propertyID)
}

func (r *repository) FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*workflowdomain.Workflow, error) {
	return r.findOne(ctx, db, "invoice_id = ?", invoiceID)
}

func (r *repository) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*workflowdomain.Workflow, error) {
	var items []workflowdomain.Workflow
	if err := db.WithContext(ctx).Where(query, arg).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// UpdateStatus applies the change only while the row still has update.From.
func (r *repository) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, update workflowdomain.StatusUpdate) (int64, error) {
	values := map[string]any{
		"status":            update.To,
		"changes_requested": update.ChangesRequested,
		"updated_at":        update.Now,
	}
	if update.ReviewNotes != nil {
		values["review_notes"] = *update.ReviewNotes
	}
	res := tx.WithContext(ctx).
		Model(&workflowdomain.Workflow{}).
		Where("id = ? AND status = ?", id, update.From).
		Updates(values)
	return res.RowsAffected, res.Error
}

// SetInvoice swaps the linked invoice when the current link equals expected.
func (r *repository) SetInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID, expected *snowflake.ID, invoiceID snowflake.ID, now time.Time) (int64, error) {
	stmt := tx.WithContext(ctx).Model(&workflowdomain.Workflow{}).Where("id = ?", id)
	if expected == nil {
		stmt = stmt.Where("invoice_id IS NULL")
	} else {
		stmt = stmt.Where("invoice_id = ?", *expected)
	}
	res := stmt.Updates(map[string]any{
		"invoice_id": invoiceID,
		"updated_at": now,
	})
	return res.RowsAffected, res.Error
}

func (r *repository) InsertAudit(ctx context.Context, tx *gorm.DB, entry *workflowdomain.AuditEntry) error {
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListAudit(ctx context.Context, db *gorm.DB, propertyID int64, limit int) ([]workflowdomain.AuditEntry, error) {
	var entries []workflowdomain.AuditEntry
	err := db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByStatus returns the oldest-updated workflows first so review queues are FIFO.
func (r *repository) ListByStatus(ctx context.Context, db *gorm.DB, status workflowdomain.Status, limit, offset int) ([]workflowdomain.Workflow, int64, error) {
	var total int64
	base := db.WithContext(ctx).Model(&workflowdomain.Workflow{}).Where("status = ?", status)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []workflowdomain.Workflow
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
