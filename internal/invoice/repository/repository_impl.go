package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func NewRepository() invoicedomain.Repository {
	return &repository{}
}

// NextSequence increments the scope's counter with a single upsert. The row
// stays locked until tx ends, so concurrent callers are serialized.
func (r *repository) NextSequence(ctx context.Context, tx *gorm.DB, scope string, now time.Time) (int64, error) {
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scope"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_value": gorm.Expr("invoice_sequences.last_value + 1"),
				"updated_at": now,
			}),
		}).
		Create(&invoicedomain.InvoiceSequence{Scope: scope, LastValue: 1, UpdatedAt: now}).Error
	if err != nil {
		return 0, err
	}

	var value int64
	err = tx.WithContext(ctx).Raw(
		`SELECT last_value FROM invoice_sequences WHERE scope = ?`,
		scope,
	).Scan(&value).Error
	return value, err
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, items []invoicedomain.InvoiceItem) error {
	if err := tx.WithContext(ctx).Create(invoice).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&invoices).Error; err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

func (r *repository) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	var items []invoicedomain.InvoiceItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) ListByUser(ctx context.Context, db *gorm.DB, userID int64, limit, offset int) ([]invoicedomain.Invoice, int64, error) {
	var total int64
	if err := db.WithContext(ctx).Model(&invoicedomain.Invoice{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, filter invoicedomain.ListInvoicesFilter) ([]invoicedomain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&invoicedomain.Invoice{})
	if filter.UserID != nil {
		stmt = stmt.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CountryCode != "" {
		stmt = stmt.Where("country_code = ?", filter.CountryCode)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at < ?", *filter.CreatedTo)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var invoices []invoicedomain.Invoice
	err := stmt.Order("created_at DESC").Order("id DESC").Find(&invoices).Error
	return invoices, err
}

func (r *repository) MarkPaid(ctx context.Context, tx *gorm.DB, id snowflake.ID, reference string, now time.Time) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, payment_reference = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.InvoiceStatusPaid,
		now,
		reference,
		now,
		id,
		invoicedomain.InvoiceStatusUnpaid,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) Supersede(ctx context.Context, tx *gorm.DB, oldID, newID snowflake.ID, now time.Time) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, superseded_by = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.InvoiceStatusSuperseded,
		newID,
		now,
		oldID,
		invoicedomain.InvoiceStatusUnpaid,
	)
	return res.RowsAffected, res.Error
}
