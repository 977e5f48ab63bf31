package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() billingdomain.Repository {
	return &repo{}
}

func (r *repo) InsertInvoice(ctx context.Context, db *gorm.DB, invoice *billingdomain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *billingdomain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindPaidPayment(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider string, identifiers []string) (*billingdomain.Payment, error) {
	ids := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	q := db.WithContext(ctx).
		Where("provider = ? AND status = ?", provider, billingdomain.PaymentStatusPaid).
		Where("reference IN ? OR provider_payment_id IN ? OR provider_invoice_id IN ?", ids, ids, ids)
	if orgID != 0 {
		q = q.Where("org_id = ?", orgID)
	}

	var item billingdomain.Payment
	err := q.Order("created_at ASC").First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListInvoicesByMembership(ctx context.Context, db *gorm.DB, orgID, membershipID snowflake.ID) ([]billingdomain.Invoice, error) {
	var items []billingdomain.Invoice
	if err := db.WithContext(ctx).
		Where("org_id = ? AND membership_id = ?", orgID, membershipID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
