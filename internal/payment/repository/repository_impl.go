package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/bizsuite/internal/payment/domain"
	"github.com/smallbiznis/bizsuite/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, gdb *gorm.DB, event *paymentdomain.EventRecord) (bool, error) {
	err := gdb.WithContext(ctx).Create(event).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) FindEvent(ctx context.Context, gdb *gorm.DB, provider, providerEventID string) (*paymentdomain.EventRecord, error) {
	var record paymentdomain.EventRecord
	err := gdb.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) MarkProcessed(ctx context.Context, gdb *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return gdb.WithContext(ctx).
		Model(&paymentdomain.EventRecord{}).
		Where("id = ?", id).
		Update("processed_at", processedAt).Error
}

func (r *repo) AppendLog(ctx context.Context, gdb *gorm.DB, entry *paymentdomain.SubscriptionEventLog) error {
	err := gdb.WithContext(ctx).Create(entry).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repo) ListLog(ctx context.Context, gdb *gorm.DB, orgID snowflake.ID, module string, afterSequence int64, limit int) ([]paymentdomain.SubscriptionEventLog, error) {
	var entries []paymentdomain.SubscriptionEventLog
	query := gdb.WithContext(ctx).Where("org_id = ?", orgID)
	if module != "" {
		query = query.Where("module = ?", module)
	}
	if afterSequence > 0 {
		query = query.Where("sequence > ?", afterSequence)
	}
	query = query.Order("sequence ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
