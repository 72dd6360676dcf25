package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent returns false without error when the (provider, event id)
	// pair was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error

	// AppendLog is a no-op when (org, module, sequence) was already logged.
	AppendLog(ctx context.Context, db *gorm.DB, entry *SubscriptionEventLog) error
	// ListLog pages the audit trail in sequence order. afterSequence is an
	// exclusive cursor; limit <= 0 means no limit.
	ListLog(ctx context.Context, db *gorm.DB, orgID snowflake.ID, module string, afterSequence int64, limit int) ([]SubscriptionEventLog, error)
}
