// Package domain contains persistence models for per-module subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status represents lifecycle states for a module subscription.
type Status string

const (
	StatusTrialing Status = "TRIALING"
	StatusActive   Status = "ACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusPaused   Status = "PAUSED"
	StatusCanceled Status = "CANCELED"
)

// Paid reports whether the status grants the purchased tier on its own,
// before any grace-window consideration.
func (s Status) Paid() bool {
	return s == StatusActive || s == StatusTrialing
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

// ModuleSubscription captures one organization's paid upgrade of one module.
// An org with no row for a module is on the organization-wide tier for it.
type ModuleSubscription struct {
	ID       snowflake.ID     `gorm:"primaryKey"`
	OrgID    snowflake.ID     `gorm:"not null;uniqueIndex:ux_module_subscriptions_org_module"`
	Module   catalog.Module   `gorm:"type:text;not null;uniqueIndex:ux_module_subscriptions_org_module"`
	PlanTier catalog.PlanTier `gorm:"type:text;not null;default:'PRO'"`
	Status   Status           `gorm:"type:text;not null"`

	BillingCycle       BillingCycle `gorm:"type:text;not null"`
	CurrentPeriodStart time.Time    `gorm:"not null"`
	CurrentPeriodEnd   time.Time    `gorm:"not null;index"`

	CancelAtPeriodEnd bool       `gorm:"not null;default:false"`
	CanceledAt        *time.Time `gorm:""`
	PastDueSince      *time.Time `gorm:""`

	// ExternalSubscriptionID is the provider-side subscription handle.
	ExternalSubscriptionID string `gorm:"type:text;not null;index"`

	// EventSequence is the provider ordering of the last applied webhook
	// event. Events at or below it are stale and must not be applied.
	EventSequence int64 `gorm:"not null;default:0"`

	// PendingConfirmSince is stamped on optimistic local writes (checkout
	// confirmation, cancel, resume) and cleared when a webhook confirms the
	// state. The sweeper reports rows stuck past the confirmation window.
	PendingConfirmSince *time.Time `gorm:""`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt gorm.DeletedAt    `gorm:"index"`
}

// TableName sets the database table name.
func (ModuleSubscription) TableName() string { return "module_subscriptions" }
