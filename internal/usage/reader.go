// Package usage is the boundary to the domain modules that own live usage
// counters. The entitlement engine only ever reads through this boundary; it
// never caches counts and never assumes a storage shape behind a reader.
package usage

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
)

// ErrUsageUnavailable reports that the owning domain module could not answer.
// Callers must propagate it; treating it as zero usage would unlock actions
// that should stay blocked.
var ErrUsageUnavailable = errors.New("usage_unavailable")

// ErrNoReader reports that no domain module registered a reader for the
// requested module.
var ErrNoReader = errors.New("usage_reader_not_registered")

// Reader answers "current usage count for feature F" for one module.
// Each domain module (CRM, invoicing, ...) provides its own implementation.
type Reader interface {
	Module() catalog.Module
	CurrentUsage(ctx context.Context, orgID snowflake.ID, feature catalog.Feature) (int64, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc struct {
	For  catalog.Module
	Read func(ctx context.Context, orgID snowflake.ID, feature catalog.Feature) (int64, error)
}

func (r ReaderFunc) Module() catalog.Module { return r.For }

func (r ReaderFunc) CurrentUsage(ctx context.Context, orgID snowflake.ID, feature catalog.Feature) (int64, error) {
	if r.Read == nil {
		return 0, ErrUsageUnavailable
	}
	return r.Read(ctx, orgID, feature)
}
