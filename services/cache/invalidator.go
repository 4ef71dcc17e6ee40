package cachesvc

import (
	"context"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/report"
)

// ReportInvalidator drops an organization's cached reports whenever its ledger changes.
type ReportInvalidator struct {
	cache  core.Cache
	logger core.Logger
}

var _ core.EventPublisher = (*ReportInvalidator)(nil)

func NewReportInvalidator(cache core.Cache, logger core.Logger) *ReportInvalidator {
	return &ReportInvalidator{cache: cache, logger: logger}
}

func (inv *ReportInvalidator) Publish(ctx context.Context, events ...core.LedgerEvent) {
	seen := make(map[string]bool, len(events))
	for _, evt := range events {
		if evt.OrganizationID == "" || seen[evt.OrganizationID] {
			continue
		}
		seen[evt.OrganizationID] = true

		if err := inv.cache.DeletePrefix(ctx, report.CacheKeyPrefix(evt.OrganizationID)); err != nil {
			inv.logger.Warn("invalidating report cache", err, map[string]interface{}{"organization_id": evt.OrganizationID})
		}
	}
}
