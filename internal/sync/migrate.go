package sync

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/entity"
)

// migrateIfNeeded imports mappings from the legacy tag-based state scheme.
// Older releases marked managed monitors with an "AutoKuma" tag whose value
// carried the AutoKuma ID. A store at version 0 facing such a tag refuses to
// run unless migrate=true, to avoid silently orphaning every monitor; the
// migration itself runs once and then bumps the store version.
func (r *Reconciler) migrateIfNeeded(ctx context.Context) error {
	version, err := r.store.Version()
	if err != nil {
		return err
	}
	if version > 0 {
		return nil
	}

	tags, err := r.client.GetTags(ctx)
	if err != nil {
		return err
	}

	var legacyTagID *int
	for _, tag := range tags {
		if tag.Name != nil && *tag.Name == r.cfg.TagName && tag.ID != nil {
			id := int(*tag.ID)
			legacyTagID = &id
			break
		}
	}

	if legacyTagID != nil {
		if !r.cfg.Migrate {
			return fmt.Errorf(
				"legacy %q tag state detected but migrate is not enabled; set migrate=true to import it",
				r.cfg.TagName,
			)
		}

		monitors, err := r.client.GetMonitors()
		if err != nil {
			return err
		}

		imported := 0
		for serverID, monitor := range monitors {
			for _, tag := range monitor.Tags {
				if tag.TagID == nil || int(*tag.TagID) != *legacyTagID {
					continue
				}
				if tag.Value == nil || *tag.Value == "" {
					continue
				}
				if _, err := strconv.Atoi(serverID); err != nil {
					continue
				}
				if err := r.store.Put(entity.KindMonitor, *tag.Value, serverID); err != nil {
					return err
				}
				imported++
			}
		}
		r.logger.Info("migrated legacy tag-based state", zap.Int("monitors", imported))

		if err := r.client.DeleteTag(ctx, *legacyTagID); err != nil {
			return err
		}
	}

	return r.store.SetVersion(1)
}
