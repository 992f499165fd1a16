package sync

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/config"
	"github.com/autokuma/autokuma/internal/entity"
	"github.com/autokuma/autokuma/pkg/kuma"
)

// execute diffs the desired set against the managed server state and applies
// the plan: creates parents-first, then updates, then deletes (children
// first, grace period honored). Every entity failure is recorded and the
// remainder of the plan proceeds; the next tick re-derives everything.
func (r *Reconciler) execute(ctx context.Context, desired map[string]entity.Entity, actual *actualState) error {
	current := r.managedEntities(actual)

	// Creates, dependency order. Monitors are sub-ordered groups-first.
	for _, kind := range entity.CreateOrder {
		for _, id := range r.orderedIDs(kind, desired) {
			e := desired[id]
			if e.Kind != kind {
				continue
			}
			if _, exists := current[id]; exists {
				continue
			}
			r.createEntity(ctx, id, e, actual)
		}
	}

	// Updates, same order; a monitor type change recreates in place.
	for _, kind := range entity.CreateOrder {
		for _, id := range r.orderedIDs(kind, desired) {
			e := desired[id]
			if e.Kind != kind {
				continue
			}
			currentEntity, exists := current[id]
			if !exists {
				continue
			}
			if err := r.store.ClearMissing(kind, id); err != nil {
				return err
			}
			r.updateEntity(ctx, id, currentEntity, e, actual)
		}
	}

	// Deletes, reverse dependency order, after the grace period.
	pending := 0
	now := time.Now()
	for i := len(entity.CreateOrder) - 1; i >= 0; i-- {
		kind := entity.CreateOrder[i]
		ids := make([]string, 0)
		for id, e := range current {
			if e.Kind == kind {
				ids = append(ids, id)
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(ids)))

		for _, id := range ids {
			if _, wanted := desired[id]; wanted {
				continue
			}
			graceful, err := r.deleteAfterGrace(ctx, kind, id, current[id], now)
			if err != nil {
				return err
			}
			if graceful {
				pending++
			}
		}
	}
	r.metrics.DeletesPending.Set(float64(pending))

	return nil
}

// managedEntities maps AutoKuma IDs to the server entities the identity
// store claims for them. Unmapped server entities are not ours and are left
// alone.
func (r *Reconciler) managedEntities(actual *actualState) map[string]entity.Entity {
	out := make(map[string]entity.Entity)
	for _, kind := range entity.CreateOrder {
		mappings, err := r.store.List(kind)
		if err != nil {
			r.logger.Error("cannot list identity mappings", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		for autokumaID, serverID := range mappings {
			if e, ok := actual.lookup(kind, serverID); ok {
				out[autokumaID] = e
			}
		}
	}
	return out
}

// orderedIDs returns the desired ids of a kind in a deterministic creation
// order: topological for monitors, lexicographic otherwise.
func (r *Reconciler) orderedIDs(kind entity.Kind, desired map[string]entity.Entity) []string {
	if kind == entity.KindMonitor {
		return entity.MonitorOrder(desired)
	}
	var ids []string
	for id, e := range desired {
		if e.Kind == kind {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Reconciler) createEntity(ctx context.Context, id string, e entity.Entity, actual *actualState) {
	resolved, err := entity.Resolve(e, r.store)
	if err != nil {
		r.recordFailure(id, e, "create", err)
		return
	}

	r.logger.Info("creating entity",
		zap.String("kind", string(e.Kind)),
		zap.String("type", e.TypeTag()),
		zap.String("autokuma_id", id),
	)

	switch resolved.Kind {
	case entity.KindTag:
		err = r.client.AddTag(ctx, resolved.Tag)
	case entity.KindNotification:
		err = r.client.AddNotification(ctx, resolved.Notification)
	case entity.KindDockerHost:
		err = r.client.AddDockerHost(ctx, resolved.DockerHost)
	case entity.KindMonitor:
		err = r.client.AddMonitor(ctx, resolved.Monitor)
	case entity.KindStatusPage:
		err = r.client.AddStatusPage(ctx, resolved.StatusPage)
	case entity.KindMaintenance:
		r.fixMaintenanceStatusPages(resolved.Maintenance, actual)
		err = r.client.AddMaintenance(ctx, resolved.Maintenance)
	}
	if err != nil {
		r.recordFailure(id, e, "create", err)
		return
	}

	serverID, ok := resolved.ServerID()
	if !ok {
		r.recordFailure(id, e, "create", errors.New("server did not return an id"))
		return
	}

	// The mapping lands in the store immediately so entities later in the
	// same tick can resolve references to this one.
	if err := r.store.Put(resolved.Kind, id, serverID); err != nil {
		r.recordFailure(id, e, "create", err)
		return
	}
	r.metrics.RecordOperation(string(e.Kind), "create", "success")
}

func (r *Reconciler) updateEntity(ctx context.Context, id string, current, desired entity.Entity, actual *actualState) {
	resolved, err := entity.Resolve(desired, r.store)
	if err != nil {
		r.recordFailure(id, desired, "update", err)
		return
	}

	// A changed kind or monitor type cannot be edited in place.
	if current.Kind != resolved.Kind ||
		(current.Kind == entity.KindMonitor && current.Monitor.Type != resolved.Monitor.Type) {
		r.logger.Info("recreating entity because its type changed",
			zap.String("autokuma_id", id),
			zap.String("from", current.TypeTag()),
			zap.String("to", resolved.TypeTag()),
		)
		if r.deleteEntity(ctx, id, current) {
			r.createEntity(ctx, id, desired, actual)
		}
		return
	}

	merged := entity.Merge(current, resolved)
	if !entity.Equal(current, merged) {
		r.logger.Info("updating entity",
			zap.String("kind", string(desired.Kind)),
			zap.String("autokuma_id", id),
		)
		if err := r.editEntity(ctx, current, merged, actual); err != nil {
			r.recordFailure(id, desired, "update", err)
			return
		}
		r.metrics.RecordOperation(string(desired.Kind), "update", "success")
	}

	r.applyActiveTransition(ctx, id, current, resolved)
}

func (r *Reconciler) editEntity(ctx context.Context, current, merged entity.Entity, actual *actualState) error {
	switch merged.Kind {
	case entity.KindTag:
		merged.Tag.ID = current.Tag.ID
		return r.client.EditTag(ctx, merged.Tag)
	case entity.KindNotification:
		merged.Notification.ID = current.Notification.ID
		return r.client.EditNotification(ctx, merged.Notification)
	case entity.KindDockerHost:
		merged.DockerHost.ID = current.DockerHost.ID
		return r.client.EditDockerHost(ctx, merged.DockerHost)
	case entity.KindMonitor:
		merged.Monitor.ID = current.Monitor.ID
		return r.client.EditMonitor(ctx, merged.Monitor)
	case entity.KindStatusPage:
		merged.StatusPage.Slug = current.StatusPage.Slug
		return r.client.EditStatusPage(ctx, merged.StatusPage)
	case entity.KindMaintenance:
		merged.Maintenance.ID = current.Maintenance.ID
		r.fixMaintenanceStatusPages(merged.Maintenance, actual)
		return r.client.EditMaintenance(ctx, merged.Maintenance)
	}
	return nil
}

// applyActiveTransition issues the dedicated pause/resume verbs when the
// desired active flag flips, for the kinds that require them.
func (r *Reconciler) applyActiveTransition(ctx context.Context, id string, current, desired entity.Entity) {
	var serverID int
	var currentActive, desiredActive *kuma.Bool
	var pause, resume func(context.Context, int) error

	switch desired.Kind {
	case entity.KindMonitor:
		if current.Monitor.ID == nil {
			return
		}
		serverID = int(*current.Monitor.ID)
		currentActive, desiredActive = current.Monitor.Active, desired.Monitor.Active
		pause, resume = r.client.PauseMonitor, r.client.ResumeMonitor
	case entity.KindMaintenance:
		if current.Maintenance.ID == nil {
			return
		}
		serverID = int(*current.Maintenance.ID)
		currentActive, desiredActive = current.Maintenance.Active, desired.Maintenance.Active
		pause, resume = r.client.PauseMaintenance, r.client.ResumeMaintenance
	default:
		return
	}

	if desiredActive == nil {
		return
	}
	wasActive := currentActive == nil || bool(*currentActive)
	wantActive := bool(*desiredActive)

	switch {
	case wasActive && !wantActive:
		if err := pause(ctx, serverID); err != nil {
			r.recordFailure(id, desired, "pause", err)
			return
		}
		r.metrics.RecordOperation(string(desired.Kind), "pause", "success")
	case !wasActive && wantActive:
		if err := resume(ctx, serverID); err != nil {
			r.recordFailure(id, desired, "resume", err)
			return
		}
		r.metrics.RecordOperation(string(desired.Kind), "resume", "success")
	}
}

// deleteAfterGrace marks an orphan and deletes it once the grace period has
// elapsed, honoring the on_delete policy. It reports whether the entity is
// still inside its grace window.
func (r *Reconciler) deleteAfterGrace(ctx context.Context, kind entity.Kind, id string, e entity.Entity, now time.Time) (bool, error) {
	since, marked, err := r.store.MissingSince(kind, id)
	if err != nil {
		return false, err
	}
	if !marked {
		r.logger.Info("entity orphaned, grace period started",
			zap.String("kind", string(kind)),
			zap.String("autokuma_id", id),
			zap.Duration("grace", r.cfg.GraceDuration()),
		)
		return true, r.store.MarkMissing(kind, id, now)
	}

	if now.Sub(since) < r.cfg.GraceDuration() {
		return true, nil
	}

	if r.cfg.OnDelete == config.OnDeleteKeep {
		// Mapping retained; the entity stays on the server unmanaged until
		// its ID reappears.
		return false, nil
	}

	r.deleteEntity(ctx, id, e)
	return false, nil
}

// deleteEntity issues the delete RPC and removes the identity mapping on
// success.
func (r *Reconciler) deleteEntity(ctx context.Context, id string, e entity.Entity) bool {
	serverID, ok := e.ServerID()
	if !ok {
		return false
	}

	r.logger.Info("deleting entity",
		zap.String("kind", string(e.Kind)),
		zap.String("autokuma_id", id),
		zap.String("server_id", serverID),
	)

	var err error
	switch e.Kind {
	case entity.KindTag:
		err = r.client.DeleteTag(ctx, atoi(serverID))
	case entity.KindNotification:
		err = r.client.DeleteNotification(ctx, atoi(serverID))
	case entity.KindDockerHost:
		err = r.client.DeleteDockerHost(ctx, atoi(serverID))
	case entity.KindMonitor:
		err = r.client.DeleteMonitor(ctx, atoi(serverID))
	case entity.KindStatusPage:
		err = r.client.DeleteStatusPage(ctx, serverID)
	case entity.KindMaintenance:
		err = r.client.DeleteMaintenance(ctx, atoi(serverID))
	}
	if err != nil {
		r.recordFailure(id, e, "delete", err)
		return false
	}

	if err := r.store.Delete(e.Kind, id); err != nil {
		r.logger.Error("cannot remove identity mapping",
			zap.String("autokuma_id", id),
			zap.Error(err),
		)
		return false
	}
	r.metrics.RecordOperation(string(e.Kind), "delete", "success")
	return true
}

// fixMaintenanceStatusPages fills numeric status page ids for bindings that
// resolution could only name by slug.
func (r *Reconciler) fixMaintenanceStatusPages(maintenance *kuma.Maintenance, actual *actualState) {
	for i, binding := range maintenance.StatusPages {
		if binding.ID != nil || binding.Name == nil {
			continue
		}
		if page, ok := actual.statusPages[*binding.Name]; ok && page.ID != nil {
			maintenance.StatusPages[i].ID = page.ID
		}
	}
}

func (r *Reconciler) recordFailure(id string, e entity.Entity, operation string, err error) {
	r.metrics.RecordOperation(string(e.Kind), operation, "error")

	serverID, _ := e.ServerID()
	r.logger.Warn("entity operation failed",
		zap.String("kind", string(e.Kind)),
		zap.String("autokuma_id", id),
		zap.String("server_id", serverID),
		zap.String("operation", operation),
		zap.Error(err),
	)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
