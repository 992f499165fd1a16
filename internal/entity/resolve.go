package entity

import (
	"encoding/json"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/autokuma/autokuma/pkg/kuma"
)

// IDLookup resolves an AutoKuma ID to the server-side id for the given kind.
// Status pages resolve by slug; every other kind is numeric.
type IDLookup interface {
	LookupID(kind Kind, autokumaID string) (int, bool)
	LookupSlug(autokumaID string) (string, bool)
}

// BreakParentCycles walks the monitor parent graph of the desired set and
// clears any parent_name edge that would close a cycle. The order of the
// walk is deterministic (sorted ids) so the same edge is dropped every tick.
func BreakParentCycles(desired map[string]Entity, logger *zap.Logger) {
	ids := make([]string, 0, len(desired))
	for id := range desired {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := desired[id]
		if e.Kind != KindMonitor || e.Monitor == nil || e.Monitor.ParentName == nil {
			continue
		}

		seen := map[string]struct{}{id: {}}
		current := *e.Monitor.ParentName
		for {
			if _, closes := seen[current]; closes {
				if current != id {
					// The chain runs into a cycle that does not pass through
					// id; that cycle is broken when one of its members is walked.
					break
				}
				logger.Warn("parent chain closes a cycle, clearing edge",
					zap.String("monitor", id),
					zap.String("parent", *e.Monitor.ParentName),
				)
				e.Monitor.ParentName = nil
				break
			}
			seen[current] = struct{}{}

			next, ok := desired[current]
			if !ok || next.Kind != KindMonitor || next.Monitor == nil || next.Monitor.ParentName == nil {
				break
			}
			current = *next.Monitor.ParentName
		}
	}
}

// MonitorOrder sorts monitor ids parents-first (groups before their
// children), with a lexicographic tiebreak for determinism. Cycles must have
// been broken beforehand.
func MonitorOrder(desired map[string]Entity) []string {
	var ids []string
	for id, e := range desired {
		if e.Kind == KindMonitor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	depth := make(map[string]int, len(ids))
	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, done := depth[id]; done {
			return d
		}
		depth[id] = 0 // guards against cycles that slipped through
		e, ok := desired[id]
		if !ok || e.Kind != KindMonitor || e.Monitor == nil || e.Monitor.ParentName == nil {
			depth[id] = 0
			return 0
		}
		d := depthOf(*e.Monitor.ParentName) + 1
		depth[id] = d
		return d
	}

	sort.SliceStable(ids, func(i, j int) bool {
		return depthOf(ids[i]) < depthOf(ids[j])
	})
	return ids
}

// Resolve replaces the entity's AutoKuma references with server-side ids,
// looked up at call time so ids minted earlier in the same tick are visible.
// A reference that resolves to nothing returns NameNotFoundError and leaves
// the entity untouched.
func Resolve(e Entity, lookup IDLookup) (Entity, error) {
	switch e.Kind {
	case KindMonitor:
		return resolveMonitor(e, lookup)
	case KindStatusPage:
		return resolveStatusPage(e, lookup)
	case KindMaintenance:
		return resolveMaintenance(e, lookup)
	default:
		return e, nil
	}
}

func resolveMonitor(e Entity, lookup IDLookup) (Entity, error) {
	monitor := e.Monitor.Clone()

	if monitor.ParentName != nil {
		id, ok := lookup.LookupID(KindMonitor, *monitor.ParentName)
		if !ok {
			return e, &NameNotFoundError{Kind: KindMonitor, Name: *monitor.ParentName}
		}
		parent := kuma.Int(id)
		monitor.Parent = &parent
	}

	if len(monitor.NotificationNames) > 0 {
		if monitor.NotificationIDList == nil {
			monitor.NotificationIDList = make(kuma.BoolMap, len(monitor.NotificationNames))
		}
		for _, name := range monitor.NotificationNames {
			id, ok := lookup.LookupID(KindNotification, name)
			if !ok {
				return e, &NameNotFoundError{Kind: KindNotification, Name: name}
			}
			monitor.NotificationIDList[strconv.Itoa(id)] = true
		}
	}

	for _, ref := range monitor.TagNames {
		id, ok := lookup.LookupID(KindTag, ref.Name)
		if !ok {
			return e, &NameNotFoundError{Kind: KindTag, Name: ref.Name}
		}
		tagID := kuma.Int(id)
		monitor.Tags = append(monitor.Tags, kuma.Tag{TagID: &tagID, Value: ref.Value})
	}

	if monitor.DockerHostName != nil {
		id, ok := lookup.LookupID(KindDockerHost, *monitor.DockerHostName)
		if !ok {
			return e, &NameNotFoundError{Kind: KindDockerHost, Name: *monitor.DockerHostName}
		}
		if monitor.Extra == nil {
			monitor.Extra = make(map[string]json.RawMessage)
		}
		monitor.Extra["docker_host"], _ = json.Marshal(id)
	}

	return Entity{Kind: KindMonitor, Monitor: &monitor}, nil
}

func resolveStatusPage(e Entity, lookup IDLookup) (Entity, error) {
	if len(e.StatusPage.MonitorNames) == 0 {
		return e, nil
	}

	page := *e.StatusPage
	monitors := make([]kuma.PublicGroupMonitor, 0, len(page.MonitorNames))
	for _, name := range page.MonitorNames {
		id, ok := lookup.LookupID(KindMonitor, name)
		if !ok {
			return e, &NameNotFoundError{Kind: KindMonitor, Name: name}
		}
		monitorID := kuma.Int(id)
		monitors = append(monitors, kuma.PublicGroupMonitor{ID: &monitorID})
	}

	title := "Monitors"
	if page.Title != nil {
		title = *page.Title
	}
	weight := kuma.Int(1)
	page.PublicGroupList = append(page.PublicGroupList, kuma.PublicGroup{
		Name:        &title,
		Weight:      &weight,
		MonitorList: monitors,
	})
	page.MonitorNames = nil
	return Entity{Kind: KindStatusPage, StatusPage: &page}, nil
}

func resolveMaintenance(e Entity, lookup IDLookup) (Entity, error) {
	maintenance := e.Maintenance.Clone()

	for _, name := range maintenance.MonitorNames {
		id, ok := lookup.LookupID(KindMonitor, name)
		if !ok {
			return e, &NameNotFoundError{Kind: KindMonitor, Name: name}
		}
		monitorID := kuma.Int(id)
		maintenance.Monitors = append(maintenance.Monitors, kuma.MaintenanceMonitor{ID: &monitorID})
	}

	for _, name := range maintenance.StatusPageNames {
		slug, ok := lookup.LookupSlug(name)
		if !ok {
			return e, &NameNotFoundError{Kind: KindStatusPage, Name: name}
		}
		maintenance.StatusPages = append(maintenance.StatusPages, kuma.MaintenanceStatusPage{Name: &slug})
	}

	return Entity{Kind: KindMaintenance, Maintenance: &maintenance}, nil
}
