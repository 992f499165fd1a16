package sync

import (
	"context"
	"strconv"

	"github.com/autokuma/autokuma/internal/entity"
	"github.com/autokuma/autokuma/pkg/kuma"
)

// actualState is the server's current entity set, keyed by the server-side
// identifier in string form (decimal id, or slug for status pages).
type actualState struct {
	monitors      map[string]kuma.Monitor
	tags          map[string]kuma.TagDefinition
	notifications map[string]kuma.Notification
	dockerHosts   map[string]kuma.DockerHost
	statusPages   map[string]kuma.StatusPage
	maintenances  map[string]kuma.Maintenance
}

// fetchActual reads all entity lists from the client. The socket-pushed
// lists come from the session cache; tags go through a call.
func (r *Reconciler) fetchActual(ctx context.Context) (*actualState, error) {
	monitors, err := r.client.GetMonitors()
	if err != nil {
		return nil, err
	}
	notifications, err := r.client.GetNotifications()
	if err != nil {
		return nil, err
	}
	dockerHosts, err := r.client.GetDockerHosts()
	if err != nil {
		return nil, err
	}
	statusPages, err := r.client.GetStatusPages()
	if err != nil {
		return nil, err
	}
	maintenances, err := r.client.GetMaintenances()
	if err != nil {
		return nil, err
	}
	tags, err := r.client.GetTags(ctx)
	if err != nil {
		return nil, err
	}

	actual := &actualState{
		monitors:      make(map[string]kuma.Monitor, len(monitors)),
		tags:          make(map[string]kuma.TagDefinition, len(tags)),
		notifications: make(map[string]kuma.Notification, len(notifications)),
		dockerHosts:   make(map[string]kuma.DockerHost, len(dockerHosts)),
		statusPages:   make(map[string]kuma.StatusPage, len(statusPages)),
		maintenances:  make(map[string]kuma.Maintenance, len(maintenances)),
	}

	for _, monitor := range monitors {
		if monitor.ID != nil {
			actual.monitors[strconv.Itoa(int(*monitor.ID))] = monitor
		}
	}
	for _, tag := range tags {
		if tag.ID != nil {
			actual.tags[strconv.Itoa(int(*tag.ID))] = tag
		}
	}
	for _, notification := range notifications {
		if notification.ID != nil {
			actual.notifications[strconv.Itoa(int(*notification.ID))] = notification
		}
	}
	for _, host := range dockerHosts {
		if host.ID != nil {
			actual.dockerHosts[strconv.Itoa(int(*host.ID))] = host
		}
	}
	for slug, page := range statusPages {
		actual.statusPages[slug] = page
	}
	for _, maintenance := range maintenances {
		if maintenance.ID != nil {
			actual.maintenances[strconv.Itoa(int(*maintenance.ID))] = maintenance
		}
	}
	return actual, nil
}

// liveIDs returns the set of server ids present for a kind.
func (a *actualState) liveIDs(kind entity.Kind) map[string]struct{} {
	out := make(map[string]struct{})
	switch kind {
	case entity.KindMonitor:
		for id := range a.monitors {
			out[id] = struct{}{}
		}
	case entity.KindTag:
		for id := range a.tags {
			out[id] = struct{}{}
		}
	case entity.KindNotification:
		for id := range a.notifications {
			out[id] = struct{}{}
		}
	case entity.KindDockerHost:
		for id := range a.dockerHosts {
			out[id] = struct{}{}
		}
	case entity.KindStatusPage:
		for id := range a.statusPages {
			out[id] = struct{}{}
		}
	case entity.KindMaintenance:
		for id := range a.maintenances {
			out[id] = struct{}{}
		}
	}
	return out
}

// lookup returns the entity at the given server id, if present.
func (a *actualState) lookup(kind entity.Kind, serverID string) (entity.Entity, bool) {
	switch kind {
	case entity.KindMonitor:
		if monitor, ok := a.monitors[serverID]; ok {
			return entity.Entity{Kind: kind, Monitor: &monitor}, true
		}
	case entity.KindTag:
		if tag, ok := a.tags[serverID]; ok {
			return entity.Entity{Kind: kind, Tag: &tag}, true
		}
	case entity.KindNotification:
		if notification, ok := a.notifications[serverID]; ok {
			return entity.Entity{Kind: kind, Notification: &notification}, true
		}
	case entity.KindDockerHost:
		if host, ok := a.dockerHosts[serverID]; ok {
			return entity.Entity{Kind: kind, DockerHost: &host}, true
		}
	case entity.KindStatusPage:
		if page, ok := a.statusPages[serverID]; ok {
			return entity.Entity{Kind: kind, StatusPage: &page}, true
		}
	case entity.KindMaintenance:
		if maintenance, ok := a.maintenances[serverID]; ok {
			return entity.Entity{Kind: kind, Maintenance: &maintenance}, true
		}
	}
	return entity.Entity{}, false
}

// cleanStore drops identity mappings whose server entity vanished outside of
// our control, so the next tick recreates them.
func (r *Reconciler) cleanStore(actual *actualState) error {
	for _, kind := range entity.CreateOrder {
		if err := r.store.Clean(kind, actual.liveIDs(kind)); err != nil {
			return err
		}
	}
	return nil
}
