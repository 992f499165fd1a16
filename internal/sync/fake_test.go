package sync

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/autokuma/autokuma/internal/entity"
	"github.com/autokuma/autokuma/pkg/kuma"
)

// fakeKuma is an in-memory stand-in for the Uptime Kuma server, recording
// every mutating call in order.
type fakeKuma struct {
	mu sync.Mutex

	nextID        int
	monitors      map[string]kuma.Monitor
	tags          map[string]kuma.TagDefinition
	notifications map[string]kuma.Notification
	dockerHosts   map[string]kuma.DockerHost
	statusPages   map[string]kuma.StatusPage
	maintenances  map[string]kuma.Maintenance

	calls []string

	// failures maps a call signature prefix to an error returned instead of
	// applying the mutation.
	failures map[string]error
}

func newFakeKuma() *fakeKuma {
	return &fakeKuma{
		monitors:      make(map[string]kuma.Monitor),
		tags:          make(map[string]kuma.TagDefinition),
		notifications: make(map[string]kuma.Notification),
		dockerHosts:   make(map[string]kuma.DockerHost),
		statusPages:   make(map[string]kuma.StatusPage),
		maintenances:  make(map[string]kuma.Maintenance),
		failures:      make(map[string]error),
	}
}

func (f *fakeKuma) record(call string) error {
	f.calls = append(f.calls, call)
	for prefix, err := range f.failures {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			return err
		}
	}
	return nil
}

func (f *fakeKuma) mutatingCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeKuma) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeKuma) allocID() int {
	f.nextID++
	return f.nextID
}

func (f *fakeKuma) EnsureConnected(context.Context) error { return nil }
func (f *fakeKuma) AuthToken() string                     { return "" }

func (f *fakeKuma) GetMonitors() (kuma.MonitorList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(kuma.MonitorList, len(f.monitors))
	for id, monitor := range f.monitors {
		out[id] = monitor
	}
	return out, nil
}

func (f *fakeKuma) AddMonitor(_ context.Context, monitor *kuma.Monitor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("addMonitor:" + deref(monitor.Name)); err != nil {
		return err
	}
	id := kuma.Int(f.allocID())
	monitor.ID = &id
	f.monitors[strconv.Itoa(int(id))] = monitor.Clone()
	return nil
}

func (f *fakeKuma) EditMonitor(_ context.Context, monitor *kuma.Monitor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("editMonitor:" + deref(monitor.Name)); err != nil {
		return err
	}
	if monitor.ID == nil {
		return fmt.Errorf("edit without id")
	}
	f.monitors[strconv.Itoa(int(*monitor.ID))] = monitor.Clone()
	return nil
}

func (f *fakeKuma) DeleteMonitor(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deleteMonitor:" + strconv.Itoa(id)); err != nil {
		return err
	}
	delete(f.monitors, strconv.Itoa(id))
	return nil
}

func (f *fakeKuma) PauseMonitor(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("pauseMonitor:" + strconv.Itoa(id))
}

func (f *fakeKuma) ResumeMonitor(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("resumeMonitor:" + strconv.Itoa(id))
}

func (f *fakeKuma) GetTags(context.Context) ([]kuma.TagDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kuma.TagDefinition, 0, len(f.tags))
	for _, tag := range f.tags {
		out = append(out, tag)
	}
	return out, nil
}

func (f *fakeKuma) AddTag(_ context.Context, tag *kuma.TagDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("addTag:" + deref(tag.Name)); err != nil {
		return err
	}
	id := kuma.Int(f.allocID())
	tag.ID = &id
	f.tags[strconv.Itoa(int(id))] = *tag
	return nil
}

func (f *fakeKuma) EditTag(_ context.Context, tag *kuma.TagDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("editTag:" + deref(tag.Name)); err != nil {
		return err
	}
	f.tags[strconv.Itoa(int(*tag.ID))] = *tag
	return nil
}

func (f *fakeKuma) DeleteTag(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deleteTag:" + strconv.Itoa(id)); err != nil {
		return err
	}
	delete(f.tags, strconv.Itoa(id))
	return nil
}

func (f *fakeKuma) GetNotifications() ([]kuma.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kuma.Notification, 0, len(f.notifications))
	for _, notification := range f.notifications {
		out = append(out, notification)
	}
	return out, nil
}

func (f *fakeKuma) AddNotification(_ context.Context, notification *kuma.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("addNotification:" + deref(notification.Name)); err != nil {
		return err
	}
	id := kuma.Int(f.allocID())
	notification.ID = &id
	f.notifications[strconv.Itoa(int(id))] = *notification
	return nil
}

func (f *fakeKuma) EditNotification(_ context.Context, notification *kuma.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("editNotification:" + deref(notification.Name)); err != nil {
		return err
	}
	f.notifications[strconv.Itoa(int(*notification.ID))] = *notification
	return nil
}

func (f *fakeKuma) DeleteNotification(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deleteNotification:" + strconv.Itoa(id)); err != nil {
		return err
	}
	delete(f.notifications, strconv.Itoa(id))
	return nil
}

func (f *fakeKuma) GetDockerHosts() ([]kuma.DockerHost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kuma.DockerHost, 0, len(f.dockerHosts))
	for _, host := range f.dockerHosts {
		out = append(out, host)
	}
	return out, nil
}

func (f *fakeKuma) AddDockerHost(_ context.Context, host *kuma.DockerHost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("addDockerHost:" + deref(host.Name)); err != nil {
		return err
	}
	id := kuma.Int(f.allocID())
	host.ID = &id
	f.dockerHosts[strconv.Itoa(int(id))] = *host
	return nil
}

func (f *fakeKuma) EditDockerHost(_ context.Context, host *kuma.DockerHost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("editDockerHost:" + deref(host.Name)); err != nil {
		return err
	}
	f.dockerHosts[strconv.Itoa(int(*host.ID))] = *host
	return nil
}

func (f *fakeKuma) DeleteDockerHost(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deleteDockerHost:" + strconv.Itoa(id)); err != nil {
		return err
	}
	delete(f.dockerHosts, strconv.Itoa(id))
	return nil
}

func (f *fakeKuma) GetStatusPages() (kuma.StatusPageList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(kuma.StatusPageList, len(f.statusPages))
	for slug, page := range f.statusPages {
		out[slug] = page
	}
	return out, nil
}

func (f *fakeKuma) GetStatusPage(_ context.Context, slug string) (kuma.StatusPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.statusPages[slug]
	if !ok {
		return kuma.StatusPage{}, &kuma.IDNotFoundError{Kind: "status page", ID: slug}
	}
	return page, nil
}

func (f *fakeKuma) AddStatusPage(_ context.Context, page *kuma.StatusPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("addStatusPage:" + deref(page.Slug)); err != nil {
		return err
	}
	id := kuma.Int(f.allocID())
	page.ID = &id
	f.statusPages[deref(page.Slug)] = *page
	return nil
}

func (f *fakeKuma) EditStatusPage(_ context.Context, page *kuma.StatusPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("saveStatusPage:" + deref(page.Slug)); err != nil {
		return err
	}
	f.statusPages[deref(page.Slug)] = *page
	return nil
}

func (f *fakeKuma) DeleteStatusPage(_ context.Context, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deleteStatusPage:" + slug); err != nil {
		return err
	}
	delete(f.statusPages, slug)
	return nil
}

func (f *fakeKuma) GetMaintenances() (kuma.MaintenanceList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(kuma.MaintenanceList, len(f.maintenances))
	for id, maintenance := range f.maintenances {
		out[id] = maintenance
	}
	return out, nil
}

func (f *fakeKuma) AddMaintenance(_ context.Context, maintenance *kuma.Maintenance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("addMaintenance:" + deref(maintenance.Title)); err != nil {
		return err
	}
	id := kuma.Int(f.allocID())
	maintenance.ID = &id
	f.maintenances[strconv.Itoa(int(id))] = maintenance.Clone()
	return nil
}

func (f *fakeKuma) EditMaintenance(_ context.Context, maintenance *kuma.Maintenance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("editMaintenance:" + deref(maintenance.Title)); err != nil {
		return err
	}
	f.maintenances[strconv.Itoa(int(*maintenance.ID))] = maintenance.Clone()
	return nil
}

func (f *fakeKuma) DeleteMaintenance(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deleteMaintenance:" + strconv.Itoa(id)); err != nil {
		return err
	}
	delete(f.maintenances, strconv.Itoa(id))
	return nil
}

func (f *fakeKuma) PauseMaintenance(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("pauseMaintenance:" + strconv.Itoa(id))
}

func (f *fakeKuma) ResumeMaintenance(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("resumeMaintenance:" + strconv.Itoa(id))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fakeSource serves a fixed bundle set the test mutates between ticks.
type fakeSource struct {
	mu      sync.Mutex
	bundles []entity.Bundle
}

func (s *fakeSource) Name() string                { return "fake" }
func (s *fakeSource) Start(context.Context) error { return nil }
func (s *fakeSource) Close() error                { return nil }

func (s *fakeSource) Bundles(context.Context) ([]entity.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Bundle, len(s.bundles))
	copy(out, s.bundles)
	return out, nil
}

func (s *fakeSource) set(bundles []entity.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles = bundles
}
