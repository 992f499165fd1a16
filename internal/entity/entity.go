// Package entity turns label bundles into typed Uptime Kuma entities and
// provides the merge/compare and reference plumbing the reconciler diffs
// with. Every entity carries a stable AutoKuma ID (a string chosen by the
// user); server-side numeric ids only appear after resolution.
package entity

import (
	"fmt"

	"github.com/autokuma/autokuma/pkg/kuma"
)

// Kind tags the entity families the reconciler manages.
type Kind string

const (
	KindTag          Kind = "tag"
	KindNotification Kind = "notification"
	KindDockerHost   Kind = "docker_host"
	KindMonitor      Kind = "monitor"
	KindStatusPage   Kind = "status_page"
	KindMaintenance  Kind = "maintenance"
)

// CreateOrder is the dependency order for creates: referenced kinds first.
// Deletes walk it backwards.
var CreateOrder = []Kind{
	KindTag, KindNotification, KindDockerHost, KindMonitor, KindStatusPage, KindMaintenance,
}

// Entity is a tagged union over the managed kinds. Exactly one payload field
// is non-nil, matching Kind.
type Entity struct {
	Kind Kind

	Monitor      *kuma.Monitor
	Tag          *kuma.TagDefinition
	Notification *kuma.Notification
	DockerHost   *kuma.DockerHost
	StatusPage   *kuma.StatusPage
	Maintenance  *kuma.Maintenance
}

// TypeTag returns the label-grammar type segment for the entity: the monitor
// type for monitors, the kind name otherwise.
func (e Entity) TypeTag() string {
	if e.Kind == KindMonitor && e.Monitor != nil {
		return string(e.Monitor.Type)
	}
	return string(e.Kind)
}

// ServerID returns the server-side identifier as a string: the numeric id
// for most kinds, the slug for status pages. ok is false when the entity has
// not been created on the server yet.
func (e Entity) ServerID() (string, bool) {
	switch e.Kind {
	case KindMonitor:
		if e.Monitor != nil && e.Monitor.ID != nil {
			return fmt.Sprint(int(*e.Monitor.ID)), true
		}
	case KindTag:
		if e.Tag != nil && e.Tag.ID != nil {
			return fmt.Sprint(int(*e.Tag.ID)), true
		}
	case KindNotification:
		if e.Notification != nil && e.Notification.ID != nil {
			return fmt.Sprint(int(*e.Notification.ID)), true
		}
	case KindDockerHost:
		if e.DockerHost != nil && e.DockerHost.ID != nil {
			return fmt.Sprint(int(*e.DockerHost.ID)), true
		}
	case KindStatusPage:
		if e.StatusPage != nil && e.StatusPage.Slug != nil {
			return *e.StatusPage.Slug, true
		}
	case KindMaintenance:
		if e.Maintenance != nil && e.Maintenance.ID != nil {
			return fmt.Sprint(int(*e.Maintenance.ID)), true
		}
	}
	return "", false
}

// kindForTypeTag maps a label type segment to its kind. Monitor types map to
// KindMonitor; an unknown tag is an error.
func kindForTypeTag(tag string) (Kind, error) {
	switch tag {
	case string(KindTag):
		return KindTag, nil
	case string(KindNotification):
		return KindNotification, nil
	case string(KindDockerHost):
		return KindDockerHost, nil
	case string(KindStatusPage):
		return KindStatusPage, nil
	case string(KindMaintenance):
		return KindMaintenance, nil
	}
	if kuma.IsMonitorType(tag) {
		return KindMonitor, nil
	}
	return "", fmt.Errorf("unknown entity type %q", tag)
}

// ParseError records a failed entity synthesis; the entity is excluded from
// the tick, everything else proceeds.
type ParseError struct {
	ID  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot synthesize entity %s: %v", e.ID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NameNotFoundError marks an AutoKuma reference that resolved to nothing.
type NameNotFoundError struct {
	Kind Kind
	Name string
}

func (e *NameNotFoundError) Error() string {
	return fmt.Sprintf("referenced %s %q not found", e.Kind, e.Name)
}
