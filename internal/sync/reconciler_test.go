package sync

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/config"
	"github.com/autokuma/autokuma/internal/entity"
	"github.com/autokuma/autokuma/internal/metrics"
	"github.com/autokuma/autokuma/internal/source"
	"github.com/autokuma/autokuma/internal/state"
	"github.com/autokuma/autokuma/internal/template"
	"github.com/autokuma/autokuma/pkg/kuma"
)

func tagDefinition(name string) kuma.TagDefinition {
	return kuma.TagDefinition{Name: &name}
}

func monitorWithTag(name string, tagID *kuma.Int, value *string) kuma.Monitor {
	return kuma.Monitor{
		Type: kuma.MonitorTypeHTTP,
		Name: &name,
		Tags: []kuma.Tag{{TagID: tagID, Value: value}},
	}
}

type harness struct {
	reconciler *Reconciler
	client     *fakeKuma
	store      *state.Store
	source     *fakeSource
	cfg        *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{
		SyncInterval:      5,
		DeleteGracePeriod: 60,
		OnDelete:          config.OnDeleteDelete,
		TagName:           "AutoKuma",
	}

	store, err := state.OpenInMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := template.New(false)
	require.NoError(t, err)
	synth, err := entity.New(engine, nil, "", zap.NewNop())
	require.NoError(t, err)

	client := newFakeKuma()
	src := &fakeSource{}

	reconciler := NewReconciler(
		cfg, client, store, synth,
		[]source.Source{src},
		make(chan struct{}, 16),
		metrics.NewMetrics(prometheus.NewRegistry()),
		zap.NewNop(),
	)

	return &harness{reconciler: reconciler, client: client, store: store, source: src, cfg: cfg}
}

func labelBundle(labels ...[2]string) entity.Bundle {
	bundle := entity.Bundle{SourceKind: "fake", SourceID: "fake/0", Context: map[string]any{}}
	for _, kv := range labels {
		bundle.Labels = append(bundle.Labels, entity.Label{Key: kv[0], Value: kv[1]})
	}
	return bundle
}

func TestTickCreatesMonitorAndStoresMapping(t *testing.T) {
	h := newHarness(t)
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
	)})

	require.NoError(t, h.reconciler.Tick(context.Background()))

	monitors, err := h.client.GetMonitors()
	require.NoError(t, err)
	require.Len(t, monitors, 1)

	serverID, ok, err := h.store.Get(entity.KindMonitor, "demo")
	require.NoError(t, err)
	require.True(t, ok)
	_, exists := monitors[serverID]
	assert.True(t, exists)
}

func TestTickCreatesGroupBeforeChildAndResolvesParent(t *testing.T) {
	h := newHarness(t)
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"m.http.name", "M"},
		[2]string{"m.http.url", "https://x"},
		[2]string{"m.http.parent_name", "grp"},
		[2]string{"grp.group.name", "Apps"},
	)})

	require.NoError(t, h.reconciler.Tick(context.Background()))

	groupPos, childPos := -1, -1
	for i, call := range h.client.mutatingCalls() {
		switch call {
		case "addMonitor:Apps":
			groupPos = i
		case "addMonitor:M":
			childPos = i
		}
	}
	require.GreaterOrEqual(t, groupPos, 0)
	require.GreaterOrEqual(t, childPos, 0)
	assert.Less(t, groupPos, childPos, "group must be created before its child")

	groupID, _, err := h.store.Get(entity.KindMonitor, "grp")
	require.NoError(t, err)
	childID, _, err := h.store.Get(entity.KindMonitor, "m")
	require.NoError(t, err)

	monitors, _ := h.client.GetMonitors()
	child := monitors[childID]
	require.NotNil(t, child.Parent)
	assert.Equal(t, groupID, strconv.Itoa(int(*child.Parent)))
}

func TestTickIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
	)})

	require.NoError(t, h.reconciler.Tick(context.Background()))
	h.client.resetCalls()

	require.NoError(t, h.reconciler.Tick(context.Background()))
	assert.Empty(t, h.client.mutatingCalls(), "a converged tick must issue no RPCs")
}

func TestTickUpdatesDriftedMonitor(t *testing.T) {
	h := newHarness(t)
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
	)})
	require.NoError(t, h.reconciler.Tick(context.Background()))

	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Renamed"},
		[2]string{"demo.http.url", "https://example.com"},
	)})
	h.client.resetCalls()
	require.NoError(t, h.reconciler.Tick(context.Background()))

	calls := h.client.mutatingCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "editMonitor:Renamed", calls[0])
}

func TestDeleteWaitsForGracePeriod(t *testing.T) {
	h := newHarness(t)
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
	)})
	require.NoError(t, h.reconciler.Tick(context.Background()))

	// The source stops producing the entity.
	h.source.set(nil)
	h.client.resetCalls()
	require.NoError(t, h.reconciler.Tick(context.Background()))

	for _, call := range h.client.mutatingCalls() {
		assert.False(t, strings.HasPrefix(call, "deleteMonitor"),
			"no delete may be issued inside the grace period")
	}
	_, marked, err := h.store.MissingSince(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.True(t, marked)

	// Reappearance clears the mark.
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
	)})
	require.NoError(t, h.reconciler.Tick(context.Background()))
	_, marked, err = h.store.MissingSince(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestDeleteAfterGraceElapsed(t *testing.T) {
	h := newHarness(t)
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
	)})
	require.NoError(t, h.reconciler.Tick(context.Background()))

	h.source.set(nil)
	// Backdate the missing marker past the grace period.
	require.NoError(t, h.store.MarkMissing(entity.KindMonitor, "demo", time.Now().Add(-2*h.cfg.GraceDuration())))

	h.client.resetCalls()
	require.NoError(t, h.reconciler.Tick(context.Background()))

	monitors, _ := h.client.GetMonitors()
	assert.Empty(t, monitors)
	_, ok, err := h.store.Get(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.False(t, ok, "mapping is removed on confirmed deletion")
}

func TestOnDeleteKeepRetainsEntityAndMapping(t *testing.T) {
	h := newHarness(t)
	h.cfg.OnDelete = config.OnDeleteKeep

	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
	)})
	require.NoError(t, h.reconciler.Tick(context.Background()))

	h.source.set(nil)
	require.NoError(t, h.store.MarkMissing(entity.KindMonitor, "demo", time.Now().Add(-2*h.cfg.GraceDuration())))

	h.client.resetCalls()
	require.NoError(t, h.reconciler.Tick(context.Background()))

	monitors, _ := h.client.GetMonitors()
	assert.Len(t, monitors, 1, "keep policy leaves the server entity alone")
	_, ok, err := h.store.Get(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFailureIsolationAndRetry(t *testing.T) {
	h := newHarness(t)
	h.client.failures["addMonitor:Bad"] = errors.New("server refused")

	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"bad.http.name", "Bad"},
		[2]string{"bad.http.url", "https://bad"},
		[2]string{"good.http.name", "Good"},
		[2]string{"good.http.url", "https://good"},
	)})

	require.NoError(t, h.reconciler.Tick(context.Background()))

	_, ok, err := h.store.Get(entity.KindMonitor, "good")
	require.NoError(t, err)
	assert.True(t, ok, "the healthy entity must be created despite the failure")
	_, ok, err = h.store.Get(entity.KindMonitor, "bad")
	require.NoError(t, err)
	assert.False(t, ok)

	// The failure clears; the next tick retries the failed create only.
	delete(h.client.failures, "addMonitor:Bad")
	h.client.resetCalls()
	require.NoError(t, h.reconciler.Tick(context.Background()))

	_, ok, err = h.store.Get(entity.KindMonitor, "bad")
	require.NoError(t, err)
	assert.True(t, ok)
	for _, call := range h.client.mutatingCalls() {
		assert.NotContains(t, call, "Good", "the converged entity must not be touched")
	}
}

func TestPauseOnActiveTransition(t *testing.T) {
	h := newHarness(t)
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
	)})
	require.NoError(t, h.reconciler.Tick(context.Background()))

	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"demo.http.name", "Demo"},
		[2]string{"demo.http.url", "https://example.com"},
		[2]string{"demo.http.active", "false"},
	)})
	h.client.resetCalls()
	require.NoError(t, h.reconciler.Tick(context.Background()))

	serverID, _, err := h.store.Get(entity.KindMonitor, "demo")
	require.NoError(t, err)
	assert.Contains(t, h.client.mutatingCalls(), "pauseMonitor:"+serverID)
}

func TestCycleBreakingProducesNoInfiniteLoop(t *testing.T) {
	h := newHarness(t)
	h.source.set([]entity.Bundle{labelBundle(
		[2]string{"a.group.name", "A"},
		[2]string{"a.group.parent_name", "b"},
		[2]string{"b.group.name", "B"},
		[2]string{"b.group.parent_name", "a"},
	)})

	done := make(chan error, 1)
	go func() { done <- h.reconciler.Tick(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("tick did not terminate on a cyclic parent graph")
	}

	monitors, _ := h.client.GetMonitors()
	assert.Len(t, monitors, 2)
}

func TestMigrationRefusesWithoutFlag(t *testing.T) {
	h := newHarness(t)

	// A legacy AutoKuma tag on the server marks pre-identity state.
	tag := tagDefinition("AutoKuma")
	require.NoError(t, h.client.AddTag(context.Background(), &tag))
	h.client.resetCalls()

	err := h.reconciler.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate")
}

func TestMigrationImportsLegacyMappings(t *testing.T) {
	h := newHarness(t)
	h.cfg.Migrate = true
	ctx := context.Background()

	tag := tagDefinition("AutoKuma")
	require.NoError(t, h.client.AddTag(ctx, &tag))

	// A monitor carrying the legacy tag with its AutoKuma ID as value.
	value := "legacy-monitor"
	monitor := monitorWithTag("Legacy", tag.ID, &value)
	require.NoError(t, h.client.AddMonitor(ctx, &monitor))

	require.NoError(t, h.reconciler.Tick(ctx))

	serverID, ok, err := h.store.Get(entity.KindMonitor, "legacy-monitor")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, monitor.ID)
	assert.Equal(t, strconv.Itoa(int(*monitor.ID)), serverID)

	tags, err := h.client.GetTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags, "the legacy tag is deleted after import")

	version, err := h.store.Version()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}
