package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/template"
	"github.com/autokuma/autokuma/pkg/kuma"
)

func newSynthesizer(t *testing.T, snippets map[string]string, defaults string) *Synthesizer {
	t.Helper()
	engine, err := template.New(false)
	require.NoError(t, err)
	synth, err := New(engine, snippets, defaults, zap.NewNop())
	require.NoError(t, err)
	return synth
}

func TestSynthesizeHTTPMonitorFromLabels(t *testing.T) {
	synth := newSynthesizer(t, nil, "")

	desired, errs := synth.Synthesize([]Bundle{{
		SourceKind: "docker",
		SourceID:   "local/web",
		Labels: []Label{
			{Key: "demo.http.name", Value: "Demo"},
			{Key: "demo.http.url", Value: "https://example.com"},
		},
		Context: map[string]any{},
	}})

	assert.Empty(t, errs)
	require.Contains(t, desired, "demo")

	e := desired["demo"]
	assert.Equal(t, KindMonitor, e.Kind)
	assert.Equal(t, kuma.MonitorTypeHTTP, e.Monitor.Type)
	assert.Equal(t, "Demo", *e.Monitor.Name)
}

func TestSynthesizeRendersTemplates(t *testing.T) {
	synth := newSynthesizer(t, nil, "")

	desired, errs := synth.Synthesize([]Bundle{{
		SourceID: "local/web",
		Labels: []Label{
			{Key: "web.http.name", Value: "{{ container_name }}"},
			{Key: "web.http.url", Value: "https://{{ container_name }}.example.com"},
		},
		Context: map[string]any{"container_name": "frontend"},
	}})

	assert.Empty(t, errs)
	require.Contains(t, desired, "web")
	assert.Equal(t, "frontend", *desired["web"].Monitor.Name)
}

func TestSynthesizeSnippetExpansion(t *testing.T) {
	snippets := map[string]string{
		"web": "{{ id_base }}.http.url: https://{{ args.0 }}:{{ args.1 }}\n{{ id_base }}.http.name: {{ args.0 }}",
	}
	synth := newSynthesizer(t, snippets, "")

	desired, errs := synth.Synthesize([]Bundle{{
		SourceID: "local/site",
		Labels: []Label{
			{Key: "site.__web", Value: `"example.com", 443`},
		},
		Context: map[string]any{},
	}})

	assert.Empty(t, errs)
	require.Contains(t, desired, "site")
	monitor := desired["site"].Monitor
	assert.Equal(t, "example.com", *monitor.Name)
	assert.JSONEq(t, `"https://example.com:443"`, string(monitor.Extra["url"]))
}

func TestSynthesizeBangSnippet(t *testing.T) {
	snippets := map[string]string{
		"!traefik.enable": "proxy.http.name: proxied\nproxy.http.url: https://proxy.local",
	}
	synth := newSynthesizer(t, snippets, "")

	// The source layer rewrites a matched label to its __! invocation form.
	desired, errs := synth.Synthesize([]Bundle{{
		SourceID: "local/app",
		Labels:   []Label{{Key: "__!traefik.enable", Value: "true"}},
		Context:  map[string]any{},
	}})

	assert.Empty(t, errs)
	require.Contains(t, desired, "proxy")
}

func TestSynthesizeUnknownSnippetIsSkipped(t *testing.T) {
	synth := newSynthesizer(t, nil, "")

	desired, errs := synth.Synthesize([]Bundle{{
		SourceID: "local/app",
		Labels: []Label{
			{Key: "app.__missing", Value: "1"},
			{Key: "app.http.name", Value: "still here"},
			{Key: "app.http.url", Value: "https://x"},
		},
		Context: map[string]any{},
	}})

	assert.Empty(t, errs)
	require.Contains(t, desired, "app")
	assert.Equal(t, "still here", *desired["app"].Monitor.Name)
}

func TestSynthesizeDefaultsApplyToUnsetFieldsOnly(t *testing.T) {
	defaults := "*.retry_interval: 30\nhttp.max_retries: 5\nhttp.interval: 120"
	synth := newSynthesizer(t, nil, defaults)

	desired, errs := synth.Synthesize([]Bundle{{
		SourceID: "local/web",
		Labels: []Label{
			{Key: "web.http.name", Value: "W"},
			{Key: "web.http.url", Value: "https://x"},
			{Key: "web.http.interval", Value: "15"},
		},
		Context: map[string]any{},
	}})

	assert.Empty(t, errs)
	monitor := desired["web"].Monitor
	assert.Equal(t, 15, int(*monitor.Interval), "explicit label wins over default")
	assert.Equal(t, 30, int(*monitor.RetryInterval), "wildcard default applies")
	assert.Equal(t, 5, int(*monitor.MaxRetries), "typed default applies")
}

func TestSynthesizeIsolatesParseFailures(t *testing.T) {
	synth := newSynthesizer(t, nil, "")

	desired, errs := synth.Synthesize([]Bundle{{
		SourceID: "local/mixed",
		Labels: []Label{
			{Key: "bad.nosuchtype.name", Value: "broken"},
			{Key: "good.http.name", Value: "fine"},
			{Key: "good.http.url", Value: "https://x"},
		},
		Context: map[string]any{},
	}})

	require.Len(t, errs, 1)
	var parseErr *ParseError
	require.ErrorAs(t, errs[0], &parseErr)
	assert.Equal(t, "bad", parseErr.ID)

	assert.NotContains(t, desired, "bad")
	assert.Contains(t, desired, "good")
}

func TestSynthesizeOtherKinds(t *testing.T) {
	synth := newSynthesizer(t, nil, "")

	desired, errs := synth.Synthesize([]Bundle{{
		SourceID: "files/infra",
		Labels: []Label{
			{Key: "team.tag.name", Value: "Team"},
			{Key: "team.tag.color", Value: "#ff0000"},
			{Key: "mail.notification.name", Value: "Mail"},
			{Key: "mail.notification.config.smtpHost", Value: "mail.local"},
			{Key: "dock.docker_host.name", Value: "Dock"},
			{Key: "dock.docker_host.connection_type", Value: "socket"},
			{Key: "dock.docker_host.path", Value: "/var/run/docker.sock"},
			{Key: "page.status_page.slug", Value: "public"},
			{Key: "page.status_page.title", Value: "Public"},
			{Key: "window.maintenance.title", Value: "Nightly"},
			{Key: "window.maintenance.strategy", Value: "manual"},
		},
		Context: map[string]any{},
	}})

	assert.Empty(t, errs)
	assert.Equal(t, KindTag, desired["team"].Kind)
	assert.Equal(t, KindNotification, desired["mail"].Kind)
	assert.Equal(t, "mail.local", desired["mail"].Notification.Config["smtpHost"])
	assert.Equal(t, KindDockerHost, desired["dock"].Kind)
	assert.Equal(t, "/var/run/docker.sock", *desired["dock"].DockerHost.Host)
	assert.Equal(t, KindStatusPage, desired["page"].Kind)
	assert.Equal(t, KindMaintenance, desired["window"].Kind)
	assert.Equal(t, "manual", desired["window"].Maintenance.Strategy)
}

func TestSynthesizeLaterBundleWins(t *testing.T) {
	synth := newSynthesizer(t, nil, "")

	desired, _ := synth.Synthesize([]Bundle{
		{
			SourceID: "a",
			Labels: []Label{
				{Key: "m.http.name", Value: "first"},
				{Key: "m.http.url", Value: "https://x"},
			},
			Context: map[string]any{},
		},
		{
			SourceID: "b",
			Labels: []Label{
				{Key: "m.http.name", Value: "second"},
				{Key: "m.http.url", Value: "https://x"},
			},
			Context: map[string]any{},
		},
	})

	assert.Equal(t, "second", *desired["m"].Monitor.Name)
}
