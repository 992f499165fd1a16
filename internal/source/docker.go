package source

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/client"
	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/config"
	"github.com/autokuma/autokuma/internal/entity"
)

// DockerSource scans one or more docker daemons for labelled containers and
// swarm services, and subscribes to their event streams so label changes
// trigger a reconcile without waiting for the tick interval.
type DockerSource struct {
	cfg       *config.Config
	endpoints []dockerEndpoint
	excludes  []nameMatcher
	notify    chan<- struct{}
	logger    *zap.Logger
}

type dockerEndpoint struct {
	host string
	cli  *client.Client
}

// nameMatcher is an exclusion pattern: a glob, or a regex when the pattern
// is framed as "/.../".
type nameMatcher struct {
	pattern string
	glob    glob.Glob
	regex   *regexp.Regexp
}

func (m nameMatcher) matches(name string) bool {
	if m.regex != nil {
		return m.regex.MatchString(name)
	}
	if m.glob != nil {
		return m.glob.Match(name)
	}
	return false
}

// NewDockerSource connects to every configured endpoint. An endpoint that
// cannot be reached at startup is kept and retried on every scan.
func NewDockerSource(cfg *config.Config, notify chan<- struct{}, logger *zap.Logger) (*DockerSource, error) {
	s := &DockerSource{cfg: cfg, notify: notify, logger: logger}

	for _, pattern := range cfg.Docker.ExcludeContainers {
		matcher, err := compileNameMatcher(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid docker.exclude_containers pattern %q: %w", pattern, err)
		}
		s.excludes = append(s.excludes, matcher)
	}

	for _, endpoint := range s.endpointConfigs() {
		cli, err := newDockerClient(endpoint, cfg.Docker.TLS)
		if err != nil {
			return nil, fmt.Errorf("docker endpoint %s: %w", endpoint.URL, err)
		}
		s.endpoints = append(s.endpoints, dockerEndpoint{host: endpoint.URL, cli: cli})
	}
	return s, nil
}

// endpointConfigs resolves the endpoint list: explicit hosts, the configured
// socket path, or the environment default.
func (s *DockerSource) endpointConfigs() []config.DockerEndpoint {
	if len(s.cfg.Docker.Hosts) > 0 {
		return s.cfg.Docker.Hosts
	}
	if s.cfg.Docker.SocketPath != "" {
		return []config.DockerEndpoint{{URL: "unix://" + s.cfg.Docker.SocketPath}}
	}
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return []config.DockerEndpoint{{URL: host}}
	}
	return []config.DockerEndpoint{{URL: "unix:///var/run/docker.sock"}}
}

func newDockerClient(endpoint config.DockerEndpoint, fallback config.TLSConfig) (*client.Client, error) {
	opts := []client.Opt{
		client.WithHost(endpoint.URL),
		client.WithAPIVersionNegotiation(),
	}

	tlsCfg := endpoint.TLS
	if tlsCfg.Cert == "" && tlsCfg.Verify == nil {
		tlsCfg = fallback
	}
	if strings.HasPrefix(endpoint.URL, "tcp://") && (tlsCfg.Cert != "" || tlsCfg.Verify != nil) {
		transport := &http.Transport{TLSClientConfig: &tls.Config{}}
		if tlsCfg.Verify != nil && !*tlsCfg.Verify {
			transport.TLSClientConfig.InsecureSkipVerify = true
		}
		if tlsCfg.Cert != "" {
			pem, err := os.ReadFile(tlsCfg.Cert)
			if err != nil {
				return nil, fmt.Errorf("reading tls cert: %w", err)
			}
			pool, err := x509.SystemCertPool()
			if err != nil {
				pool = x509.NewCertPool()
			}
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("tls cert %s contains no usable certificates", tlsCfg.Cert)
			}
			transport.TLSClientConfig.RootCAs = pool
		}
		opts = append(opts, client.WithHTTPClient(&http.Client{Transport: transport}))
	}

	return client.NewClientWithOpts(opts...)
}

func compileNameMatcher(pattern string) (nameMatcher, error) {
	if strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") && len(pattern) > 1 {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			return nameMatcher{}, err
		}
		return nameMatcher{pattern: pattern, regex: re}, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nameMatcher{}, err
	}
	return nameMatcher{pattern: pattern, glob: g}, nil
}

func (s *DockerSource) Name() string { return "docker" }

// Start subscribes to every endpoint's event stream. A dropped stream is
// re-established with backoff; the periodic resync covers the gap.
func (s *DockerSource) Start(ctx context.Context) error {
	if !s.cfg.Docker.Enabled {
		return nil
	}
	for _, endpoint := range s.endpoints {
		go s.watchEvents(ctx, endpoint)
	}
	return nil
}

func (s *DockerSource) watchEvents(ctx context.Context, endpoint dockerEndpoint) {
	backoff := time.Second
	for {
		msgs, errs := endpoint.cli.Events(ctx, events.ListOptions{})

	stream:
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				switch msg.Type {
				case events.ContainerEventType, events.ServiceEventType:
					Nudge(s.notify)
				}
				backoff = time.Second
			case err := <-errs:
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("docker event stream dropped",
					zap.String("host", endpoint.host),
					zap.Error(err),
				)
				break stream
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

func (s *DockerSource) Close() error {
	var firstErr error
	for _, endpoint := range s.endpoints {
		if err := endpoint.cli.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Bundles scans all endpoints. An unreachable endpoint fails the scan so the
// reconciler does not mistake its containers for deleted.
func (s *DockerSource) Bundles(ctx context.Context) ([]entity.Bundle, error) {
	if !s.cfg.Docker.Enabled {
		return nil, nil
	}

	var bundles []entity.Bundle
	for _, endpoint := range s.endpoints {
		info, err := endpoint.cli.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("docker info from %s: %w", endpoint.host, err)
		}
		systemInfo := toJSONValue(info)

		if s.cfg.Docker.Source == config.DockerSourceContainers || s.cfg.Docker.Source == config.DockerSourceBoth {
			containerBundles, err := s.containerBundles(ctx, endpoint, systemInfo)
			if err != nil {
				return nil, err
			}
			bundles = append(bundles, containerBundles...)
		}

		if s.cfg.Docker.Source == config.DockerSourceServices || s.cfg.Docker.Source == config.DockerSourceBoth {
			serviceBundles, err := s.serviceBundles(ctx, endpoint, systemInfo)
			if err != nil {
				return nil, err
			}
			bundles = append(bundles, serviceBundles...)
		}
	}
	return bundles, nil
}

func (s *DockerSource) containerBundles(ctx context.Context, endpoint dockerEndpoint, systemInfo any) ([]entity.Bundle, error) {
	containers, err := endpoint.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("listing containers on %s: %w", endpoint.host, err)
	}

	var bundles []entity.Bundle
	for _, c := range containers {
		if !hasKumaLabels(c.Labels, s.cfg.Docker.LabelPrefix, s.cfg.Snippets) {
			continue
		}

		containerName := ""
		if len(c.Names) > 0 {
			containerName = strings.TrimPrefix(c.Names[0], "/")
		}
		if s.excluded(containerName) {
			s.logger.Debug("container excluded by pattern", zap.String("container", containerName))
			continue
		}

		bundles = append(bundles, entity.Bundle{
			SourceKind: s.Name(),
			SourceID:   endpoint.host + "/" + containerName,
			Labels:     kumaLabels(c.Labels, s.cfg.Docker.LabelPrefix, s.cfg.Snippets),
			Context: map[string]any{
				"container":      toJSONValue(c),
				"container_id":   c.ID,
				"container_name": containerName,
				"image":          c.Image,
				"image_id":       c.ImageID,
				"system_info":    systemInfo,
			},
		})
	}
	return bundles, nil
}

func (s *DockerSource) serviceBundles(ctx context.Context, endpoint dockerEndpoint, systemInfo any) ([]entity.Bundle, error) {
	services, err := endpoint.cli.ServiceList(ctx, types.ServiceListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing services on %s: %w", endpoint.host, err)
	}

	var bundles []entity.Bundle
	for _, service := range services {
		labels := service.Spec.Labels
		if !hasKumaLabels(labels, s.cfg.Docker.LabelPrefix, s.cfg.Snippets) {
			continue
		}
		if s.excluded(service.Spec.Name) {
			continue
		}

		bundles = append(bundles, entity.Bundle{
			SourceKind: s.Name(),
			SourceID:   endpoint.host + "/service/" + service.Spec.Name,
			Labels:     kumaLabels(labels, s.cfg.Docker.LabelPrefix, s.cfg.Snippets),
			Context: map[string]any{
				"service":      toJSONValue(service),
				"service_name": service.Spec.Name,
				"system_info":  systemInfo,
			},
		})
	}
	return bundles, nil
}

func (s *DockerSource) excluded(name string) bool {
	for _, matcher := range s.excludes {
		if matcher.matches(name) {
			return true
		}
	}
	return false
}

// toJSONValue converts an API struct into plain maps and slices, the form
// the template engine indexes into.
func toJSONValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if json.Unmarshal(data, &out) != nil {
		return nil
	}
	return out
}
