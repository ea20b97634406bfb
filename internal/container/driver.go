// Package container drives the host control plane's create/start/stop
// contract for bot workers, grounded on teradata-labs-loom's
// pkg/docker/executor.go container-lifecycle shape, narrowed to the three
// operations the orchestrator needs.
package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/circuitbreaker"
)

const defaultAutoLeaveTimeoutMS = 300000

// LaunchSpec carries everything the driver needs to build and start a bot
// container for a single triple.
type LaunchSpec struct {
	Platform             string
	MeetingURL           string
	Token                string
	BotName              string
	TranscriptionURL     string
	Image                string
	Network              string
}

// botConfig mirrors the original BOT_CONFIG JSON document bit-exactly.
type botConfig struct {
	Platform        string `json:"platform"`
	MeetingURL      string `json:"meetingUrl"`
	BotName         string `json:"botName"`
	Token           string `json:"token"`
	ConnectionID    string `json:"connectionId"`
	AutomaticLeave  autoLeave `json:"automaticLeave"`
}

type autoLeave struct {
	WaitingRoomTimeout   int `json:"waitingRoomTimeout"`
	NoOneJoinedTimeout   int `json:"noOneJoinedTimeout"`
	EveryoneLeftTimeout  int `json:"everyoneLeftTimeout"`
}

// Driver wraps a Docker client with the launch/stop/health operations the
// orchestrator depends on. Only Health goes through a circuit breaker;
// Launch and Stop call the Docker SDK directly.
type Driver struct {
	client  *dockerclient.Client
	health  *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// New opens a client to the control-plane socket and verifies it is
// reachable, so that an unreachable socket fails startup fast. Health probes
// run through a dedicated HTTP circuit breaker dialing the socket directly,
// grounded on circuitbreaker.HTTPWrapper's 5xx-as-breaker-failure
// convention, separate from the Docker SDK client the launch/stop path uses.
func New(ctx context.Context, socketPath string, logger *zap.Logger) (*Driver, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost(socketPath),
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping docker daemon: %w", err)
	}

	healthClient := &http.Client{Transport: unixSocketTransport(socketPath)}
	health := circuitbreaker.NewHTTPWrapperWithConfig(healthClient, "container-socket", "docker", circuitbreaker.GetContainerSocketConfig(), logger)

	return &Driver{client: cli, health: health, logger: logger}, nil
}

// unixSocketTransport dials the Docker control-plane socket directly,
// independent of the Docker SDK client's own connection pool.
func unixSocketTransport(socketPath string) *http.Transport {
	path := strings.TrimPrefix(socketPath, "unix://")
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}
}

// Launch creates and starts a bot container for the given spec, returning
// its container id, or a Launch-failed apperr on any failure.
func (d *Driver) Launch(ctx context.Context, connectionID uuid.UUID, spec LaunchSpec) (string, error) {
	name := fmt.Sprintf("bot-%s-%s", spec.Platform, connectionID.String()[:8])

	cfg := botConfig{
		Platform:     spec.Platform,
		MeetingURL:   spec.MeetingURL,
		BotName:      spec.BotName,
		Token:        spec.Token,
		ConnectionID: connectionID.String(),
		AutomaticLeave: autoLeave{
			WaitingRoomTimeout:  defaultAutoLeaveTimeoutMS,
			NoOneJoinedTimeout:  defaultAutoLeaveTimeoutMS,
			EveryoneLeftTimeout: defaultAutoLeaveTimeoutMS,
		},
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", apperr.Wrap(apperr.LaunchFailed, "failed to build bot config", err)
	}

	env := []string{
		"BOT_CONFIG=" + string(cfgJSON),
		"PLATFORM=" + spec.Platform,
		"TOKEN=" + spec.Token,
		"MEETING_URL=" + spec.MeetingURL,
		"TRANSCRIPTION_SERVICE=" + spec.TranscriptionURL,
	}

	containerCfg := &container.Config{
		Image: spec.Image,
		Env:   env,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(spec.Network),
		AutoRemove:  false,
	}

	resp, err := d.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		d.logger.Warn("container create failed", zap.String("name", name), zap.Error(err))
		return "", apperr.Wrap(apperr.LaunchFailed, "container create failed", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.logger.Warn("container start failed", zap.String("container_id", resp.ID), zap.Error(err))
		return "", apperr.Wrap(apperr.LaunchFailed, "container start failed", err)
	}

	d.logger.Info("bot container launched", zap.String("container_id", resp.ID), zap.String("platform", spec.Platform))
	return resp.ID, nil
}

// Stop stops and leaves the container on the host (no removal). "Already
// stopped" and "not found" both count as success, mirroring the original
// 204/304/404 handling.
func (d *Driver) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	err := d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err == nil {
		return nil
	}
	if dockerclient.IsErrNotFound(err) {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.BackingStoreUnavailable, "container stop timed out", err)
	}
	return apperr.Wrap(apperr.BackingStoreUnavailable, "container stop failed", err)
}

// Health pings the control-plane socket through the dedicated health
// circuit breaker, tripping it on a 5xx response or transport failure.
func (d *Driver) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://docker/_ping", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := d.health.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("docker ping returned status %d", resp.StatusCode)
	}
	return nil
}
