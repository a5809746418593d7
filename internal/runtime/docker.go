package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

var _ Adapter = (*DockerAdapter)(nil)

// DockerAdapter binds Adapter to the Docker Engine API — the concrete
// runtime behind the narrow interface, grounded the same way the
// teacher binds its Sandbox interface to a *client.Client.
type DockerAdapter struct {
	client *client.Client
	logger *slog.Logger
}

func NewDockerAdapter(c *client.Client, logger *slog.Logger) *DockerAdapter {
	return &DockerAdapter{client: c, logger: logger.With("component", "runtime")}
}

// Ping verifies the daemon is reachable. Startup treats a failure here
// as the runtime-unreachable fatal error of spec.md §7.
func (d *DockerAdapter) Ping(ctx context.Context) error {
	_, err := d.client.Ping(ctx)
	return err
}

func (d *DockerAdapter) Start(ctx context.Context, imageName, memoryLimit string, containerPort, hostPort int) (Handle, error) {
	if _, err := d.client.ImageInspect(ctx, imageName); errdefs.IsNotFound(err) {
		d.logger.Info("image not found, pulling", "image", imageName)
		reader, pullErr := d.client.ImagePull(ctx, imageName, image.PullOptions{})
		if pullErr != nil {
			return Handle{}, fmt.Errorf("pull image %s: %w", imageName, pullErr)
		}
		defer reader.Close()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			return Handle{}, fmt.Errorf("read pull output: %w", err)
		}
	} else if err != nil {
		return Handle{}, fmt.Errorf("inspect image %s: %w", imageName, err)
	}

	memBytes, err := parseMemoryLimit(memoryLimit)
	if err != nil {
		return Handle{}, fmt.Errorf("parse memory limit %q: %w", memoryLimit, err)
	}

	containerPortKey := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
	cfg := &container.Config{
		Image:        imageName,
		ExposedPorts: nat.PortSet{containerPortKey: struct{}{}},
		Labels:       map[string]string{"managed_by": "steel-lb"},
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{Memory: memBytes},
		PortBindings: nat.PortMap{
			containerPortKey: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)}},
		},
		AutoRemove: false,
	}

	resp, err := d.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return Handle{}, fmt.Errorf("create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return Handle{}, fmt.Errorf("start container: %w", err)
	}

	d.logger.Info("worker container started", "container_id", resp.ID[:8], "host_port", hostPort)
	return Handle{ID: resp.ID}, nil
}

func (d *DockerAdapter) StopAndRemove(ctx context.Context, h Handle) {
	if !h.Valid() {
		return
	}
	timeout := 5
	if err := d.client.ContainerStop(ctx, h.ID, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		d.logger.Warn("stop container failed, removing anyway", "container_id", d.ShortID(h), "error", err)
	}
	if err := d.client.ContainerRemove(ctx, h.ID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		d.logger.Warn("remove container failed", "container_id", d.ShortID(h), "error", err)
	}
}

// dockerStats mirrors the subset of the Docker stats JSON the balancer
// actually reads. The runtime omits memory_stats entirely once the
// container has died — that absence is the missing-stats signal.
type dockerStats struct {
	MemoryStats struct {
		Usage *int64 `json:"usage"`
		Limit *int64 `json:"limit"`
	} `json:"memory_stats"`
}

func (d *DockerAdapter) Sample(ctx context.Context, h Handle) (Sample, error) {
	resp, err := d.client.ContainerStatsOneShot(ctx, h.ID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Sample{}, ErrMissingStats
		}
		return Sample{}, fmt.Errorf("stats: %w", err)
	}
	defer resp.Body.Close()

	var stats dockerStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Sample{}, fmt.Errorf("%w: decode stats: %v", ErrMissingStats, err)
	}
	if stats.MemoryStats.Usage == nil || stats.MemoryStats.Limit == nil {
		return Sample{}, ErrMissingStats
	}
	return Sample{UsedBytes: *stats.MemoryStats.Usage, LimitBytes: *stats.MemoryStats.Limit}, nil
}

func (d *DockerAdapter) ShortID(h Handle) string {
	if len(h.ID) < 8 {
		return h.ID
	}
	return h.ID[:8]
}

func parseMemoryLimit(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	unit := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		unit = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		unit = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		unit = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * unit, nil
}

