package dockerx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/Aleks250483/triangels-tg-bridge/internal/config"
)

const (
	// ContainerName identifies the single managed instance. Provisioning
	// replaces it in place; there are never sibling instances.
	ContainerName = "mtproxy"

	// proxyInternalPort is where the proxy image listens inside the
	// container.
	proxyInternalPort = "443/tcp"
)

// ErrInstanceNotFound reports that no proxy container exists on this host.
var ErrInstanceNotFound = errors.New("proxy container does not exist")

// api is the slice of the Docker client the supervisor uses. *client.Client
// satisfies it; tests substitute a fake.
type api interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Ping(ctx context.Context) (types.Ping, error)
}

var _ api = (*client.Client)(nil)

// Supervisor manages the lifecycle of the proxy container.
type Supervisor struct {
	cli  api
	name string
}

func New() (*Supervisor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Supervisor{cli: cli, name: ContainerName}, nil
}

// Ping verifies the daemon answers.
func (s *Supervisor) Ping(ctx context.Context) error {
	if _, err := s.cli.Ping(ctx); err != nil {
		return fmt.Errorf("container runtime unreachable: %w", err)
	}
	return nil
}

// Start brings up a fresh proxy instance running cfg, replacing whatever
// instance existed before. The image is pulled first if absent locally.
func (s *Supervisor) Start(ctx context.Context, cfg config.ProxyConfig) error {
	// Best effort: the instance may already be gone, and if the daemon is
	// down the create below reports it.
	_ = s.cli.ContainerRemove(ctx, s.name, container.RemoveOptions{Force: true})

	if err := s.ensureImage(ctx, cfg.Image); err != nil {
		return err
	}

	internal := nat.Port(proxyInternalPort)
	resp, err := s.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        cfg.Image,
			Env:          []string{"SECRET=" + cfg.Secret},
			ExposedPorts: nat.PortSet{internal: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				internal: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(cfg.Port)}},
			},
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyAlways},
		},
		nil, nil, s.name)
	if err != nil {
		return fmt.Errorf("create proxy container: %w", err)
	}
	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start proxy container: %w", err)
	}
	return nil
}

// Stop halts the instance. A missing or already-stopped instance is success;
// the returned bool reports whether anything was actually stopped.
func (s *Supervisor) Stop(ctx context.Context) (bool, error) {
	info, err := s.cli.ContainerInspect(ctx, s.name)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect proxy container: %w", err)
	}
	if info.ContainerJSONBase == nil || info.State == nil || !info.State.Running {
		return false, nil
	}
	if err := s.cli.ContainerStop(ctx, s.name, container.StopOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stop proxy container: %w", err)
	}
	return true, nil
}

// Report describes the instance without touching it.
type Report struct {
	Exists    bool
	Running   bool
	State     string
	Image     string
	ImageID   string
	Ports     []string
	Uptime    string
	StartedAt time.Time
}

func (s *Supervisor) Status(ctx context.Context) (Report, error) {
	info, err := s.cli.ContainerInspect(ctx, s.name)
	if err != nil {
		if isNotFound(err) {
			return Report{}, nil
		}
		return Report{}, fmt.Errorf("inspect proxy container: %w", err)
	}

	rep := Report{Exists: true}
	if info.ContainerJSONBase == nil {
		return rep, nil
	}
	rep.ImageID = info.Image
	if info.State != nil {
		rep.State = info.State.Status
		rep.Running = info.State.Running
		if info.State.Running {
			if started, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
				rep.StartedAt = started
				rep.Uptime = units.HumanDuration(time.Since(started))
			}
		}
	}
	if info.Config != nil {
		rep.Image = info.Config.Image
	}
	if info.HostConfig != nil {
		for port, bindings := range info.HostConfig.PortBindings {
			for _, b := range bindings {
				rep.Ports = append(rep.Ports, fmt.Sprintf("%s:%s->%s", b.HostIP, b.HostPort, string(port)))
			}
		}
		sort.Strings(rep.Ports)
	}
	return rep, nil
}

// Logs streams the instance's output to stdout/stderr, demuxing the daemon
// framing. With follow set it blocks until ctx is cancelled.
func (s *Supervisor) Logs(ctx context.Context, follow bool, tail int, stdout, stderr io.Writer) error {
	if _, err := s.cli.ContainerInspect(ctx, s.name); err != nil {
		if isNotFound(err) {
			return ErrInstanceNotFound
		}
		return fmt.Errorf("inspect proxy container: %w", err)
	}

	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: follow}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}
	rc, err := s.cli.ContainerLogs(ctx, s.name, opts)
	if err != nil {
		return fmt.Errorf("read proxy logs: %w", err)
	}
	defer rc.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, rc); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stream proxy logs: %w", err)
	}
	return nil
}

// PullImage downloads ref, draining the progress stream.
func (s *Supervisor) PullImage(ctx context.Context, ref string) error {
	rc, err := s.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	return nil
}

// ImageID returns the local ID for ref, or "" when the image is absent.
func (s *Supervisor) ImageID(ctx context.Context, ref string) (string, error) {
	images, err := s.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list images: %w", err)
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == ref {
				return img.ID, nil
			}
		}
	}
	return "", nil
}

func (s *Supervisor) ensureImage(ctx context.Context, ref string) error {
	id, err := s.ImageID(ctx, ref)
	if err != nil {
		return err
	}
	if id != "" {
		return nil
	}
	return s.PullImage(ctx, ref)
}

// notFoundMarker matches the runtime's "no such object" errors. Docker wraps
// them with a NotFound() method all the way up the chain.
type notFoundMarker interface {
	NotFound()
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf notFoundMarker
	return errors.As(err, &nf)
}
