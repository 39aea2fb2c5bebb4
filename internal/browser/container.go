package browser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	chromeImage   = "browserless/chrome:latest"
	chromePort    = nat.Port("3000/tcp")
	profileTarget = "/data"
)

// Instance is a Chrome container serving the DevTools protocol
type Instance struct {
	ContainerID string
	SessionID   string
	ConnectURL  string
	Port        string
	UserDataDir string
}

// ContainerLauncher runs Chrome inside Docker with the profile bind-mounted
type ContainerLauncher struct {
	client *client.Client
}

// NewContainerLauncher connects to the Docker daemon from the environment
func NewContainerLauncher() (*ContainerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &ContainerLauncher{client: cli}, nil
}

// Launch starts a container for sessionID using userDataDir as the persistent profile
func (l *ContainerLauncher) Launch(ctx context.Context, sessionID, userDataDir string) (*Instance, error) {
	profile, err := filepath.Abs(userDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile directory: %w", err)
	}
	if err := os.MkdirAll(profile, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	containerConfig := &container.Config{
		Image: chromeImage,
		Labels: map[string]string{
			"session-id": sessionID,
			"managed-by": "lensshot",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
			"DEFAULT_USER_DATA_DIR=" + profileTarget,
		},
		ExposedPorts: nat.PortSet{
			chromePort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			chromePort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: profile,
				Target: profileTarget,
			},
		},
	}

	name := "lensshot-" + sessionID
	if len(sessionID) > 8 {
		name = "lensshot-" + sessionID[:8]
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		l.remove(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := l.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		l.remove(resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[chromePort]
	if len(bindings) == 0 {
		l.remove(resp.ID)
		return nil, fmt.Errorf("container %s exposes no DevTools port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if _, err := WaitForDevTools(ctx, "http://127.0.0.1:"+port); err != nil {
		l.remove(resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	return &Instance{
		ContainerID: resp.ID,
		SessionID:   sessionID,
		ConnectURL:  "ws://127.0.0.1:" + port,
		Port:        port,
		UserDataDir: profile,
	}, nil
}

// Stop stops and removes the container
func (l *ContainerLauncher) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := l.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// EnsureImage pulls the Chrome image unless it is already present
func (l *ContainerLauncher) EnsureImage(ctx context.Context) error {
	images, err := l.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == chromeImage {
				return nil
			}
		}
	}

	reader, err := l.client.ImagePull(ctx, chromeImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the Docker client
func (l *ContainerLauncher) Close() error {
	return l.client.Close()
}

func (l *ContainerLauncher) remove(containerID string) {
	_ = l.client.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
}
