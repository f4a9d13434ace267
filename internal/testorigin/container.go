//go:build e2e

package testorigin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// Container wraps a Docker container with a simple exec interface: one-shot
// setup commands, a detached mode for the background origin server, and
// port-binding lookup.
type Container struct {
	client      *client.Client
	containerID string
}

// NewContainer creates and starts a Docker container from cfg/hostCfg.
//
// The caller is responsible for calling Close() when done.
func NewContainer(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if err := pullImage(ctx, cli, cfg.Image); err != nil {
		cli.Close()
		return nil, fmt.Errorf("pull image: %w", err)
	}

	resp, err := cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		cli.Close()
		return nil, fmt.Errorf("start container: %w", err)
	}

	return &Container{client: cli, containerID: resp.ID}, nil
}

// Run executes cmd inside the container and waits for it to finish, writing
// stdin if provided. Used for one-shot setup commands (mkdir, file writes).
func (c *Container) Run(ctx context.Context, cmd []string, stdin []byte) (stdout, stderr string, exitCode int, err error) {
	execResp, err := c.client.ContainerExecCreate(ctx, c.containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("exec create: %w", err)
	}

	hijack, err := c.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return "", "", 0, fmt.Errorf("exec attach: %w", err)
	}
	defer hijack.Close()

	if stdin != nil {
		if _, err := hijack.Conn.Write(stdin); err != nil {
			return "", "", 0, fmt.Errorf("write stdin: %w", err)
		}
		if err := hijack.CloseWrite(); err != nil {
			return "", "", 0, fmt.Errorf("close stdin: %w", err)
		}
	}

	var outBuf, errBuf bytes.Buffer
	_, _ = stdcopy.StdCopy(&outBuf, &errBuf, hijack.Reader)

	inspectResp, err := c.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return "", "", 0, fmt.Errorf("exec inspect: %w", err)
	}

	return outBuf.String(), errBuf.String(), inspectResp.ExitCode, nil
}

// StartDetached launches cmd inside the container without waiting for it to
// exit - used to start the origin server in the background, handing stdin
// the route table and returning as soon as the process is spawned.
func (c *Container) StartDetached(ctx context.Context, cmd []string, stdin []byte) error {
	execResp, err := c.client.ContainerExecCreate(ctx, c.containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("exec create: %w", err)
	}

	hijack, err := c.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return fmt.Errorf("exec attach: %w", err)
	}

	if stdin != nil {
		if _, err := hijack.Conn.Write(stdin); err != nil {
			hijack.Close()
			return fmt.Errorf("write stdin: %w", err)
		}
		if err := hijack.CloseWrite(); err != nil {
			hijack.Close()
			return fmt.Errorf("close stdin: %w", err)
		}
	}

	// Drain output in the background so the server's stdout/stderr writes
	// never block on a full pipe; the hijacked connection closes when the
	// container does.
	go func() {
		defer hijack.Close()
		_, _ = stdcopy.StdCopy(io.Discard, io.Discard, hijack.Reader)
	}()

	return nil
}

// HostPort returns the host-side port Docker bound to the container's
// containerPort/tcp binding, so the test process can dial the origin server
// from outside the container network namespace.
func (c *Container) HostPort(ctx context.Context, containerPort string) (string, error) {
	inspect, err := c.client.ContainerInspect(ctx, c.containerID)
	if err != nil {
		return "", fmt.Errorf("inspect container: %w", err)
	}
	bindings, ok := inspect.NetworkSettings.Ports[containerPortKey(containerPort)]
	if !ok || len(bindings) == 0 {
		return "", fmt.Errorf("no host binding for container port %s", containerPort)
	}
	return bindings[0].HostPort, nil
}

// Close stops the container and releases resources. The container is
// automatically removed if AutoRemove was set on its HostConfig.
func (c *Container) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	defer c.client.Close()
	return c.client.ContainerStop(ctx, c.containerID, container.StopOptions{})
}

// containerPortKey normalizes a bare port number into the "<port>/tcp" key
// Docker's port map uses.
func containerPortKey(containerPort string) nat.Port {
	if strings.Contains(containerPort, "/") {
		return nat.Port(containerPort)
	}
	return nat.Port(containerPort + "/tcp")
}

func pullImage(ctx context.Context, cli *client.Client, imageName string) error {
	reader, err := cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}
