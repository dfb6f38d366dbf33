package staging

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	archive "github.com/moby/go-archive"
)

// execPollInterval is how often a finished exec is re-inspected while the
// daemon still reports it as running.
const execPollInterval = 100 * time.Millisecond

// DockerRuntime runs steps through the Docker Engine API.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime connects using the standard DOCKER_* environment.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Close releases the client's connections.
func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

// Ping checks that the daemon is reachable.
func (d *DockerRuntime) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

// Exec runs cmd in the container and waits for its exit code.
func (d *DockerRuntime) Exec(ctx context.Context, name string, cmd []string) (ExecResult, error) {
	created, err := d.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec create: %w", err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return ExecResult{}, fmt.Errorf("exec output: %w", err)
	}

	for {
		inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return ExecResult{}, fmt.Errorf("exec inspect: %w", err)
		}
		if !inspect.Running {
			return ExecResult{
				ExitCode: inspect.ExitCode,
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
		select {
		case <-ctx.Done():
			return ExecResult{}, ctx.Err()
		case <-time.After(execPollInterval):
		}
	}
}

// CopyDir copies the contents of the local directory src into dst, which must
// already exist in the container.
func (d *DockerRuntime) CopyDir(ctx context.Context, name, src, dst string) error {
	tar, err := archive.TarWithOptions(src, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("archive %s: %w", src, err)
	}
	defer tar.Close()

	if err := d.cli.CopyToContainer(ctx, name, dst, tar, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copy to %s:%s: %w", name, dst, err)
	}
	return nil
}
