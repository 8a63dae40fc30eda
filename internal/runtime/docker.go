package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	bkruntime "bakekit/pkg/runtime"
)

// DockerRuntime implements the ContainerRuntime interface using the Docker client.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime creates a new DockerRuntime instance using client.FromEnv.
func NewDockerRuntime() (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Check if Docker daemon is accessible
	ctx := context.Background()
	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}

	return &DockerRuntime{
		client: dockerClient,
	}, nil
}

// PullImage pulls a Docker image.
func (d *DockerRuntime) PullImage(ctx context.Context, imageName string) error {
	slog.Info("Pulling Docker image", "image", imageName)

	reader, err := d.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// Stream the pull output (but don't print it to avoid clutter)
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to stream image pull output: %w", err)
	}

	slog.Info("Successfully pulled Docker image", "image", imageName)
	return nil
}

// StartBuildContainer creates and starts a long-lived build container from
// the given image. The container idles until stages exec commands into it.
func (d *DockerRuntime) StartBuildContainer(ctx context.Context, imageName, name string) (string, error) {
	slog.Info("Starting build container", "image", imageName, "name", name)

	containerConfig := &container.Config{
		Image: imageName,
		Cmd:   []string{"sleep", "infinity"},
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, &container.HostConfig{}, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create build container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := d.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil {
			slog.Error("Failed to remove container after start failure", "containerID", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("failed to start build container: %w", err)
	}

	return resp.ID, nil
}

// Exec runs a command inside the build container and returns its combined
// output. A non-zero exit code is an error carrying the cleaned output.
func (d *DockerRuntime) Exec(ctx context.Context, containerID string, cmd []string) (string, error) {
	slog.Debug("Executing command in build container", "containerID", containerID, "command", cmd)

	execResp, err := d.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create exec for %v: %w", cmd, err)
	}

	attach, err := d.client.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attach.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil {
		return "", fmt.Errorf("failed to read command output: %w", err)
	}

	inspect, err := d.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return "", fmt.Errorf("failed to inspect exec: %w", err)
	}

	output := cleanOutput(out.String())
	if inspect.ExitCode != 0 {
		return output, fmt.Errorf("command %v exited with code %d: %s", cmd, inspect.ExitCode, lastLine(output))
	}

	return output, nil
}

// CopyFile uploads a single local file into the container at destPath.
func (d *DockerRuntime) CopyFile(ctx context.Context, containerID, srcPath, destPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcPath, err)
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", srcPath, err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: filepath.Base(destPath),
		Mode: int64(info.Mode().Perm()),
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write tar data: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar stream: %w", err)
	}

	return d.copyToContainer(ctx, containerID, filepath.Dir(destPath), &buf)
}

// CopyTree uploads a local directory tree into the container at destDir.
func (d *DockerRuntime) CopyTree(ctx context.Context, containerID, srcDir, destDir string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(relPath)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to tar source tree %s: %w", srcDir, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar stream: %w", err)
	}

	return d.copyToContainer(ctx, containerID, destDir, &buf)
}

func (d *DockerRuntime) copyToContainer(ctx context.Context, containerID, destDir string, content io.Reader) error {
	if err := d.client.CopyToContainer(ctx, containerID, destDir, content, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy into container at %s: %w", destDir, err)
	}
	return nil
}

// Commit commits the container's current filesystem as a layer. A nil config
// commits a plain intermediate layer; the final commit carries the image's
// runtime metadata.
func (d *DockerRuntime) Commit(ctx context.Context, containerID, comment string, config *bkruntime.ImageConfig) (string, error) {
	opts := container.CommitOptions{
		Comment: comment,
		Pause:   true,
	}

	if config != nil {
		env := make([]string, 0, len(config.Env))
		for k, v := range config.Env {
			env = append(env, k+"="+v)
		}
		opts.Config = &container.Config{
			User:       config.User,
			WorkingDir: config.WorkingDir,
			Env:        env,
			Labels:     config.Labels,
		}
	}

	resp, err := d.client.ContainerCommit(ctx, containerID, opts)
	if err != nil {
		return "", fmt.Errorf("failed to commit container: %w", err)
	}

	return resp.ID, nil
}

// Tag applies a tag to a committed image.
func (d *DockerRuntime) Tag(ctx context.Context, imageID, tag string) error {
	if err := d.client.ImageTag(ctx, imageID, tag); err != nil {
		return fmt.Errorf("failed to tag image %s as %s: %w", imageID, tag, err)
	}
	return nil
}

// Export writes a committed image to a tarball at path.
func (d *DockerRuntime) Export(ctx context.Context, imageID, path string) error {
	reader, err := d.client.ImageSave(ctx, []string{imageID})
	if err != nil {
		return fmt.Errorf("failed to save image %s: %w", imageID, err)
	}
	defer reader.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to write export file %s: %w", path, err)
	}

	slog.Info("Exported image", "image", imageID, "path", path)
	return nil
}

// Remove force-removes the build container.
func (d *DockerRuntime) Remove(ctx context.Context, containerID string) error {
	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

// cleanOutput strips ANSI escape sequences and control characters from
// command output and drops lines that are mostly binary.
func cleanOutput(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if clean := cleanLogLine(line); clean != "" {
			lines = append(lines, clean)
		}
	}
	return strings.Join(lines, "\n")
}

// lastLine returns the final non-empty line of output, used to summarize a
// failed command.
func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
