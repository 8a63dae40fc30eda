package runtime

import (
	"context"
)

// ImageConfig is the runtime metadata committed onto the final image.
type ImageConfig struct {
	User       string
	WorkingDir string
	Env        map[string]string
	Labels     map[string]string
}

// ContainerRuntime defines the contract for the container operations the build
// pipeline needs. One long-lived build container is started from the base
// image; stages exec commands and upload files into it, and each completed
// stage is committed as a layer.
type ContainerRuntime interface {
	// PullImage pulls the base image the build container starts from.
	PullImage(ctx context.Context, image string) error

	// StartBuildContainer creates and starts a long-lived build container
	// from the given image, returning its ID.
	StartBuildContainer(ctx context.Context, image, name string) (string, error)

	// Exec runs a command inside the build container, returning its combined
	// output. A non-zero exit code is an error.
	Exec(ctx context.Context, containerID string, cmd []string) (string, error)

	// CopyFile uploads a single local file into the container at destPath.
	CopyFile(ctx context.Context, containerID, srcPath, destPath string) error

	// CopyTree uploads a local directory tree into the container at destDir.
	CopyTree(ctx context.Context, containerID, srcDir, destDir string) error

	// Commit commits the container's current filesystem as a layer, returning
	// the resulting image ID. A nil config commits a plain intermediate layer;
	// the final commit carries the image's runtime metadata.
	Commit(ctx context.Context, containerID, comment string, config *ImageConfig) (string, error)

	// Tag applies a tag to a committed image.
	Tag(ctx context.Context, imageID, tag string) error

	// Export writes a committed image to a tarball at path.
	Export(ctx context.Context, imageID, path string) error

	// Remove force-removes the build container.
	Remove(ctx context.Context, containerID string) error
}
