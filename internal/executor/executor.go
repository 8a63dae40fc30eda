package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	bkerrors "bakekit/internal/errors"
	"bakekit/internal/manifest"
	"bakekit/internal/planner"
	"bakekit/pkg/runtime"
)

// State identifies one stage of the build pipeline.
type State string

const (
	StateInstallPermanent     State = "install-permanent"
	StateInstallTransient     State = "install-transient"
	StateInstallDependencies  State = "install-dependencies"
	StateRemoveTransient      State = "remove-transient"
	StateCopySource           State = "copy-source"
	StatePrepareWritablePaths State = "prepare-writable-paths"
)

// states is the fixed execution order. InstallDependencies must run after
// both install states and before RemoveTransient: compiling native
// extensions requires the transient toolchain to still be present.
var states = []State{
	StateInstallPermanent,
	StateInstallTransient,
	StateInstallDependencies,
	StateRemoveTransient,
	StateCopySource,
	StatePrepareWritablePaths,
}

// ContainerManifestPath is where the dependency manifest is uploaded inside
// the build container before language dependencies are installed.
const ContainerManifestPath = "/requirements.txt"

// StageError reports the state a build failed in and the underlying cause.
// The pipeline never retries or rolls back: layers are append-only and a
// half-built layer is not a valid cached artifact.
type StageError struct {
	State State
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.State, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func (e *StageError) Is(target error) bool {
	return target == bkerrors.ErrStageFailed
}

// Layer records one committed filesystem delta: which state produced it and
// which package identifiers it added or removed.
type Layer struct {
	State   State
	ID      string
	Added   []string
	Removed []string
}

// LayerStack is the ordered stack of layers a build produced.
type LayerStack []Layer

// BuildContext is the immutable input of one build: the dependency manifest,
// the staged source tree, and the in-image target directory.
type BuildContext struct {
	ManifestPath string
	SourceDir    string
	AppDir       string
}

// Executor runs the build pipeline inside a single build container through
// the container runtime.
type Executor struct {
	rt          runtime.ContainerRuntime
	containerID string
}

// New creates an Executor bound to an already-started build container.
func New(rt runtime.ContainerRuntime, containerID string) *Executor {
	return &Executor{rt: rt, containerID: containerID}
}

// Execute runs the six pipeline states strictly in order, committing a layer
// after each state that changed the filesystem. Any failure aborts the whole
// pipeline with a StageError; nothing is retried and nothing already
// committed is rolled back.
func (e *Executor) Execute(ctx context.Context, bctx BuildContext, plan *planner.Plan, entries []manifest.Entry) (LayerStack, error) {
	if _, err := os.Stat(bctx.SourceDir); err != nil {
		return nil, &StageError{State: StateCopySource, Cause: fmt.Errorf("source directory not accessible: %w", err)}
	}

	var stack LayerStack
	for _, state := range states {
		layer, ran, err := e.runState(ctx, state, bctx, plan, entries)
		if err != nil {
			return nil, &StageError{State: state, Cause: err}
		}
		if ran {
			slog.Info("stage committed", "state", state, "layer", layer.ID)
			stack = append(stack, layer)
		}
	}

	return stack, nil
}

// runState executes a single state. The second return value reports whether
// the state had any effect; empty states (e.g. no transient packages for the
// minimal profile) commit no layer.
func (e *Executor) runState(ctx context.Context, state State, bctx BuildContext, plan *planner.Plan, entries []manifest.Entry) (Layer, bool, error) {
	switch state {
	case StateInstallPermanent:
		return e.installPackages(ctx, state, plan.PermanentMembers())

	case StateInstallTransient:
		return e.installPackages(ctx, state, plan.TransientMembers())

	case StateInstallDependencies:
		return e.installDependencies(ctx, bctx.ManifestPath, entries)

	case StateRemoveTransient:
		return e.removePackages(ctx, state, plan.TransientMembers())

	case StateCopySource:
		return e.copySource(ctx, bctx)

	case StatePrepareWritablePaths:
		return e.prepareWritablePaths(ctx, plan.WritablePaths)
	}

	return Layer{}, false, fmt.Errorf("unknown state: %s", state)
}

// installPackages installs an OS package set and commits the result.
func (e *Executor) installPackages(ctx context.Context, state State, packages []string) (Layer, bool, error) {
	if len(packages) == 0 {
		return Layer{}, false, nil
	}

	cmd := append([]string{"apk", "add", "--update", "--no-cache"}, packages...)
	if _, err := e.rt.Exec(ctx, e.containerID, cmd); err != nil {
		return Layer{}, false, err
	}

	id, err := e.rt.Commit(ctx, e.containerID, string(state), nil)
	if err != nil {
		return Layer{}, false, err
	}

	return Layer{State: state, ID: id, Added: packages}, true, nil
}

// installDependencies uploads the manifest and installs the language
// dependencies against it. The transient toolchain must still be present.
func (e *Executor) installDependencies(ctx context.Context, manifestPath string, entries []manifest.Entry) (Layer, bool, error) {
	if len(entries) == 0 {
		return Layer{}, false, nil
	}

	if err := e.rt.CopyFile(ctx, e.containerID, manifestPath, ContainerManifestPath); err != nil {
		return Layer{}, false, err
	}

	cmd := []string{"pip", "install", "--no-cache-dir", "-r", ContainerManifestPath}
	if _, err := e.rt.Exec(ctx, e.containerID, cmd); err != nil {
		return Layer{}, false, err
	}

	id, err := e.rt.Commit(ctx, e.containerID, string(StateInstallDependencies), nil)
	if err != nil {
		return Layer{}, false, err
	}

	return Layer{State: StateInstallDependencies, ID: id, Added: manifest.Names(entries)}, true, nil
}

// removePackages removes the transient package set and commits the result.
func (e *Executor) removePackages(ctx context.Context, state State, packages []string) (Layer, bool, error) {
	if len(packages) == 0 {
		return Layer{}, false, nil
	}

	cmd := append([]string{"apk", "del"}, packages...)
	if _, err := e.rt.Exec(ctx, e.containerID, cmd); err != nil {
		return Layer{}, false, err
	}

	id, err := e.rt.Commit(ctx, e.containerID, string(state), nil)
	if err != nil {
		return Layer{}, false, err
	}

	return Layer{State: state, ID: id, Removed: packages}, true, nil
}

// copySource uploads the application source tree into the image working
// directory. Copying the same tree twice yields the same result, so source
// changes never invalidate the dependency layers below.
func (e *Executor) copySource(ctx context.Context, bctx BuildContext) (Layer, bool, error) {
	if _, err := e.rt.Exec(ctx, e.containerID, []string{"mkdir", "-p", bctx.AppDir}); err != nil {
		return Layer{}, false, err
	}

	if err := e.rt.CopyTree(ctx, e.containerID, bctx.SourceDir, bctx.AppDir); err != nil {
		return Layer{}, false, err
	}

	id, err := e.rt.Commit(ctx, e.containerID, string(StateCopySource), nil)
	if err != nil {
		return Layer{}, false, err
	}

	return Layer{State: StateCopySource, ID: id}, true, nil
}

// prepareWritablePaths creates the profile's writable volume directories.
func (e *Executor) prepareWritablePaths(ctx context.Context, paths []planner.WritablePath) (Layer, bool, error) {
	if len(paths) == 0 {
		return Layer{}, false, nil
	}

	for _, wp := range paths {
		if _, err := e.rt.Exec(ctx, e.containerID, []string{"mkdir", "-p", wp.Path}); err != nil {
			return Layer{}, false, err
		}
	}

	id, err := e.rt.Commit(ctx, e.containerID, string(StatePrepareWritablePaths), nil)
	if err != nil {
		return Layer{}, false, err
	}

	return Layer{State: StatePrepareWritablePaths, ID: id}, true, nil
}
