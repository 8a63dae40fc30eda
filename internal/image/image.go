package image

import (
	"fmt"
	"sort"

	bkerrors "bakekit/internal/errors"
	"bakekit/internal/executor"
	"bakekit/internal/privilege"
)

// Image is the terminal build artifact: an ordered stack of layers plus the
// runtime metadata contract. Immutable once finalized.
type Image struct {
	Layers     executor.LayerStack
	WorkingDir string
	User       privilege.Identity
	Env        map[string]string
	Ref        string
}

// Finalize aggregates the committed layers and runtime metadata into an
// Image. It performs no I/O and fails only on policy violations: a
// privileged active user or an empty layer stack.
func Finalize(layers executor.LayerStack, workingDir string, user privilege.Identity, env map[string]string) (*Image, error) {
	if user.IsPrivileged {
		return nil, fmt.Errorf("%w: active user %q is privileged", bkerrors.ErrFinalizationPolicy, user.Username)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: empty layer stack", bkerrors.ErrFinalizationPolicy)
	}

	envCopy := make(map[string]string, len(env))
	for k, v := range env {
		envCopy[k] = v
	}

	return &Image{
		Layers:     layers,
		WorkingDir: workingDir,
		User:       user,
		Env:        envCopy,
	}, nil
}

// Packages returns the package identifiers present in the final image,
// sorted: everything the layer stack added minus everything it removed.
// Transient group members must never appear here.
func (img *Image) Packages() []string {
	present := make(map[string]bool)
	for _, layer := range img.Layers {
		for _, p := range layer.Added {
			present[p] = true
		}
		for _, p := range layer.Removed {
			delete(present, p)
		}
	}

	out := make([]string, 0, len(present))
	for p := range present {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether a package identifier survives in the final image.
func (img *Image) Contains(pkg string) bool {
	for _, p := range img.Packages() {
		if p == pkg {
			return true
		}
	}
	return false
}
