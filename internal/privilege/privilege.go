package privilege

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	bkerrors "bakekit/internal/errors"
	"bakekit/internal/executor"
	"bakekit/internal/planner"
	"bakekit/pkg/runtime"
)

// Identity is the non-privileged user the image's process executes as.
type Identity struct {
	Username     string
	IsPrivileged bool
}

// NewIdentity returns a non-privileged identity with the given username.
func NewIdentity(username string) Identity {
	return Identity{Username: username, IsPrivileged: false}
}

// CommitComment labels the layer committed after privilege reduction.
const CommitComment = "reduce-privileges"

// Reduce creates the runtime identity inside the build container, transfers
// ownership of every writable path to it, applies each path's permission
// mode, and commits the result as a layer.
//
// It must run after the source tree and writable paths exist and strictly
// before finalization; reversing that order would leave writable paths owned
// by a privileged identity.
func Reduce(ctx context.Context, rt runtime.ContainerRuntime, containerID string, identity Identity, paths []planner.WritablePath) (executor.Layer, error) {
	slog.Info("reducing privileges", "user", identity.Username, "writablePaths", len(paths))

	if err := ensureIdentity(ctx, rt, containerID, identity); err != nil {
		return executor.Layer{}, err
	}

	for _, wp := range paths {
		chown := []string{"chown", "-R", identity.Username + ":" + identity.Username, wp.Path}
		if _, err := rt.Exec(ctx, containerID, chown); err != nil {
			return executor.Layer{}, fmt.Errorf("failed to transfer ownership of %s: %w", wp.Path, err)
		}

		chmod := []string{"chmod", "-R", fmt.Sprintf("%o", wp.Mode), wp.Path}
		if _, err := rt.Exec(ctx, containerID, chmod); err != nil {
			return executor.Layer{}, fmt.Errorf("failed to set mode on %s: %w", wp.Path, err)
		}
	}

	id, err := rt.Commit(ctx, containerID, CommitComment, nil)
	if err != nil {
		return executor.Layer{}, fmt.Errorf("failed to commit privilege layer: %w", err)
	}

	return executor.Layer{State: executor.State(CommitComment), ID: id}, nil
}

// ensureIdentity creates the identity if absent. An identity that already
// exists must not be privileged; uid 0 is a conflicting attribute.
func ensureIdentity(ctx context.Context, rt runtime.ContainerRuntime, containerID string, identity Identity) error {
	out, err := rt.Exec(ctx, containerID, []string{"sh", "-c", "id -u " + identity.Username + " 2>/dev/null || true"})
	uid := strings.TrimSpace(out)

	switch {
	case err != nil:
		return fmt.Errorf("failed to probe identity %s: %w", identity.Username, err)

	case uid == "":
		// Absent: create a system user without a password.
		if _, err := rt.Exec(ctx, containerID, []string{"adduser", "-D", identity.Username}); err != nil {
			return fmt.Errorf("%w: %s: %v", bkerrors.ErrIdentityCreation, identity.Username, err)
		}
		return nil

	case uid == "0":
		return fmt.Errorf("%w: %s already exists with uid 0", bkerrors.ErrIdentityCreation, identity.Username)

	default:
		slog.Debug("identity already present", "user", identity.Username, "uid", uid)
		return nil
	}
}
