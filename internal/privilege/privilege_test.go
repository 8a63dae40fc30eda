package privilege

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	bkerrors "bakekit/internal/errors"
	"bakekit/internal/planner"
	bkruntime "bakekit/pkg/runtime"
)

// scriptedRuntime answers Exec calls from a canned uid probe response and
// records every command, so tests can assert what Reduce ran.
type scriptedRuntime struct {
	probeOutput string
	probeErr    error
	commands    [][]string
	commits     []string
}

func (s *scriptedRuntime) PullImage(ctx context.Context, image string) error { return nil }

func (s *scriptedRuntime) StartBuildContainer(ctx context.Context, image, name string) (string, error) {
	return "ctr-1", nil
}

func (s *scriptedRuntime) Exec(ctx context.Context, containerID string, cmd []string) (string, error) {
	s.commands = append(s.commands, cmd)
	if len(cmd) > 1 && cmd[0] == "sh" {
		return s.probeOutput, s.probeErr
	}
	return "", nil
}

func (s *scriptedRuntime) CopyFile(ctx context.Context, containerID, srcPath, destPath string) error {
	return nil
}

func (s *scriptedRuntime) CopyTree(ctx context.Context, containerID, srcDir, destDir string) error {
	return nil
}

func (s *scriptedRuntime) Commit(ctx context.Context, containerID, comment string, config *bkruntime.ImageConfig) (string, error) {
	s.commits = append(s.commits, comment)
	return "sha256:priv", nil
}

func (s *scriptedRuntime) Tag(ctx context.Context, imageID, tag string) error { return nil }

func (s *scriptedRuntime) Export(ctx context.Context, imageID, path string) error { return nil }

func (s *scriptedRuntime) Remove(ctx context.Context, containerID string) error { return nil }

func (s *scriptedRuntime) ran(parts ...string) bool {
	want := strings.Join(parts, " ")
	for _, cmd := range s.commands {
		if strings.Join(cmd, " ") == want {
			return true
		}
	}
	return false
}

func TestNewIdentity(t *testing.T) {
	id := NewIdentity("appuser")
	if id.Username != "appuser" {
		t.Errorf("Username = %q, want appuser", id.Username)
	}
	if id.IsPrivileged {
		t.Error("NewIdentity must never produce a privileged identity")
	}
}

func TestReduce_CreatesIdentityAndTransfersOwnership(t *testing.T) {
	rt := &scriptedRuntime{probeOutput: ""}
	paths := []planner.WritablePath{
		{Path: "/vol/web/media", Mode: 0755},
		{Path: "/vol/web/static", Mode: 0755},
	}

	layer, err := Reduce(context.Background(), rt, "ctr-1", NewIdentity("appuser"), paths)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !rt.ran("adduser", "-D", "appuser") {
		t.Errorf("Missing identity creation, commands: %v", rt.commands)
	}
	for _, wp := range paths {
		if !rt.ran("chown", "-R", "appuser:appuser", wp.Path) {
			t.Errorf("Missing ownership transfer for %s, commands: %v", wp.Path, rt.commands)
		}
		if !rt.ran("chmod", "-R", fmt.Sprintf("%o", wp.Mode), wp.Path) {
			t.Errorf("Missing mode change for %s, commands: %v", wp.Path, rt.commands)
		}
	}

	if len(rt.commits) != 1 || rt.commits[0] != CommitComment {
		t.Errorf("Commits = %v, want [%s]", rt.commits, CommitComment)
	}
	if layer.ID != "sha256:priv" {
		t.Errorf("Layer ID = %q, want sha256:priv", layer.ID)
	}
}

func TestReduce_ReusesExistingIdentity(t *testing.T) {
	rt := &scriptedRuntime{probeOutput: "1000\n"}

	_, err := Reduce(context.Background(), rt, "ctr-1", NewIdentity("appuser"), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if rt.ran("adduser", "-D", "appuser") {
		t.Errorf("Existing identity must not be recreated, commands: %v", rt.commands)
	}
}

func TestReduce_ConflictingRootIdentity(t *testing.T) {
	rt := &scriptedRuntime{probeOutput: "0\n"}

	_, err := Reduce(context.Background(), rt, "ctr-1", NewIdentity("appuser"), nil)
	if err == nil {
		t.Fatal("Expected error for a uid 0 identity, got nil")
	}
	if !errors.Is(err, bkerrors.ErrIdentityCreation) {
		t.Errorf("Expected ErrIdentityCreation, got: %v", err)
	}
	if len(rt.commits) != 0 {
		t.Errorf("No layer may be committed on identity conflict, commits: %v", rt.commits)
	}
}

func TestReduce_ProbeFailure(t *testing.T) {
	rt := &scriptedRuntime{probeErr: errors.New("container gone")}

	_, err := Reduce(context.Background(), rt, "ctr-1", NewIdentity("appuser"), nil)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "appuser") {
		t.Errorf("Error should name the identity, got: %v", err)
	}
}
