package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"bakekit/internal/executor"
	"bakekit/internal/image"
	"bakekit/internal/manifest"
	"bakekit/internal/parser"
	"bakekit/internal/planner"
	"bakekit/internal/privilege"
	"bakekit/internal/runtime"
	"bakekit/internal/source"
	"bakekit/pkg/bakefile"
	bkruntime "bakekit/pkg/runtime"
)

const (
	// Color codes for console output
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
)

// Options controls one build invocation.
type Options struct {
	BakefilePath string
	Profile      string // optional override of the bakefile's profile
	DryRun       bool
	WriteRecord  bool
	RecordPath   string // overrides RecordFileName when set
}

// Build orchestrates the complete bakekit pipeline against the Docker
// runtime: parse bakefile, read manifest, plan layers, execute stages,
// reduce privileges, finalize. Every error aborts the build immediately and
// no image is produced on failure.
func Build(ctx context.Context, opts Options) (*image.Image, error) {
	if opts.DryRun {
		return BuildWith(ctx, nil, opts)
	}

	rt, err := runtime.NewDockerRuntime()
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker runtime: %w", err)
	}
	return BuildWith(ctx, rt, opts)
}

// BuildWith runs the pipeline against an explicit container runtime. The
// runtime may be nil only for dry runs, which never touch it.
func BuildWith(ctx context.Context, rt bkruntime.ContainerRuntime, opts Options) (*image.Image, error) {
	runID := uuid.New().String()
	slog.Info("Starting bakekit build", "runId", runID, "bakefile", opts.BakefilePath, "dryRun", opts.DryRun)

	bf, err := parser.Parse(opts.BakefilePath)
	if err != nil {
		return nil, fmt.Errorf("bakefile parsing failed: %w", err)
	}
	if opts.Profile != "" {
		bf.Spec.Profile = opts.Profile
	}

	profile, err := planner.ParseProfile(bf.Spec.Profile)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		fmt.Printf("%s🔍 DRY RUN MODE - No actual changes will be made%s\n\n", ColorYellow, ColorReset)
	}

	// Stage 1: read the dependency manifest.
	fmt.Printf("%s📄 Stage 1: Reading dependency manifest%s\n", ColorCyan, ColorReset)
	entries, err := manifest.Read(bf.Spec.Manifest)
	if err != nil {
		return nil, err
	}
	fmt.Printf("%s✅ Manifest read: %d dependencies%s\n\n", ColorGreen, len(entries), ColorReset)

	// Stage 2: plan package groups and writable paths.
	fmt.Printf("%s🗺️  Stage 2: Planning layers (profile: %s)%s\n", ColorPurple, profile, ColorReset)
	plan := planner.Compute(profile)
	fmt.Printf("%s✅ Plan: %d permanent group(s), %d transient group(s), %d writable path(s)%s\n\n",
		ColorGreen, len(plan.Permanent), len(plan.Transient), len(plan.WritablePaths), ColorReset)

	identity := privilege.NewIdentity(bf.Spec.UserOrDefault())

	if opts.DryRun {
		printDryRun(bf, plan, entries, identity)
		fmt.Printf("%s🎉 DRY RUN COMPLETED - All stages simulated successfully!%s\n", ColorGreen, ColorReset)
		fmt.Printf("%sNo image was built.%s\n", ColorYellow, ColorReset)
		return nil, nil
	}

	// Stage 3: stage the source tree and execute the build pipeline.
	fmt.Printf("%s🏗️  Stage 3: Executing build stages%s\n", ColorRed, ColorReset)
	img, err := executeBuild(ctx, rt, bf, plan, entries, identity, runID)
	if err != nil {
		return nil, err
	}
	fmt.Printf("%s✅ Image finalized: %s%s\n\n", ColorGreen, img.Ref, ColorReset)

	if opts.WriteRecord {
		recordPath := opts.RecordPath
		if recordPath == "" {
			recordPath = RecordFileName
		}
		if err := saveRecord(newRecord(bf, opts.BakefilePath, runID, img), recordPath); err != nil {
			slog.Warn("Failed to write build record", "error", err)
		} else {
			slog.Info("Build record written", "file", recordPath)
		}
	}

	fmt.Printf("%s🎉 BAKEKIT BUILD COMPLETED SUCCESSFULLY!%s\n", ColorGreen, ColorReset)
	fmt.Printf("%s✨ Image '%s' is ready!%s\n", ColorWhite, bf.Spec.Output.Tag, ColorReset)
	slog.Info("Build completed", "runId", runID, "image", img.Ref, "tag", bf.Spec.Output.Tag)
	return img, nil
}

// executeBuild runs the container-facing part of the pipeline: source
// staging, the six executor states, privilege reduction and the final commit.
// The build container is always removed, even on failure.
func executeBuild(ctx context.Context, rt bkruntime.ContainerRuntime, bf *bakefile.Bakefile, plan *planner.Plan, entries []manifest.Entry, identity privilege.Identity, runID string) (*image.Image, error) {
	stagingDir, err := os.MkdirTemp("", "bakekit-src-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			slog.Warn("Failed to clean staging directory", "dir", stagingDir, "error", err)
		}
	}()

	staged, err := source.Stage(ctx, &bf.Spec.Source, filepath.Join(stagingDir, "src"))
	if err != nil {
		return nil, err
	}

	if err := rt.PullImage(ctx, bf.Spec.BaseImage); err != nil {
		return nil, fmt.Errorf("failed to pull base image: %w", err)
	}

	containerName := containerName(bf, runID)
	containerID, err := rt.StartBuildContainer(ctx, bf.Spec.BaseImage, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to start build container: %w", err)
	}
	defer func() {
		if err := rt.Remove(ctx, containerID); err != nil {
			slog.Warn("Failed to remove build container", "containerID", containerID, "error", err)
		}
	}()

	bctx := executor.BuildContext{
		ManifestPath: bf.Spec.Manifest,
		SourceDir:    staged,
		AppDir:       bf.Spec.AppDirOrDefault(),
	}

	layers, err := executor.New(rt, containerID).Execute(ctx, bctx, plan, entries)
	if err != nil {
		return nil, err
	}

	privLayer, err := privilege.Reduce(ctx, rt, containerID, identity, plan.WritablePaths)
	if err != nil {
		return nil, err
	}
	layers = append(layers, privLayer)

	img, err := image.Finalize(layers, bctx.AppDir, identity, bf.Spec.Env)
	if err != nil {
		return nil, err
	}

	ref, err := rt.Commit(ctx, containerID, "finalize", &bkruntime.ImageConfig{
		User:       identity.Username,
		WorkingDir: img.WorkingDir,
		Env:        img.Env,
		Labels:     bf.Metadata.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit final image: %w", err)
	}
	img.Ref = ref

	if err := rt.Tag(ctx, ref, bf.Spec.Output.Tag); err != nil {
		return nil, err
	}

	if bf.Spec.Output.Export != "" {
		if err := rt.Export(ctx, ref, bf.Spec.Output.Export); err != nil {
			return nil, err
		}
	}

	return img, nil
}

// BuildAll builds one bakefile under several profiles concurrently against
// the Docker runtime. The Docker client is safe for concurrent use, so one
// runtime is shared by all profile builds.
func BuildAll(ctx context.Context, opts Options, profiles []string) error {
	var rt bkruntime.ContainerRuntime
	if !opts.DryRun {
		dockerRt, err := runtime.NewDockerRuntime()
		if err != nil {
			return fmt.Errorf("failed to create Docker runtime: %w", err)
		}
		rt = dockerRt
	}
	return BuildAllWith(ctx, rt, opts, profiles)
}

// BuildAllWith runs one build per profile concurrently against an explicit
// container runtime. Each profile owns its own build context, container,
// layer stack and record file, so the builds share no mutable state. The
// first error is returned after all builds finish.
func BuildAllWith(ctx context.Context, rt bkruntime.ContainerRuntime, opts Options, profiles []string) error {
	var wg sync.WaitGroup
	errs := make([]error, len(profiles))

	for i, profile := range profiles {
		wg.Add(1)
		go func(i int, profile string) {
			defer wg.Done()
			buildOpts := opts
			buildOpts.Profile = profile
			if buildOpts.WriteRecord && buildOpts.RecordPath == "" {
				buildOpts.RecordPath = profileRecordPath(profile)
			}
			if _, err := BuildWith(ctx, rt, buildOpts); err != nil {
				errs[i] = fmt.Errorf("profile %s: %w", profile, err)
			}
		}(i, profile)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// printDryRun reports every operation the pipeline would perform.
func printDryRun(bf *bakefile.Bakefile, plan *planner.Plan, entries []manifest.Entry, identity privilege.Identity) {
	would := func(format string, args ...any) {
		fmt.Printf("%s🔍 DRY RUN: Would %s%s\n", ColorYellow, fmt.Sprintf(format, args...), ColorReset)
	}

	would("pull base image %s", bf.Spec.BaseImage)
	if pkgs := plan.PermanentMembers(); len(pkgs) > 0 {
		would("install permanent packages: %s", strings.Join(pkgs, ", "))
	}
	if pkgs := plan.TransientMembers(); len(pkgs) > 0 {
		would("install transient packages: %s", strings.Join(pkgs, ", "))
	}
	if len(entries) > 0 {
		would("install %d language dependencies from %s", len(entries), bf.Spec.Manifest)
	}
	if pkgs := plan.TransientMembers(); len(pkgs) > 0 {
		would("remove transient packages: %s", strings.Join(pkgs, ", "))
	}
	would("copy source %s to %s", bf.Spec.Source.Path, bf.Spec.AppDirOrDefault())
	for _, wp := range plan.WritablePaths {
		would("create writable path %s (mode %o, owner %s)", wp.Path, wp.Mode, identity.Username)
	}
	would("create non-privileged user %s and finalize image %s", identity.Username, bf.Spec.Output.Tag)
	fmt.Println()
}

// containerName returns a unique build container name for this run.
func containerName(bf *bakefile.Bakefile, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("bakekit-%s-%s-%s", bf.Metadata.Name, bf.Spec.Profile, short)
}

// ValidatePrerequisites checks that all required external dependencies are available.
func ValidatePrerequisites() error {
	slog.Info("Validating bakekit prerequisites")

	// The Docker daemon must be reachable to build images.
	if _, err := runtime.NewDockerRuntime(); err != nil {
		return fmt.Errorf("Docker prerequisite check failed: %w", err)
	}

	slog.Info("All prerequisites validated successfully")
	return nil
}
