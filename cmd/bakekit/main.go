package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bakekit/internal/app"
	bkerrors "bakekit/internal/errors"
	"bakekit/internal/manifest"
	"bakekit/internal/parser"
	"bakekit/internal/planner"
	"bakekit/internal/registry"
)

// version is set at build time via ldflags
var version = "dev"

// allProfiles lists every profile built by --all-profiles.
var allProfiles = []string{
	string(planner.ProfileFull),
	string(planner.ProfileDatabase),
	string(planner.ProfileMinimal),
}

var rootCmd = &cobra.Command{
	Use:     "bakekit",
	Short:   "Bakekit - deterministic minimal-surface container image builds",
	Version: version,
	Long: `Bakekit builds small, secure, reproducible runtime container images from a
dependency manifest and an application source tree, driven by a bakefile.

Transient build toolchains are removed before the image is finalized, the
image runs as a non-privileged user, and writable volume directories are
pre-created with the right ownership.`,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an image from a bakefile",
	Long: `Build executes the complete pipeline: reading the dependency manifest,
planning package layers for the profile, executing the build stages in a
container, reducing privileges, and finalizing the image.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		profile, _ := cmd.Flags().GetString("profile")
		record, _ := cmd.Flags().GetBool("record")
		all, _ := cmd.Flags().GetBool("all-profiles")

		// BAKEKIT_PROFILE provides the profile override when the flag is unset.
		if profile == "" {
			profile = viper.GetString("profile")
		}

		opts := app.Options{
			BakefilePath: file,
			Profile:      profile,
			DryRun:       dryRun,
			WriteRecord:  record,
		}

		ctx := context.Background()
		var err error
		if all {
			err = app.BuildAll(ctx, opts, allProfiles)
		} else {
			_, err = app.Build(ctx, opts)
		}
		if err != nil {
			bkerrors.HandleError(err)
			os.Exit(1)
		}
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the layer plan for a bakefile",
	Long: `Plan prints the package groups (split by lifetime) and writable paths the
build would use, without touching Docker.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		bf, err := parser.Parse(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		profile, err := planner.ParseProfile(bf.Spec.Profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		plan := planner.Compute(profile)
		fmt.Printf("Profile: %s\n", plan.Profile)
		printGroups("Permanent groups", plan.Permanent)
		printGroups("Transient groups", plan.Transient)
		if len(plan.WritablePaths) == 0 {
			fmt.Println("Writable paths: none")
		} else {
			fmt.Println("Writable paths:")
			for _, wp := range plan.WritablePaths {
				fmt.Printf("  %s (mode %o)\n", wp.Path, wp.Mode)
			}
		}
	},
}

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Show the parsed dependency manifest",
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		bf, err := parser.Parse(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		entries, err := manifest.Read(bf.Spec.Manifest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("Dependencies (%d):\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  %s\n", e)
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a bakefile and check prerequisites",
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		bf, err := parser.Parse(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		if err := app.ValidatePrerequisites(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("Bakefile '%s' is valid.\n", bf.Metadata.Name)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the last build as a GitLab release",
	Long: `Publish announces the most recent successful build (from the build record)
as a release in a GitLab project.`,
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetString("project")
		ref, _ := cmd.Flags().GetString("ref")
		if project == "" {
			fmt.Fprintln(os.Stderr, "Error: --project flag is required")
			os.Exit(1)
		}

		record, err := app.LoadRecord()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		if record == nil {
			fmt.Fprintln(os.Stderr, "Error: no build record found - run 'bakekit build --record' first")
			os.Exit(1)
		}

		publisher, err := registry.NewGitLabPublisher()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		release := registry.Release{
			Name: fmt.Sprintf("Image build %s", record.Tag),
			Tag:  record.Tag,
			Ref:  ref,
			Description: fmt.Sprintf("Profile: %s\nImage: %s\nPackages:\n- %s\n",
				record.Profile, record.ImageRef, strings.Join(record.Packages, "\n- ")),
		}

		if err := publisher.Publish(project, release); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		fmt.Printf("Published release %s to %s\n", record.Tag, project)
	},
}

func printGroups(title string, groups []planner.PackageGroup) {
	if len(groups) == 0 {
		fmt.Printf("%s: none\n", title)
		return
	}
	fmt.Printf("%s:\n", title)
	for _, g := range groups {
		fmt.Printf("  %s: %s\n", g.Name, strings.Join(g.Members, ", "))
	}
}

func init() {
	viper.SetEnvPrefix("bakekit")
	viper.AutomaticEnv()

	buildCmd.Flags().StringP("file", "f", "", "Path to the bakefile YAML (required)")
	buildCmd.Flags().Bool("dry-run", false, "Simulate the build without making any changes")
	buildCmd.Flags().String("profile", "", "Override the bakefile's feature profile")
	buildCmd.Flags().Bool("record", false, "Write a build record on success for auditing")
	buildCmd.Flags().Bool("all-profiles", false, "Build every profile concurrently")
	if err := buildCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for build command", "error", err)
	}
	rootCmd.AddCommand(buildCmd)

	planCmd.Flags().StringP("file", "f", "", "Path to the bakefile YAML (required)")
	if err := planCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for plan command", "error", err)
	}
	rootCmd.AddCommand(planCmd)

	manifestCmd.Flags().StringP("file", "f", "", "Path to the bakefile YAML (required)")
	if err := manifestCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for manifest command", "error", err)
	}
	rootCmd.AddCommand(manifestCmd)

	validateCmd.Flags().StringP("file", "f", "", "Path to the bakefile YAML (required)")
	if err := validateCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for validate command", "error", err)
	}
	rootCmd.AddCommand(validateCmd)

	publishCmd.Flags().String("project", "", "GitLab project path (group/name) (required)")
	publishCmd.Flags().String("ref", "", "Git ref to create the release tag from")
	if err := publishCmd.MarkFlagRequired("project"); err != nil {
		slog.Error("Failed to mark project flag as required for publish command", "error", err)
	}
	rootCmd.AddCommand(publishCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
