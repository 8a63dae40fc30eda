package planner

import (
	"fmt"
	"io/fs"
)

// Profile selects which OS package groups and writable paths a build uses.
type Profile string

const (
	// ProfileFull ships the database client plus image-processing runtime
	// libraries and declares writable media/static directories.
	ProfileFull Profile = "full"

	// ProfileDatabase ships the database client only.
	ProfileDatabase Profile = "database"

	// ProfileMinimal has no native OS dependencies at all.
	ProfileMinimal Profile = "minimal"
)

// ParseProfile converts a bakefile profile string into a Profile.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileFull, ProfileDatabase, ProfileMinimal:
		return Profile(s), nil
	}
	return "", fmt.Errorf("unknown profile: %q", s)
}

// GroupKind is the lifetime of a package group within the image build.
type GroupKind int

const (
	// Permanent groups are required at runtime and retained in the final image.
	Permanent GroupKind = iota

	// Transient groups exist only to compile native language dependencies and
	// are removed before finalization.
	Transient
)

func (k GroupKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// PackageGroup is a named, ordered set of OS packages sharing one lifetime.
type PackageGroup struct {
	Name    string
	Kind    GroupKind
	Members []string
}

// WritablePath is a directory that must remain mutable at runtime, owned by
// the non-privileged identity.
type WritablePath struct {
	Path string
	Mode fs.FileMode
}

// Plan is the planner's output: package groups split by lifetime plus the
// writable paths the profile requires.
type Plan struct {
	Profile       Profile
	Permanent     []PackageGroup
	Transient     []PackageGroup
	WritablePaths []WritablePath
}

// Alpine package groups. The split is by lifetime, not by function: dev
// headers and toolchains are only needed while native extensions compile.
var (
	databaseClient = PackageGroup{
		Name:    "database-client",
		Kind:    Permanent,
		Members: []string{"postgresql-client"},
	}
	imageRuntimeLibs = PackageGroup{
		Name:    "image-runtime-libs",
		Kind:    Permanent,
		Members: []string{"jpeg-dev", "zlib"},
	}
	compilerToolchain = PackageGroup{
		Name:    "compiler-toolchain",
		Kind:    Transient,
		Members: []string{"gcc", "libc-dev", "linux-headers", "musl-dev"},
	}
	databaseDevHeaders = PackageGroup{
		Name:    "database-dev-headers",
		Kind:    Transient,
		Members: []string{"postgresql-dev"},
	}
	compressionDevLibs = PackageGroup{
		Name:    "compression-dev-libs",
		Kind:    Transient,
		Members: []string{"zlib-dev"},
	}
)

// Writable volume directories for profiles with mutable runtime storage.
const volumeMode fs.FileMode = 0755

var fullWritablePaths = []WritablePath{
	{Path: "/vol/web/media", Mode: volumeMode},
	{Path: "/vol/web/static", Mode: volumeMode},
}

// Compute returns the package groups and writable paths for a profile. It is
// a pure function: the same profile always yields the same plan, and transient
// groups are derived solely from the profile's permanent selection plus its
// dev-only compile requirements.
func Compute(profile Profile) *Plan {
	plan := &Plan{Profile: profile}

	switch profile {
	case ProfileFull:
		plan.Permanent = []PackageGroup{databaseClient, imageRuntimeLibs}
		plan.Transient = []PackageGroup{compilerToolchain, databaseDevHeaders, compressionDevLibs}
		plan.WritablePaths = append(plan.WritablePaths, fullWritablePaths...)
	case ProfileDatabase:
		plan.Permanent = []PackageGroup{databaseClient}
		plan.Transient = []PackageGroup{compilerToolchain, databaseDevHeaders}
	case ProfileMinimal:
		// No native OS dependencies.
	}

	return plan
}

// PermanentMembers returns every package in the plan's permanent groups, in
// group order.
func (p *Plan) PermanentMembers() []string {
	return members(p.Permanent)
}

// TransientMembers returns every package in the plan's transient groups, in
// group order.
func (p *Plan) TransientMembers() []string {
	return members(p.Transient)
}

func members(groups []PackageGroup) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g.Members...)
	}
	return out
}
