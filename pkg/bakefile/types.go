package bakefile

// Bakefile is the root object that holds the entire configuration for a bakekit build.
// It's populated by parsing the user's bakekit.yaml file.
type Bakefile struct {
	APIVersion string   `yaml:"apiVersion" validate:"required"`
	Kind       string   `yaml:"kind" validate:"required,eq=Bakefile"`
	Metadata   Metadata `yaml:"metadata" validate:"required"`
	Spec       Spec     `yaml:"spec" validate:"required"`
}

// Metadata contains build-level metadata.
type Metadata struct {
	Name        string            `yaml:"name" validate:"required"`
	Description string            `yaml:"description"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// Spec contains the detailed specification for one image build.
type Spec struct {
	Profile   string            `yaml:"profile" validate:"required,oneof=full database minimal"`
	BaseImage string            `yaml:"baseImage" validate:"required"`
	Manifest  string            `yaml:"manifest" validate:"required"`
	Source    Source            `yaml:"source" validate:"required"`
	AppDir    string            `yaml:"appDir"`
	User      string            `yaml:"user"`
	Env       map[string]string `yaml:"env,omitempty"`
	Output    Output            `yaml:"output" validate:"required"`
}

// Source describes where the application source tree comes from. Path may be
// a local directory or a git URL (http, https, git or ssh scheme).
type Source struct {
	Path string `yaml:"path" validate:"required"`
	Ref  string `yaml:"ref"`
}

// Output describes the produced image artifact.
type Output struct {
	Tag    string `yaml:"tag" validate:"required"`
	Export string `yaml:"export"`
}

const (
	// DefaultAppDir is the image working directory used when spec.appDir is unset.
	DefaultAppDir = "/app"

	// DefaultUser is the runtime identity name used when spec.user is unset.
	DefaultUser = "appuser"
)

// AppDirOrDefault returns the configured working directory or DefaultAppDir.
func (s *Spec) AppDirOrDefault() string {
	if s.AppDir == "" {
		return DefaultAppDir
	}
	return s.AppDir
}

// UserOrDefault returns the configured runtime identity name or DefaultUser.
func (s *Spec) UserOrDefault() string {
	if s.User == "" {
		return DefaultUser
	}
	return s.User
}
