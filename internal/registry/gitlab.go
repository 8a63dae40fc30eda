package registry

import (
	"fmt"
	"log/slog"
	"os"

	gitlab "github.com/xanzy/go-gitlab"
)

// GitLabPublisher implements the Publisher interface for GitLab releases.
type GitLabPublisher struct {
	client *gitlab.Client
}

// NewGitLabPublisher creates a new GitLabPublisher with authentication.
func NewGitLabPublisher() (*GitLabPublisher, error) {
	token := os.Getenv("GITLAB_PRIVATE_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("GITLAB_PRIVATE_TOKEN environment variable is required")
	}

	baseURL := os.Getenv("GITLAB_URL")
	if baseURL == "" {
		baseURL = "https://gitlab.com/api/v4"
	}

	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &GitLabPublisher{client: client}, nil
}

// Publish creates a GitLab release in the given project announcing a built
// image. An existing release for the same tag is left untouched.
func (g *GitLabPublisher) Publish(project string, release Release) error {
	slog.Info("Publishing build release", "project", project, "tag", release.Tag)

	if existing, _, err := g.client.Releases.GetRelease(project, release.Tag); err == nil && existing != nil {
		slog.Warn("Release already exists, skipping", "project", project, "tag", release.Tag)
		return nil
	}

	opts := &gitlab.CreateReleaseOptions{
		Name:        gitlab.String(release.Name),
		TagName:     gitlab.String(release.Tag),
		Description: gitlab.String(release.Description),
	}
	if release.Ref != "" {
		opts.Ref = gitlab.String(release.Ref)
	}

	if _, _, err := g.client.Releases.CreateRelease(project, opts); err != nil {
		return fmt.Errorf("failed to create release %s in %s: %w", release.Tag, project, err)
	}

	slog.Info("Release published", "project", project, "tag", release.Tag)
	return nil
}
