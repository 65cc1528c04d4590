package notify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"promoter/pkg/cmdutil"
	"promoter/pkg/templates"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// GitHubNotifier publishes a GitHub release tagged <build>-<release number>
type GitHubNotifier struct {
	client *github.Client
	owner  string
	repo   string
	draft  bool
	token  string
	logger *slog.Logger
}

// NewGitHubNotifier creates an authenticated notifier. apiURL selects a
// GitHub Enterprise API; empty means api.github.com.
func NewGitHubNotifier(token, ownerRepo, apiURL string, draft bool, logger *slog.Logger) (*GitHubNotifier, error) {
	parts := strings.Split(ownerRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid owner/repo format: %s", ownerRepo)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	client := github.NewClient(oauth2.NewClient(context.Background(), ts))

	if apiURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
		}
	}

	return &GitHubNotifier{
		client: client,
		owner:  parts[0],
		repo:   parts[1],
		draft:  draft,
		token:  token,
		logger: logger,
	}, nil
}

func (n *GitHubNotifier) Name() string { return "github" }

// TagName returns the release tag for an event
func TagName(e Event) string {
	return strings.Trim(tagUnsafe.ReplaceAllString(e.BuildName, "-"), "-") + "-" + e.ReleaseNumber
}

// Notify creates the release
func (n *GitHubNotifier) Notify(ctx context.Context, e Event) error {
	data := e.templateData()
	title, err := templates.Render(templates.ReleaseTitle, data)
	if err != nil {
		return err
	}
	body, err := templates.Render(templates.ReleaseNotes, data)
	if err != nil {
		return err
	}

	tag := TagName(e)
	release, _, err := n.client.Repositories.CreateRelease(ctx, n.owner, n.repo, &github.RepositoryRelease{
		TagName: github.String(tag),
		Name:    github.String(strings.TrimSpace(title)),
		Body:    github.String(body),
		Draft:   github.Bool(n.draft),
	})
	if err != nil {
		msg := cmdutil.SanitizeOutput([]byte(err.Error()), []string{n.token})
		return fmt.Errorf("creating release %s: %s", tag, msg)
	}

	n.logger.Info("github release created",
		"repository", n.owner+"/"+n.repo,
		"tag", tag,
		"url", release.GetHTMLURL(),
	)
	return nil
}
