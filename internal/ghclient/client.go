// Package ghclient wraps the GitHub REST API calls checkhub needs behind a
// small interface so handlers can be tested with fakes.
package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const perPage = 100

// Client is the subset of the GitHub API used by checkhub.
type Client interface {
	CurrentUser(ctx context.Context) (*github.User, error)
	ListRepositories(ctx context.Context) ([]*github.Repository, error)
	GetRepository(ctx context.Context, id int64) (*github.Repository, error)
	CreateHook(ctx context.Context, owner, repo string, hook HookOptions) (int64, error)
	DeleteHook(ctx context.Context, owner, repo string, id int64) error
	CreateStatus(ctx context.Context, owner, repo, sha string, status Status) error
	ListPullRequestCommits(ctx context.Context, owner, repo string, number int) ([]*github.RepositoryCommit, error)
	ListPullRequestReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error)
	GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

// Factory creates a client authenticated with token.
type Factory func(token string) (Client, error)

// HookOptions describes a repository webhook.
type HookOptions struct {
	URL    string
	Secret string
	Events []string
}

// Status is a commit status published for a check.
type Status struct {
	State       string // pending, success, failure, error
	Context     string
	Description string
}

// GitHub implements Client with go-github.
type GitHub struct {
	client *github.Client
}

var _ Client = (*GitHub)(nil)

// New creates an authenticated client. An empty baseURL targets github.com;
// otherwise it is used as a GitHub Enterprise API root.
func New(token, baseURL string) (*GitHub, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
	}

	return &GitHub{client: client}, nil
}

// NewFactory returns a Factory that creates clients against baseURL.
func NewFactory(baseURL string) Factory {
	return func(token string) (Client, error) {
		return New(token, baseURL)
	}
}

func (g *GitHub) CurrentUser(ctx context.Context) (*github.User, error) {
	user, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("getting authenticated user: %w", err)
	}
	return user, nil
}

func (g *GitHub) ListRepositories(ctx context.Context) ([]*github.Repository, error) {
	opts := &github.RepositoryListOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var all []*github.Repository
	for {
		repos, resp, err := g.client.Repositories.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories: %w", err)
		}
		all = append(all, repos...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (g *GitHub) GetRepository(ctx context.Context, id int64) (*github.Repository, error) {
	repo, _, err := g.client.Repositories.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting repository %d: %w", id, err)
	}
	return repo, nil
}

func (g *GitHub) CreateHook(ctx context.Context, owner, repo string, opts HookOptions) (int64, error) {
	active := true
	hook := &github.Hook{
		Events: opts.Events,
		Active: &active,
		Config: map[string]interface{}{
			"url":          opts.URL,
			"content_type": "json",
			"secret":       opts.Secret,
			"insecure_ssl": "0",
		},
	}

	created, _, err := g.client.Repositories.CreateHook(ctx, owner, repo, hook)
	if err != nil {
		return 0, fmt.Errorf("creating webhook: %w", err)
	}
	return created.GetID(), nil
}

func (g *GitHub) DeleteHook(ctx context.Context, owner, repo string, id int64) error {
	if _, err := g.client.Repositories.DeleteHook(ctx, owner, repo, id); err != nil {
		return fmt.Errorf("deleting webhook %d: %w", id, err)
	}
	return nil
}

func (g *GitHub) CreateStatus(ctx context.Context, owner, repo, sha string, status Status) error {
	_, _, err := g.client.Repositories.CreateStatus(ctx, owner, repo, sha, &github.RepoStatus{
		State:       github.String(status.State),
		Context:     github.String(status.Context),
		Description: github.String(status.Description),
	})
	if err != nil {
		return fmt.Errorf("creating status %q: %w", status.Context, err)
	}
	return nil
}

func (g *GitHub) ListPullRequestCommits(ctx context.Context, owner, repo string, number int) ([]*github.RepositoryCommit, error) {
	opts := &github.ListOptions{PerPage: perPage}

	var all []*github.RepositoryCommit
	for {
		commits, resp, err := g.client.PullRequests.ListCommits(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits of #%d: %w", number, err)
		}
		all = append(all, commits...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (g *GitHub) ListPullRequestReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error) {
	opts := &github.ListOptions{PerPage: perPage}

	var all []*github.PullRequestReview
	for {
		reviews, resp, err := g.client.PullRequests.ListReviews(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing reviews of #%d: %w", number, err)
		}
		all = append(all, reviews...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (g *GitHub) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	file, _, _, err := g.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", path, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return []byte(content), nil
}

// IsNotFound reports whether err is a 404 response from the GitHub API.
func IsNotFound(err error) bool {
	var errResp *github.ErrorResponse
	return errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound
}
