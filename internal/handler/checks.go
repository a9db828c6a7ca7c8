package handler

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"checkhub/internal/ghclient"
)

const (
	CheckApproval      = "approval"
	CheckCommitMessage = "commitmessage"

	statusContextPrefix = "checkhub/"
)

// Commit status states.
const (
	StatePending = "pending"
	StateSuccess = "success"
	StateFailure = "failure"
	StateError   = "error"
)

// PullRequest identifies the pull request a check runs against.
type PullRequest struct {
	Owner   string
	Repo    string
	Number  int
	HeadSHA string
	Author  string
}

// Checker evaluates one check type against a pull request.
type Checker interface {
	Type() string
	Run(ctx context.Context, client ghclient.Client, pr PullRequest, cfg *RepoConfig) (ghclient.Status, error)
}

// Checkers maps check types to their implementation.
type Checkers map[string]Checker

// DefaultCheckers returns every built-in check.
func DefaultCheckers() Checkers {
	return NewCheckers(ApprovalCheck{}, CommitMessageCheck{})
}

// NewCheckers indexes checkers by type.
func NewCheckers(checkers ...Checker) Checkers {
	m := make(Checkers, len(checkers))
	for _, c := range checkers {
		m[c.Type()] = c
	}
	return m
}

// Types returns the registered check types, sorted.
func (c Checkers) Types() []string {
	types := make([]string, 0, len(c))
	for t := range c {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ApprovalCheck requires a minimum number of distinct approving reviewers.
// The author's own reviews and plain comments are ignored; a reviewer's
// latest review decides whether they count.
type ApprovalCheck struct{}

func (ApprovalCheck) Type() string { return CheckApproval }

func (ApprovalCheck) Run(ctx context.Context, client ghclient.Client, pr PullRequest, cfg *RepoConfig) (ghclient.Status, error) {
	reviews, err := client.ListPullRequestReviews(ctx, pr.Owner, pr.Repo, pr.Number)
	if err != nil {
		return ghclient.Status{}, err
	}

	latest := make(map[string]string)
	for _, review := range reviews {
		login := review.GetUser().GetLogin()
		state := review.GetState()
		if login == "" || login == pr.Author || state == "COMMENTED" {
			continue
		}
		latest[login] = state
	}

	approvals := 0
	for _, state := range latest {
		if state == "APPROVED" {
			approvals++
		}
	}

	minimum := cfg.Approval.Minimum
	status := ghclient.Status{
		Context:     statusContextPrefix + CheckApproval,
		Description: fmt.Sprintf("%d of %d required approvals", approvals, minimum),
		State:       StatePending,
	}
	if approvals >= minimum {
		status.State = StateSuccess
	}
	return status, nil
}

// CommitMessageCheck requires the first line of every commit message to
// match one of the configured patterns.
type CommitMessageCheck struct{}

func (CommitMessageCheck) Type() string { return CheckCommitMessage }

func (CommitMessageCheck) Run(ctx context.Context, client ghclient.Client, pr PullRequest, cfg *RepoConfig) (ghclient.Status, error) {
	status := ghclient.Status{Context: statusContextPrefix + CheckCommitMessage}

	if len(cfg.CommitMessage.Patterns) == 0 {
		status.State = StateSuccess
		status.Description = "No commit message patterns configured"
		return status, nil
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.CommitMessage.Patterns))
	for _, p := range cfg.CommitMessage.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return ghclient.Status{}, fmt.Errorf("invalid commit message pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	commits, err := client.ListPullRequestCommits(ctx, pr.Owner, pr.Repo, pr.Number)
	if err != nil {
		return ghclient.Status{}, err
	}

	invalid := 0
	for _, commit := range commits {
		subject, _, _ := strings.Cut(commit.GetCommit().GetMessage(), "\n")
		if !matchesAny(patterns, subject) {
			invalid++
		}
	}

	if invalid == 0 {
		status.State = StateSuccess
		status.Description = fmt.Sprintf("All %d commit messages match", len(commits))
	} else {
		status.State = StateFailure
		status.Description = fmt.Sprintf("%d of %d commit messages do not match", invalid, len(commits))
	}
	return status, nil
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
