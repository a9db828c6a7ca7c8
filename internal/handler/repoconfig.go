package handler

import (
	"context"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"checkhub/internal/async"
	"checkhub/internal/ghclient"
)

// RepoConfigFile is read from the head commit of a pull request.
const RepoConfigFile = ".checkhub.yaml"

// DefaultMinimumApprovals applies when a repository does not configure one.
const DefaultMinimumApprovals = 2

// RepoConfig is the per-repository check configuration.
type RepoConfig struct {
	Approval struct {
		Minimum int `yaml:"minimum"`
	} `yaml:"approval"`
	CommitMessage struct {
		Patterns []string `yaml:"patterns"`
	} `yaml:"commitmessage"`
}

// DefaultRepoConfig returns the configuration used when a repository has no
// readable config file.
func DefaultRepoConfig() *RepoConfig {
	cfg := &RepoConfig{}
	cfg.Approval.Minimum = DefaultMinimumApprovals
	return cfg
}

// ParseRepoConfig parses data over the defaults and validates the patterns.
func ParseRepoConfig(data []byte) (*RepoConfig, error) {
	cfg := DefaultRepoConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", RepoConfigFile, err)
	}

	if cfg.Approval.Minimum < 0 {
		return nil, fmt.Errorf("approval.minimum must not be negative, got %d", cfg.Approval.Minimum)
	}
	for _, pattern := range cfg.CommitMessage.Patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid commit message pattern %q: %w", pattern, err)
		}
	}

	return cfg, nil
}

// LoadRepoConfig fetches the config file at ref and falls back to the
// defaults when it is missing or invalid.
func LoadRepoConfig(ctx context.Context, client ghclient.Client, owner, repo, ref string) (*RepoConfig, error) {
	return async.FirstSuccess(ctx, []async.Operation[*RepoConfig]{
		func(ctx context.Context) (*RepoConfig, error) {
			data, err := client.GetFile(ctx, owner, repo, RepoConfigFile, ref)
			if err != nil {
				return nil, err
			}
			return ParseRepoConfig(data)
		},
		func(ctx context.Context) (*RepoConfig, error) {
			return DefaultRepoConfig(), nil
		},
	})
}
