// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment
// variables. It is constructed once at process start and passed by
// reference into each component; core logic never reads the environment.
type Config struct {
	ListenAddr string
	DBPath     string
	RulesFile  string
	Channel    string

	SlackToken string

	Git       Git
	Bitbucket Bitbucket
	Jenkins   Jenkins

	SCMLockTimeout time.Duration
	SweepInterval  time.Duration

	FilterBranches []string
	FilterRepos    []string
}

// Git configures the local bare mirror and its remote transport.
type Git struct {
	RemoteURL string
	LocalDir  string
	Username  string
	Password  string
	// PushChanges gates pushing revert commits to the remote. When false,
	// reverts are created locally only.
	PushChanges bool
	// StrictHostKeyChecking is a tri-state override for SSH transports:
	// nil leaves the client default in place.
	StrictHostKeyChecking *bool
}

// Bitbucket configures the branch restriction API client.
type Bitbucket struct {
	RepoUsername string
	RepoSlug     string
	AuthUsername string
	Password     string
}

// Configured reports whether the restriction API can be used.
func (b Bitbucket) Configured() bool {
	return b.RepoUsername != "" && b.RepoSlug != ""
}

// Jenkins configures the CI backend used to trigger rebuilds.
type Jenkins struct {
	BaseURL  string
	Username string
	Password string
}

// Configured reports whether rebuilds can be triggered.
func (j Jenkins) Configured() bool {
	return j.BaseURL != ""
}

// Load reads configuration from environment variables and returns a
// validated Config. BUILDWARDEN_GIT_REMOTE_URL is required; everything
// else is optional with defaults: BUILDWARDEN_LISTEN_ADDR
// (127.0.0.1:9090), BUILDWARDEN_CHANNEL (general),
// BUILDWARDEN_SCM_LOCK_TIMEOUT (2m), BUILDWARDEN_SWEEP_INTERVAL (0,
// disabled). An empty BUILDWARDEN_DB_PATH selects the in-memory stores,
// an empty BUILDWARDEN_RULES_FILE selects the embedded default ruleset.
func Load() (*Config, error) {
	remoteURL := os.Getenv("BUILDWARDEN_GIT_REMOTE_URL")
	if remoteURL == "" {
		return nil, fmt.Errorf("BUILDWARDEN_GIT_REMOTE_URL is required")
	}

	localDir := os.Getenv("BUILDWARDEN_GIT_LOCAL_DIR")
	if localDir == "" {
		dir, err := os.MkdirTemp("", "buildwarden-mirror-")
		if err != nil {
			return nil, fmt.Errorf("create mirror temp dir: %w", err)
		}
		localDir = dir
	}

	lockTimeout := 2 * time.Minute
	if v, ok := os.LookupEnv("BUILDWARDEN_SCM_LOCK_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("BUILDWARDEN_SCM_LOCK_TIMEOUT has invalid duration %q: %w", v, err)
		}
		lockTimeout = parsed
	}

	var sweepInterval time.Duration
	if v, ok := os.LookupEnv("BUILDWARDEN_SWEEP_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("BUILDWARDEN_SWEEP_INTERVAL has invalid duration %q: %w", v, err)
		}
		sweepInterval = parsed
	}

	listenAddr := "127.0.0.1:9090"
	if v, ok := os.LookupEnv("BUILDWARDEN_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	channel := "general"
	if v, ok := os.LookupEnv("BUILDWARDEN_CHANNEL"); ok {
		channel = v
	}

	var strictHostKeyChecking *bool
	if v, ok := os.LookupEnv("BUILDWARDEN_GIT_STRICT_HOST_KEY_CHECKING"); ok {
		strict := v == "true" || v == "1"
		strictHostKeyChecking = &strict
	}

	bitbucket := Bitbucket{
		RepoUsername: os.Getenv("BUILDWARDEN_BITBUCKET_USERNAME"),
		RepoSlug:     os.Getenv("BUILDWARDEN_BITBUCKET_SLUG"),
		AuthUsername: os.Getenv("BUILDWARDEN_BITBUCKET_AUTH_USERNAME"),
		Password:     os.Getenv("BUILDWARDEN_BITBUCKET_PASSWORD"),
	}
	if bitbucket.AuthUsername == "" {
		bitbucket.AuthUsername = bitbucket.RepoUsername
	}

	return &Config{
		ListenAddr: listenAddr,
		DBPath:     os.Getenv("BUILDWARDEN_DB_PATH"),
		RulesFile:  os.Getenv("BUILDWARDEN_RULES_FILE"),
		Channel:    channel,
		SlackToken: os.Getenv("BUILDWARDEN_SLACK_TOKEN"),
		Git: Git{
			RemoteURL:             remoteURL,
			LocalDir:              localDir,
			Username:              os.Getenv("BUILDWARDEN_GIT_USERNAME"),
			Password:              os.Getenv("BUILDWARDEN_GIT_PASSWORD"),
			PushChanges:           os.Getenv("BUILDWARDEN_GIT_PUSH_CHANGES") == "true",
			StrictHostKeyChecking: strictHostKeyChecking,
		},
		Bitbucket: bitbucket,
		Jenkins: Jenkins{
			BaseURL:  strings.TrimSuffix(os.Getenv("BUILDWARDEN_JENKINS_BASE_URL"), "/"),
			Username: os.Getenv("BUILDWARDEN_JENKINS_USERNAME"),
			Password: os.Getenv("BUILDWARDEN_JENKINS_PASSWORD"),
		},
		SCMLockTimeout: lockTimeout,
		SweepInterval:  sweepInterval,
		FilterBranches: splitList(os.Getenv("BUILDWARDEN_FILTER_BRANCHES")),
		FilterRepos:    splitList(os.Getenv("BUILDWARDEN_FILTER_REPOS")),
	}, nil
}

// splitList parses a comma-separated env value, trimming whitespace and
// dropping empty entries. Returns an empty, non-nil slice for "".
func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
