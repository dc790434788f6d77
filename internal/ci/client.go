package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/driftworks/conductor/internal/issue"
	"github.com/driftworks/conductor/internal/verifier"
)

// Client provides tracker, pipeline, and merge operations for one project.
type Client struct {
	cmd  CmdRunner
	git  GitRunner
	repo string // project path, e.g. "group/widget-service"
}

// NewClient creates a Client for the given project path. If cmd also
// implements GitRunner, it is used for git operations.
func NewClient(cmd CmdRunner, repo string) *Client {
	c := &Client{cmd: cmd, repo: repo}
	if git, ok := cmd.(GitRunner); ok {
		c.git = git
	}
	return c
}

// NewClientWithGit creates a Client with a separate git runner.
func NewClientWithGit(cmd CmdRunner, git GitRunner, repo string) *Client {
	return &Client{cmd: cmd, git: git, repo: repo}
}

// project returns the URL-encoded project path for glab api calls.
func (c *Client) project() string {
	return url.PathEscape(c.repo)
}

// trackerIssue is the tracker's issue JSON shape.
type trackerIssue struct {
	IID         int    `json:"iid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"`
}

// Issues fetches the open issues for the project as a backlog snapshot.
// Dependencies are parsed from issue descriptions.
func (c *Client) Issues(ctx context.Context) ([]*issue.Issue, error) {
	out, err := c.cmd.Run(ctx, "api", fmt.Sprintf("projects/%s/issues?state=opened&per_page=100", c.project()))
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	var raw []trackerIssue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse issues JSON: %w", err)
	}

	issues := make([]*issue.Issue, 0, len(raw))
	for _, ti := range raw {
		issues = append(issues, &issue.Issue{
			ID:          ti.IID,
			Title:       ti.Title,
			Description: ti.Description,
			DependsOn:   issue.ParseDependencies(ti.Description),
			Status:      issue.StatusPending,
		})
	}
	return issues, nil
}

// pipelineJSON is the CI pipeline JSON shape.
type pipelineJSON struct {
	ID     int    `json:"id"`
	SHA    string `json:"sha"`
	Status string `json:"status"`
	Ref    string `json:"ref"`
	WebURL string `json:"web_url"`
}

// jobJSON is the CI job JSON shape.
type jobJSON struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// LatestPipeline returns the most recent pipeline on the branch. It
// implements verifier.CIReader.
func (c *Client) LatestPipeline(ctx context.Context, branch string) (*verifier.PipelineRun, error) {
	out, err := c.cmd.Run(ctx, "api", fmt.Sprintf("projects/%s/pipelines?ref=%s&per_page=1", c.project(), url.QueryEscape(branch)))
	if err != nil {
		return nil, fmt.Errorf("list pipelines for %s: %w", branch, err)
	}

	var raw []pipelineJSON
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse pipelines JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no pipelines on branch %s", branch)
	}
	return c.toRun(ctx, raw[0])
}

// Pipeline returns one pipeline by id. It implements verifier.CIReader.
func (c *Client) Pipeline(ctx context.Context, id int) (*verifier.PipelineRun, error) {
	out, err := c.cmd.Run(ctx, "api", fmt.Sprintf("projects/%s/pipelines/%d", c.project(), id))
	if err != nil {
		return nil, fmt.Errorf("get pipeline %d: %w", id, err)
	}

	var raw pipelineJSON
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse pipeline JSON: %w", err)
	}
	return c.toRun(ctx, raw)
}

// toRun converts pipeline JSON to a verifier run, attaching job details for
// failed pipelines so retries get actionable error context.
func (c *Client) toRun(ctx context.Context, raw pipelineJSON) (*verifier.PipelineRun, error) {
	run := &verifier.PipelineRun{
		ID:        raw.ID,
		Commit:    raw.SHA,
		Status:    raw.Status,
		Ref:       raw.Ref,
		WebURL:    raw.WebURL,
		FetchedAt: time.Now().UTC(),
	}
	if raw.Status != "failed" {
		return run, nil
	}

	out, err := c.cmd.Run(ctx, "api", fmt.Sprintf("projects/%s/pipelines/%d/jobs", c.project(), raw.ID))
	if err != nil {
		// Job details are best-effort; the verdict stands without them.
		return run, nil
	}
	var jobs []jobJSON
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		return run, nil
	}
	for _, j := range jobs {
		run.Jobs = append(run.Jobs, verifier.Job{Name: j.Name, Status: j.Status})
	}
	return run, nil
}

// HeadCommit returns the remote head commit of a branch.
func (c *Client) HeadCommit(ctx context.Context, branch string) (string, error) {
	if c.git == nil {
		return "", fmt.Errorf("git runner not configured")
	}
	out, err := c.git.RunGit(ctx, "ls-remote", "origin", "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("resolve head of %s: %w", branch, err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("branch %s not found on origin", branch)
	}
	return fields[0], nil
}

// mrJSON is the merge request JSON shape.
type mrJSON struct {
	IID          int    `json:"iid"`
	State        string `json:"state"`
	SourceBranch string `json:"source_branch"`
	WebURL       string `json:"web_url"`
}

// Merged reports whether a merged merge request exists for the branch.
func (c *Client) Merged(ctx context.Context, branch string) (bool, error) {
	mrs, err := c.mergeRequests(ctx, branch, "merged")
	if err != nil {
		return false, err
	}
	return len(mrs) > 0, nil
}

// Integrate merges the branch's work into target. It is idempotent: a
// branch whose merge request already merged is reported as integrated, not
// an error. When no merge request exists yet, one is created first.
func (c *Client) Integrate(ctx context.Context, branch, target, title string) error {
	merged, err := c.Merged(ctx, branch)
	if err != nil {
		return err
	}
	if merged {
		return nil
	}

	open, err := c.mergeRequests(ctx, branch, "opened")
	if err != nil {
		return err
	}
	var iid int
	if len(open) > 0 {
		iid = open[0].IID
	} else {
		created, err := c.createMR(ctx, branch, target, title)
		if err != nil {
			return err
		}
		iid = created
	}

	_, err = c.cmd.Run(ctx, "mr", "merge", fmt.Sprintf("%d", iid), "--squash", "--remove-source-branch", "--yes", "--repo", c.repo)
	if err != nil {
		return fmt.Errorf("merge !%d: %w", iid, err)
	}
	return nil
}

// mergeRequests lists merge requests for a source branch in a given state.
func (c *Client) mergeRequests(ctx context.Context, branch, state string) ([]mrJSON, error) {
	out, err := c.cmd.Run(ctx, "api", fmt.Sprintf("projects/%s/merge_requests?source_branch=%s&state=%s", c.project(), url.QueryEscape(branch), state))
	if err != nil {
		return nil, fmt.Errorf("list merge requests for %s: %w", branch, err)
	}
	var mrs []mrJSON
	if err := json.Unmarshal([]byte(out), &mrs); err != nil {
		return nil, fmt.Errorf("parse merge requests JSON: %w", err)
	}
	return mrs, nil
}

// createMR opens a merge request and returns its iid.
func (c *Client) createMR(ctx context.Context, branch, target, title string) (int, error) {
	_, err := c.cmd.Run(ctx, "mr", "create",
		"--source-branch", branch,
		"--target-branch", target,
		"--title", title,
		"--description", "",
		"--repo", c.repo,
		"--yes",
	)
	if err != nil {
		return 0, fmt.Errorf("create merge request for %s: %w", branch, err)
	}
	open, err := c.mergeRequests(ctx, branch, "opened")
	if err != nil {
		return 0, err
	}
	if len(open) == 0 {
		return 0, fmt.Errorf("merge request for %s not visible after create", branch)
	}
	return open[0].IID, nil
}
