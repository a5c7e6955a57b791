// Package portal exposes the CareerPilot domain endpoints over the
// authenticated request pipeline.
package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sobandev/careerpilot-ai/internal/apiclient"
)

// Client is a typed view of the job-portal API.
type Client struct {
	api *apiclient.Client
}

// New creates a portal client over api.
func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// ListJobs returns jobs matching q.
func (c *Client) ListJobs(ctx context.Context, q JobQuery) (JobList, error) {
	list, err := apiclient.Send[JobList](ctx, c.api, apiclient.Request{Path: "/api/jobs", Query: q.Values()})
	if err != nil {
		return JobList{}, fmt.Errorf("list jobs: %w", err)
	}
	return list, nil
}

// GetJob returns one job with any compatibility details the server attaches.
func (c *Client) GetJob(ctx context.Context, id string) (Record, error) {
	return c.record(ctx, "get job", apiclient.Request{Path: "/api/jobs/" + url.PathEscape(id)})
}

// JobScore returns the detailed compatibility score for a job.
func (c *Client) JobScore(ctx context.Context, id string) (Record, error) {
	return c.record(ctx, "job score", apiclient.Request{Path: "/api/jobs/" + url.PathEscape(id) + "/score"})
}

// CreateJob posts a job for the caller's company.
func (c *Client) CreateJob(ctx context.Context, draft JobDraft) (Job, error) {
	job, err := apiclient.Send[Job](ctx, c.api, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/jobs",
		Body:   draft,
	})
	if err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Feed returns the personalised job feed.
func (c *Client) Feed(ctx context.Context) (Feed, error) {
	feed, err := apiclient.Send[Feed](ctx, c.api, apiclient.Request{Path: "/api/jobs/feed"})
	if err != nil {
		return Feed{}, fmt.Errorf("job feed: %w", err)
	}
	return feed, nil
}

// Apply submits an application.
func (c *Client) Apply(ctx context.Context, in ApplicationInput) (Submission, error) {
	sub, err := apiclient.Send[Submission](ctx, c.api, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/applications",
		Body:   in,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("apply: %w", err)
	}
	return sub, nil
}

// Applications lists the caller's applications.
func (c *Client) Applications(ctx context.Context) ([]Application, error) {
	var res struct {
		Applications []Application `json:"applications"`
	}
	if err := c.api.Do(ctx, apiclient.Request{Path: "/api/applications"}, &res); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return res.Applications, nil
}

// EmployerApplications lists applications to the caller's jobs, optionally
// restricted to one job.
func (c *Client) EmployerApplications(ctx context.Context, jobID string) ([]Record, error) {
	req := apiclient.Request{Path: "/api/applications/employer"}
	if jobID != "" {
		req.Query = url.Values{"job_id": {jobID}}
	}
	var res struct {
		Applications []Record `json:"applications"`
	}
	if err := c.api.Do(ctx, req, &res); err != nil {
		return nil, fmt.Errorf("list employer applications: %w", err)
	}
	return res.Applications, nil
}

// UpdateApplicationStatus moves an application to status.
func (c *Client) UpdateApplicationStatus(ctx context.Context, id string, status ApplicationStatus) (StatusChange, error) {
	if !status.Valid() {
		return StatusChange{}, fmt.Errorf("update application status: invalid status %q", status)
	}
	change, err := apiclient.Send[StatusChange](ctx, c.api, apiclient.Request{
		Method: http.MethodPatch,
		Path:   "/api/applications/" + url.PathEscape(id) + "/status",
		Query:  url.Values{"status": {string(status)}},
	})
	if err != nil {
		return StatusChange{}, fmt.Errorf("update application status: %w", err)
	}
	return change, nil
}

// UploadResume uploads a resume file for analysis.
func (c *Client) UploadResume(ctx context.Context, fileName string, content io.Reader) (Record, error) {
	var out Record
	err := c.api.Upload(ctx, apiclient.Upload{
		Path:     "/api/resume/upload",
		FileName: fileName,
		Content:  content,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("upload resume: %w", err)
	}
	return out, nil
}

// ResumeAnalysis returns the latest resume and its analysis.
func (c *Client) ResumeAnalysis(ctx context.Context) (Record, error) {
	return c.record(ctx, "resume analysis", apiclient.Request{Path: "/api/resume/analysis"})
}

// GenerateRoadmap asks for a new career roadmap towards targetRole.
func (c *Client) GenerateRoadmap(ctx context.Context, targetRole string) (Record, error) {
	body := map[string]any{"target_role": nil}
	if targetRole != "" {
		body["target_role"] = targetRole
	}
	return c.record(ctx, "generate roadmap", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/ai/roadmap",
		Body:   body,
	})
}

// Roadmap returns the latest roadmap.
func (c *Client) Roadmap(ctx context.Context) (Record, error) {
	return c.record(ctx, "roadmap", apiclient.Request{Path: "/api/ai/roadmap"})
}

// PublicProfile returns a user's public profile.
func (c *Client) PublicProfile(ctx context.Context, userID string) (Record, error) {
	return c.record(ctx, "public profile", apiclient.Request{Path: "/api/profiles/" + url.PathEscape(userID)})
}

// UpdateProfile changes the caller's profile fields.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) (Record, error) {
	return c.record(ctx, "update profile", apiclient.Request{
		Method: http.MethodPut,
		Path:   "/api/profiles/me",
		Body:   in,
	})
}

// CreateCompany registers the caller's company.
func (c *Client) CreateCompany(ctx context.Context, company Record) (Record, error) {
	return c.record(ctx, "create company", apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/ai/company",
		Body:   company,
	})
}

// MyCompany returns the caller's company.
func (c *Client) MyCompany(ctx context.Context) (Record, error) {
	return c.record(ctx, "my company", apiclient.Request{Path: "/api/ai/company/me"})
}

// EmployerStats returns the employer dashboard counters.
func (c *Client) EmployerStats(ctx context.Context) (Record, error) {
	return c.record(ctx, "employer stats", apiclient.Request{Path: "/api/ai/employer/stats"})
}

func (c *Client) record(ctx context.Context, op string, req apiclient.Request) (Record, error) {
	var out Record
	if err := c.api.Do(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
