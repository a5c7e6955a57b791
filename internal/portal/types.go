package portal

import (
	"net/url"
	"strconv"
)

// Record is a server payload the CLI only displays.
type Record = map[string]any

// Company is the employer summary embedded in job listings.
type Company struct {
	Name        string `json:"name"`
	LogoURL     string `json:"logo_url,omitempty"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Job is a posted position. MatchScore is computed by the server and only
// present for authenticated callers with a resume.
type Job struct {
	ID             string   `json:"id"`
	CompanyID      string   `json:"company_id,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Requirements   string   `json:"requirements,omitempty"`
	SkillsRequired []string `json:"skills_required,omitempty"`
	ExperienceMin  float64  `json:"experience_min,omitempty"`
	ExperienceMax  float64  `json:"experience_max,omitempty"`
	EducationLevel string   `json:"education_level,omitempty"`
	Industry       string   `json:"industry,omitempty"`
	Location       string   `json:"location,omitempty"`
	JobType        string   `json:"job_type,omitempty"`
	SalaryMin      *int     `json:"salary_min,omitempty"`
	SalaryMax      *int     `json:"salary_max,omitempty"`
	Status         string   `json:"status,omitempty"`
	MatchScore     *float64 `json:"match_score,omitempty"`
	Company        *Company `json:"companies,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

// JobList is a page of jobs.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

// JobQuery filters the job listing. Zero values are omitted.
type JobQuery struct {
	Q        string
	Industry string
	Location string
	JobType  string
	Limit    int
	Offset   int
}

// Values encodes the non-empty filters.
func (q JobQuery) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("q", q.Q)
	set("industry", q.Industry)
	set("location", q.Location)
	set("job_type", q.JobType)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// JobDraft is the body for creating a job.
type JobDraft struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Requirements   string   `json:"requirements"`
	SkillsRequired []string `json:"skills_required"`
	ExperienceMin  float64  `json:"experience_min"`
	ExperienceMax  float64  `json:"experience_max"`
	EducationLevel string   `json:"education_level"`
	Industry       string   `json:"industry"`
	Location       string   `json:"location"`
	JobType        string   `json:"job_type"`
	SalaryMin      *int     `json:"salary_min,omitempty"`
	SalaryMax      *int     `json:"salary_max,omitempty"`
}

// Feed is the personalised job feed, grouped by match strength.
type Feed struct {
	HighlyRelevant []Job `json:"highly_relevant"`
	BasedOnSkills  []Job `json:"based_on_skills"`
	Trending       []Job `json:"trending"`
}

// ApplicationStatus is the employer-side state of an application.
type ApplicationStatus string

const (
	StatusApplied     ApplicationStatus = "applied"
	StatusViewed      ApplicationStatus = "viewed"
	StatusShortlisted ApplicationStatus = "shortlisted"
	StatusRejected    ApplicationStatus = "rejected"
	StatusHired       ApplicationStatus = "hired"
)

// Valid reports whether s is accepted by the status endpoint.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusApplied, StatusViewed, StatusShortlisted, StatusRejected, StatusHired:
		return true
	default:
		return false
	}
}

// ApplicationInput is the body for applying to a job.
type ApplicationInput struct {
	JobID        string `json:"job_id"`
	CoverLetter  string `json:"cover_letter,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

// ApplicationJob is the job summary embedded in an application.
type ApplicationJob struct {
	Title    string   `json:"title"`
	Industry string   `json:"industry,omitempty"`
	Location string   `json:"location,omitempty"`
	JobType  string   `json:"job_type,omitempty"`
	Company  *Company `json:"companies,omitempty"`
}

// Application is one of the caller's job applications.
type Application struct {
	ID          string            `json:"id"`
	JobID       string            `json:"job_id"`
	Status      ApplicationStatus `json:"status"`
	MatchScore  float64           `json:"match_score"`
	CoverLetter string            `json:"cover_letter,omitempty"`
	AppliedAt   string            `json:"applied_at,omitempty"`
	Job         *ApplicationJob   `json:"jobs,omitempty"`
}

// Submission acknowledges a created application.
type Submission struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// StatusChange acknowledges an application status update.
type StatusChange struct {
	Message string            `json:"message"`
	Status  ApplicationStatus `json:"status"`
}

// ProfileUpdate carries the editable profile fields. Empty fields are left as they are.
type ProfileUpdate struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Location  string `json:"location,omitempty"`
}
