package stubserver

import (
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sobandev/careerpilot-ai/internal/portal"
)

type application struct {
	ID           string
	UserID       string
	JobID        string
	Status       portal.ApplicationStatus
	CoverLetter  string
	ContactEmail string
	ContactPhone string
	MatchScore   float64
	AppliedAt    time.Time
}

type resume struct {
	ID         string
	FileName   string
	Size       int64
	Skills     []string
	UploadedAt time.Time
}

// knownSkills are recognised in uploaded resumes by plain substring match.
var knownSkills = []string{"go", "python", "sql", "docker", "react", "typescript", "css", "excel", "postgresql", "kubernetes"}

func (s *Server) listJobs(c echo.Context) error {
	q := strings.ToLower(c.QueryParam("q"))
	industry := c.QueryParam("industry")
	location := strings.ToLower(c.QueryParam("location"))
	jobType := c.QueryParam("job_type")
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	if limit < 1 || limit > 100 || offset < 0 {
		return detailError(http.StatusUnprocessableEntity, "limit must be 1-100 and offset non-negative")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]portal.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		switch {
		case q != "" && !strings.Contains(strings.ToLower(job.Title), q):
		case industry != "" && job.Industry != industry:
		case location != "" && !strings.Contains(strings.ToLower(job.Location), location):
		case jobType != "" && job.JobType != jobType:
		default:
			matched = append(matched, job)
		}
	}

	if offset > len(matched) {
		offset = len(matched)
	}
	page := matched[offset:min(offset+limit, len(matched))]
	return c.JSON(http.StatusOK, portal.JobList{Jobs: page, Total: len(page)})
}

func (s *Server) getJob(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.findJobLocked(c.Param("id"))
	if !ok {
		return detailError(http.StatusNotFound, "Job not found")
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) jobScore(c echo.Context) error {
	user := currentUser(c)

	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.findJobLocked(c.Param("id"))
	if !ok {
		return detailError(http.StatusNotFound, "Job not found")
	}
	res, ok := s.resumes[user.ID]
	if !ok {
		return detailError(http.StatusNotFound, "Upload your resume first")
	}

	var matched, missing []string
	for _, skill := range job.SkillsRequired {
		if slices.Contains(res.Skills, skill) {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	return c.JSON(http.StatusOK, portal.Record{
		"job_id":         job.ID,
		"total_score":    overlapScore(job.SkillsRequired, res.Skills),
		"matched_skills": matched,
		"missing_skills": missing,
	})
}

func (s *Server) createJob(c echo.Context) error {
	user := currentUser(c)
	var draft portal.JobDraft
	if err := c.Bind(&draft); err != nil || draft.Title == "" {
		return detailError(http.StatusUnprocessableEntity, "title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	company, ok := s.companies[user.ID]
	if !ok {
		return detailError(http.StatusBadRequest, "Please register your company first")
	}
	name, _ := company["name"].(string)
	companyID, _ := company["id"].(string)

	job := portal.Job{
		ID:             uuid.NewString(),
		CompanyID:      companyID,
		Title:          draft.Title,
		Description:    draft.Description,
		Requirements:   draft.Requirements,
		SkillsRequired: draft.SkillsRequired,
		ExperienceMin:  draft.ExperienceMin,
		ExperienceMax:  draft.ExperienceMax,
		EducationLevel: draft.EducationLevel,
		Industry:       draft.Industry,
		Location:       draft.Location,
		JobType:        draft.JobType,
		SalaryMin:      draft.SalaryMin,
		SalaryMax:      draft.SalaryMax,
		Status:         "active",
		Company:        &portal.Company{Name: name},
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	s.jobs = append([]portal.Job{job}, s.jobs...)
	return c.JSON(http.StatusOK, job)
}

// feed groups jobs by the caller's resume overlap: 70+ highly relevant,
// 40-69 based on skills, the rest trending.
func (s *Server) feed(c echo.Context) error {
	user := currentUser(c)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var skills []string
	if res, ok := s.resumes[user.ID]; ok {
		skills = res.Skills
	}

	feed := portal.Feed{
		HighlyRelevant: []portal.Job{},
		BasedOnSkills:  []portal.Job{},
		Trending:       []portal.Job{},
	}
	for _, job := range s.jobs {
		score := overlapScore(job.SkillsRequired, skills)
		job.MatchScore = &score
		switch {
		case score >= 70:
			feed.HighlyRelevant = append(feed.HighlyRelevant, job)
		case score >= 40:
			feed.BasedOnSkills = append(feed.BasedOnSkills, job)
		default:
			feed.Trending = append(feed.Trending, job)
		}
	}
	return c.JSON(http.StatusOK, feed)
}

func (s *Server) apply(c echo.Context) error {
	user := currentUser(c)
	var in portal.ApplicationInput
	if err := c.Bind(&in); err != nil || in.JobID == "" {
		return detailError(http.StatusUnprocessableEntity, "job_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.applications {
		if a.UserID == user.ID && a.JobID == in.JobID {
			return detailError(http.StatusBadRequest, "You have already applied to this job")
		}
	}
	job, ok := s.findJobLocked(in.JobID)
	if !ok {
		return detailError(http.StatusNotFound, "Job not found")
	}

	var score float64
	if res, ok := s.resumes[user.ID]; ok {
		score = overlapScore(job.SkillsRequired, res.Skills)
	}
	a := &application{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		JobID:        in.JobID,
		Status:       portal.StatusApplied,
		CoverLetter:  in.CoverLetter,
		ContactEmail: in.ContactEmail,
		ContactPhone: in.ContactPhone,
		MatchScore:   score,
		AppliedAt:    time.Now().UTC(),
	}
	s.applications = append(s.applications, a)

	return c.JSON(http.StatusOK, portal.Submission{Message: "Application submitted successfully", ID: a.ID})
}

func (s *Server) listApplications(c echo.Context) error {
	user := currentUser(c)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []portal.Application{}
	for i := len(s.applications) - 1; i >= 0; i-- {
		a := s.applications[i]
		if a.UserID != user.ID {
			continue
		}
		view := portal.Application{
			ID:          a.ID,
			JobID:       a.JobID,
			Status:      a.Status,
			MatchScore:  a.MatchScore,
			CoverLetter: a.CoverLetter,
			AppliedAt:   a.AppliedAt.Format(time.RFC3339),
		}
		if job, ok := s.findJobLocked(a.JobID); ok {
			view.Job = &portal.ApplicationJob{
				Title:    job.Title,
				Industry: job.Industry,
				Location: job.Location,
				JobType:  job.JobType,
				Company:  job.Company,
			}
		}
		out = append(out, view)
	}
	return c.JSON(http.StatusOK, map[string]any{"applications": out})
}

func (s *Server) employerApplications(c echo.Context) error {
	user := currentUser(c)
	filter := c.QueryParam("job_id")

	s.mu.RLock()
	defer s.mu.RUnlock()

	company, ok := s.companies[user.ID]
	if !ok {
		return detailError(http.StatusBadRequest, "Company not found")
	}
	owned := s.companyJobsLocked(company)

	out := []portal.Record{}
	for _, a := range s.applications {
		job, ok := owned[a.JobID]
		if !ok || (filter != "" && a.JobID != filter) {
			continue
		}
		applicant := s.users[a.UserID]
		record := portal.Record{
			"id":            a.ID,
			"status":        a.Status,
			"applied_at":    a.AppliedAt.Format(time.RFC3339),
			"cover_letter":  a.CoverLetter,
			"match_score":   a.MatchScore,
			"contact_email": a.ContactEmail,
			"contact_phone": a.ContactPhone,
			"jobs":          portal.Record{"title": job.Title, "company_id": job.CompanyID},
		}
		if applicant != nil {
			record["profiles"] = portal.Record{
				"full_name": applicant.identity.FullName,
				"email":     applicant.identity.Email,
			}
		}
		out = append(out, record)
	}
	return c.JSON(http.StatusOK, map[string]any{"applications": out})
}

func (s *Server) updateApplicationStatus(c echo.Context) error {
	status := portal.ApplicationStatus(c.QueryParam("status"))
	if !status.Valid() {
		return detailError(http.StatusBadRequest,
			"Invalid status. Must be one of: applied, viewed, shortlisted, rejected, hired")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.applications {
		if a.ID == c.Param("id") {
			a.Status = status
			break
		}
	}
	return c.JSON(http.StatusOK, portal.StatusChange{Message: "Status updated", Status: status})
}

func (s *Server) uploadResume(c echo.Context) error {
	user := currentUser(c)
	header, err := c.FormFile("file")
	if err != nil {
		return detailError(http.StatusUnprocessableEntity, "file is required")
	}
	f, err := header.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxResumeSize+1))
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return detailError(http.StatusBadRequest, "Could not extract text from resume")
	}
	if len(raw) > maxResumeSize {
		return detailError(http.StatusRequestEntityTooLarge, "Resume is too large")
	}

	text := strings.ToLower(string(raw))
	var skills []string
	for _, skill := range knownSkills {
		if strings.Contains(text, skill) {
			skills = append(skills, skill)
		}
	}

	res := &resume{
		ID:         uuid.NewString(),
		FileName:   header.Filename,
		Size:       int64(len(raw)),
		Skills:     skills,
		UploadedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.resumes[user.ID] = res
	s.mu.Unlock()

	return c.JSON(http.StatusOK, portal.Record{
		"resume_id": res.ID,
		"file_name": res.FileName,
		"size":      res.Size,
		"skills":    skillList(res.Skills),
	})
}

func (s *Server) resumeAnalysis(c echo.Context) error {
	user := currentUser(c)

	s.mu.RLock()
	res, ok := s.resumes[user.ID]
	s.mu.RUnlock()
	if !ok {
		return detailError(http.StatusNotFound, "No resume found. Please upload your resume first.")
	}

	return c.JSON(http.StatusOK, portal.Record{
		"resume": portal.Record{
			"id":         res.ID,
			"file_name":  res.FileName,
			"skills":     skillList(res.Skills),
			"created_at": res.UploadedAt.Format(time.RFC3339),
		},
		"analysis": portal.Record{
			"overall_score":  min(40+10*len(res.Skills), 100),
			"strengths":      skillList(res.Skills),
			"missing_skills": []string{},
		},
	})
}

func (s *Server) generateRoadmap(c echo.Context) error {
	user := currentUser(c)
	var req struct {
		TargetRole *string `json:"target_role"`
	}
	if err := c.Bind(&req); err != nil {
		return detailError(http.StatusUnprocessableEntity, "Invalid request body")
	}
	target := "Software Engineer"
	if req.TargetRole != nil && *req.TargetRole != "" {
		target = *req.TargetRole
	}

	roadmap := portal.Record{
		"id":          uuid.NewString(),
		"target_role": target,
		"steps": []portal.Record{
			{"title": "Close the skill gaps for " + target, "duration_weeks": 4},
			{"title": "Ship a portfolio project", "duration_weeks": 6},
			{"title": "Apply and practise interviews", "duration_weeks": 2},
		},
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.roadmaps[user.ID] = append(s.roadmaps[user.ID], roadmap)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, roadmap)
}

func (s *Server) latestRoadmap(c echo.Context) error {
	user := currentUser(c)

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.roadmaps[user.ID]
	if len(history) == 0 {
		return detailError(http.StatusNotFound, "No roadmap found.")
	}
	return c.JSON(http.StatusOK, history[len(history)-1])
}

func (s *Server) upsertCompany(c echo.Context) error {
	user := currentUser(c)
	var req portal.Record
	if err := c.Bind(&req); err != nil {
		return detailError(http.StatusUnprocessableEntity, "Invalid request body")
	}
	if name, _ := req["name"].(string); name == "" {
		return detailError(http.StatusUnprocessableEntity, "name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	company := portal.Record{"id": uuid.NewString()}
	if existing, ok := s.companies[user.ID]; ok {
		company = existing
	}
	for _, key := range []string{"name", "description", "website", "industry", "size", "location"} {
		if v, ok := req[key]; ok {
			company[key] = v
		}
	}
	company["owner_id"] = user.ID
	s.companies[user.ID] = company
	return c.JSON(http.StatusOK, company)
}

func (s *Server) myCompany(c echo.Context) error {
	user := currentUser(c)

	s.mu.RLock()
	defer s.mu.RUnlock()

	company, ok := s.companies[user.ID]
	if !ok {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, company)
}

func (s *Server) employerStats(c echo.Context) error {
	user := currentUser(c)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{"total_jobs": 0, "total_applications": 0, "shortlisted": 0, "hired": 0}
	company, ok := s.companies[user.ID]
	if !ok {
		return c.JSON(http.StatusOK, stats)
	}

	owned := s.companyJobsLocked(company)
	stats["total_jobs"] = len(owned)
	for _, a := range s.applications {
		if _, ok := owned[a.JobID]; !ok {
			continue
		}
		stats["total_applications"]++
		switch a.Status {
		case portal.StatusShortlisted:
			stats["shortlisted"]++
		case portal.StatusHired:
			stats["hired"]++
		}
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) updateProfile(c echo.Context) error {
	user := currentUser(c)
	var in portal.ProfileUpdate
	if err := c.Bind(&in); err != nil {
		return detailError(http.StatusBadRequest, "Invalid request body")
	}
	if in == (portal.ProfileUpdate{}) {
		return c.JSON(http.StatusOK, map[string]string{"message": "Nothing to update"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.users[user.ID]
	if !ok {
		return detailError(http.StatusNotFound, "Profile not found")
	}
	apply := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	apply(&acct.identity.FullName, in.FullName)
	apply(&acct.identity.AvatarURL, in.AvatarURL)
	apply(&acct.identity.Phone, in.Phone)
	apply(&acct.identity.Location, in.Location)

	return c.JSON(http.StatusOK, map[string]any{"message": "Profile updated", "data": acct.identity})
}

func (s *Server) publicProfile(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.users[c.Param("id")]
	if !ok {
		return detailError(http.StatusNotFound, "Profile not found")
	}

	out := portal.Record{
		"profile": portal.Record{
			"id":         acct.identity.ID,
			"full_name":  acct.identity.FullName,
			"avatar_url": acct.identity.AvatarURL,
			"role":       acct.identity.Role,
		},
		"resume":   nil,
		"analysis": nil,
	}
	if res, ok := s.resumes[acct.identity.ID]; ok {
		out["resume"] = portal.Record{"skills": skillList(res.Skills)}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) findJobLocked(id string) (portal.Job, bool) {
	for _, job := range s.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return portal.Job{}, false
}

func (s *Server) companyJobsLocked(company portal.Record) map[string]portal.Job {
	companyID, _ := company["id"].(string)
	owned := make(map[string]portal.Job)
	for _, job := range s.jobs {
		if job.CompanyID == companyID {
			owned[job.ID] = job
		}
	}
	return owned
}

// overlapScore is the share of required skills present, as 0-100.
func overlapScore(required, have []string) float64 {
	if len(required) == 0 {
		return 50
	}
	hits := 0
	for _, skill := range required {
		if slices.Contains(have, skill) {
			hits++
		}
	}
	return float64(100 * hits / len(required))
}

func skillList(skills []string) []string {
	if skills == nil {
		return []string{}
	}
	return skills
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
