package stubserver

import (
	"time"

	"github.com/sobandev/careerpilot-ai/internal/portal"
)

const seedCompanyID = "company-seed"

func intPtr(v int) *int { return &v }

// seed installs a small job catalogue owned by a company nobody logs in as.
func (s *Server) seed() {
	company := &portal.Company{Name: "Northwind Labs", Website: "https://northwind.example"}
	created := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)

	s.jobs = []portal.Job{
		{
			ID:             "job-backend-go",
			CompanyID:      seedCompanyID,
			Title:          "Backend Engineer (Go)",
			Description:    "Build the services behind our hiring platform.",
			Requirements:   "3+ years building HTTP services.",
			SkillsRequired: []string{"go", "postgresql", "docker"},
			ExperienceMin:  3,
			ExperienceMax:  6,
			EducationLevel: "bachelors",
			Industry:       "technology",
			Location:       "Remote",
			JobType:        "full-time",
			SalaryMin:      intPtr(90000),
			SalaryMax:      intPtr(130000),
			Status:         "active",
			Company:        company,
			CreatedAt:      created,
		},
		{
			ID:             "job-data-analyst",
			CompanyID:      seedCompanyID,
			Title:          "Data Analyst",
			Description:    "Turn hiring funnel data into decisions.",
			Requirements:   "SQL and a plotting library.",
			SkillsRequired: []string{"sql", "python", "excel"},
			ExperienceMin:  1,
			ExperienceMax:  3,
			EducationLevel: "bachelors",
			Industry:       "technology",
			Location:       "Berlin",
			JobType:        "full-time",
			Status:         "active",
			Company:        company,
			CreatedAt:      created,
		},
		{
			ID:             "job-frontend-intern",
			CompanyID:      seedCompanyID,
			Title:          "Frontend Intern",
			Description:    "Help us polish the candidate experience.",
			Requirements:   "Some React experience.",
			SkillsRequired: []string{"react", "typescript", "css"},
			ExperienceMax:  1,
			EducationLevel: "other",
			Industry:       "technology",
			Location:       "Lisbon",
			JobType:        "internship",
			Status:         "active",
			Company:        company,
			CreatedAt:      created,
		},
	}
}
