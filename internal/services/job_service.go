package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/justsurfingit/careerboost/internal/dtos"
	"github.com/justsurfingit/careerboost/internal/models"
	"gorm.io/gorm"
)

type JobService struct {
	DB *gorm.DB
}

func NewJobService(db *gorm.DB) *JobService {
	return &JobService{
		DB: db,
	}
}

func (s *JobService) CreateJob(req *dtos.JobCreationRequest) (*models.Job, error) {
	company, err := s.findOrCreateCompany(s.DB, req.CompanyName)
	if err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = models.JobStatusApplied
	}
	job := &models.Job{
		CompanyID:   company.ID,
		Title:       req.Title,
		Description: req.Description,
		JobLink:     req.JobLink,
		Location:    req.Location,
		SalaryRange: req.SalaryRange,
		TechStack:   strings.Join(req.TechStack, ", "),
		ResumeLink:  req.ResumeLink,
		Status:      status,
	}
	if err := s.DB.Create(job).Error; err != nil {
		return nil, err
	}
	job.Company = *company
	return job, nil
}

// ListJobs returns tracked jobs, newest first, optionally filtered.
func (s *JobService) ListJobs(q dtos.JobListQuery) ([]models.Job, error) {
	tx := s.DB.Preload("Company").Order("created_at DESC")
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.RunID != "" {
		tx = tx.Where("run_id = ?", q.RunID)
	}
	var jobs []models.Job
	if err := tx.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpsertListings records search results as FOUND jobs. A listing whose link
// is already tracked keeps its status; only its details are refreshed.
func (s *JobService) UpsertListings(runID string, listings []Listing) ([]models.Job, error) {
	jobs := make([]models.Job, 0, len(listings))
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		for _, l := range listings {
			name := l.Company
			if name == "" {
				name = "Unknown"
			}
			company, err := s.findOrCreateCompany(tx, name)
			if err != nil {
				return err
			}

			var job models.Job
			err = tx.Where("job_link = ? AND job_link <> ''", l.URL).First(&job).Error
			switch {
			case err == nil:
				job.Title = l.Title
				job.Description = l.Description
				job.Location = l.Location
				job.SalaryRange = l.Salary
				job.MatchScore = l.MatchScore
				if err := tx.Save(&job).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				job = models.Job{
					CompanyID:   company.ID,
					Title:       l.Title,
					Description: l.Description,
					JobLink:     l.URL,
					Location:    l.Location,
					SalaryRange: l.Salary,
					MatchScore:  l.MatchScore,
					Status:      models.JobStatusFound,
					RunID:       runID,
				}
				if err := tx.Create(&job).Error; err != nil {
					return err
				}
				event := models.JobEvent{
					JobID:     job.ID,
					EventType: models.EventDiscovered,
					Details:   fmt.Sprintf("Found by pipeline run %s (match score %d)", runID, l.MatchScore),
				}
				if err := tx.Create(&event).Error; err != nil {
					return err
				}
			default:
				return err
			}
			job.Company = *company
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert listings: %w", err)
	}
	return jobs, nil
}

// findOrCreateCompany creates an entry if it doesn't exist already
func (s *JobService) findOrCreateCompany(tx *gorm.DB, name string) (*models.Company, error) {
	var company models.Company
	if err := tx.Where(models.Company{Name: name}).FirstOrCreate(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}
