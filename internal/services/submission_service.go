package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/justsurfingit/careerboost/internal/logger"
	"github.com/justsurfingit/careerboost/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrMissingUserInfo is returned when the applicant details lack a required
// field.
var ErrMissingUserInfo = errors.New("missing required user information")

// RequiredUserInfo are the applicant fields every submission needs.
var RequiredUserInfo = []string{"name", "email", "phone"}

const (
	SubmissionSucceeded = "success"
	SubmissionFailed    = "failed"
)

// Submission is the recorded outcome of one application.
type Submission struct {
	Status         string    `json:"status"`
	ApplicationID  string    `json:"application_id,omitempty"`
	Platform       string    `json:"platform,omitempty"`
	SubmissionTime time.Time `json:"submission_time"`
	JobURL         string    `json:"job_url"`
	JobTitle       string    `json:"job_title,omitempty"`
	Company        string    `json:"company,omitempty"`
	User           string    `json:"user,omitempty"`
	Message        string    `json:"message"`
}

// SubmissionService records applications prepared by the apply stage. No
// job board is contacted; the application is tracked as submitted.
type SubmissionService struct {
	DB     *gorm.DB
	Jobs   *JobService
	Logger *zap.Logger
	now    func() time.Time
}

func NewSubmissionService(db *gorm.DB, jobs *JobService, log *zap.Logger) *SubmissionService {
	return &SubmissionService{DB: db, Jobs: jobs, Logger: logger.OrNop(log), now: time.Now}
}

// ValidateUserInfo checks the required applicant fields are present and
// non-empty.
func ValidateUserInfo(info map[string]any) error {
	var missing []string
	for _, field := range RequiredUserInfo {
		v, ok := info[field]
		if !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingUserInfo, strings.Join(missing, ", "))
	}
	return nil
}

// DetectPlatform names the job board a posting URL belongs to.
func DetectPlatform(jobURL string) string {
	host := strings.ToLower(jobURL)
	if u, err := url.Parse(jobURL); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	switch {
	case strings.Contains(host, "linkedin"):
		return "LinkedIn"
	case strings.Contains(host, "indeed"):
		return "Indeed"
	case strings.Contains(host, "glassdoor"):
		return "Glassdoor"
	case strings.Contains(host, "monster"):
		return "Monster"
	case strings.Contains(host, "ziprecruiter"):
		return "ZipRecruiter"
	default:
		return "Company Website"
	}
}

func newApplicationID() string {
	return "APP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// Submit records every application. The user info is checked once up front;
// an application without a job URL fails on its own without stopping the rest.
func (s *SubmissionService) Submit(runID string, userInfo map[string]any, apps []Application) ([]Submission, error) {
	if err := ValidateUserInfo(userInfo); err != nil {
		return nil, err
	}
	user := fmt.Sprint(userInfo["name"])

	subs := make([]Submission, 0, len(apps))
	for _, app := range apps {
		sub := Submission{
			JobURL:         app.JobURL,
			JobTitle:       app.JobTitle,
			Company:        app.Company,
			User:           user,
			SubmissionTime: s.now().UTC(),
		}
		if app.JobURL == "" {
			sub.Status = SubmissionFailed
			sub.Message = "Missing required information: job_url"
			subs = append(subs, sub)
			continue
		}

		sub.Status = SubmissionSucceeded
		sub.Platform = DetectPlatform(app.JobURL)
		sub.ApplicationID = newApplicationID()
		sub.Message = fmt.Sprintf("Successfully submitted application to %s", sub.Platform)

		if s.DB != nil {
			if err := s.track(runID, app, sub); err != nil {
				sub.Status = SubmissionFailed
				sub.Message = fmt.Sprintf("Failed to record application: %v", err)
			}
		}

		s.Logger.Info("application submitted",
			zap.String("run_id", runID),
			zap.String("application_id", sub.ApplicationID),
			zap.String("platform", sub.Platform),
			zap.String("status", sub.Status),
		)
		subs = append(subs, sub)
	}
	return subs, nil
}

// track marks the job as APPLIED, creating it when the search stage never
// saw it, and logs the event.
func (s *SubmissionService) track(runID string, app Application, sub Submission) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var job models.Job
		err := tx.Where("job_link = ?", app.JobURL).First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			name := app.Company
			if name == "" {
				name = "Unknown"
			}
			company, cErr := s.Jobs.findOrCreateCompany(tx, name)
			if cErr != nil {
				return cErr
			}
			job = models.Job{
				CompanyID: company.ID,
				Title:     app.JobTitle,
				JobLink:   app.JobURL,
				RunID:     runID,
			}
			if job.Title == "" {
				job.Title = "Unknown role"
			}
		} else if err != nil {
			return err
		}

		job.Status = models.JobStatusApplied
		job.ApplicationID = sub.ApplicationID
		job.Platform = sub.Platform
		if err := tx.Save(&job).Error; err != nil {
			return err
		}

		event := models.JobEvent{
			JobID:     job.ID,
			EventType: models.EventApplied,
			Details:   fmt.Sprintf("Application %s submitted via %s", sub.ApplicationID, sub.Platform),
		}
		return tx.Create(&event).Error
	})
}
