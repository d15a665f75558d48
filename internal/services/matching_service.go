package services

import (
	"net/mail"
	"strings"

	"github.com/justsurfingit/careerboost/internal/models"
	"gorm.io/gorm"
)

type MatcherService struct {
	DB *gorm.DB
}

func NewMatcherService(db *gorm.DB) *MatcherService {
	return &MatcherService{DB: db}
}

// FindCompanyFromEmail tries to match an email to a tracked Company
func (s *MatcherService) FindCompanyFromEmail(subject, rawSender string) (*models.Company, error) {
	// TODO: cache the company list between sync cycles instead of loading it per email.
	var companies []models.Company
	if err := s.DB.Find(&companies).Error; err != nil {
		return nil, err
	}
	return MatchCompany(companies, subject, rawSender), nil
}

// MatchCompany returns the first company named in the subject, the sender
// display name or the sender domain, or nil.
func MatchCompany(companies []models.Company, subject, rawSender string) *models.Company {
	// e.g. "Stripe Recruiting <jobs@stripe.com>" -> name="stripe recruiting", addr="jobs@stripe.com"
	senderName := ""
	senderAddr := strings.ToLower(rawSender) // Fallback if parsing fails
	if parsedAddr, err := mail.ParseAddress(rawSender); err == nil {
		senderName = strings.ToLower(parsedAddr.Name)
		senderAddr = strings.ToLower(parsedAddr.Address)
	}

	domain := ""
	if _, after, ok := strings.Cut(senderAddr, "@"); ok {
		domain = after
	}
	subjectLower := strings.ToLower(subject)

	for i := range companies {
		companyName := strings.ToLower(companies[i].Name)
		// Skip very short names: "X" or "Go" would match everything.
		if len(companyName) < 3 {
			continue
		}

		// Rule 1: subject line
		if strings.Contains(subjectLower, companyName) {
			return &companies[i]
		}

		// Rule 2: sender display name
		if senderName != "" && strings.Contains(senderName, companyName) {
			return &companies[i]
		}

		// Rule 3: sender domain, only the part after '@'
		if domain != "" && strings.Contains(domain, strings.ReplaceAll(companyName, " ", "")) {
			return &companies[i]
		}
	}
	return nil
}
