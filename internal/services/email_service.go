package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/justsurfingit/careerboost/internal/config"
	"github.com/justsurfingit/careerboost/internal/logger"
	"github.com/justsurfingit/careerboost/internal/models"
	"github.com/justsurfingit/careerboost/internal/pipeline"
	"github.com/justsurfingit/careerboost/internal/stages"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"gorm.io/gorm"
)

// Email statuses the classifier may return besides the job statuses.
const (
	EmailNoChange = "NO_CHANGE"
	EmailUnknown  = "UNKNOWN"
)

var emailStatuses = map[string]bool{
	models.JobStatusApplied:   true,
	models.JobStatusInterview: true,
	models.JobStatusOffer:     true,
	models.JobStatusRejected:  true,
	EmailNoChange:             true,
	EmailUnknown:              true,
}

// Mailbox is the slice of the Gmail API the watcher uses.
type Mailbox interface {
	Search(ctx context.Context, query string, limit int64) ([]*gmail.Message, error)
	CurrentHistoryID(ctx context.Context) (uint64, error)
	History(ctx context.Context, startID uint64) ([]*gmail.Message, uint64, error)
	Get(ctx context.Context, id string) (*gmail.Message, error)
}

// GmailMailbox implements Mailbox for the authenticated user.
type GmailMailbox struct {
	Service *gmail.Service
}

func (m *GmailMailbox) Search(ctx context.Context, query string, limit int64) ([]*gmail.Message, error) {
	resp, err := m.Service.Users.Messages.List("me").Q(query).MaxResults(limit).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (m *GmailMailbox) CurrentHistoryID(ctx context.Context) (uint64, error) {
	profile, err := m.Service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	return profile.HistoryId, nil
}

func (m *GmailMailbox) History(ctx context.Context, startID uint64) ([]*gmail.Message, uint64, error) {
	// We only care about added messages, not label changes
	resp, err := m.Service.Users.History.List("me").StartHistoryId(startID).HistoryTypes("messageAdded").Context(ctx).Do()
	if err != nil {
		return nil, 0, err
	}
	var added []*gmail.Message
	for _, h := range resp.History {
		for _, mAdded := range h.MessagesAdded {
			if mAdded.Message != nil {
				added = append(added, mAdded.Message)
			}
		}
	}
	return added, resp.HistoryId, nil
}

func (m *GmailMailbox) Get(ctx context.Context, id string) (*gmail.Message, error) {
	return m.Service.Users.Messages.Get("me", id).Context(ctx).Do()
}

// EmailStatus is the classifier's reading of one email.
type EmailStatus struct {
	Status  string
	Summary string
}

// EmailService watches the mailbox for application updates and moves tracked
// jobs through their statuses.
type EmailService struct {
	DB             *gorm.DB
	Runner         pipeline.StageRunner
	Catalog        *stages.Catalog
	MatcherService *MatcherService
	Mailbox        Mailbox
	Logger         *zap.Logger
	Interval       time.Duration
	BootstrapDays  int
}

func NewEmailService(db *gorm.DB, runner pipeline.StageRunner, catalog *stages.Catalog, mailbox Mailbox, matcher *MatcherService, cfg config.GmailConfig, log *zap.Logger) *EmailService {
	s := &EmailService{
		DB:             db,
		Runner:         runner,
		Catalog:        catalog,
		MatcherService: matcher,
		Mailbox:        mailbox,
		Logger:         logger.OrNop(log),
		Interval:       cfg.PollInterval,
		BootstrapDays:  cfg.BootstrapDays,
	}
	if s.Interval <= 0 {
		s.Interval = 2 * time.Minute
	}
	if s.BootstrapDays <= 0 {
		s.BootstrapDays = 7
	}
	return s
}

// StartWatcher syncs immediately and then every Interval until ctx is done.
// The returned channel is closed when the watcher goroutine exits.
func (s *EmailService) StartWatcher(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.Mailbox == nil {
		s.Logger.Warn("gmail watcher disabled (no client), check credentials")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			if err := s.SyncEmails(ctx); err != nil {
				s.Logger.Error("email sync failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}

// SyncEmails runs one sync cycle: bootstrap or incremental fetch, then
// deduplicated processing, then the bookmark update.
func (s *EmailService) SyncEmails(ctx context.Context) error {
	// Prevent hanging forever
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if s.DB == nil {
		return errors.New("email sync needs a database")
	}
	s.Logger.Info("email watcher: starting sync cycle")

	var user models.User
	if err := s.DB.First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		user = models.User{Email: "default", LastHistoryID: 0}
		if err := s.DB.Create(&user).Error; err != nil {
			return err
		}
	}

	var (
		messages     []*gmail.Message
		newHistoryID uint64
		err          error
	)
	if user.LastHistoryID == 0 {
		s.Logger.Info("first run detected, running full bootstrap sync")
		messages, newHistoryID, err = s.performFullSync(ctx)
	} else {
		messages, newHistoryID, err = s.performIncrementalSync(ctx, user.LastHistoryID)
		// Google deletes old history; start over from a full sync.
		if err != nil && isHistoryExpiredError(err) {
			s.Logger.Warn("history id expired, falling back to full sync")
			messages, newHistoryID, err = s.performFullSync(ctx)
		}
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	s.Logger.Info("processing candidate emails", zap.Int("count", len(messages)))
	for _, msg := range messages {
		var count int64
		if err := s.DB.Model(&models.ProcessedEmail{}).Where("id = ?", msg.Id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		if err := s.processSingleEmail(ctx, msg); err != nil {
			// Leave the mail unmarked so the next cycle retries it.
			s.Logger.Warn("email processing failed", zap.String("message_id", msg.Id), zap.Error(err))
			continue
		}
		if err := s.DB.Create(&models.ProcessedEmail{ID: msg.Id}).Error; err != nil {
			return err
		}
	}

	// Update the bookmark even when nothing matched so this window is not
	// checked again.
	if newHistoryID > user.LastHistoryID {
		if err := s.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("last_history_id", newHistoryID).Error; err != nil {
			return err
		}
		s.Logger.Info("history updated", zap.Uint64("history_id", newHistoryID))
	}
	return nil
}

// performFullSync scans the bootstrap window and resets the history id.
func (s *EmailService) performFullSync(ctx context.Context) ([]*gmail.Message, uint64, error) {
	q := fmt.Sprintf("subject:(application OR interview OR update OR offer OR rejected OR status) newer_than:%dd", s.BootstrapDays)

	var headers []*gmail.Message
	err := gmailRetry(ctx, 3, time.Second, func() error {
		var e error
		headers, e = s.Mailbox.Search(ctx, q, 50)
		return e
	})
	if err != nil {
		return nil, 0, err
	}

	historyID, err := s.Mailbox.CurrentHistoryID(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.expandMessages(ctx, headers), historyID, nil
}

// performIncrementalSync asks only for what changed since startID.
func (s *EmailService) performIncrementalSync(ctx context.Context, startID uint64) ([]*gmail.Message, uint64, error) {
	var (
		headers   []*gmail.Message
		historyID uint64
	)
	err := gmailRetry(ctx, 3, time.Second, func() error {
		var e error
		headers, historyID, e = s.Mailbox.History(ctx, startID)
		return e
	})
	if err != nil {
		return nil, 0, err
	}
	return s.expandMessages(ctx, headers), historyID, nil
}

// expandMessages fetches full bodies and headers. Messages that cannot be
// fetched are skipped.
func (s *EmailService) expandMessages(ctx context.Context, headers []*gmail.Message) []*gmail.Message {
	var full []*gmail.Message
	for _, h := range headers {
		var msg *gmail.Message
		err := gmailRetry(ctx, 2, 500*time.Millisecond, func() error {
			var e error
			msg, e = s.Mailbox.Get(ctx, h.Id)
			return e
		})
		if err != nil {
			s.Logger.Warn("failed to fetch message", zap.String("message_id", h.Id), zap.Error(err))
			continue
		}
		full = append(full, msg)
	}
	return full
}

// processSingleEmail matches the email to a company and job, asks the model
// what it means and applies the status change. Emails that match nothing are
// not errors.
func (s *EmailService) processSingleEmail(ctx context.Context, msg *gmail.Message) error {
	headers := parseHeaders(msg)
	subject := headers["Subject"]
	sender := headers["From"]
	log := s.Logger.With(zap.String("message_id", msg.Id), zap.String("subject", truncate(subject, 40)))

	body := getEmailBody(msg)

	company, err := s.MatcherService.FindCompanyFromEmail(subject, sender)
	if err != nil {
		return err
	}
	if company == nil {
		log.Debug("skipped: sender and subject match no tracked company", zap.String("from", sender))
		return nil
	}

	var jobs []models.Job
	// Ignore terminal states and jobs never applied to
	err = s.DB.Where("company_id = ? AND status NOT IN ?", company.ID,
		[]string{models.JobStatusRejected, models.JobStatusOffer, models.JobStatusFound}).Find(&jobs).Error
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Debug("skipped: no active jobs", zap.String("company", company.Name))
		return nil
	}

	titles := make([]string, len(jobs))
	for i, j := range jobs {
		titles[i] = j.Title
	}
	idx, err := s.IdentifyJob(ctx, titles, subject, body)
	if err != nil {
		return err
	}
	if idx < 0 {
		log.Info("skipped: could not determine which job this email is about", zap.Strings("jobs", titles))
		return nil
	}
	targetJob := &jobs[idx]

	result, err := s.ClassifyEmail(ctx, company.Name, subject, body)
	if err != nil {
		return err
	}
	log.Info("email classified",
		zap.String("job", targetJob.Title),
		zap.String("status", result.Status),
		zap.String("summary", result.Summary),
	)

	if result.Status == EmailNoChange || result.Status == EmailUnknown || result.Status == targetJob.Status {
		return nil
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(targetJob).Update("status", result.Status).Error; err != nil {
			return err
		}
		event := models.JobEvent{
			JobID:     targetJob.ID,
			EventType: models.EventEmailUpdate,
			Details:   fmt.Sprintf("Status changed to %s. Summary: %s", result.Status, result.Summary),
		}
		return tx.Create(&event).Error
	})
}

// IdentifyJob picks which of the job titles an email is about, or -1. A single
// candidate is taken without asking the model.
func (s *EmailService) IdentifyJob(ctx context.Context, titles []string, subject, body string) (int, error) {
	switch len(titles) {
	case 0:
		return -1, nil
	case 1:
		return 0, nil
	}

	spec, err := s.Catalog.Get(stages.IdentifyJobRole)
	if err != nil {
		return -1, err
	}
	var list strings.Builder
	for i, t := range titles {
		fmt.Fprintf(&list, "%d: %s\n", i, t)
	}
	res, _, err := pipeline.RunStage(ctx, s.Runner, spec, stages.Input{
		"job_titles": list.String(),
		"subject":    subject,
		"body":       truncate(body, 8000),
	})
	if err != nil {
		return -1, err
	}
	if !res.OK() {
		return -1, nil
	}

	raw := pipeline.Lookup(res.Value, "index")
	if raw == nil {
		raw = res.Value
	}
	idx, ok := jobIndex(raw)
	if !ok || idx < 0 || idx >= len(titles) {
		return -1, nil
	}
	return idx, nil
}

// ClassifyEmail asks the model what the email means for the application.
// Unparseable or unexpected answers read as UNKNOWN.
func (s *EmailService) ClassifyEmail(ctx context.Context, company, subject, body string) (EmailStatus, error) {
	spec, err := s.Catalog.Get(stages.ClassifyEmailStatus)
	if err != nil {
		return EmailStatus{}, err
	}
	res, _, err := pipeline.RunStage(ctx, s.Runner, spec, stages.Input{
		"company": company,
		"subject": subject,
		"body":    truncate(body, 8000),
	})
	if err != nil {
		return EmailStatus{}, err
	}

	status := EmailStatus{Status: EmailUnknown}
	if !res.OK() {
		return status, nil
	}
	if v, ok := pipeline.Lookup(res.Value, "status").(string); ok {
		if v = strings.ToUpper(strings.TrimSpace(v)); emailStatuses[v] {
			status.Status = v
		}
	}
	if v, ok := pipeline.Lookup(res.Value, "summary").(string); ok {
		status.Summary = v
	}
	return status, nil
}

// --- HELPERS ---

// gmailRetry retries Gmail calls with exponential backoff. A 404 means the
// history id expired and fails fast so the caller can switch to a full sync.
func gmailRetry(ctx context.Context, attempts int, sleep time.Duration, f func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = f(); err == nil {
			return nil
		}
		if isHistoryExpiredError(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(sleep):
		}
		sleep *= 2
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}

// jobIndex reads the model's answer to "which job", a number or a numeric
// string.
func jobIndex(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case float64:
		return int(n), n == float64(int(n))
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func isHistoryExpiredError(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusNotFound
}

func parseHeaders(msg *gmail.Message) map[string]string {
	res := make(map[string]string)
	if msg.Payload == nil {
		return res
	}
	for _, h := range msg.Payload.Headers {
		res[h.Name] = h.Value
	}
	return res
}

// getEmailBody prefers text/plain over text/html, searching nested parts.
func getEmailBody(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}
	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		return decodeBody(msg.Payload.Body.Data)
	}
	if body := findPart(msg.Payload.Parts, "text/plain"); body != "" {
		return body
	}
	return findPart(msg.Payload.Parts, "text/html")
}

func findPart(parts []*gmail.MessagePart, mimeType string) string {
	for _, part := range parts {
		if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			return decodeBody(part.Body.Data)
		}
		if body := findPart(part.Parts, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) string {
	if d, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(d)
	}
	d, _ := base64.RawURLEncoding.DecodeString(data)
	return string(d)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
