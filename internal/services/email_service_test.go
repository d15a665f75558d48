package services

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/justsurfingit/careerboost/internal/config"
	"github.com/justsurfingit/careerboost/internal/database"
	"github.com/justsurfingit/careerboost/internal/models"
	"github.com/justsurfingit/careerboost/internal/normalizer"
	"github.com/justsurfingit/careerboost/internal/stages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

// scriptedStages answers stage runs with fixed model output per stage name.
type scriptedStages struct {
	mu      sync.Mutex
	replies map[string]string
	inputs  map[string][]stages.Input
}

func newScriptedStages(replies map[string]string) *scriptedStages {
	return &scriptedStages{replies: replies, inputs: map[string][]stages.Input{}}
}

func (s *scriptedStages) Run(_ context.Context, spec *stages.Spec, in stages.Input) (normalizer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[spec.Name] = append(s.inputs[spec.Name], in)
	reply, ok := s.replies[spec.Name]
	if !ok {
		return normalizer.Result{}, errors.New("no reply for " + spec.Name)
	}
	return normalizer.New().Normalize(reply), nil
}

func (s *scriptedStages) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs[name])
}

type fakeMailbox struct {
	messages   map[string]*gmail.Message
	search     []string
	historyID  uint64
	added      []string
	historyErr error
}

func ids(list []string) []*gmail.Message {
	out := make([]*gmail.Message, len(list))
	for i, id := range list {
		out[i] = &gmail.Message{Id: id}
	}
	return out
}

func (m *fakeMailbox) Search(context.Context, string, int64) ([]*gmail.Message, error) {
	return ids(m.search), nil
}

func (m *fakeMailbox) CurrentHistoryID(context.Context) (uint64, error) {
	return m.historyID, nil
}

func (m *fakeMailbox) History(context.Context, uint64) ([]*gmail.Message, uint64, error) {
	if m.historyErr != nil {
		return nil, 0, m.historyErr
	}
	return ids(m.added), m.historyID, nil
}

func (m *fakeMailbox) Get(_ context.Context, id string) (*gmail.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusBadRequest}
	}
	return msg, nil
}

func message(id, from, subject, body string) *gmail.Message {
	return &gmail.Message{
		Id: id,
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "Subject", Value: subject},
			},
			Body: &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
		},
	}
}

func newEmailService(t *testing.T, runner *scriptedStages, mailbox Mailbox) *EmailService {
	t.Helper()
	catalog, err := stages.LoadCatalog("", stages.Defaults{MaxAttempts: 1})
	require.NoError(t, err)
	return NewEmailService(nil, runner, catalog, mailbox, nil, config.GmailConfig{BootstrapDays: 30}, zaptest.NewLogger(t))
}

func TestParseHeadersAndBody(t *testing.T) {
	msg := message("m1", "Stripe <jobs@stripe.com>", "Interview", "Let's talk")
	assert.Equal(t, map[string]string{"From": "Stripe <jobs@stripe.com>", "Subject": "Interview"}, parseHeaders(msg))
	assert.Equal(t, "Let's talk", getEmailBody(msg))

	assert.Empty(t, parseHeaders(&gmail.Message{}))
	assert.Empty(t, getEmailBody(&gmail.Message{}))
}

func TestGetEmailBodyPrefersPlainTextInNestedParts(t *testing.T) {
	enc := base64.RawURLEncoding.EncodeToString
	msg := &gmail.Message{Payload: &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc([]byte("<p>hi</p>"))}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc([]byte("hi?"))}},
			},
		}},
	}}
	assert.Equal(t, "hi?", getEmailBody(msg))

	msg.Payload.Parts[0].Parts = msg.Payload.Parts[0].Parts[:1]
	assert.Equal(t, "<p>hi</p>", getEmailBody(msg))
}

func TestGmailRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := gmailRetry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	expired := &googleapi.Error{Code: http.StatusNotFound}
	err = gmailRetry(ctx, 3, time.Millisecond, func() error {
		calls++
		return expired
	})
	assert.Equal(t, 1, calls)
	assert.True(t, isHistoryExpiredError(err))

	calls = 0
	err = gmailRetry(ctx, 2, time.Millisecond, func() error {
		calls++
		return errors.New("down")
	})
	assert.Equal(t, 2, calls)
	assert.EqualError(t, err, "failed after 2 attempts: down")

	assert.False(t, isHistoryExpiredError(&googleapi.Error{Code: http.StatusInternalServerError}))
}

func TestIdentifyJob(t *testing.T) {
	titles := []string{"Backend Engineer", "Data Engineer"}

	tests := []struct {
		name  string
		reply string
		want  int
	}{
		{"object", `{"index": 1}`, 1},
		{"fenced", "```json\n{\"index\": 0}\n```", 0},
		{"bare number", `1`, 1},
		{"unknown", `{"index": -1}`, -1},
		{"out of range", `{"index": 5}`, -1},
		{"prose", `It is probably the data role.`, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newScriptedStages(map[string]string{stages.IdentifyJobRole: tt.reply})
			svc := newEmailService(t, runner, nil)

			got, err := svc.IdentifyJob(context.Background(), titles, "Interview", "body")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("role list", func(t *testing.T) {
		runner := newScriptedStages(map[string]string{stages.IdentifyJobRole: `{"index": 0}`})
		svc := newEmailService(t, runner, nil)
		_, err := svc.IdentifyJob(context.Background(), titles, "s", "b")
		require.NoError(t, err)
		assert.Equal(t, "0: Backend Engineer\n1: Data Engineer\n", runner.inputs[stages.IdentifyJobRole][0]["job_titles"])
	})

	t.Run("single job skips the model", func(t *testing.T) {
		runner := newScriptedStages(nil)
		svc := newEmailService(t, runner, nil)
		got, err := svc.IdentifyJob(context.Background(), titles[:1], "s", "b")
		require.NoError(t, err)
		assert.Equal(t, 0, got)
		assert.Zero(t, runner.count(stages.IdentifyJobRole))
	})
}

func TestClassifyEmail(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  EmailStatus
	}{
		{"interview", `{"status": "INTERVIEW", "summary": "Onsite next week"}`, EmailStatus{Status: "INTERVIEW", Summary: "Onsite next week"}},
		{"lower case", `{"status": "rejected", "summary": "No"}`, EmailStatus{Status: "REJECTED", Summary: "No"}},
		{"unexpected status", `{"status": "MAYBE"}`, EmailStatus{Status: EmailUnknown}},
		{"unparseable", `The candidate got an offer!`, EmailStatus{Status: EmailUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newScriptedStages(map[string]string{stages.ClassifyEmailStatus: tt.reply})
			svc := newEmailService(t, runner, nil)

			got, err := svc.ClassifyEmail(context.Background(), "Stripe", "Update", "body")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("runner error", func(t *testing.T) {
		svc := newEmailService(t, newScriptedStages(nil), nil)
		_, err := svc.ClassifyEmail(context.Background(), "Stripe", "Update", "body")
		assert.Error(t, err)
	})
}

func TestStartWatcherWithoutMailbox(t *testing.T) {
	svc := newEmailService(t, newScriptedStages(nil), nil)
	done := svc.StartWatcher(context.Background())
	_, open := <-done
	assert.False(t, open)
}

func TestStartWatcherStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := newEmailService(t, newScriptedStages(nil), &fakeMailbox{})
	svc.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := svc.StartWatcher(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestSyncEmails(t *testing.T) {
	db := database.OpenForTest(t)

	company := models.Company{Name: "Stripe"}
	require.NoError(t, db.Create(&company).Error)
	job := models.Job{CompanyID: company.ID, Title: "Backend Engineer", Status: models.JobStatusApplied}
	require.NoError(t, db.Create(&job).Error)
	found := models.Job{CompanyID: company.ID, Title: "Data Engineer", Status: models.JobStatusFound}
	require.NoError(t, db.Create(&found).Error)

	mailbox := &fakeMailbox{
		messages: map[string]*gmail.Message{
			"m1": message("m1", "Stripe Recruiting <jobs@stripe.com>", "Interview invitation", "Can you talk Tuesday?"),
			"m2": message("m2", "news@example.com", "Weekly digest", "Nothing here"),
		},
		search:    []string{"m1", "m2"},
		historyID: 42,
	}
	runner := newScriptedStages(map[string]string{
		stages.ClassifyEmailStatus: `{"status": "INTERVIEW", "summary": "Phone screen on Tuesday"}`,
	})
	catalog, err := stages.LoadCatalog("", stages.Defaults{MaxAttempts: 1})
	require.NoError(t, err)
	svc := NewEmailService(db, runner, catalog, mailbox, NewMatcherService(db), config.GmailConfig{BootstrapDays: 30}, zaptest.NewLogger(t))

	require.NoError(t, svc.SyncEmails(context.Background()))

	var got models.Job
	require.NoError(t, db.First(&got, job.ID).Error)
	assert.Equal(t, models.JobStatusInterview, got.Status)

	var events []models.JobEvent
	require.NoError(t, db.Where("job_id = ?", job.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventEmailUpdate, events[0].EventType)
	assert.Contains(t, events[0].Details, "Phone screen on Tuesday")

	var user models.User
	require.NoError(t, db.First(&user).Error)
	assert.Equal(t, uint64(42), user.LastHistoryID)

	var processed int64
	require.NoError(t, db.Model(&models.ProcessedEmail{}).Count(&processed).Error)
	assert.Equal(t, int64(2), processed)

	// The next cycle is incremental and the history repeats m1.
	mailbox.added = []string{"m1"}
	mailbox.historyID = 50
	require.NoError(t, svc.SyncEmails(context.Background()))
	assert.Equal(t, 1, runner.count(stages.ClassifyEmailStatus))

	// Expired history falls back to a full sync.
	mailbox.historyErr = &googleapi.Error{Code: http.StatusNotFound}
	mailbox.historyID = 60
	require.NoError(t, svc.SyncEmails(context.Background()))
	require.NoError(t, db.First(&user).Error)
	assert.Equal(t, uint64(60), user.LastHistoryID)
}
