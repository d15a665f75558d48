package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/justsurfingit/careerboost/internal/llm"
	"github.com/justsurfingit/careerboost/internal/normalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func testDefaults() Defaults {
	return Defaults{Timeout: time.Minute, MaxAttempts: 3, Backoff: time.Second}
}

func TestBuiltinCatalog(t *testing.T) {
	c, err := LoadCatalog("", testDefaults())
	require.NoError(t, err)

	assert.Equal(t, []string{
		AnalyzeResume, ApplyToJob, ClassifyEmailStatus, ExtractJobDetails,
		IdentifyJobRole, ImproveResume, SearchJobs,
	}, c.Names())

	keys := map[string][]string{
		AnalyzeResume:       {"resume"},
		SearchJobs:          {"experience_level", "job_keywords", "location", "resume_data", "skills"},
		ImproveResume:       {"job_listings", "resume_data"},
		ApplyToJob:          {"improved_resumes", "job_listings", "user_info"},
		ExtractJobDetails:   {"raw_content"},
		IdentifyJobRole:     {"body", "job_titles", "subject"},
		ClassifyEmailStatus: {"body", "company", "subject"},
	}
	for name, want := range keys {
		spec, err := c.Get(name)
		require.NoError(t, err)
		if diff := cmp.Diff(want, spec.InputKeys()); diff != "" {
			t.Errorf("%s input keys mismatch (-want +got):\n%s", name, diff)
		}
	}

	spec, err := c.Get(ExtractJobDetails)
	require.NoError(t, err)
	assert.Equal(t, 2, spec.MaxAttempts)
	assert.Equal(t, time.Minute, spec.Timeout)

	_, err = c.Get("write_poem")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestLoadCatalog_DirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.yaml"), []byte(`
analyze_resume:
  agent: resume_analyzer
  description: "Summarize {{.resume}}"
  expected_output: "JSON"
  timeout: 5s
  max_attempts: 4
`), 0o600))

	c, err := LoadCatalog(dir, testDefaults())
	require.NoError(t, err)
	assert.Equal(t, []string{AnalyzeResume}, c.Names())

	spec, err := c.Get(AnalyzeResume)
	require.NoError(t, err)
	assert.Equal(t, "Resume Analyzer", spec.Agent.Role)
	assert.Equal(t, 5*time.Second, spec.Timeout)
	assert.Equal(t, 4, spec.MaxAttempts)
	assert.Equal(t, time.Second, spec.Backoff)
}

func TestParseCatalog_Errors(t *testing.T) {
	agents := []byte("a:\n  role: A\n")

	_, err := ParseCatalog(agents, []byte("t:\n  agent: b\n  description: x\n"), Defaults{})
	assert.ErrorContains(t, err, "unknown agent")

	_, err = ParseCatalog(agents, []byte("t:\n  agent: a\n  description: \"{{.x\"\n"), Defaults{})
	assert.ErrorContains(t, err, "parse description")

	_, err = ParseCatalog([]byte("a: [unclosed"), []byte("{}"), Defaults{})
	assert.ErrorContains(t, err, "agents.yaml")

	_, err = ParseCatalog(agents, []byte("- x\n"), Defaults{})
	assert.ErrorContains(t, err, "tasks.yaml")

	_, err = ParseCatalog([]byte("a:\n  goal: g\n"), []byte("t:\n  agent: a\n  description: \"{{.x}}\"\n"), Defaults{})
	assert.ErrorContains(t, err, "agent a: role is required")

	_, err = ParseCatalog([]byte("a:\n  rol: A\n"), []byte("{}"), Defaults{})
	assert.ErrorContains(t, err, "role is required")
}

func TestSpecInputKeys_SkipsRebindingBlocks(t *testing.T) {
	spec, err := NewSpec("s", Agent{Role: "R"}, `{{.a}} {{if .b}}{{.c}}{{else}}{{.d}}{{end}} {{range .items}}{{.inner}}{{end}} {{with .w}}{{.x}}{{end}} {{printf "%s" .e}}`, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "items", "w"}, spec.InputKeys())
}

func TestSpecPrompt(t *testing.T) {
	spec, err := NewSpec("s", Agent{Role: "Resume Analyzer", Goal: "Extract", Backstory: "HR"}, "Read:\n{{.resume}}\n", "JSON only")
	require.NoError(t, err)

	prompt, err := spec.Prompt(Input{"resume": "Name: Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, "You are a Resume Analyzer.\nYour goal: Extract\nBackground: HR\n\n### TASK\nRead:\nName: Jane Doe\n\n### EXPECTED OUTPUT\nJSON only\n", prompt)

	_, err = spec.Prompt(Input{})
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.ErrorContains(t, err, "resume")
}

func TestRenderValue(t *testing.T) {
	ok := normalizer.New().Normalize(`{"name": "Jane", "skills": ["Go"]}`)
	bad := normalizer.New().Normalize("Sorry, I can't process this.")

	assert.Equal(t, "", RenderValue(nil))
	assert.Equal(t, "verbatim", RenderValue("verbatim"))
	assert.Equal(t, `{"name":"Jane","skills":["Go"]}`, RenderValue(ok))
	assert.Equal(t, `{"name":"Jane","skills":["Go"]}`, RenderValue(&ok))
	assert.Equal(t, "Sorry, I can't process this.", RenderValue(bad))
	assert.Equal(t, "Go", RenderValue(normalizer.Result{Value: "Go"}))
	assert.Equal(t, "{\n  \"name\": \"Jane\"\n}", RenderValue(map[string]any{"name": "Jane"}))
	assert.Equal(t, "[\n  \"Go\",\n  \"SQL\"\n]", RenderValue([]any{"Go", "SQL"}))
}

type scriptedGateway struct {
	prompts []string
	opts    []llm.Options
	reply   func(ctx context.Context) (string, error)
}

func (g *scriptedGateway) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	return g.reply(ctx)
}

func newSpec(t *testing.T) *Spec {
	t.Helper()
	spec, err := NewSpec(AnalyzeResume, Agent{Role: "Resume Analyzer"}, "{{.resume}}", "JSON")
	require.NoError(t, err)
	spec.Options = llm.Options{Temperature: 0.1}
	return spec
}

func TestRunner_Run(t *testing.T) {
	gw := &scriptedGateway{reply: func(context.Context) (string, error) {
		return "```json\n{\"name\": \"Jane Doe\", \"skills\": [\"Python\", \"SQL\"]}\n```", nil
	}}
	runner := NewRunner(gw, normalizer.New(), zaptest.NewLogger(t))

	res, err := runner.Run(context.Background(), newSpec(t), Input{"resume": "Name: Jane Doe\nSkills: Python, SQL"})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, normalizer.MethodJSONFenced, res.Method)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Jane Doe", "skills": ["Python", "SQL"]}`, string(out))

	require.Len(t, gw.prompts, 1)
	assert.Contains(t, gw.prompts[0], "Skills: Python, SQL")
	assert.InDelta(t, 0.1, gw.opts[0].Temperature, 1e-9)
}

func TestRunner_UnstructuredOutputIsNotAnError(t *testing.T) {
	gw := &scriptedGateway{reply: func(context.Context) (string, error) {
		return "Sorry, I can't process this.", nil
	}}
	res, err := NewRunner(gw, nil, nil).Run(context.Background(), newSpec(t), Input{"resume": "x"})
	require.NoError(t, err)
	require.False(t, res.OK())
	assert.Equal(t, normalizer.KindInvalidStructuredOutput, res.Err.Kind)
	assert.Equal(t, "Sorry, I can't process this.", res.Err.RawText)
}

func TestRunner_GatewayErrorPropagates(t *testing.T) {
	cause := &llm.ProviderError{Provider: "test", Cause: errors.New("connection refused")}
	gw := &scriptedGateway{reply: func(context.Context) (string, error) { return "", cause }}

	_, err := NewRunner(gw, nil, nil).Run(context.Background(), newSpec(t), Input{"resume": "x"})
	assert.ErrorIs(t, err, cause)
}

func TestRunner_MissingInputSkipsGateway(t *testing.T) {
	gw := &scriptedGateway{reply: func(context.Context) (string, error) { return "{}", nil }}

	_, err := NewRunner(gw, nil, nil).Run(context.Background(), newSpec(t), Input{"other": "x"})
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Empty(t, gw.prompts)
}

func TestRunner_TimeoutBecomesDeadline(t *testing.T) {
	gw := &scriptedGateway{reply: func(ctx context.Context) (string, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return "", errors.New("no deadline")
		}
		if time.Until(deadline) > time.Second {
			return "", errors.New("deadline too far")
		}
		return `"ok"`, nil
	}}
	spec := newSpec(t)
	spec.Timeout = 500 * time.Millisecond

	res, err := NewRunner(gw, nil, nil).Run(context.Background(), spec, Input{"resume": strings.Repeat("x", 3)})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)
}

func TestRunner_LogsProviderTimeout(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cause := &llm.ProviderError{Provider: "test", Cause: fmt.Errorf("%w: %w", llm.ErrTimeout, context.DeadlineExceeded)}
	gw := &scriptedGateway{reply: func(context.Context) (string, error) { return "", cause }}

	_, err := NewRunner(gw, nil, zap.New(core)).Run(context.Background(), newSpec(t), Input{"resume": "x"})
	require.ErrorIs(t, err, llm.ErrTimeout)

	entries := logs.FilterMessage("model call failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["timeout"])
	assert.Equal(t, AnalyzeResume, entries[0].ContextMap()["stage"])
}
