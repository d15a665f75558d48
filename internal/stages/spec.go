// Package stages runs one agent task against the model: render the task
// template with its inputs, call the gateway once, normalize the answer.
package stages

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
	"time"

	"github.com/justsurfingit/careerboost/internal/llm"
	"github.com/justsurfingit/careerboost/internal/normalizer"
)

// ErrMissingInput means a template key had no value in the stage input. It is
// a caller error and is never retried.
var ErrMissingInput = errors.New("missing stage input")

// Input maps template keys to values: strings, nested maps, or prior Results.
type Input map[string]any

// Agent is the persona a stage speaks as.
type Agent struct {
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
}

// Spec is a fully resolved stage definition.
type Spec struct {
	Name           string
	Agent          Agent
	Description    string
	ExpectedOutput string
	Options        llm.Options
	Timeout        time.Duration
	MaxAttempts    int
	Backoff        time.Duration

	tmpl *template.Template
	keys []string
}

// NewSpec parses the task description and validates the definition.
func NewSpec(name string, agent Agent, description, expectedOutput string) (*Spec, error) {
	if name == "" {
		return nil, errors.New("stage name is required")
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("stage %s: description is required", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(description)
	if err != nil {
		return nil, fmt.Errorf("stage %s: parse description: %w", name, err)
	}
	return &Spec{
		Name:           name,
		Agent:          agent,
		Description:    description,
		ExpectedOutput: expectedOutput,
		MaxAttempts:    1,
		tmpl:           tmpl,
		keys:           templateKeys(tmpl),
	}, nil
}

// InputKeys lists the top-level keys the description references, sorted.
func (s *Spec) InputKeys() []string {
	return append([]string(nil), s.keys...)
}

// Prompt renders the full prompt for in.
func (s *Spec) Prompt(in Input) (string, error) {
	var missing []string
	for _, k := range s.keys {
		if _, ok := in[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: stage %s needs %s", ErrMissingInput, s.Name, strings.Join(missing, ", "))
	}

	data := make(map[string]string, len(in))
	for k, v := range in {
		data[k] = RenderValue(v)
	}

	var task strings.Builder
	if err := s.tmpl.Execute(&task, data); err != nil {
		return "", fmt.Errorf("%w: stage %s: %v", ErrMissingInput, s.Name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s.\n", s.Agent.Role)
	if s.Agent.Goal != "" {
		fmt.Fprintf(&b, "Your goal: %s\n", s.Agent.Goal)
	}
	if s.Agent.Backstory != "" {
		fmt.Fprintf(&b, "Background: %s\n", s.Agent.Backstory)
	}
	b.WriteString("\n### TASK\n")
	b.WriteString(strings.TrimSpace(task.String()))
	if s.ExpectedOutput != "" {
		b.WriteString("\n\n### EXPECTED OUTPUT\n")
		b.WriteString(strings.TrimSpace(s.ExpectedOutput))
	}
	b.WriteString("\n")
	return b.String(), nil
}

// RenderValue turns a stage input value into prompt text. A failed Result
// renders as the raw model text so later stages still see what was said.
func RenderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case normalizer.Result:
		return renderResult(val)
	case *normalizer.Result:
		if val == nil {
			return ""
		}
		return renderResult(*val)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

func renderResult(r normalizer.Result) string {
	if !r.OK() {
		return r.Err.RawText
	}
	if s, ok := r.Value.(string); ok {
		return s
	}
	out, err := normalizer.Canonical(r.Value)
	if err != nil {
		return fmt.Sprint(r.Value)
	}
	return out
}

// templateKeys collects the first identifier of every field reference
// evaluated against the root data. Bodies of range and with blocks are skipped
// because dot is rebound there.
func templateKeys(t *template.Template) []string {
	seen := map[string]struct{}{}
	for _, tt := range t.Templates() {
		if tt.Tree != nil {
			walkNode(tt.Tree.Root, seen)
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func walkNode(node parse.Node, seen map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			walkNode(c, seen)
		}
	case *parse.ActionNode:
		walkNode(n.Pipe, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			walkNode(cmd, seen)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			walkNode(arg, seen)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			seen[n.Ident[0]] = struct{}{}
		}
	case *parse.ChainNode:
		walkNode(n.Node, seen)
	case *parse.IfNode:
		walkNode(n.Pipe, seen)
		walkNode(n.List, seen)
		walkNode(n.ElseList, seen)
	case *parse.RangeNode:
		walkNode(n.Pipe, seen)
		walkNode(n.ElseList, seen)
	case *parse.WithNode:
		walkNode(n.Pipe, seen)
		walkNode(n.ElseList, seen)
	case *parse.TemplateNode:
		walkNode(n.Pipe, seen)
	}
}
