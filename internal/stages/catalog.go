package stages

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/justsurfingit/careerboost/internal/llm"
	"gopkg.in/yaml.v3"
)

// Stage names of the built-in catalog.
const (
	AnalyzeResume       = "analyze_resume"
	SearchJobs          = "search_jobs"
	ImproveResume       = "improve_resume"
	ApplyToJob          = "apply_to_job"
	ExtractJobDetails   = "extract_job_details"
	IdentifyJobRole     = "identify_job_role"
	ClassifyEmailStatus = "classify_email_status"
)

var ErrUnknownStage = errors.New("unknown stage")

//go:embed catalog/agents.yaml catalog/tasks.yaml
var builtin embed.FS

type taskDef struct {
	Agent          string        `yaml:"agent"`
	Description    string        `yaml:"description"`
	ExpectedOutput string        `yaml:"expected_output"`
	Options        llm.Options   `yaml:"options"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Backoff        time.Duration `yaml:"backoff"`
}

// Defaults fill in execution settings a task definition leaves at zero.
type Defaults struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// Catalog holds the stage specs by name.
type Catalog struct {
	specs map[string]*Spec
}

// LoadCatalog reads agents.yaml and tasks.yaml from dir. An empty dir, or a
// dir missing either file, falls back to the built-in definitions for that
// file.
func LoadCatalog(dir string, defaults Defaults) (*Catalog, error) {
	agentsData, err := readCatalogFile(dir, "agents.yaml")
	if err != nil {
		return nil, err
	}
	tasksData, err := readCatalogFile(dir, "tasks.yaml")
	if err != nil {
		return nil, err
	}
	return ParseCatalog(agentsData, tasksData, defaults)
}

func readCatalogFile(dir, name string) ([]byte, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
	return builtin.ReadFile("catalog/" + name)
}

// ParseCatalog builds a catalog from agents and tasks YAML documents.
func ParseCatalog(agentsYAML, tasksYAML []byte, defaults Defaults) (*Catalog, error) {
	var agents map[string]Agent
	if err := yaml.Unmarshal(agentsYAML, &agents); err != nil {
		return nil, fmt.Errorf("parse agents.yaml: %w", err)
	}
	var tasks map[string]taskDef
	if err := yaml.Unmarshal(tasksYAML, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks.yaml: %w", err)
	}

	for name, agent := range agents {
		if strings.TrimSpace(agent.Role) == "" {
			return nil, fmt.Errorf("agent %s: role is required", name)
		}
	}

	c := &Catalog{specs: make(map[string]*Spec, len(tasks))}
	for name, def := range tasks {
		agent, ok := agents[def.Agent]
		if !ok {
			return nil, fmt.Errorf("task %s: unknown agent %q", name, def.Agent)
		}
		spec, err := NewSpec(name, agent, def.Description, def.ExpectedOutput)
		if err != nil {
			return nil, err
		}
		spec.Options = def.Options
		spec.Timeout = pickDuration(def.Timeout, defaults.Timeout)
		spec.Backoff = pickDuration(def.Backoff, defaults.Backoff)
		spec.MaxAttempts = def.MaxAttempts
		if spec.MaxAttempts <= 0 {
			spec.MaxAttempts = defaults.MaxAttempts
		}
		if spec.MaxAttempts <= 0 {
			spec.MaxAttempts = 1
		}
		c.specs[name] = spec
	}
	return c, nil
}

func pickDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

// Get returns the spec named name.
func (c *Catalog) Get(name string) (*Spec, error) {
	spec, ok := c.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	return spec, nil
}

// Names lists the stages in the catalog, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.specs))
	for n := range c.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
