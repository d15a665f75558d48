package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/justsurfingit/careerboost/internal/normalizer"
	"github.com/justsurfingit/careerboost/internal/stages"
)

// SourceRequest binds a stage input to a field of the run request.
const SourceRequest = "request"

// Request fields available to bindings with Source "request".
const (
	FieldDocumentPath    = "document_path"
	FieldResumeText      = "resume_text"
	FieldJobKeywords     = "job_keywords"
	FieldLocation        = "location"
	FieldExperienceLevel = "experience_level"
	FieldUserInfo        = "user_info"
)

var requestFields = map[string]struct{}{
	FieldDocumentPath:    {},
	FieldResumeText:      {},
	FieldJobKeywords:     {},
	FieldLocation:        {},
	FieldExperienceLevel: {},
	FieldUserInfo:        {},
}

// Binding fills one template key of a stage. Source is SourceRequest or the
// name of an earlier stage. For request sources Path is the field name; for
// stage sources it is a dot path into the stage value, and an empty path
// passes the whole stage output.
type Binding struct {
	Input  string
	Source string
	Path   string
}

// Wiring maps a stage name to the bindings of its inputs.
type Wiring map[string][]Binding

// DefaultWiring threads the four pipeline stages together.
func DefaultWiring() Wiring {
	return Wiring{
		stages.AnalyzeResume: {
			{Input: "resume", Source: SourceRequest, Path: FieldResumeText},
		},
		stages.SearchJobs: {
			{Input: "resume_data", Source: stages.AnalyzeResume},
			{Input: "skills", Source: stages.AnalyzeResume, Path: "skills"},
			{Input: "job_keywords", Source: SourceRequest, Path: FieldJobKeywords},
			{Input: "location", Source: SourceRequest, Path: FieldLocation},
			{Input: "experience_level", Source: SourceRequest, Path: FieldExperienceLevel},
		},
		stages.ImproveResume: {
			{Input: "resume_data", Source: stages.AnalyzeResume},
			{Input: "job_listings", Source: stages.SearchJobs},
		},
		stages.ApplyToJob: {
			{Input: "improved_resumes", Source: stages.ImproveResume},
			{Input: "job_listings", Source: stages.SearchJobs},
			{Input: "user_info", Source: SourceRequest, Path: FieldUserInfo},
		},
	}
}

// validate checks that every stage in order is fully and only bound, and that
// bindings only look backwards.
func (w Wiring) validate(order []string, specs map[string]*stages.Spec) error {
	earlier := map[string]bool{}
	for _, name := range order {
		spec, ok := specs[name]
		if !ok {
			return fmt.Errorf("wiring: no definition for stage %s", name)
		}

		bound := map[string]bool{}
		for _, b := range w[name] {
			if bound[b.Input] {
				return fmt.Errorf("wiring: stage %s binds %q twice", name, b.Input)
			}
			bound[b.Input] = true

			switch {
			case b.Source == SourceRequest:
				if _, ok := requestFields[b.Path]; !ok {
					return fmt.Errorf("wiring: stage %s input %q reads unknown request field %q", name, b.Input, b.Path)
				}
			case earlier[b.Source]:
			default:
				return fmt.Errorf("wiring: stage %s input %q reads %q, which is not an earlier stage", name, b.Input, b.Source)
			}
		}

		keys := spec.InputKeys()
		wanted := make(map[string]bool, len(keys))
		for _, k := range keys {
			wanted[k] = true
			if !bound[k] {
				return fmt.Errorf("wiring: stage %s input %q is not bound", name, k)
			}
		}
		for k := range bound {
			if !wanted[k] {
				return fmt.Errorf("wiring: stage %s binds %q, which its template does not use", name, k)
			}
		}
		earlier[name] = true
	}
	return nil
}

// inputs resolves the bindings of stage against the request and the outputs
// produced so far.
func (w Wiring) inputs(stage string, req map[string]any, outputs map[string]normalizer.Result) stages.Input {
	in := make(stages.Input, len(w[stage]))
	for _, b := range w[stage] {
		if b.Source == SourceRequest {
			in[b.Input] = req[b.Path]
			continue
		}
		in[b.Input] = resolve(outputs[b.Source], b.Path)
	}
	return in
}

// resolve picks Path out of a stage output. Paths into an ErrorResult, or to
// keys and indexes that do not exist, resolve to nil.
func resolve(out normalizer.Result, path string) any {
	if path == "" {
		return out
	}
	if !out.OK() {
		return nil
	}
	return Lookup(out.Value, path)
}

// Lookup walks a dot path of map keys and list indexes through v.
func Lookup(v any, path string) any {
	cur := v
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}
