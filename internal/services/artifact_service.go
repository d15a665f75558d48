package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/justsurfingit/careerboost/internal/pipeline"
	"github.com/justsurfingit/careerboost/internal/stages"
)

// ArtifactFiles maps stage names to the file their output is stored in.
var ArtifactFiles = map[string]string{
	stages.AnalyzeResume: "parsed_resume.json",
	stages.SearchJobs:    "job_listings.json",
	stages.ImproveResume: "improved_resumes.json",
	stages.ApplyToJob:    "application_results.json",
}

// ArtifactService writes stage outputs under <dir>/<run_id>/.
type ArtifactService struct {
	Dir string
}

func NewArtifactService(dir string) *ArtifactService {
	return &ArtifactService{Dir: dir}
}

// RunDir is the directory holding the artifacts of runID.
func (s *ArtifactService) RunDir(runID string) string {
	return filepath.Join(s.Dir, filepath.Base(runID))
}

// Save writes one file per recorded stage and returns stage name to path.
// Failed results are written as their ErrorResult.
func (s *ArtifactService) Save(res *pipeline.Result) (map[string]string, error) {
	dir := s.RunDir(res.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	paths := make(map[string]string, len(res.Stages))
	for _, st := range res.Stages {
		name, ok := ArtifactFiles[st.Name]
		if !ok {
			continue
		}
		path := filepath.Join(dir, name)
		if err := writeJSON(path, st.Output); err != nil {
			return paths, err
		}
		paths[st.Name] = path
	}
	return paths, nil
}

// SaveSubmissions overwrites application_results.json with the recorded
// submissions.
func (s *ArtifactService) SaveSubmissions(runID string, subs []Submission) (string, error) {
	dir := s.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, ArtifactFiles[stages.ApplyToJob])
	return path, writeJSON(path, subs)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
