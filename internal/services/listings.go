package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/justsurfingit/careerboost/internal/normalizer"
)

// Listing is one job returned by the search stage.
type Listing struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Salary      string `json:"salary"`
	URL         string `json:"url"`
	Description string `json:"description"`
	MatchScore  int    `json:"match_score"`
}

// Application is one application prepared by the apply stage.
type Application struct {
	JobURL      string `json:"job_url"`
	JobTitle    string `json:"job_title"`
	Company     string `json:"company"`
	CoverLetter string `json:"cover_letter"`
}

// ParseListings reads the search stage output. Both {"jobs": [...]} and a
// bare list are accepted; entries without a title are dropped.
func ParseListings(out normalizer.Result) []Listing {
	var listings []Listing
	for _, item := range items(out, "jobs") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		l := Listing{
			Title:       str(m, "title", "job_title", "role_title"),
			Company:     str(m, "company", "company_name"),
			Location:    str(m, "location"),
			Salary:      str(m, "salary", "salary_range"),
			URL:         str(m, "url", "job_url", "link"),
			Description: str(m, "description"),
			MatchScore:  num(m, "match_score"),
		}
		if l.Title == "" {
			continue
		}
		listings = append(listings, l)
	}
	return listings
}

// ParseApplications reads the apply stage output.
func ParseApplications(out normalizer.Result) []Application {
	var apps []Application
	for _, item := range items(out, "applications") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		apps = append(apps, Application{
			JobURL:      str(m, "job_url", "url"),
			JobTitle:    str(m, "job_title", "title"),
			Company:     str(m, "company", "company_name"),
			CoverLetter: str(m, "cover_letter"),
		})
	}
	return apps
}

func items(out normalizer.Result, key string) []any {
	if !out.OK() {
		return nil
	}
	switch v := out.Value.(type) {
	case []any:
		return v
	case map[string]any:
		list, _ := v[key].([]any)
		return list
	}
	return nil
}

// str returns the first non-empty string among keys. Numbers are formatted.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

func num(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "%")); err == nil {
			return i
		}
	}
	return 0
}
