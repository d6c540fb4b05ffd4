// Package assembler turns ranked profiles into the public result schema.
// It performs no I/O.
package assembler

import (
	"math"
	"strconv"

	"github.com/knoguchi/talentsearch/internal/candidate"
)

// Unknown is substituted for missing contact fields.
const Unknown = "Unknown"

// Result is the public representation of one matched candidate.
type Result struct {
	ID             string  `json:"id"`
	Rank           int     `json:"rank"`
	Score          float64 `json:"similarity_score"`
	RetrievalScore float64 `json:"retrieval_score"`
	Reranked       bool    `json:"reranked"`

	Name        string `json:"name"`
	Email       string `json:"email_id"`
	Phone       string `json:"phone_number"`
	Location    string `json:"location"`
	LinkedInURL string `json:"linkedin_url"`
	GitHubURL   string `json:"github_url"`
	Category    string `json:"job_category,omitempty"`

	CurrentJobTitle         string   `json:"current_job_title"`
	Objective               string   `json:"objective"`
	Skills                  []string `json:"skills"`
	ExperienceSummary       string   `json:"experience_summary"`
	QualificationsSummary   string   `json:"qualifications_summary"`
	Companies               []string `json:"companies_worked_with_duration"`
	Projects                []string `json:"projects"`
	Certifications          []string `json:"certifications"`
	Awards                  []string `json:"awards_achievements"`
	Languages               []string `json:"languages"`
	AvailabilityStatus      string   `json:"availability_status"`
	WorkAuthorizationStatus string   `json:"work_authorization_status"`
	HasPhoto                bool     `json:"has_photo"`
	OriginalFilename        string   `json:"_original_filename,omitempty"`

	IsMaster            bool     `json:"_is_master_record"`
	DuplicateGroupID    string   `json:"_duplicate_group_id,omitempty"`
	DuplicateCount      int      `json:"_duplicate_count"`
	AssociatedFilenames []string `json:"_associated_original_filenames"`
	AssociatedIDs       []string `json:"_associated_ids"`
}

// Assemble converts ranked profiles into results: scores become finite
// float64 values, missing contact fields become Unknown, and only the
// best-ranked member of each duplicate group is kept. Ranks are renumbered
// 1..k afterwards.
func Assemble(ranked []candidate.Ranked) []Result {
	out := make([]Result, 0, len(ranked))
	seen := make(map[string]struct{})

	for _, r := range ranked {
		if gid := r.Profile.Duplicate.GroupID; gid != "" {
			if _, dup := seen[gid]; dup {
				continue
			}
			seen[gid] = struct{}{}
		}
		out = append(out, project(r))
	}

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func project(r candidate.Ranked) Result {
	p := r.Profile
	return Result{
		ID:             p.ID,
		Rank:           r.Rank,
		Score:          finite(r.Score),
		RetrievalScore: finite(r.RetrievalScore),
		Reranked:       r.Reranked,

		Name:        orUnknown(p.Name),
		Email:       orUnknown(p.Email),
		Phone:       orUnknown(p.Phone),
		Location:    orUnknown(p.Location),
		LinkedInURL: orUnknown(p.LinkedInURL),
		GitHubURL:   orUnknown(p.GitHubURL),
		Category:    p.Category,

		CurrentJobTitle:         p.CurrentJobTitle,
		Objective:               p.Objective,
		Skills:                  list(p.Skills),
		ExperienceSummary:       p.ExperienceSummary,
		QualificationsSummary:   p.QualificationsSummary,
		Companies:               list(p.Companies),
		Projects:                list(p.Projects),
		Certifications:          list(p.Certifications),
		Awards:                  list(p.Awards),
		Languages:               list(p.Languages),
		AvailabilityStatus:      p.AvailabilityStatus,
		WorkAuthorizationStatus: p.WorkAuthorizationStatus,
		HasPhoto:                p.HasPhoto,
		OriginalFilename:        p.OriginalFilename,

		IsMaster:            p.Duplicate.IsMaster,
		DuplicateGroupID:    p.Duplicate.GroupID,
		DuplicateCount:      p.Duplicate.Count,
		AssociatedFilenames: list(p.Duplicate.AssociatedFilenames),
		AssociatedIDs:       list(p.Duplicate.AssociatedIDs),
	}
}

// finite widens a model score through its shortest float32 decimal form,
// so 0.9 stays 0.9 rather than 0.8999999761581421. NaN and infinities map
// to 0.
func finite(v float32) float64 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0
	}
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	if err != nil {
		return float64(v)
	}
	return f
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// list keeps JSON output as [] rather than null.
func list(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
