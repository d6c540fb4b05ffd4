package candidate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a payload cannot be decoded into a Profile.
var ErrMalformed = errors.New("malformed candidate payload")

// Payload keys written by the ingestion side.
const (
	KeyCategory                = "job_category"
	KeyName                    = "name"
	KeyEmail                   = "email_id"
	KeyPhone                   = "phone_number"
	KeyLocation                = "location"
	KeyLinkedIn                = "linkedin_url"
	KeyGitHub                  = "github_url"
	KeyCurrentJobTitle         = "current_job_title"
	KeyObjective               = "objective"
	KeySkills                  = "skills"
	KeyExperienceSummary       = "experience_summary"
	KeyQualificationsSummary   = "qualifications_summary"
	KeyCompanies               = "companies_worked_with_duration"
	KeyProjects                = "projects"
	KeyCertifications          = "certifications"
	KeyAwards                  = "awards_achievements"
	KeyLanguages               = "languages"
	KeyAvailabilityStatus      = "availability_status"
	KeyWorkAuthorizationStatus = "work_authorization_status"
	KeyHasPhoto                = "has_photo"
	KeyOriginalFilename        = "_original_filename"
	KeyPersonalDetails         = "personal_details"

	KeyIsMaster            = "_is_master_record"
	KeyDuplicateGroupID    = "_duplicate_group_id"
	KeyDuplicateCount      = "_duplicate_count"
	KeyAssociatedFilenames = "_associated_original_filenames"
	KeyAssociatedIDs       = "_associated_ids"
)

// FromPayload decodes a vector store payload into a Profile.
//
// Missing keys and nulls decode to absent attributes. A value of the wrong
// shape (for example an object where text is expected) yields ErrMalformed.
func FromPayload(id string, payload map[string]any) (Profile, error) {
	if id == "" {
		return Profile{}, fmt.Errorf("%w: empty id", ErrMalformed)
	}
	if payload == nil {
		return Profile{}, fmt.Errorf("%w: nil payload for %s", ErrMalformed, id)
	}

	d := decoder{payload: payload}
	p := Profile{
		ID:                      id,
		Category:                d.text(KeyCategory),
		Name:                    d.text(KeyName),
		Email:                   d.text(KeyEmail),
		Phone:                   d.text(KeyPhone),
		Location:                d.text(KeyLocation),
		LinkedInURL:             d.text(KeyLinkedIn),
		GitHubURL:               d.text(KeyGitHub),
		CurrentJobTitle:         d.text(KeyCurrentJobTitle),
		Objective:               d.text(KeyObjective),
		Skills:                  d.list(KeySkills),
		ExperienceSummary:       d.text(KeyExperienceSummary),
		QualificationsSummary:   d.text(KeyQualificationsSummary),
		Companies:               d.list(KeyCompanies),
		Projects:                d.list(KeyProjects),
		Certifications:          d.list(KeyCertifications),
		Awards:                  d.list(KeyAwards),
		Languages:               d.list(KeyLanguages),
		AvailabilityStatus:      d.text(KeyAvailabilityStatus),
		WorkAuthorizationStatus: d.text(KeyWorkAuthorizationStatus),
		HasPhoto:                d.flag(KeyHasPhoto),
		OriginalFilename:        d.text(KeyOriginalFilename),
		Duplicate: DuplicateGroup{
			GroupID:             d.text(KeyDuplicateGroupID),
			IsMaster:            d.flag(KeyIsMaster),
			Count:               d.count(KeyDuplicateCount),
			AssociatedFilenames: d.list(KeyAssociatedFilenames),
			AssociatedIDs:       d.list(KeyAssociatedIDs),
		},
	}

	// Older records keep contact fields under a nested object.
	if details, ok := payload[KeyPersonalDetails].(map[string]any); ok {
		nested := decoder{payload: details}
		if p.Name == "" {
			p.Name = nested.text("name")
		}
		if p.Email == "" {
			p.Email = nested.text("email")
		}
		if p.Phone == "" {
			p.Phone = nested.text("phone")
		}
		if nested.err != nil && d.err == nil {
			d.err = nested.err
		}
	}

	if d.err != nil {
		return Profile{}, fmt.Errorf("%w: candidate %s: %v", ErrMalformed, id, d.err)
	}
	return p, nil
}

// decoder records the first shape error it sees and keeps going, so the
// caller gets one error per payload.
type decoder struct {
	payload map[string]any
	err     error
}

func (d *decoder) fail(key string, v any) {
	if d.err == nil {
		d.err = fmt.Errorf("field %q has unexpected type %T", key, v)
	}
}

func (d *decoder) text(key string) string {
	v, ok := d.payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := scalarText(v)
	if !ok {
		d.fail(key, v)
		return ""
	}
	return strings.TrimSpace(s)
}

func (d *decoder) list(key string) []string {
	v, ok := d.payload[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := itemText(item)
			if !ok {
				d.fail(key, item)
				return nil
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		return t
	case string:
		return splitList(t)
	default:
		d.fail(key, v)
		return nil
	}
}

func (d *decoder) flag(key string) bool {
	v, ok := d.payload[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false
		}
		return b
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		d.fail(key, v)
		return false
	}
}

func (d *decoder) count(key string) int {
	v, ok := d.payload[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		d.fail(key, v)
		return 0
	}
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// itemText renders one list element. Structured entries such as
// {"company": "Acme", "duration": "2y"} are flattened to "k: v" pairs in key
// order so the output is stable.
func itemText(v any) (string, bool) {
	if s, ok := scalarText(v); ok {
		return s, true
	}
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		s, ok := scalarText(m[k])
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		parts = append(parts, k+": "+strings.TrimSpace(s))
	}
	return strings.Join(parts, ", "), true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
