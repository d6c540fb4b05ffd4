// Package candidate holds the normalized candidate records that flow through
// the ranking pipeline.
//
// Raw vector store payloads are decoded exactly once, by FromPayload. Every
// later stage works on Profile and never inspects payload keys directly.
package candidate

// DuplicateGroup links records that the ingestion side identified as the
// same person.
type DuplicateGroup struct {
	GroupID             string
	IsMaster            bool
	Count               int
	AssociatedFilenames []string
	AssociatedIDs       []string
}

// Profile is a normalized candidate record. An empty string or nil slice
// means the attribute is absent.
type Profile struct {
	ID       string
	Category string

	Name        string
	Email       string
	Phone       string
	Location    string
	LinkedInURL string
	GitHubURL   string

	CurrentJobTitle         string
	Objective               string
	Skills                  []string
	ExperienceSummary       string
	QualificationsSummary   string
	Companies               []string
	Projects                []string
	Certifications          []string
	Awards                  []string
	Languages               []string
	AvailabilityStatus      string
	WorkAuthorizationStatus string

	HasPhoto         bool
	OriginalFilename string

	Duplicate DuplicateGroup
}

// Ranked is a profile with its final position in a result list.
type Ranked struct {
	// Rank is 1-based and contiguous within one result list.
	Rank int

	// Score is the re-rank score when re-ranking succeeded, otherwise the
	// raw retrieval score.
	Score float32

	// RetrievalScore is the similarity reported by the vector store.
	RetrievalScore float32

	// Reranked is false when Score is a fallback retrieval score.
	Reranked bool

	Profile Profile
}
