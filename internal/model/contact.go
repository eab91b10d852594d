package model

import "time"

// Stage represents a contact's position in the outreach sequence.
// Transitions are owned by the workflow package; nothing else mutates a
// contact's stage directly.
type Stage string

const (
	StageNew          Stage = "new"
	StageConnectSent  Stage = "connect_sent"
	StageConnected    Stage = "connected"
	StageLiked        Stage = "liked"
	StageCommented    Stage = "commented"
	StageMessaged     Stage = "messaged"
	StageReplied      Stage = "replied"
	StageQualified    Stage = "qualified"
	StageDisqualified Stage = "disqualified"
)

// Terminal reports whether no further automated action is scheduled for a
// contact at this stage.
func (s Stage) Terminal() bool {
	return s == StageQualified || s == StageDisqualified
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageNew, StageConnectSent, StageConnected, StageLiked,
		StageCommented, StageMessaged, StageReplied, StageQualified,
		StageDisqualified:
		return true
	}
	return false
}

// Contact is a stored outreach target, keyed by its Fingerprint.
type Contact struct {
	Fingerprint string `json:"fingerprint"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	Location    string `json:"location,omitempty"`
	ProfileURL  string `json:"profile_url,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Seniority   string `json:"seniority,omitempty"`
	Industry    string `json:"industry,omitempty"`

	RelevanceScore int      `json:"relevance_score"`
	Source         string   `json:"source,omitempty"`       // "apollo", "manual"
	SearchQuery    string   `json:"search_query,omitempty"` // query text that discovered this contact
	Tags           []string `json:"tags,omitempty"`

	Stage        Stage      `json:"stage"`
	LastAction   string     `json:"last_action,omitempty"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`
	NextAction   string     `json:"next_action,omitempty"`
	NextActionAt *time.Time `json:"next_action_at,omitempty"` // advisory scheduling hint
	Notes        string     `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CandidateContact is a scored directory result prior to storage.
type CandidateContact struct {
	Fingerprint    string `json:"fingerprint"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Title          string `json:"title,omitempty"`
	Company        string `json:"company,omitempty"`
	Location       string `json:"location,omitempty"`
	ProfileURL     string `json:"profile_url,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Seniority      string `json:"seniority,omitempty"`
	Industry       string `json:"industry,omitempty"`
	RelevanceScore int    `json:"relevance_score"` // 0-100 match strength against the original intent
}

// ToContact converts a candidate into a storable contact at StageNew.
func (c CandidateContact) ToContact(searchQuery string, now time.Time) Contact {
	return Contact{
		Fingerprint:    c.Fingerprint,
		Name:           c.Name,
		Email:          c.Email,
		Title:          c.Title,
		Company:        c.Company,
		Location:       c.Location,
		ProfileURL:     c.ProfileURL,
		Phone:          c.Phone,
		Seniority:      c.Seniority,
		Industry:       c.Industry,
		RelevanceScore: c.RelevanceScore,
		Source:         "apollo",
		SearchQuery:    searchQuery,
		Stage:          StageNew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
