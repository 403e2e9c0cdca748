// Package types provides type definitions for structured data used throughout the bulk analysis workflow.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"strings"
	"time"
)

// QualificationStatus is the categorical outcome of evaluating a domain as a guest-post opportunity.
type QualificationStatus string

// QualificationStatus values
const (
	StatusPending         QualificationStatus = "pending"
	StatusHighQuality     QualificationStatus = "high_quality"
	StatusGoodQuality     QualificationStatus = "good_quality"
	StatusMarginalQuality QualificationStatus = "marginal_quality"
	StatusDisqualified    QualificationStatus = "disqualified"
)

// AllStatuses lists every known qualification status in rank order.
var AllStatuses = []QualificationStatus{
	StatusHighQuality,
	StatusGoodQuality,
	StatusMarginalQuality,
	StatusDisqualified,
	StatusPending,
}

// Valid reports whether s is one of the known statuses.
func (s QualificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusHighQuality, StatusGoodQuality, StatusMarginalQuality, StatusDisqualified:
		return true
	}
	return false
}

// Rank orders statuses for sorting: high < good < marginal < disqualified < pending < unknown.
func (s QualificationStatus) Rank() int {
	switch s {
	case StatusHighQuality:
		return 0
	case StatusGoodQuality:
		return 1
	case StatusMarginalQuality:
		return 2
	case StatusDisqualified:
		return 3
	case StatusPending:
		return 4
	default:
		return 5
	}
}

// IsQualified reports whether the status is one of the three qualified tiers.
func (s QualificationStatus) IsQualified() bool {
	return s == StatusHighQuality || s == StatusGoodQuality || s == StatusMarginalQuality
}

// Label returns a human-readable label, e.g. "High Quality".
func (s QualificationStatus) Label() string {
	if s == "" {
		return "Unknown"
	}
	parts := strings.Split(string(s), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// ParseQualificationStatus parses a status string, accepting dashes and any case.
func ParseQualificationStatus(raw string) (QualificationStatus, error) {
	s := QualificationStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	if !s.Valid() {
		return "", fmt.Errorf("unknown qualification status %q", raw)
	}
	return s, nil
}

// DomainRecord is one domain's qualification workspace entry within a project.
type DomainRecord struct {
	ID                       string              `json:"id"`
	ProjectID                string              `json:"projectId,omitempty"`
	ClientID                 string              `json:"clientId,omitempty"`
	Domain                   string              `json:"domain"`
	QualificationStatus      QualificationStatus `json:"qualificationStatus"`
	WasManuallyQualified     bool                `json:"wasManuallyQualified"`
	HasDataForSeoResults     bool                `json:"hasDataForSeoResults"`
	HasWorkflow              bool                `json:"hasWorkflow"`
	KeywordCount             int                 `json:"keywordCount"`
	Notes                    string              `json:"notes,omitempty"`
	AIQualificationReasoning string              `json:"aiQualificationReasoning,omitempty"`
	AIQualifiedAt            *time.Time          `json:"aiQualifiedAt,omitempty"`
	CheckedAt                *time.Time          `json:"checkedAt,omitempty"`
	CreatedAt                time.Time           `json:"createdAt"`
	UpdatedAt                time.Time           `json:"updatedAt"`
}

// IsPending reports whether the record still awaits qualification.
func (r *DomainRecord) IsPending() bool {
	return r.QualificationStatus == StatusPending
}

// IsAIQualified reports whether the record was qualified without a human decision.
func (r *DomainRecord) IsAIQualified() bool {
	return !r.WasManuallyQualified && r.QualificationStatus != StatusPending
}

// IDs returns the ids of the given records in order.
func IDs(records []DomainRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
