package types

import (
	"bytes"
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the body of a non-2xx backend answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListDomainsResponse is the body of the project domain listing.
type ListDomainsResponse struct {
	Domains []DomainRecord `json:"domains"`
}

// UpdateDomainRequest updates the status and notes of one domain.
type UpdateDomainRequest struct {
	Status   QualificationStatus `json:"status" validate:"required,oneof=pending high_quality good_quality marginal_quality disqualified"`
	UserID   string              `json:"userId" validate:"required"`
	Notes    string              `json:"notes"`
	IsManual *bool               `json:"isManual,omitempty"`
}

// Validate validates the UpdateDomainRequest using the validator.
func (r *UpdateDomainRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// BulkAction names the intent of a bulk status update.
type BulkAction string

// BulkAction values
const (
	BulkActionQualify    BulkAction = "qualify"
	BulkActionDisqualify BulkAction = "disqualify"
	BulkActionReset      BulkAction = "reset"
)

// ActionForStatus returns the bulk action the backend expects for a target status.
func ActionForStatus(s QualificationStatus) BulkAction {
	switch {
	case s == StatusDisqualified:
		return BulkActionDisqualify
	case s == StatusPending:
		return BulkActionReset
	default:
		return BulkActionQualify
	}
}

// BulkStatusRequest sets one status on many domains.
type BulkStatusRequest struct {
	DomainIDs []string            `json:"domainIds" validate:"required,min=1,dive,required"`
	Status    QualificationStatus `json:"status" validate:"required,oneof=pending high_quality good_quality marginal_quality disqualified"`
	Action    BulkAction          `json:"action" validate:"required,oneof=qualify disqualify reset"`
}

// Validate validates the BulkStatusRequest using the validator.
func (r *BulkStatusRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// BulkUpdateResponse reports how many domains a bulk update touched.
type BulkUpdateResponse struct {
	Updated int `json:"updated"`
}

// BulkDeleteRequest deletes many domains.
type BulkDeleteRequest struct {
	DomainIDs []string `json:"domainIds" validate:"required,min=1,dive,required"`
}

// BulkDeleteResponse reports how many domains were deleted.
type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// MoveDomainsRequest moves domains into another project.
type MoveDomainsRequest struct {
	DomainIDs       []string `json:"domainIds" validate:"required,min=1,dive,required"`
	TargetProjectID string   `json:"targetProjectId" validate:"required"`
}

// Validate validates the MoveDomainsRequest using the validator.
func (r *MoveDomainsRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// MoveDomainsResponse reports how many domains were moved.
type MoveDomainsResponse struct {
	Moved int `json:"moved"`
}

// PendingSubmission is the domain-creation payload held while duplicates await a decision.
type PendingSubmission struct {
	ProjectID      string            `json:"projectId" validate:"required"`
	ClientID       string            `json:"clientId,omitempty"`
	Domains        []string          `json:"domains" validate:"required,min=1,dive,required"`
	TargetPageIDs  []string          `json:"targetPageIds,omitempty"`
	ManualKeywords []string          `json:"manualKeywords,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Validate validates the PendingSubmission using the validator.
func (r *PendingSubmission) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Clone returns a deep copy of the submission.
func (r PendingSubmission) Clone() PendingSubmission {
	out := r
	out.Domains = append([]string(nil), r.Domains...)
	out.TargetPageIDs = append([]string(nil), r.TargetPageIDs...)
	out.ManualKeywords = append([]string(nil), r.ManualKeywords...)
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// CreateDomainsRequest creates new domain records in a project.
type CreateDomainsRequest = PendingSubmission

// CreateDomainsResponse lists the created records.
type CreateDomainsResponse struct {
	Domains []DomainRecord `json:"domains"`
	Created int            `json:"created"`
}

// CheckDuplicatesRequest asks which candidates already exist.
type CheckDuplicatesRequest struct {
	Domains   []string `json:"domains" validate:"required,min=1,dive,required"`
	ProjectID string   `json:"projectId" validate:"required"`
}

// Validate validates the CheckDuplicatesRequest using the validator.
func (r *CheckDuplicatesRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// DuplicateDomain is a candidate that already exists in another project.
type DuplicateDomain struct {
	Domain              string              `json:"domain"`
	ExistingDomainID    string              `json:"existingDomainId,omitempty"`
	ExistingProjectID   string              `json:"existingProjectId,omitempty"`
	ExistingProjectName string              `json:"existingProjectName,omitempty"`
	ExistingStatus      QualificationStatus `json:"existingStatus,omitempty"`
}

// UnmarshalJSON accepts either a bare domain string or the full object.
func (d *DuplicateDomain) UnmarshalJSON(data []byte) error {
	if len(bytes.TrimSpace(data)) > 0 && bytes.TrimSpace(data)[0] == '"' {
		var domain string
		if err := json.Unmarshal(data, &domain); err != nil {
			return err
		}
		*d = DuplicateDomain{Domain: domain}
		return nil
	}
	type plain DuplicateDomain
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = DuplicateDomain(p)
	return nil
}

// CheckDuplicatesResponse partitions candidates into same-project and cross-project hits.
type CheckDuplicatesResponse struct {
	AlreadyInProject []string          `json:"alreadyInProject"`
	Duplicates       []DuplicateDomain `json:"duplicates"`
}

// DuplicateResolution is the user's decision for one duplicate domain.
type DuplicateResolution string

// DuplicateResolution values
const (
	ResolutionKeepBoth       DuplicateResolution = "keep_both"
	ResolutionMoveToNew      DuplicateResolution = "move_to_new"
	ResolutionSkip           DuplicateResolution = "skip"
	ResolutionUpdateOriginal DuplicateResolution = "update_original"
)

// Valid reports whether r is a known resolution.
func (r DuplicateResolution) Valid() bool {
	switch r {
	case ResolutionKeepBoth, ResolutionMoveToNew, ResolutionSkip, ResolutionUpdateOriginal:
		return true
	}
	return false
}

// Resolution binds a decision to a duplicate domain.
type Resolution struct {
	Domain           string              `json:"domain" validate:"required"`
	ExistingDomainID string              `json:"existingDomainId,omitempty"`
	Resolution       DuplicateResolution `json:"resolution" validate:"required,oneof=keep_both move_to_new skip update_original"`
}

// ResolveDuplicatesRequest replays a pending submission with its resolutions.
type ResolveDuplicatesRequest struct {
	PendingSubmission
	Duplicates  []DuplicateDomain `json:"duplicates,omitempty"`
	Resolutions []Resolution      `json:"resolutions" validate:"required,min=1,dive"`
}

// Validate validates the ResolveDuplicatesRequest using the validator.
func (r *ResolveDuplicatesRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ResolveDuplicatesResponse summarises what the resolve endpoint did.
type ResolveDuplicatesResponse struct {
	Created int            `json:"created"`
	Moved   int            `json:"moved"`
	Updated int            `json:"updated"`
	Skipped int            `json:"skipped"`
	Domains []DomainRecord `json:"domains,omitempty"`
}

// AnalysisBatchRequest submits a keyword-ranking analysis job.
type AnalysisBatchRequest struct {
	DomainIDs    []string `json:"domainIds" validate:"required,min=1,dive,required"`
	Keywords     []string `json:"keywords" validate:"required,min=1,dive,required"`
	LocationCode int      `json:"locationCode,omitempty"`
	LanguageCode string   `json:"languageCode,omitempty"`
}

// Validate validates the AnalysisBatchRequest using the validator.
func (r *AnalysisBatchRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// QualificationRequest submits a master qualification job.
type QualificationRequest struct {
	DomainIDs     []string `json:"domainIds" validate:"required,min=1,dive,required"`
	TargetPageIDs []string `json:"targetPageIds,omitempty"`
	LocationCode  int      `json:"locationCode" validate:"required,gt=0"`
	LanguageCode  string   `json:"languageCode" validate:"required"`
}

// Validate validates the QualificationRequest using the validator.
func (r *QualificationRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// CreateWorkflowRequest starts a guest-post workflow for a qualified domain.
type CreateWorkflowRequest struct {
	ClientID            string              `json:"clientId" validate:"required"`
	ProjectID           string              `json:"projectId" validate:"required"`
	DomainID            string              `json:"domainId" validate:"required"`
	Domain              string              `json:"domain" validate:"required"`
	QualificationStatus QualificationStatus `json:"qualificationStatus"`
}

// Validate validates the CreateWorkflowRequest using the validator.
func (r *CreateWorkflowRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// CreateWorkflowResponse identifies the created workflow.
type CreateWorkflowResponse struct {
	ID string `json:"id"`
}
