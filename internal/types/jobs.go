package types

// JobKind identifies which batch endpoint a BulkJob runs against.
type JobKind string

// JobKind values
const (
	JobKindAnalysis      JobKind = "analysis"
	JobKindQualification JobKind = "qualification"
)

// JobStatus is the server-reported state of a BulkJob.
type JobStatus string

// JobStatus values
const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further progress updates are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BulkJob is a server-tracked asynchronous batch run over many domains.
type BulkJob struct {
	ID                    string    `json:"id"`
	Kind                  JobKind   `json:"kind,omitempty"`
	Status                JobStatus `json:"status"`
	ProcessedDomains      int       `json:"processedDomains"`
	TotalDomains          int       `json:"totalDomains"`
	TotalKeywordsAnalyzed int       `json:"totalKeywordsAnalyzed"`
	TotalRankingsFound    int       `json:"totalRankingsFound"`
	Error                 string    `json:"error,omitempty"`
}

// BatchItem is the per-domain row returned alongside a job status.
type BatchItem struct {
	DomainID      string `json:"domainId"`
	Domain        string `json:"domain,omitempty"`
	Status        string `json:"status"`
	KeywordsFound int    `json:"keywordsFound,omitempty"`
	Error         string `json:"error,omitempty"`
}

// JobStatusResponse is the body of a poll request.
type JobStatusResponse struct {
	Job   BulkJob     `json:"job"`
	Items []BatchItem `json:"items"`
}

// JobSubmission is the body returned when a batch job is accepted.
type JobSubmission struct {
	JobID        string `json:"jobId"`
	TotalDomains int    `json:"totalDomains"`
}

// QualificationResult is the outcome for one domain of a qualification run.
type QualificationResult struct {
	DomainID  string              `json:"domainId"`
	Domain    string              `json:"domain"`
	Status    QualificationStatus `json:"qualificationStatus"`
	Reasoning string              `json:"reasoning,omitempty"`
}

// QualificationSummary counts qualification outcomes by tier.
type QualificationSummary struct {
	Total           int `json:"total"`
	HighQuality     int `json:"highQuality"`
	GoodQuality     int `json:"goodQuality"`
	MarginalQuality int `json:"marginalQuality"`
	Disqualified    int `json:"disqualified"`
}

// QualificationSubmitResponse accepts both the job form ({jobId, totalDomains})
// and the synchronous form ({results, summary}) of the master-qualify endpoint.
type QualificationSubmitResponse struct {
	JobID        string                `json:"jobId,omitempty"`
	TotalDomains int                   `json:"totalDomains,omitempty"`
	Results      []QualificationResult `json:"results,omitempty"`
	Summary      *QualificationSummary `json:"summary,omitempty"`
}

// Synchronous reports whether the server answered with final results instead of a job id.
func (r *QualificationSubmitResponse) Synchronous() bool {
	return r.JobID == "" && (r.Summary != nil || len(r.Results) > 0)
}

// SmartFilters lists project-wide domain ids pending each analysis type.
type SmartFilters struct {
	AllPendingDataForSeo []string `json:"allPendingDataForSeo"`
	AllPendingAI         []string `json:"allPendingAI"`
	AllPendingBoth       []string `json:"allPendingBoth"`
}

// SmartFiltersResponse is the body of the smart filter query.
type SmartFiltersResponse struct {
	Filters SmartFilters `json:"filters"`
}
