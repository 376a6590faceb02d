package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxJobDescriptionLength bounds the job description text accepted from callers.
const MaxJobDescriptionLength = 20000

// SubmitGenerationRequest is the request body for starting or resuming a generation.
type SubmitGenerationRequest struct {
	JobDescription string `json:"jobDescription" validate:"required,min=20,max=20000"`
}

// Normalize trims surrounding whitespace so resubmissions of the same text resume the same generation.
func (r *SubmitGenerationRequest) Normalize() {
	r.JobDescription = strings.TrimSpace(r.JobDescription)
}

// Validate validates the SubmitGenerationRequest using the validator.
func (r *SubmitGenerationRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// SubmitGenerationResponse is returned once a generation completes.
type SubmitGenerationResponse struct {
	Message      string    `json:"message"`
	GenerationID uuid.UUID `json:"generationId"`
	ResumeID     uuid.UUID `json:"resumeId"`
}

// GenerationView is the polling view of a generation.
type GenerationView struct {
	ID               uuid.UUID  `json:"id"`
	Status           string     `json:"status"`
	JobTitleTargeted string     `json:"jobTitleTargeted,omitempty"`
	CompanyTargeted  string     `json:"companyTargeted,omitempty"`
	FailureReason    string     `json:"failureReason,omitempty"`
	ResumeID         *uuid.UUID `json:"resumeId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// AgentUsageView summarizes token and latency accounting for one agent.
type AgentUsageView struct {
	AgentName        string  `json:"agentName"`
	Executions       int     `json:"executions"`
	TotalTokens      int64   `json:"totalTokens"`
	AvgExecutionTime float64 `json:"avgExecutionTimeMs"`
}

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListResumesRequest is the paging query of the résumé list.
type ListResumesRequest struct {
	Limit  int `json:"limit" validate:"min=1,max=100"`
	Offset int `json:"offset" validate:"min=0"`
}

// Validate validates the ListResumesRequest using the validator.
func (r *ListResumesRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ResumeView is a generated résumé with its content.
type ResumeView struct {
	ID               uuid.UUID       `json:"id"`
	GenerationID     uuid.UUID       `json:"generationId"`
	JobTitleTargeted string          `json:"jobTitleTargeted,omitempty"`
	CompanyTargeted  string          `json:"companyTargeted,omitempty"`
	Content          json.RawMessage `json:"content"`
	JDAnalysis       json.RawMessage `json:"jdAnalysis,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// ResumeSummary is the list entry of a generated résumé.
type ResumeSummary struct {
	ID               uuid.UUID `json:"id"`
	GenerationID     uuid.UUID `json:"generationId"`
	JobTitleTargeted string    `json:"jobTitleTargeted,omitempty"`
	CompanyTargeted  string    `json:"companyTargeted,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ResumeListResponse is one page of the caller's résumés.
type ResumeListResponse struct {
	Items  []ResumeSummary `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
