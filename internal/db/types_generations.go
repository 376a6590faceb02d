package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus is the position of a generation in the pipeline.
type GenerationStatus string

// GenerationStatus constants, in pipeline order.
const (
	GenerationPending    GenerationStatus = "PENDING"
	GenerationAnalyzedJD GenerationStatus = "JD_ANALYZED"
	GenerationMatched    GenerationStatus = "MATCHED"
	GenerationRewritten  GenerationStatus = "REWRITTEN"
	GenerationOptimized  GenerationStatus = "OPTIMIZED"
	GenerationCompleted  GenerationStatus = "COMPLETED"
	GenerationFailed     GenerationStatus = "FAILED"
)

var statusOrdinals = map[GenerationStatus]int{
	GenerationPending:    0,
	GenerationAnalyzedJD: 1,
	GenerationMatched:    2,
	GenerationRewritten:  3,
	GenerationOptimized:  4,
	GenerationCompleted:  5,
	GenerationFailed:     6,
}

// Ordinal returns the status position, or -1 for an unknown status.
func (s GenerationStatus) Ordinal() int {
	if o, ok := statusOrdinals[s]; ok {
		return o
	}
	return -1
}

// AtLeast reports whether s is at or past other in pipeline order.
func (s GenerationStatus) AtLeast(other GenerationStatus) bool {
	return s.Ordinal() >= other.Ordinal()
}

// Terminal reports whether no stage may mutate a generation in this status.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// Valid reports whether s is a known status.
func (s GenerationStatus) Valid() bool {
	return s.Ordinal() >= 0
}

// Generation is the resumable unit of work for one job description.
type Generation struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	MasterResumeID   uuid.UUID        `json:"master_resume_id"`
	JobDescription   string           `json:"job_description"`
	Status           GenerationStatus `json:"status"`
	JDAnalysis       json.RawMessage  `json:"jd_analysis,omitempty"`
	MatchResult      json.RawMessage  `json:"match_result,omitempty"`
	RewrittenResume  json.RawMessage  `json:"rewritten_resume,omitempty"`
	OptimizedResume  json.RawMessage  `json:"optimized_resume,omitempty"`
	JobTitleTargeted *string          `json:"job_title_targeted,omitempty"`
	CompanyTargeted  *string          `json:"company_targeted,omitempty"`
	FailureReason    *string          `json:"failure_reason,omitempty"`
	ResumeID         *uuid.UUID       `json:"resume_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Payload returns the stored output of the stage that advances a generation to status.
// It returns nil for statuses that carry no payload.
func (g *Generation) Payload(status GenerationStatus) json.RawMessage {
	switch status {
	case GenerationAnalyzedJD:
		return g.JDAnalysis
	case GenerationMatched:
		return g.MatchResult
	case GenerationRewritten:
		return g.RewrittenResume
	case GenerationOptimized:
		return g.OptimizedResume
	default:
		return nil
	}
}

// SetPayload stores the output of the stage that advances a generation to status.
func (g *Generation) SetPayload(status GenerationStatus, raw json.RawMessage) {
	switch status {
	case GenerationAnalyzedJD:
		g.JDAnalysis = raw
	case GenerationMatched:
		g.MatchResult = raw
	case GenerationRewritten:
		g.RewrittenResume = raw
	case GenerationOptimized:
		g.OptimizedResume = raw
	}
}

// Clone returns a deep copy of g.
func (g *Generation) Clone() *Generation {
	c := *g
	c.JDAnalysis = cloneRaw(g.JDAnalysis)
	c.MatchResult = cloneRaw(g.MatchResult)
	c.RewrittenResume = cloneRaw(g.RewrittenResume)
	c.OptimizedResume = cloneRaw(g.OptimizedResume)
	c.JobTitleTargeted = cloneString(g.JobTitleTargeted)
	c.CompanyTargeted = cloneString(g.CompanyTargeted)
	c.FailureReason = cloneString(g.FailureReason)
	if g.ResumeID != nil {
		id := *g.ResumeID
		c.ResumeID = &id
	}
	return &c
}

// Resume is the persisted output of a completed generation.
type Resume struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	GenerationID     uuid.UUID       `json:"generation_id"`
	JobTitleTargeted *string         `json:"job_title_targeted,omitempty"`
	CompanyTargeted  *string         `json:"company_targeted,omitempty"`
	Content          json.RawMessage `json:"content"`
	JDAnalysis       json.RawMessage `json:"jd_analysis,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
