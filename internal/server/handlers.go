package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/notify"
	"github.com/mohammadumar-dev/resumeagent/internal/server/middleware"
	"github.com/mohammadumar-dev/resumeagent/internal/types"
)

// maxSubmitBodyBytes admits a maximum-length job description of four-byte runes plus JSON framing.
const maxSubmitBodyBytes = types.MaxJobDescriptionLength*4 + 1024

const heartbeatInterval = 15 * time.Second

// handleSubmitGeneration runs or resumes a generation and responds once it completes.
func (s *Server) handleSubmitGeneration(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)
	var req types.SubmitGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.writeError(w, validationError(err))
		return
	}

	res, err := s.generations.Submit(r.Context(), userID, req.JobDescription)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, types.SubmitGenerationResponse{
		Message:      res.Message,
		GenerationID: res.GenerationID,
		ResumeID:     res.ResumeID,
	})
}

// handleGetGeneration returns the polling view of one of the caller's generations.
func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return
	}

	g, err := s.generations.Get(r.Context(), userID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, NewGenerationView(g))
}

// handleGetResume returns one of the caller's generated résumés.
func (s *Server) handleGetResume(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return
	}

	resume, err := s.generations.GetResume(r.Context(), userID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, NewResumeView(resume))
}

// handleListResumes returns a page of the caller's generated résumés, newest first.
func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req := types.ListResumesRequest{Limit: types.DefaultPageSize}
	query := r.URL.Query()
	params := []struct {
		name string
		dst  *int
	}{{"limit", &req.Limit}, {"offset", &req.Offset}}
	for _, p := range params {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, &ErrValidation{Field: p.name, Message: "must be an integer"})
			return
		}
		*p.dst = n
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, validationError(err))
		return
	}

	resumes, total, err := s.generations.ListResumes(r.Context(), userID, req.Limit, req.Offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]types.ResumeSummary, 0, len(resumes))
	for i := range resumes {
		v := NewResumeView(&resumes[i])
		items = append(items, types.ResumeSummary{
			ID:               v.ID,
			GenerationID:     v.GenerationID,
			JobTitleTargeted: v.JobTitleTargeted,
			CompanyTargeted:  v.CompanyTargeted,
			CreatedAt:        v.CreatedAt,
		})
	}
	s.jsonResponse(w, http.StatusOK, types.ResumeListResponse{
		Items:  items,
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

// handleAgentUsage returns the caller's per-agent token and latency totals.
func (s *Server) handleAgentUsage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	usage, err := s.generations.AgentUsage(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, NewAgentUsageViews(usage))
}

// handleGenerationEvents streams the caller's agent status messages as server-sent events.
func (s *Server) handleGenerationEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if s.subscriber == nil {
		s.errorResponse(w, http.StatusNotImplemented, "Status events are not enabled")
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := r.Context()
	msgs := make(chan notify.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.subscriber.Subscribe(ctx, userID, func(m notify.Message) {
			select {
			case msgs <- m:
			case <-ctx.Done():
			}
		})
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-done:
			if err != nil {
				s.log.Warn("status subscription ended", "user_id", userID, "error", err)
				sse.WriteError("status stream unavailable")
			}
			return
		case m := <-msgs:
			if err := sse.WriteEvent("status", m); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.WriteHeartbeat(); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.log.Error("request failed", "status", status, "error", err)
	}
	s.errorResponse(w, status, ErrorMessage(err))
}

// validationError reports the first failing field of a validator error.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Field()
		if field != "" {
			field = strings.ToLower(field[:1]) + field[1:]
		}
		return &ErrValidation{Field: field, Message: "failed '" + fe.Tag() + "' constraint"}
	}
	return &ErrValidation{Field: "body", Message: err.Error()}
}

// NewGenerationView converts a generation row to its API representation.
func NewGenerationView(g *db.Generation) types.GenerationView {
	v := types.GenerationView{
		ID:        g.ID,
		Status:    string(g.Status),
		ResumeID:  g.ResumeID,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	if g.JobTitleTargeted != nil {
		v.JobTitleTargeted = *g.JobTitleTargeted
	}
	if g.CompanyTargeted != nil {
		v.CompanyTargeted = *g.CompanyTargeted
	}
	if g.FailureReason != nil {
		v.FailureReason = *g.FailureReason
	}
	return v
}

// NewResumeView converts a résumé row to its API representation.
func NewResumeView(r *db.Resume) types.ResumeView {
	v := types.ResumeView{
		ID:           r.ID,
		GenerationID: r.GenerationID,
		Content:      r.Content,
		JDAnalysis:   r.JDAnalysis,
		CreatedAt:    r.CreatedAt,
	}
	if r.JobTitleTargeted != nil {
		v.JobTitleTargeted = *r.JobTitleTargeted
	}
	if r.CompanyTargeted != nil {
		v.CompanyTargeted = *r.CompanyTargeted
	}
	return v
}

// NewAgentUsageViews converts usage aggregates to their API representation.
func NewAgentUsageViews(usage []db.AgentUsage) []types.AgentUsageView {
	views := make([]types.AgentUsageView, 0, len(usage))
	for _, u := range usage {
		views = append(views, types.AgentUsageView{
			AgentName:        u.AgentName,
			Executions:       u.Executions,
			TotalTokens:      u.TotalTokens,
			AvgExecutionTime: u.AvgExecutionTimeMs,
		})
	}
	return views
}
