package controllers

import (
	"time"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/scheduler"
)

type errorResponse struct {
	Error string `json:"error"`
}

// submitReq is the body of POST /v1/clients/{client}/invocations.
type submitReq struct {
	ID           string `json:"id"`
	Attachment   any    `json:"attachment,omitempty"`
	Requirements string `json:"requirements,omitempty"` // CEL over processor attributes
	Invocation   any    `json:"invocation,omitempty"`
	Sync         bool   `json:"sync,omitempty"`
	TimeoutMs    int64  `json:"timeout_ms,omitempty"`
}

type submitResp struct {
	Key       string `json:"key"`
	RequestID string `json:"requestId"`
}

type responseDTO struct {
	ClientID    string    `json:"clientId"`
	RequestID   string    `json:"requestId"`
	Attachment  any       `json:"attachment,omitempty"`
	Value       any       `json:"value,omitempty"`
	Error       string    `json:"error,omitempty"`
	ProcessorID string    `json:"processorId,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

func toResponseDTO(r invocation.Response) responseDTO {
	d := responseDTO{
		ClientID:    r.ClientID,
		RequestID:   r.RequestID,
		Attachment:  r.Attachment,
		Value:       r.Result.Value,
		ProcessorID: r.ProcessorID,
		CompletedAt: r.CompletedAt,
	}
	if r.Result.Err != nil {
		d.Error = r.Result.Err.Error()
	}
	return d
}

type refDTO struct {
	ClientID   string `json:"clientId"`
	RequestID  string `json:"requestId"`
	Attachment any    `json:"attachment,omitempty"`
}

func toRefDTOs(refs []invocation.Ref) []refDTO {
	out := make([]refDTO, 0, len(refs))
	for _, r := range refs {
		out = append(out, refDTO{ClientID: r.ClientID, RequestID: r.RequestID, Attachment: r.Attachment})
	}
	return out
}

type listResp struct {
	Requests []refDTO `json:"requests"`
}

type countResp struct {
	Count int `json:"count"`
}

type cancelResp struct {
	Cancelled int `json:"cancelled"`
}

type clientReq struct {
	Priority *int `json:"priority"`
}

type clientResp struct {
	Name              string `json:"name"`
	Priority          *int   `json:"priority,omitempty"`
	EffectivePriority int    `json:"effectivePriority"`
	CreatedAtMs       int64  `json:"createdAtMs,omitempty"`
	UpdatedAtMs       int64  `json:"updatedAtMs,omitempty"`
}

// pollReq is the body of POST /v1/processors/{id}/poll.
type pollReq struct {
	Attributes map[string]any `json:"attributes,omitempty"`
	WaitMs     int64          `json:"wait_ms,omitempty"`
}

type assignmentDTO struct {
	Token      string `json:"token"`
	Key        string `json:"key"`
	ClientID   string `json:"clientId"`
	RequestID  string `json:"requestId"`
	Attachment any    `json:"attachment,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

func toAssignmentDTO(a *scheduler.Assignment) assignmentDTO {
	return assignmentDTO{
		Token:      a.Token,
		Key:        a.Key,
		ClientID:   a.ClientID,
		RequestID:  a.RequestID,
		Attachment: a.Attachment,
		Payload:    a.Payload,
	}
}

// completeReq is the body of POST /v1/processors/{id}/complete.
type completeReq struct {
	Token string `json:"token"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}
