package invocation

import "time"

// Outcome is the terminal record of a request, written once it is
// COMPLETED or CANCELLED.
type Outcome struct {
	Key          string    `json:"key"`
	ClientID     string    `json:"clientId"`
	RequestID    string    `json:"requestId"`
	Attachment   any       `json:"attachment,omitempty"`
	State        State     `json:"state"`
	Value        any       `json:"value,omitempty"`
	Error        string    `json:"error,omitempty"`
	ProcessorID  string    `json:"processorId,omitempty"`
	SubmittedAt  time.Time `json:"submittedAt"`
	DispatchedAt time.Time `json:"dispatchedAt,omitempty"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// OutcomeOf builds the terminal record of p.
func OutcomeOf(p *Pending, result Result, at time.Time) Outcome {
	o := Outcome{
		Key:          p.Key,
		ClientID:     p.Owner,
		RequestID:    p.Request.ID,
		Attachment:   p.Request.Attachment,
		State:        p.State(),
		Value:        result.Value,
		ProcessorID:  p.ProcessorID(),
		SubmittedAt:  p.SubmittedAt,
		DispatchedAt: p.DispatchedAt(),
		FinishedAt:   at,
	}
	if result.Err != nil {
		o.Error = result.Err.Error()
	}
	return o
}
