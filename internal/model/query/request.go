package query

// Request is a single unit of work submitted against the agent. Immutable
// once created; it lives only for the duration of one dispatch.
type Request struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	SessionID string `json:"sessionId"`
}

// Ack is the immediate response to a query submission. The answer itself
// arrives later on the event stream.
type Ack struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message,omitempty"`
}
