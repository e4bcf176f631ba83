package remote

import "fmt"

// Reply statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is the wire record published to the transform request topic.
// Field names are part of the wire contract.
type Request struct {
	RequestID        string            `json:"requestId"`
	TransformName    string            `json:"transformName"`
	NodeRef          string            `json:"nodeRef"`
	TargetMediaType  string            `json:"targetMediaType"`
	TransformOptions map[string]string `json:"transformOptions"`
	ClientData       string            `json:"clientData"`
	ReplyQueue       string            `json:"replyQueue"`
}

// Reply is what a remote worker sends back on the reply queue. TargetRef is
// the content URL of the result in the shared store.
type Reply struct {
	RequestID    string `json:"requestId"`
	Status       string `json:"status"`
	TargetRef    string `json:"targetRef,omitempty"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}

// Error is a failed remote transform.
type Error struct {
	RequestID string
	Details   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote: request %s failed: %s", e.RequestID, e.Details)
}

// Transient lets the executor retry timeouts.
func (e *Error) Transient() bool { return e.Retryable }
