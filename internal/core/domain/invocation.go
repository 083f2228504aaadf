package domain

import "time"

// MethodSpec is the declarative description of a provider method.
// The tables are built once at startup and drive both invocation and tool listings.
type MethodSpec struct {
	Provider    string         `json:"provider"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Call is the input handed to a provider method.
type Call struct {
	AccessToken string
	Args        map[string]any
	// AccountID is the provider-side account id of the connection.
	AccountID  string
	Connection *Connection
	// Instance is the decrypted self-hosted instance, when the connection has one.
	Instance *ExternalInstance
}

// StringArg returns a string argument or "".
func (c Call) StringArg(key string) string {
	if c.Args == nil {
		return ""
	}
	s, _ := c.Args[key].(string)
	return s
}

// IntArg returns a numeric argument or def. JSON numbers arrive as float64.
func (c Call) IntArg(key string, def int) int {
	if c.Args == nil {
		return def
	}
	switch v := c.Args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

// InvocationStatus is the state of a scheduled invocation.
type InvocationStatus string

const (
	InvocationPending InvocationStatus = "pending"
	InvocationDone    InvocationStatus = "done"
	InvocationFailed  InvocationStatus = "failed"
)

// ScheduledInvocation is a provider method call to run later against a connection.
// Deleting the connection deletes its scheduled invocations.
type ScheduledInvocation struct {
	ID           string           `json:"id"`
	OrgID        string           `json:"org_id"`
	ConnectionID string           `json:"connection_id"`
	Method       string           `json:"method"`
	Args         map[string]any   `json:"args,omitempty"`
	RunAt        time.Time        `json:"run_at"`
	Status       InvocationStatus `json:"status"`
	Attempts     int              `json:"attempts"`
	LastError    string           `json:"last_error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
