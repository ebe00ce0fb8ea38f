package session

import "github.com/google/uuid"

// Resolve returns the requested session id when it is a syntactically valid
// UUID, otherwise mints a fresh one. Both the REST and websocket entry
// points resolve ids through here so session semantics stay uniform.
func Resolve(requested string) string {
	if requested != "" {
		if _, err := uuid.Parse(requested); err == nil {
			return requested
		}
	}
	return uuid.NewString()
}
