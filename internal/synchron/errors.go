package synchron

import "fmt"

// AuthError means the portal rejected the login, or the session expired and
// could not be re-established within the configured retry budget.
type AuthError struct {
	Attempts int
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("synchron login failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
