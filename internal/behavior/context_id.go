package behavior

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidContextID = errors.New("behavior: invalid context id")

// ContextID identifies one window context for its whole lifetime.
// The zero value means "no context".
type ContextID string

// NewContextID returns a fresh random context identity.
func NewContextID() ContextID {
	return ContextID(uuid.NewString())
}

// ParseContextID validates s as a context identity received from a peer.
func ParseContextID(s string) (ContextID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidContextID)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidContextID, err)
	}
	return ContextID(u.String()), nil
}

func (id ContextID) IsZero() bool {
	return id == ""
}

func (id ContextID) String() string {
	return string(id)
}

// Short returns the first uuid group, for log lines.
func (id ContextID) Short() string {
	s := string(id)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}
