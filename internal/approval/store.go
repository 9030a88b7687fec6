// Package approval holds the shared plate decision store written by the
// approval channel and consumed by the gate state machine.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusAllowed Status = "allowed"
	StatusDenied  Status = "denied"
)

// IsTerminal reports whether s is a decision the gate acts on.
func (s Status) IsTerminal() bool {
	return s == StatusAllowed || s == StatusDenied
}

var ErrInvalidDecision = errors.New("invalid decision")

// ParseDecision accepts allowed/denied and the bot command aliases
// izinkan/tolak.
func ParseDecision(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allowed", "allow", "izinkan":
		return StatusAllowed, nil
	case "denied", "deny", "tolak":
		return StatusDenied, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// Store is the approval store shared between the gate and the approval
// channel. Keys are canonical plates. Implementations must tolerate another
// process clearing a key between reads.
type Store interface {
	// MarkPending records that plate awaits a decision.
	MarkPending(ctx context.Context, plate string) error
	// Decide stores status for plate only if a record exists. It reports
	// false when the plate is unknown, e.g. expired or never detected.
	Decide(ctx context.Context, plate string, status Status) (bool, error)
	// Consume returns the stored status and deletes the record when it is
	// terminal. An absent record yields "".
	Consume(ctx context.Context, plate string) (Status, error)
	Remove(ctx context.Context, plate string) error
	// Pending lists plates still waiting for a decision.
	Pending(ctx context.Context) ([]string, error)
}
