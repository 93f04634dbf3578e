// Package descriptor defines the PeerDescriptor and SelfDescriptor values
// exchanged by the shuffle protocol and held in the view.
package descriptor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxIDLength is the reference wire protocol's limit on descriptor ids.
const MaxIDLength = 49

var (
	// ErrEmptyID is returned when a descriptor is built with no id.
	ErrEmptyID = errors.New("descriptor: id must not be empty")
	// ErrIDTooLong is returned when an id exceeds MaxIDLength bytes.
	ErrIDTooLong = errors.New("descriptor: id exceeds maximum length")
	// ErrIDContainsColon is returned when an id or address would break the
	// colon-delimited wire format.
	ErrIDContainsColon = errors.New("descriptor: id or address must not contain ':'")
	// ErrInvalidPort is returned for a port outside 1-65535.
	ErrInvalidPort = errors.New("descriptor: port must be between 1 and 65535")
)

// Peer identifies one node in the overlay: id, address, port and age.
//
// Two Peer values are equal iff their IDs are equal; Equal implements that
// rule explicitly rather than relying on struct comparison so callers never
// need to remember it only compares ID.
type Peer struct {
	ID        string
	Address   string
	Port      int
	Timestamp time.Time
}

// Validate checks the wire-format constraints from the spec: non-empty id,
// bounded length, no colons in id or address, and a valid port.
func (p Peer) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	if len(p.ID) > MaxIDLength {
		return ErrIDTooLong
	}
	if strings.Contains(p.ID, ":") || strings.Contains(p.Address, ":") {
		return ErrIDContainsColon
	}
	if p.Port < 1 || p.Port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// Equal reports whether two descriptors identify the same peer.
func (p Peer) Equal(other Peer) bool {
	return p.ID == other.ID
}

// Age returns the duration elapsed since the descriptor's timestamp, as of
// now. The shuffle engine uses this for "oldest" comparisons.
func (p Peer) Age(now time.Time) time.Duration {
	return now.Sub(p.Timestamp)
}

// String renders a short human-readable form used by the console VIEW
// command and by log fields.
func (p Peer) String() string {
	return fmt.Sprintf("%s (%s:%d)", p.ID, p.Address, p.Port)
}

// Self is the node's own immutable identity. Its Fresh method regenerates a
// Peer value with the current timestamp for every outbound message, per
// spec.md's rule that a SelfDescriptor's age field is always freshly
// generated on each send.
type Self struct {
	ID      string
	Address string
	Port    int
}

// Fresh returns a Peer snapshot of self with timestamp set to now.
func (s Self) Fresh(now time.Time) Peer {
	return Peer{ID: s.ID, Address: s.Address, Port: s.Port, Timestamp: now}
}

// Validate applies the same wire-format constraints to self's identity.
func (s Self) Validate() error {
	return Peer{ID: s.ID, Address: s.Address, Port: s.Port, Timestamp: time.Now()}.Validate()
}
