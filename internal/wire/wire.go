// Package wire implements the colon-delimited UDP datagram codec that
// connects peers (spec.md §6): CYCLON_PUSH, CYCLON_REPLY, and plain
// application gossip payloads. The format is intentionally unescaped text,
// matching the reference C implementation byte for byte.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcastellin/cyclonode/internal/descriptor"
)

const (
	pushPrefix  = "CYCLON_PUSH:"
	replyPrefix = "CYCLON_REPLY:"

	// fieldsPerDescriptor is id, address, port, timestamp.
	fieldsPerDescriptor = 4
)

// Kind classifies a decoded datagram.
type Kind int

const (
	// KindGossip is any payload that isn't a Cyclon protocol message.
	KindGossip Kind = iota
	KindPush
	KindReply
)

var (
	// ErrTruncated is returned for a frame that does not start with the
	// expected CYCLON_PUSH:/CYCLON_REPLY: prefix. A frame with fewer groups
	// than its count claims is not an error; see decode.
	ErrTruncated = errors.New("wire: truncated or malformed frame")
	// ErrBadCount is returned when the declared descriptor count isn't a
	// valid non-negative integer.
	ErrBadCount = errors.New("wire: invalid descriptor count")
)

// Classify inspects a raw datagram and reports which kind of message it is.
func Classify(raw []byte) Kind {
	s := string(raw)
	switch {
	case strings.HasPrefix(s, pushPrefix):
		return KindPush
	case strings.HasPrefix(s, replyPrefix):
		return KindReply
	default:
		return KindGossip
	}
}

// EncodePush serializes a CYCLON_PUSH frame carrying descriptors in order,
// slot 0 conventionally being the sender's own fresh descriptor.
func EncodePush(descriptors []descriptor.Peer) []byte {
	return encode(pushPrefix, descriptors)
}

// EncodeReply serializes a CYCLON_REPLY frame.
func EncodeReply(descriptors []descriptor.Peer) []byte {
	return encode(replyPrefix, descriptors)
}

func encode(prefix string, descriptors []descriptor.Peer) []byte {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(strconv.Itoa(len(descriptors)))
	b.WriteString(":")
	for _, d := range descriptors {
		b.WriteString(d.ID)
		b.WriteString(":")
		b.WriteString(d.Address)
		b.WriteString(":")
		b.WriteString(strconv.Itoa(d.Port))
		b.WriteString(":")
		b.WriteString(strconv.FormatInt(d.Timestamp.Unix(), 10))
		b.WriteString(":")
	}
	return []byte(b.String())
}

// DecodePush parses a CYCLON_PUSH frame's descriptor groups. Timestamps on
// the wire are ignored per spec.md §6; the returned descriptors carry a
// zero time.Time and the caller (the shuffle engine) stamps them with its
// own "now" at receive time for freshness.
func DecodePush(raw []byte) ([]descriptor.Peer, error) {
	return decode(raw, pushPrefix)
}

// DecodeReply parses a CYCLON_REPLY frame's descriptor groups.
func DecodeReply(raw []byte) ([]descriptor.Peer, error) {
	return decode(raw, replyPrefix)
}

// decode tolerates a frame whose declared count exceeds the number of
// descriptor groups actually present: it returns whatever valid groups it
// could parse and no error, per spec.md §7 ("n larger than the number of
// parsable groups ... dropped silently" is a caller decision — decode
// itself just stops at the first incomplete group and returns what's
// parsed so far, matching the C reference's strtok loop which simply runs
// out of tokens).
func decode(raw []byte, prefix string) ([]descriptor.Peer, error) {
	s := string(raw)
	if !strings.HasPrefix(s, prefix) {
		return nil, ErrTruncated
	}
	rest := s[len(prefix):]

	fields := strings.Split(rest, ":")
	// Split on a string ending in ":" leaves a trailing empty field; drop
	// it so field indices line up with fieldsPerDescriptor groups.
	if len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 {
		return nil, ErrBadCount
	}

	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 0 {
		return nil, ErrBadCount
	}
	fields = fields[1:]

	maxGroups := len(fields) / fieldsPerDescriptor
	if maxGroups > count {
		maxGroups = count
	}

	out := make([]descriptor.Peer, 0, maxGroups)
	for i := 0; i < maxGroups; i++ {
		g := fields[i*fieldsPerDescriptor : (i+1)*fieldsPerDescriptor]
		id, addr, portStr := g[0], g[1], g[2]

		port, err := strconv.Atoi(portStr)
		if err != nil {
			// Stop at the first malformed group rather than skip it, same
			// as the C reference's strtok chain breaking mid-parse.
			break
		}
		if id == "" || port <= 0 {
			continue
		}
		out = append(out, descriptor.Peer{ID: id, Address: addr, Port: port})
	}
	return out, nil
}

// FormatGossipPayload builds the sender-prefixed payload used for
// self-echo suppression (spec.md §4.3).
func FormatGossipPayload(selfID, message string) string {
	return fmt.Sprintf("%s: %s", selfID, message)
}

// MaxBufferSize is the reference MAX_BUFFER_SIZE: oversize datagrams are
// truncated by the socket layer. decode does not reject a truncated frame;
// it keeps only the complete descriptor groups that survived.
const MaxBufferSize = 1024
