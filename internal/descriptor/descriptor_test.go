package descriptor

import (
	"errors"
	"testing"
	"time"
)

func TestPeerValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Peer
		want error
	}{
		{"valid", Peer{ID: "node-1", Address: "10.0.0.1", Port: 9001}, nil},
		{"empty id", Peer{ID: "", Address: "10.0.0.1", Port: 9001}, ErrEmptyID},
		{"id too long", Peer{ID: string(make([]byte, MaxIDLength+1)), Address: "a", Port: 1}, ErrIDTooLong},
		{"colon in id", Peer{ID: "a:b", Address: "10.0.0.1", Port: 9001}, ErrIDContainsColon},
		{"colon in address", Peer{ID: "a", Address: "::1", Port: 9001}, ErrIDContainsColon},
		{"port zero", Peer{ID: "a", Address: "10.0.0.1", Port: 0}, ErrInvalidPort},
		{"port too large", Peer{ID: "a", Address: "10.0.0.1", Port: 70000}, ErrInvalidPort},
	}

	for _, c := range cases {
		err := c.p.Validate()
		if !errors.Is(err, c.want) {
			t.Fatalf("%s: expected error %v, got %v", c.name, c.want, err)
		}
	}
}

func TestPeerEqualByIDOnly(t *testing.T) {
	a := Peer{ID: "node-1", Address: "10.0.0.1", Port: 9001}
	b := Peer{ID: "node-1", Address: "10.0.0.2", Port: 9002}
	if !a.Equal(b) {
		t.Fatal("expected descriptors with the same id to be equal regardless of address/port")
	}

	c := Peer{ID: "node-2", Address: "10.0.0.1", Port: 9001}
	if a.Equal(c) {
		t.Fatal("expected descriptors with different ids to not be equal")
	}
}

func TestPeerAge(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Peer{ID: "a", Timestamp: base}
	age := p.Age(base.Add(5 * time.Second))
	if age != 5*time.Second {
		t.Fatalf("expected age of 5s, got %v", age)
	}
}

func TestSelfFresh(t *testing.T) {
	self := Self{ID: "self", Address: "127.0.0.1", Port: 9000}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := self.Fresh(now)

	if p.ID != self.ID || p.Address != self.Address || p.Port != self.Port {
		t.Fatal("Fresh did not copy self's identity onto the descriptor")
	}
	if !p.Timestamp.Equal(now) {
		t.Fatalf("expected fresh timestamp %v, got %v", now, p.Timestamp)
	}
}
