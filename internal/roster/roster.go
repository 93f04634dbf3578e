// Package roster loads the bootstrap roster file and resolves the node's
// own entry within it (spec.md §4.5, §6). The roster is consulted only at
// startup; the live view is never reseeded from it afterward (spec.md §3,
// invariant I4).
package roster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/mcastellin/cyclonode/internal/descriptor"
)

// Entry is one whitespace-separated roster record: "id address port".
type Entry struct {
	ID      string
	Address string
	Port    int
}

// Load reads and parses the roster file at path. Unlike the C reference's
// fscanf loop, which silently stops at the first malformed line, Load
// collects every malformed line into a single combined error so the
// operator sees all of them at once (SPEC_FULL §C).
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: opening %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	var errs error

	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	for {
		idTok, ok := nextToken(scanner)
		if !ok {
			break
		}
		addrTok, ok := nextToken(scanner)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("roster: dangling id %q with no address/port", idTok))
			break
		}
		portTok, ok := nextToken(scanner)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("roster: entry %q %q missing port", idTok, addrTok))
			break
		}

		port, err := strconv.Atoi(portTok)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("roster: entry %q has non-numeric port %q", idTok, portTok))
			continue
		}

		e := Entry{ID: idTok, Address: addrTok, Port: port}
		if verr := (descriptor.Peer{ID: e.ID, Address: e.Address, Port: e.Port}).Validate(); verr != nil {
			errs = multierr.Append(errs, fmt.Errorf("roster: entry %q invalid: %w", e.ID, verr))
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("roster: scanning: %w", err))
	}

	if errs != nil {
		return nil, errs
	}
	if len(entries) < 2 {
		return nil, fmt.Errorf("roster: must contain at least 2 entries, found %d", len(entries))
	}
	return entries, nil
}

func nextToken(s *bufio.Scanner) (string, bool) {
	if !s.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.Text()), true
}

// ResolveSelf finds the roster entry whose port matches selfPort, per the
// reference implementation's port-based self-identification.
func ResolveSelf(entries []Entry, selfPort int) (Entry, error) {
	for _, e := range entries {
		if e.Port == selfPort {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("roster: no entry found for self port %d", selfPort)
}
