package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnosto/casewatch/errors"
)

// DefaultReason is the reason a case carries until a moderator justifies it.
const DefaultReason = "N/A"

// Case is one removed post recorded from the moderation log. Number is a
// dense index into the ledger, assigned once and never reused.
type Case struct {
	Number    int
	Title     string
	Author    string
	Permalink string
	Moderator string
	RemovedAt float64 // unix seconds, as reported by the moderation log
	Reason    string
	MessageID string // Discord log message, empty until published
}

// Store holds the case ledger, the per-user index and the checkpoint.
// It is pure data and validation; callers serialize access and handle I/O.
//
// Ledger slots are never removed or renumbered: striking a case leaves a
// nil tombstone in its slot. A username key exists in the index iff the
// user has at least one live case, and index lists keep insertion order.
type Store struct {
	cases      []*Case
	users      map[string][]int
	checkpoint float64
}

func New(checkpoint float64) *Store {
	return &Store{
		users:      make(map[string][]int),
		checkpoint: checkpoint,
	}
}

func (s *Store) Len() int { return len(s.cases) }

// Get returns the case in slot n, or nil for a tombstone. Callers are
// expected to Validate first.
func (s *Store) Get(n int) *Case {
	if n < 0 || n >= len(s.cases) {
		return nil
	}
	return s.cases[n]
}

func (s *Store) Checkpoint() float64 { return s.checkpoint }

// AdvanceCheckpoint moves the watermark forward. It never moves backwards;
// the return value reports whether anything changed.
func (s *Store) AdvanceCheckpoint(ts float64) bool {
	if ts <= s.checkpoint {
		return false
	}
	s.checkpoint = ts
	return true
}

// Validate parses raw as a case number and checks that the slot holds a
// live case.
func (s *Store) Validate(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidFormat(raw)
	}
	if n < 0 || n >= len(s.cases) || s.cases[n] == nil {
		return 0, errors.NewNotFound(fmt.Sprintf("Case #%d does not exist.", n))
	}
	return n, nil
}

// LookupUser normalizes raw (leading slashes and a u/ prefix are stripped)
// and matches it case-insensitively against the known index keys. The
// returned name is the key's original casing.
func (s *Store) LookupUser(raw string) (string, error) {
	name := strings.Trim(raw, "/")
	if strings.HasPrefix(strings.ToLower(name), "u/") {
		name = name[2:]
	}
	for known := range s.users {
		if strings.EqualFold(known, name) {
			return known, nil
		}
	}
	return "", errors.NewNotFound(fmt.Sprintf("There are no cases associated with /u/%s.", name))
}

// Append allocates the next case number, stores the case and records it in
// the author's index list. Ledger and index are updated together.
func (s *Store) Append(c Case) int {
	n := len(s.cases)
	c.Number = n
	if c.Reason == "" {
		c.Reason = DefaultReason
	}
	stored := c
	s.cases = append(s.cases, &stored)
	s.users[c.Author] = append(s.users[c.Author], n)
	return n
}

// SetMessageID records the published notification handle for case n.
func (s *Store) SetMessageID(n int, id string) {
	if c := s.Get(n); c != nil {
		c.MessageID = id
	}
}

// Strike tombstones case n and drops it from its author's index list,
// deleting the key once the list is empty. The caller validates n and is
// responsible for retracting the external notification first.
func (s *Store) Strike(n int) {
	c := s.cases[n]
	if c == nil {
		return
	}
	list := s.users[c.Author]
	for i, m := range list {
		if m == n {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.users, c.Author)
	} else {
		s.users[c.Author] = list
	}
	s.cases[n] = nil
}

// Justify overwrites the reason of live case n.
func (s *Store) Justify(n int, reason string) {
	if c := s.cases[n]; c != nil {
		c.Reason = reason
	}
}

// Clear strikes every case belonging to user, oldest first.
func (s *Store) Clear(user string) {
	for len(s.users[user]) > 0 {
		s.Strike(s.users[user][0])
	}
}

// UserCases returns a copy of the user's case numbers in insertion order.
func (s *Store) UserCases(user string) []int {
	list := s.users[user]
	out := make([]int, len(list))
	copy(out, list)
	return out
}

// UserCount returns the user's live case count.
func (s *Store) UserCount(user string) int {
	return len(s.users[user])
}

type ModeratorScore struct {
	Moderator string
	Count     int
}

// ModeratorScores counts live cases per moderator, sorted by count
// descending. Ties keep the order each moderator first appears in the
// ledger.
func (s *Store) ModeratorScores() []ModeratorScore {
	counts := make(map[string]int)
	var order []string
	for _, c := range s.cases {
		if c == nil {
			continue
		}
		if _, seen := counts[c.Moderator]; !seen {
			order = append(order, c.Moderator)
		}
		counts[c.Moderator]++
	}

	scores := make([]ModeratorScore, 0, len(order))
	for _, mod := range order {
		scores = append(scores, ModeratorScore{Moderator: mod, Count: counts[mod]})
	}
	// Stable sort keeps first-encountered order among equal counts.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Count > scores[j].Count
	})
	return scores
}

type UserCount struct {
	Username string
	Count    int
}

// Users lists every indexed user with their live case count, sorted by
// username.
func (s *Store) Users() []UserCount {
	out := make([]UserCount, 0, len(s.users))
	for name, list := range s.users {
		out = append(out, UserCount{Username: name, Count: len(list)})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out
}
