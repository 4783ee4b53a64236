// Package coupon tracks which promotional codes are toggled on for a checkout page.
// State is in-memory only and scoped to one shopper session; it is never persisted.
package coupon

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Definition declares a known code and its capabilities.
type Definition struct {
	Code  string `json:"code"`
	Label string `json:"label,omitempty"`

	// Locked codes cannot be toggled by the shopper.
	Locked bool `json:"locked,omitempty"`

	// AppliedByDefault codes start in the applied set. Combined with Locked,
	// the code is permanently applied.
	AppliedByDefault bool `json:"applied_by_default,omitempty"`
}

// Defaults is the built-in code vocabulary.
var Defaults = []Definition{
	{Code: "PRINCESS", Label: "Princess treatment 👑"},
	{Code: "DaWifey", Label: "Da Wifey special 💍"},
}

// Vocabulary is a closed set of known codes.
type Vocabulary struct {
	defs  []Definition
	index map[string]int
}

// NewVocabulary builds a vocabulary. Later duplicates of a code are ignored.
func NewVocabulary(defs []Definition) *Vocabulary {
	v := &Vocabulary{index: make(map[string]int, len(defs))}
	for _, d := range defs {
		if d.Code == "" {
			continue
		}
		if _, dup := v.index[d.Code]; dup {
			continue
		}
		v.index[d.Code] = len(v.defs)
		v.defs = append(v.defs, d)
	}
	return v
}

// Definitions returns the known codes in declaration order.
func (v *Vocabulary) Definitions() []Definition {
	return append([]Definition(nil), v.defs...)
}

// Lookup finds a code's definition. Codes are case-sensitive.
func (v *Vocabulary) Lookup(code string) (Definition, bool) {
	i, ok := v.index[code]
	if !ok {
		return Definition{}, false
	}
	return v.defs[i], true
}

// State is the applied set for one checkout page.
type State struct {
	vocab *Vocabulary

	mu      sync.Mutex
	applied []string // insertion order
}

// NewState creates a state with AppliedByDefault codes already applied.
func NewState(vocab *Vocabulary) *State {
	s := &State{vocab: vocab}
	for _, d := range vocab.defs {
		if d.AppliedByDefault {
			s.applied = append(s.applied, d.Code)
		}
	}
	return s
}

// Toggle flips a code's membership and reports whether anything changed.
// Unknown and locked codes are ignored.
func (s *State) Toggle(code string) bool {
	d, ok := s.vocab.Lookup(code)
	if !ok || d.Locked {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.applied {
		if c == code {
			s.applied = append(s.applied[:i], s.applied[i+1:]...)
			return true
		}
	}
	s.applied = append(s.applied, code)
	return true
}

// AppliedList returns applied codes in the order they were applied.
func (s *State) AppliedList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.applied...)
}

// IsApplied reports whether code is currently applied.
func (s *State) IsApplied(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.applied {
		if c == code {
			return true
		}
	}
	return false
}

// PaymentLocked reports whether payment selection must render disabled.
// Any applied coupon makes the order free, so the payment choice no longer applies.
func (s *State) PaymentLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied) > 0
}

// StatusText is the one-line coupon status shown under the coupon toggles.
func (s *State) StatusText() string {
	applied := s.AppliedList()
	if len(applied) == 0 {
		return "No coupon applied"
	}
	return "Applied: " + strings.Join(applied, " · ")
}

// DefaultMaxSessions bounds the registry; the least recently used session is evicted.
const DefaultMaxSessions = 10000

// Registry keeps one State per shopper session in memory.
type Registry struct {
	vocab  *Vocabulary
	states *lru.Cache[string, *State]
}

// NewRegistry creates a registry. maxEntries <= 0 uses DefaultMaxSessions.
func NewRegistry(vocab *Vocabulary, maxEntries int) *Registry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxSessions
	}
	// lru.New only fails for a non-positive size.
	states, _ := lru.New[string, *State](maxEntries)
	return &Registry{vocab: vocab, states: states}
}

// Vocabulary returns the registry's code vocabulary.
func (r *Registry) Vocabulary() *Vocabulary {
	return r.vocab
}

// For returns the session's state, creating a fresh one on first use.
func (r *Registry) For(sessionID string) *State {
	if s, ok := r.states.Get(sessionID); ok {
		return s
	}
	s := NewState(r.vocab)
	if prev, ok, _ := r.states.PeekOrAdd(sessionID, s); ok {
		return prev
	}
	return s
}

// Reset drops the session's state, e.g. once its checkout has completed.
func (r *Registry) Reset(sessionID string) {
	r.states.Remove(sessionID)
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	return r.states.Len()
}
