package layout

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inputmethod/layering"
	"github.com/goliatone/go-inputmethod/pkg/activity"
	"github.com/goliatone/go-inputmethod/pkg/state"
)

// MemoryChoices is an in-process UserChoices keyed by SelectionKey.
type MemoryChoices struct {
	mu      sync.RWMutex
	choices map[SelectionKey]string
}

func NewMemoryChoices() *MemoryChoices {
	return &MemoryChoices{choices: map[SelectionKey]string{}}
}

func (m *MemoryChoices) Choice(key SelectionKey) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	descriptor, ok := m.choices[key]
	return descriptor, ok
}

// Set records descriptor for key; an empty descriptor clears it.
func (m *MemoryChoices) Set(key SelectionKey, descriptor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if descriptor == "" {
		delete(m.choices, key)
		return
	}
	m.choices[key] = descriptor
}

func (m *MemoryChoices) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.choices)
}

// ChoicesDomain is the state domain user picks are stored under.
const ChoicesDomain = "keyboard.layouts"

// Assignments is the persisted snapshot of one user's layout picks, keyed
// by SelectionKey.String().
type Assignments struct {
	Layouts map[string]string `json:"layouts,omitempty"`
}

// ChoiceStore persists user picks per user scope and emits an activity
// event for every change.
type ChoiceStore struct {
	resolver state.Resolver[Assignments]
	emitter  *activity.Emitter
	now      func() time.Time
}

// ChoiceStoreOption configures a ChoiceStore.
type ChoiceStoreOption func(*ChoiceStore)

func WithChoiceActivity(emitter *activity.Emitter) ChoiceStoreOption {
	return func(s *ChoiceStore) {
		s.emitter = emitter
	}
}

func WithChoiceClock(now func() time.Time) ChoiceStoreOption {
	return func(s *ChoiceStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewChoiceStore(store state.Store[Assignments], opts ...ChoiceStoreOption) *ChoiceStore {
	s := &ChoiceStore{resolver: state.Resolver[Assignments]{Store: store}, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load returns a snapshot of userID's picks for use with a Resolver.
func (s *ChoiceStore) Load(ctx context.Context, userID string) (*MemoryChoices, error) {
	choices := NewMemoryChoices()
	assignments, _, ok, err := s.resolver.Store.Load(ctx, choicesRef(userID))
	if err != nil {
		return nil, fmt.Errorf("layout: load choices for %q: %w", userID, err)
	}
	if !ok {
		return choices, nil
	}
	for token, descriptor := range assignments.Layouts {
		if key, ok := parseKey(userID, token); ok {
			choices.Set(key, descriptor)
		}
	}
	return choices, nil
}

// Set stores descriptor as key's explicit pick. An empty descriptor clears
// the pick.
func (s *ChoiceStore) Set(ctx context.Context, key SelectionKey, descriptor string) error {
	if key.UserID == "" || key.Device == "" {
		return fmt.Errorf("layout: selection key needs a user and a device")
	}
	at := s.now()
	_, _, err := s.resolver.Mutate(ctx, choicesRef(key.UserID), state.Meta{UpdatedAt: at.UTC()}, func(a *Assignments) error {
		if descriptor == "" {
			delete(a.Layouts, key.String())
			return nil
		}
		if a.Layouts == nil {
			a.Layouts = map[string]string{}
		}
		a.Layouts[key.String()] = descriptor
		return nil
	})
	if err != nil {
		return err
	}
	return s.emitter.Emit(ctx, activity.BuildLayoutSelectedEvent(activity.LayoutInput{
		ActorID:    key.UserID,
		UserID:     key.UserID,
		Device:     key.Device,
		MethodID:   key.MethodID,
		SubtypeKey: key.SubtypeKey,
		Layout:     descriptor,
		OccurredAt: at,
	}))
}

func choicesRef(userID string) state.Ref {
	return state.Ref{Domain: ChoicesDomain, Scope: layering.UserScope(userID)}
}

func parseKey(userID, token string) (SelectionKey, bool) {
	parts := strings.Split(token, "|")
	if len(parts) != 3 {
		return SelectionKey{}, false
	}
	for i, part := range parts {
		unescaped, err := url.PathUnescape(part)
		if err != nil {
			return SelectionKey{}, false
		}
		parts[i] = unescaped
	}
	if parts[0] == "" {
		return SelectionKey{}, false
	}
	return SelectionKey{Device: parts[0], UserID: userID, MethodID: parts[1], SubtypeKey: parts[2]}, true
}
