package reward

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"jointPacks/internal/model"
)

// ErrSessionActive is returned when a pack already has a session in flight.
var ErrSessionActive = errors.New("a session for this pack is already active")

// State is a pack-open session state.
type State string

const (
	StateIdle           State = "idle"
	StateOpening        State = "opening"
	StateAwaitingReward State = "awaiting_reward"
	StateResolved       State = "resolved"
	StateTimedOut       State = "timed_out"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
)

// Terminal reports whether no further queries follow this state.
func (s State) Terminal() bool {
	switch s {
	case StateResolved, StateTimedOut, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Status is the observable view of a session.
type Status struct {
	SessionID   string             `json:"session_id"`
	Account     string             `json:"account"`
	TokenID     string             `json:"token_id"`
	State       State              `json:"state"`
	TxHash      string             `json:"tx_hash,omitempty"`
	FromBlock   uint64             `json:"from_block,omitempty"`
	Polls       int                `json:"polls"`
	Message     string             `json:"message"`
	Reward      *model.RewardEvent `json:"reward,omitempty"`
	RewardEther string             `json:"reward_ether,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Session is one open-and-await run for an (account, token) pair.
type Session struct {
	mu     sync.RWMutex
	status Status
}

func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.SessionID
}

// Status returns a copy of the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) update(now time.Time, fn func(*Status)) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
	s.status.UpdatedAt = now
	return s.status
}

// DefaultRetainedSessions bounds how many finished sessions stay queryable.
const DefaultRetainedSessions = 256

// Sessions tracks active sessions and a bounded history of finished ones.
type Sessions struct {
	mu       sync.Mutex
	active   map[string]*Session
	byID     map[string]*Session
	finished []string
	retain   int
}

// NewSessions builds a registry keeping at most retain finished sessions.
func NewSessions(retain int) *Sessions {
	if retain <= 0 {
		retain = DefaultRetainedSessions
	}
	return &Sessions{
		active: make(map[string]*Session),
		byID:   make(map[string]*Session),
		retain: retain,
	}
}

func sessionKey(account, tokenID string) string {
	return NormalizeAccount(account) + "|" + tokenID
}

// Begin registers a new idle session, failing with ErrSessionActive when the
// same account already has one running for tokenID. Token ids are stored in
// canonical form, so "07" and "7" name the same pack.
func (r *Sessions) Begin(account, tokenID string, now time.Time) (*Session, error) {
	tokenID, err := CanonicalTokenID(tokenID)
	if err != nil {
		return nil, err
	}
	key := sessionKey(account, tokenID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[key]; ok {
		return nil, ErrSessionActive
	}

	session := &Session{status: Status{
		SessionID: uuid.NewString(),
		Account:   NormalizeAccount(account),
		TokenID:   tokenID,
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}}
	r.active[key] = session
	r.byID[session.status.SessionID] = session
	return session, nil
}

// End moves a session from active to history.
func (r *Sessions) End(session *Session) {
	status := session.Status()
	key := sessionKey(status.Account, status.TokenID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.active[key]; !ok || current != session {
		return
	}
	delete(r.active, key)

	r.finished = append(r.finished, status.SessionID)
	for len(r.finished) > r.retain {
		delete(r.byID, r.finished[0])
		r.finished = r.finished[1:]
	}
}

// Get looks a session up by id.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[id]
	return session, ok
}

// Active returns the number of sessions in flight.
func (r *Sessions) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
