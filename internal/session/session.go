// ABOUTME: Session service: creates {app, user, run id} sessions and tracks live run IDs
// ABOUTME: Released IDs stay reserved for a TTL in an ordered, size-bounded list

package session

import (
	"container/list"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalid is returned when a session is missing a required field.
	ErrInvalid = errors.New("invalid session")
	// ErrDuplicateRunID is returned when a run ID is live or recently ended.
	ErrDuplicateRunID = errors.New("run id already in use")
	// ErrCapacity is returned when the live session limit is reached.
	ErrCapacity = errors.New("too many live sessions")
)

// Defaults for Config.
const (
	DefaultMaxLive  = 1024
	DefaultReuseTTL = 10 * time.Minute
	maxRecent       = 4096
)

// Session identifies one run (single-shot) or one connection (streaming).
type Session struct {
	AppName   string
	UserID    string
	RunID     string
	CreatedAt time.Time
}

// Config configures a Service.
type Config struct {
	AppName  string
	MaxLive  int
	ReuseTTL time.Duration
}

// recentEntry records when a run ID was released.
type recentEntry struct {
	released time.Time
	element  *list.Element
}

// Service creates sessions. It is safe for concurrent use.
type Service struct {
	appName  string
	maxLive  int
	reuseTTL time.Duration

	mu     sync.Mutex
	live   map[string]*Session
	recent map[string]*recentEntry
	order  *list.List // released run IDs, oldest at front
}

// NewService creates a session service.
func NewService(cfg Config) *Service {
	if cfg.MaxLive <= 0 {
		cfg.MaxLive = DefaultMaxLive
	}
	if cfg.ReuseTTL <= 0 {
		cfg.ReuseTTL = DefaultReuseTTL
	}
	return &Service{
		appName:  cfg.AppName,
		maxLive:  cfg.MaxLive,
		reuseTTL: cfg.ReuseTTL,
		live:     make(map[string]*Session),
		recent:   make(map[string]*recentEntry),
		order:    list.New(),
	}
}

// Create starts a session for userID with a fresh UUIDv4 run ID.
func (s *Service) Create(userID string) (*Session, error) {
	return s.CreateWithID(userID, uuid.NewString())
}

// CreateWithID starts a session with a caller-chosen run ID.
func (s *Service) CreateWithID(userID, runID string) (*Session, error) {
	sess := &Session{
		AppName:   s.appName,
		UserID:    strings.TrimSpace(userID),
		RunID:     strings.TrimSpace(runID),
		CreatedAt: time.Now(),
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(sess.CreatedAt)
	if _, ok := s.live[sess.RunID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRunID, sess.RunID)
	}
	if _, ok := s.recent[sess.RunID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRunID, sess.RunID)
	}
	if len(s.live) >= s.maxLive {
		return nil, ErrCapacity
	}
	s.live[sess.RunID] = sess
	return sess, nil
}

// Release ends a session. Releasing twice, or releasing nil, is a no-op.
func (s *Service) Release(sess *Session) {
	if sess == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live[sess.RunID] != sess {
		return
	}
	delete(s.live, sess.RunID)

	if len(s.recent) >= maxRecent {
		s.evictOldest()
	}
	elem := s.order.PushBack(sess.RunID)
	s.recent[sess.RunID] = &recentEntry{released: time.Now(), element: elem}
}

// Live returns the number of live sessions.
func (s *Service) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// expireLocked drops recently ended IDs older than the reuse TTL.
// Must be called with mu held.
func (s *Service) expireLocked(now time.Time) {
	for front := s.order.Front(); front != nil; front = s.order.Front() {
		id, _ := front.Value.(string)
		if now.Sub(s.recent[id].released) < s.reuseTTL {
			return
		}
		s.order.Remove(front)
		delete(s.recent, id)
	}
}

// evictOldest removes the oldest released ID. Must be called with mu held.
func (s *Service) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.recent, id)
}

// Validate checks that every field is set.
func (s *Session) Validate() error {
	switch {
	case strings.TrimSpace(s.AppName) == "":
		return fmt.Errorf("%w: app name is required", ErrInvalid)
	case strings.TrimSpace(s.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalid)
	case strings.TrimSpace(s.RunID) == "":
		return fmt.Errorf("%w: run id is required", ErrInvalid)
	}
	return nil
}
