package service

import (
	"context"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// SessionStore is the read side of the session repository
type SessionStore interface {
	GetSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, int64, error)
	GetSessionByID(ctx context.Context, id string) (*models.Session, error)
	FindForKPI(ctx context.Context, filter models.KPIFilter) ([]models.Session, error)
}

// SegmentStore loads state timelines
type SegmentStore interface {
	GetBySessions(ctx context.Context, sessionIDs []string) ([]models.StateSegment, error)
}

// EventStore loads stability events
type EventStore interface {
	GetEvents(ctx context.Context, filter models.EventFilter) ([]models.StabilityEvent, error)
	GetBySessions(ctx context.Context, sessionIDs []string) ([]models.StabilityEvent, error)
}

// TrackStore loads stored GPS fixes keyed by session ID
type TrackStore interface {
	GetBySessions(ctx context.Context, sessionIDs []string) (map[string][]models.GPSSample, error)
}

// SessionDetail is one session with its timeline and events
type SessionDetail struct {
	Session  models.Session          `json:"session"`
	Segments []models.StateSegment   `json:"segments"`
	Events   []models.StabilityEvent `json:"events"`
}

// SessionService handles business logic for sessions
type SessionService struct {
	sessions SessionStore
	segments SegmentStore
	events   EventStore
}

// NewSessionService creates a new session service
func NewSessionService(sessions SessionStore, segments SegmentStore, events EventStore) *SessionService {
	return &SessionService{sessions: sessions, segments: segments, events: events}
}

// GetSessions retrieves sessions with filtering and pagination
func (s *SessionService) GetSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, int64, error) {
	return s.sessions.GetSessions(ctx, filter)
}

// GetSessionDetail retrieves a session with its segments and events, nil when absent.
// orgID restricts the lookup when not empty.
func (s *SessionService) GetSessionDetail(ctx context.Context, id, orgID string) (*SessionDetail, error) {
	session, err := s.sessions.GetSessionByID(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	if orgID != "" && session.OrganizationID != orgID {
		return nil, nil
	}

	ids := []string{session.ID}
	segments, err := s.segments.GetBySessions(ctx, ids)
	if err != nil {
		return nil, err
	}
	events, err := s.events.GetBySessions(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: *session, Segments: segments, Events: events}, nil
}
