package pmremoval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/sowhours/internal/apperr"
	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/events"
)

// Store persists requests and comments.
type Store interface {
	// CreateRequest inserts a pending request. It returns ErrPendingExists
	// when the SOW already has one, atomically with the insert.
	CreateRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	// TransitionRequest moves a request out of pending in a single
	// compare-and-swap. It returns ErrNotPending if the request was already
	// decided and ErrNotFound if it does not exist.
	TransitionRequest(ctx context.Context, id string, to Status, decidedBy, note string, at time.Time) error
	// ListRequests returns newest first. An empty sowID lists every SOW.
	ListRequests(ctx context.Context, sowID string) ([]Request, error)
	AddComment(ctx context.Context, c *Comment) error
	// ListComments returns oldest first.
	ListComments(ctx context.Context, requestID string) ([]Comment, error)
}

// Service runs the PM-hours-removal workflow.
type Service struct {
	store     Store
	policy    catalog.Policy
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(store Store, policy catalog.Policy, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// SubmitInput describes a new removal request.
type SubmitInput struct {
	SOWID          string
	RequesterID    string
	AccountSegment string
	CurrentPMHours decimal.Decimal
	// HoursToRemove defaults to CurrentPMHours when zero.
	HoursToRemove decimal.Decimal
	Reason        string
}

// Submit opens a pending request.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Request, error) {
	reason := strings.TrimSpace(in.Reason)
	switch {
	case strings.TrimSpace(in.SOWID) == "":
		return nil, apperr.Invalid("sowId", "is required")
	case reason == "":
		return nil, apperr.Invalid("reason", "is required")
	case !in.CurrentPMHours.IsPositive():
		return nil, apperr.Invalid("currentPmHours", "must be greater than 0")
	case !s.policy.RemovalEligible(in.AccountSegment):
		return nil, apperr.Invalid("accountSegment", fmt.Sprintf("segment %q cannot request pm hours removal", in.AccountSegment))
	}

	toRemove := in.HoursToRemove
	if toRemove.IsZero() {
		toRemove = in.CurrentPMHours
	}
	if toRemove.IsNegative() || toRemove.GreaterThan(in.CurrentPMHours) {
		return nil, apperr.Invalid("hoursToRemove", "must be between 0 and the current pm hours")
	}

	existing, err := s.store.ListRequests(ctx, in.SOWID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	switch StateOf(existing) {
	case StatePending:
		return nil, ErrPendingExists
	case StateApproved:
		return nil, ErrAlreadyRemoved
	}

	req := &Request{
		ID:              s.newID(),
		SOWID:           strings.TrimSpace(in.SOWID),
		CurrentPMHours:  in.CurrentPMHours,
		HoursToRemove:   toRemove,
		Reason:          reason,
		Status:          StatusPending,
		CreatedAt:       s.now(),
		RequesterID:     in.RequesterID,
		FinancialImpact: FinancialImpact(toRemove),
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, ErrPendingExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.publish(ctx, events.RemovalSubmitted, req, in.RequesterID)
	return req, nil
}

// Approve decides a pending request in favour of removal. The optional note
// is appended to the thread.
func (s *Service) Approve(ctx context.Context, id, approverID, note string) (*Request, error) {
	note = strings.TrimSpace(note)
	return s.decide(ctx, id, StatusApproved, approverID, note, events.RemovalApproved)
}

// Reject decides a pending request against removal. A reason is required.
func (s *Service) Reject(ctx context.Context, id, approverID, reason string) (*Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "is required")
	}
	return s.decide(ctx, id, StatusRejected, approverID, reason, events.RemovalRejected)
}

func (s *Service) decide(ctx context.Context, id string, to Status, actorID, note string, evt events.Type) (*Request, error) {
	if err := s.store.TransitionRequest(ctx, id, to, actorID, note, s.now()); err != nil {
		if errors.Is(err, ErrNotPending) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("transition request: %w", err)
	}

	if note != "" {
		if _, err := s.appendComment(ctx, id, actorID, note, false); err != nil {
			// The decision is already committed; a lost note must not undo it.
			s.logger.Error("append decision note", zap.String("request_id", id), zap.Error(err))
		}
	}

	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload request: %w", err)
	}
	s.publish(ctx, evt, req, actorID)
	return req, nil
}

// AddComment appends to a request's thread in any state.
func (s *Service) AddComment(ctx context.Context, requestID, authorID, text string, internal bool) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Invalid("comment", "is required")
	}
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	c, err := s.appendComment(ctx, requestID, authorID, text, internal)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.RemovalCommented, req, authorID)
	return c, nil
}

func (s *Service) appendComment(ctx context.Context, requestID, authorID, text string, internal bool) (*Comment, error) {
	c := &Comment{
		ID:         s.newID(),
		RequestID:  requestID,
		AuthorID:   authorID,
		Comment:    text,
		CreatedAt:  s.now(),
		IsInternal: internal,
	}
	if err := s.store.AddComment(ctx, c); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return c, nil
}

// Thread returns a request with its comments.
func (s *Service) Thread(ctx context.Context, id string) (*Request, []Comment, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.store.ListComments(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list comments: %w", err)
	}
	return req, comments, nil
}

// List returns the requests of one SOW, or of every SOW when sowID is empty.
func (s *Service) List(ctx context.Context, sowID string) ([]Request, error) {
	reqs, err := s.store.ListRequests(ctx, sowID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

// RemovalState is the flag the hours engine consults before recomputing.
func (s *Service) RemovalState(ctx context.Context, sowID string) (State, error) {
	reqs, err := s.store.ListRequests(ctx, sowID)
	if err != nil {
		return StateNone, fmt.Errorf("list requests: %w", err)
	}
	return StateOf(reqs), nil
}

func (s *Service) publish(ctx context.Context, t events.Type, r *Request, actorID string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:            t,
		RequestID:       r.ID,
		SOWID:           r.SOWID,
		ActorID:         actorID,
		Status:          string(r.Status),
		HoursToRemove:   r.HoursToRemove,
		FinancialImpact: r.FinancialImpact,
		OccurredAt:      s.now(),
	})
	if err != nil {
		s.logger.Warn("publish workflow event",
			zap.String("type", string(t)),
			zap.String("request_id", r.ID),
			zap.Error(err),
		)
	}
}
