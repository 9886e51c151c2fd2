package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tazhate/eventme/internal/domain"
)

// AccessStore persists the owner's access decisions
type AccessStore interface {
	AccessStatus(ctx context.Context, typ domain.EntityType) (domain.AuthorizationStatus, error)
	SetAccessStatus(ctx context.Context, typ domain.EntityType, status domain.AuthorizationStatus) error
}

// ErrNoAnswer is returned by a Prompter when the owner did not answer in time.
// The request then counts as not granted and the status stays undetermined.
var ErrNoAnswer = errors.New("access prompt was not answered")

// Prompter asks the owner whether the app may use the store
type Prompter interface {
	PromptAccess(ctx context.Context, typ domain.EntityType) (bool, error)
}

// AccessService is the permission API: one decision per entity type,
// asked at most once until reset.
type AccessService struct {
	store    AccessStore
	prompter Prompter
	mu       sync.Mutex
}

// NewAccessService creates a new access service
func NewAccessService(store AccessStore) *AccessService {
	return &AccessService{store: store}
}

// SetPrompter sets the UI that asks for access
func (s *AccessService) SetPrompter(p Prompter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompter = p
}

// Status returns the current decision. It is read from storage on every call.
func (s *AccessService) Status(ctx context.Context, typ domain.EntityType) (domain.AuthorizationStatus, error) {
	status, err := s.store.AccessStatus(ctx, typ)
	if err != nil {
		return "", fmt.Errorf("get access status: %w", err)
	}
	return status, nil
}

// Request returns the decision, prompting the owner if none was made yet.
// Concurrent requests share one prompt.
func (s *AccessService) Request(ctx context.Context, typ domain.EntityType) (bool, error) {
	status, err := s.Status(ctx, typ)
	if err != nil {
		return false, err
	}
	if status.IsDecided() {
		return status == domain.StatusAuthorized, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have prompted while we waited
	status, err = s.Status(ctx, typ)
	if err != nil {
		return false, err
	}
	if status.IsDecided() {
		return status == domain.StatusAuthorized, nil
	}

	if s.prompter == nil {
		log.Printf("No prompter set, %s access stays undetermined", typ)
		return false, nil
	}

	granted, err := s.prompter.PromptAccess(ctx, typ)
	if errors.Is(err, ErrNoAnswer) {
		log.Printf("Access prompt for %s was not answered", typ.Plural())
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prompt access: %w", err)
	}

	decision := domain.StatusDenied
	if granted {
		decision = domain.StatusAuthorized
	}
	if err := s.store.SetAccessStatus(ctx, typ, decision); err != nil {
		return false, fmt.Errorf("save access decision: %w", err)
	}

	log.Printf("Access to %s: %s", typ.Plural(), decision)
	return granted, nil
}

// Revoke denies access to the entity type
func (s *AccessService) Revoke(ctx context.Context, typ domain.EntityType) error {
	if err := s.store.SetAccessStatus(ctx, typ, domain.StatusDenied); err != nil {
		return fmt.Errorf("revoke access: %w", err)
	}
	return nil
}

// Reset forgets the decision so the next request prompts again
func (s *AccessService) Reset(ctx context.Context, typ domain.EntityType) error {
	if err := s.store.SetAccessStatus(ctx, typ, domain.StatusNotDetermined); err != nil {
		return fmt.Errorf("reset access: %w", err)
	}
	return nil
}
