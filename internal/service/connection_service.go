package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskhub/internal/model"
	"taskhub/internal/repository"
)

// ConnectionStore is credential storage that can also list a user's
// connections.
type ConnectionStore interface {
	repository.CredentialStore
	ListByUser(ctx context.Context, userID uint) ([]model.Credential, error)
}

// ConnectInput carries a token the user granted for a source.
type ConnectInput struct {
	Source       model.Source
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// ConnectionService manages the sources a user has connected.
type ConnectionService struct {
	creds  ConnectionStore
	syncer UserSyncer
}

func NewConnectionService(creds ConnectionStore, syncer UserSyncer) *ConnectionService {
	return &ConnectionService{creds: creds, syncer: syncer}
}

// Connect stores or replaces the credential and syncs that source right
// away.
func (s *ConnectionService) Connect(ctx context.Context, userID uint, input ConnectInput) (SyncReport, error) {
	if !input.Source.Syncable() {
		return SyncReport{}, fmt.Errorf("%w: %s", ErrNotSyncable, input.Source)
	}
	token := strings.TrimSpace(input.AccessToken)
	if token == "" {
		return SyncReport{}, fmt.Errorf("access token is required")
	}

	cred := model.Credential{
		UserID:       userID,
		Source:       input.Source,
		AccessToken:  token,
		RefreshToken: strings.TrimSpace(input.RefreshToken),
		ExpiresAt:    input.ExpiresAt,
	}
	if err := s.creds.Put(ctx, &cred); err != nil {
		return SyncReport{}, err
	}

	source := input.Source
	return s.syncer.Sync(ctx, userID, &source)
}

// List returns the user's connected sources.
func (s *ConnectionService) List(ctx context.Context, userID uint) ([]model.Credential, error) {
	return s.creds.ListByUser(ctx, userID)
}
