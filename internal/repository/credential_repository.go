package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"taskhub/internal/model"
)

// CredentialStore is the contract for per-source credential storage.
type CredentialStore interface {
	// Get returns nil when the user has not connected the source.
	Get(ctx context.Context, userID uint, source model.Source) (*model.Credential, error)
	Put(ctx context.Context, cred *model.Credential) error
}

// CredentialRepository is the gorm-backed CredentialStore.
type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Get(ctx context.Context, userID uint, source model.Source) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.WithContext(ctx).Where("user_id = ? AND source = ?", userID, source).First(&cred).Error
	switch {
	case err == nil:
		return &cred, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find credential: %w", err)
	}
}

// Put creates the credential or replaces the tokens of the existing one for
// the same user and source.
func (r *CredentialRepository) Put(ctx context.Context, cred *model.Credential) error {
	db := r.db.WithContext(ctx)
	var existing model.Credential
	err := db.Where("user_id = ? AND source = ?", cred.UserID, cred.Source).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"access_token":  cred.AccessToken,
			"refresh_token": cred.RefreshToken,
			"expires_at":    cred.ExpiresAt,
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("update credential: %w", err)
		}
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(cred).Error; err != nil {
			return fmt.Errorf("create credential: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("find credential: %w", err)
	}
}

// ListByUser returns every credential of a user ordered by source.
func (r *CredentialRepository) ListByUser(ctx context.Context, userID uint) ([]model.Credential, error) {
	var creds []model.Credential
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("source ASC").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}
