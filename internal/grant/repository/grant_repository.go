package repository

import (
	"errors"

	grantdomain "mailatlas-backend/internal/grant/domain"

	"gorm.io/gorm"
)

// GrantRepository provides access to registered grants.
type GrantRepository interface {
	FindByID(id string) (*grantdomain.Grant, error)
	Save(grant *grantdomain.Grant) error
	UpdateTokens(id, accessToken, refreshToken string) error
}

// grantRepository implements GrantRepository on postgres.
type grantRepository struct {
	db *gorm.DB
}

// NewGrantRepository creates a new instance of grantRepository.
func NewGrantRepository(db *gorm.DB) GrantRepository {
	return &grantRepository{db: db}
}

// FindByID returns the grant or nil when it does not exist.
func (r *grantRepository) FindByID(id string) (*grantdomain.Grant, error) {
	var grant grantdomain.Grant
	err := r.db.Where("id = ?", id).First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// Save creates or updates a grant record.
func (r *grantRepository) Save(grant *grantdomain.Grant) error {
	return r.db.Save(grant).Error
}

// UpdateTokens persists refreshed OAuth tokens for a grant.
func (r *grantRepository) UpdateTokens(id, accessToken, refreshToken string) error {
	updates := map[string]interface{}{"access_token": accessToken}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.Model(&grantdomain.Grant{}).Where("id = ?", id).Updates(updates).Error
}
