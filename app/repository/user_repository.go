package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an active API key hash to its user.
func (r *userRepository) GetByAPIKeyHash(hash string) (*models.User, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	err := r.db.Where("api_key_hash = ? AND api_key_hash <> '' AND api_key_revoked_at IS NULL", trimmed).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchAPIKey records the last use of a user's API key.
func (r *userRepository) TouchAPIKey(id string, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).UpdateColumn("api_key_last_used_at", at).Error
}

// GetStatsByUserID returns aggregate statistics for the given user.
func (r *userRepository) GetStatsByUserID(userID string) (*UserStats, error) {
	var stats UserStats
	if err := r.db.Model(&models.Pack{}).Where("owner_id = ? AND is_archived = ?", userID, false).Count(&stats.PackCount).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.Pack{}).Where("owner_id = ? AND is_archived = ?", userID, true).Count(&stats.ArchivedCount).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.Follow{}).Where("following_id = ?", userID).Count(&stats.Followers).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.Purchase{}).Where("buyer_id = ? AND status = ?", userID, models.PurchaseStatusCompleted).Count(&stats.Purchases).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}
