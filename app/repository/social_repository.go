package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arsound/arsound/app/models"
)

type socialRepository struct {
	db *gorm.DB
}

func NewSocialRepository(db *gorm.DB) SocialRepository {
	return &socialRepository{db: db}
}

// Follow is idempotent; created is false when the follow already existed.
func (r *socialRepository) Follow(followerID, followingID string) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "follower_id"}, {Name: "following_id"}},
		DoNothing: true,
	}).Create(&models.Follow{FollowerID: followerID, FollowingID: followingID})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *socialRepository) Unfollow(followerID, followingID string) error {
	return r.db.Where("follower_id = ? AND following_id = ?", followerID, followingID).Delete(&models.Follow{}).Error
}

func (r *socialRepository) IsFollowing(followerID, followingID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Follow{}).Where("follower_id = ? AND following_id = ?", followerID, followingID).Count(&count).Error
	return count > 0, err
}

func (r *socialRepository) CountFollowers(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Follow{}).Where("following_id = ?", userID).Count(&count).Error
	return count, err
}

// ToggleLike reports whether the pack is liked after the call.
func (r *socialRepository) ToggleLike(userID, packID string) (bool, error) {
	var liked bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		liked, err = models.ToggleLike(tx, userID, packID)
		return err
	})
	return liked, err
}

func (r *socialRepository) CountLikes(packID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Like{}).Where("pack_id = ?", packID).Count(&count).Error
	return count, err
}

func (r *socialRepository) AddComment(comment *models.Comment) error {
	return r.db.Create(comment).Error
}

// ListComments returns the newest comments first with their authors.
func (r *socialRepository) ListComments(packID string, offset, limit int) ([]models.Comment, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var comments []models.Comment
	err := r.db.Preload("User").
		Where("pack_id = ?", packID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&comments).Error
	return comments, err
}
