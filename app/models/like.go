package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index:ux_likes_user_pack,unique,priority:1" json:"user_id"`
	PackID    string    `gorm:"type:varchar(36);index:ux_likes_user_pack,unique,priority:2;index" json:"pack_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ToggleLike creates or removes a like and reports whether the pack is now liked.
func ToggleLike(db *gorm.DB, userID, packID string) (bool, error) {
	var like Like
	result := db.Where("user_id = ? AND pack_id = ?", userID, packID).First(&like)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return true, db.Create(&Like{UserID: userID, PackID: packID}).Error
		}
		return false, result.Error
	}

	return false, db.Delete(&like).Error
}

// Follow links a follower to the producer they follow.
type Follow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FollowerID  string    `gorm:"type:varchar(36);index:ux_follows_pair,unique,priority:1" json:"follower_id"`
	FollowingID string    `gorm:"type:varchar(36);index:ux_follows_pair,unique,priority:2;index" json:"following_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
