package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	TouchAPIKey(id string, at time.Time) error
	GetStatsByUserID(userID string) (*UserStats, error)
	Update(user *models.User) error
}

// PackRepository defines the interface for pack-related database operations
type PackRepository interface {
	Create(pack *models.Pack) error
	GetByID(id string) (*models.Pack, error)
	Update(pack *models.Pack, fields map[string]interface{}) error
	Delete(id string) error
	ListByOwner(ownerID string, includeArchived bool) ([]models.Pack, error)
	ListPublic(filter PackFilter) ([]models.Pack, int64, error)
	CountLiveByOwner(ownerID string) (int64, error)
	CountCreatedSince(ownerID string, since time.Time) (int64, error)
	CountPinned(ownerID string) (int64, error)
	RecordDownload(userID, packID string) error
}

// DiscountCodeRepository defines the interface for seller discount codes
type DiscountCodeRepository interface {
	Create(code *models.DiscountCode) error
	GetByID(id uint) (*models.DiscountCode, error)
	GetByPackAndCode(packID, code string) (*models.DiscountCode, error)
	ListByPack(packID string) ([]models.DiscountCode, error)
	Delete(id uint) error
}

// SocialRepository defines follows, likes and comments
type SocialRepository interface {
	Follow(followerID, followingID string) (bool, error)
	Unfollow(followerID, followingID string) error
	IsFollowing(followerID, followingID string) (bool, error)
	CountFollowers(userID string) (int64, error)
	ToggleLike(userID, packID string) (bool, error)
	CountLikes(packID string) (int64, error)
	AddComment(comment *models.Comment) error
	ListComments(packID string, offset, limit int) ([]models.Comment, error)
}

// PurchaseRepository defines read access to purchases; writes belong to the
// payment reconciler.
type PurchaseRepository interface {
	ListByBuyer(buyerID string, offset, limit int) ([]models.Purchase, error)
	ListBySeller(sellerID string, offset, limit int) ([]models.Purchase, error)
	SalesSummary(sellerID string) (*SalesSummary, error)
	HasPurchased(buyerID, packID string) (bool, error)
}

// SellerAccountRepository stores sellers' gateway identities
type SellerAccountRepository interface {
	GetByUserID(userID, provider string) (*models.SellerAccount, error)
	Upsert(account *models.SellerAccount) error
}

// PackFilter narrows the public catalog listing.
type PackFilter struct {
	Genre   string
	Query   string
	OwnerID string
	Offset  int
	Limit   int
}

// UserStats provides aggregated counts for a single user.
type UserStats struct {
	PackCount     int64
	ArchivedCount int64
	Followers     int64
	Purchases     int64
}

// SalesSummary aggregates a seller's completed sales in minor units.
type SalesSummary struct {
	Count          int64 `json:"count"`
	Gross          int64 `json:"gross"`
	Commission     int64 `json:"commission"`
	SellerEarnings int64 `json:"seller_earnings"`
}

// Repositories struct holds all repository instances
type Repositories struct {
	User          UserRepository
	Pack          PackRepository
	DiscountCode  DiscountCodeRepository
	Social        SocialRepository
	Purchase      PurchaseRepository
	SellerAccount SellerAccountRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Pack:          NewPackRepository(db),
		DiscountCode:  NewDiscountCodeRepository(db),
		Social:        NewSocialRepository(db),
		Purchase:      NewPurchaseRepository(db),
		SellerAccount: NewSellerAccountRepository(db),
	}
}
