package statistics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/logger"
)

const (
	CacheKeyMarketplace = "statistics:marketplace"
	CacheExpiration     = 30 * time.Minute
)

// Data is the public marketplace summary.
type Data struct {
	TotalPacks   int64     `json:"total_packs"`
	PacksToday   int64     `json:"packs_today"`
	TotalSellers int64     `json:"total_sellers"`
	TotalSales   int64     `json:"total_sales"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Service computes the summary from the database and keeps a copy in Redis.
// A nil client disables caching.
type Service struct {
	db  *gorm.DB
	rdb *redis.Client
	now func() time.Time

	mu         sync.Mutex
	lastUpdate time.Time
	interval   time.Duration
}

func New(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{db: db, rdb: rdb, now: time.Now, interval: 5 * time.Minute}
}

// Get returns the cached summary, recomputing it when the cache is empty or
// older than the update interval.
func (s *Service) Get(ctx context.Context) (Data, error) {
	if !s.shouldUpdate() {
		if d, ok := s.cached(ctx); ok {
			return d, nil
		}
	}
	return s.Refresh(ctx)
}

// Refresh recomputes the summary and stores it.
func (s *Service) Refresh(ctx context.Context) (Data, error) {
	d, err := s.compute(ctx)
	if err != nil {
		return Data{}, err
	}

	if s.rdb != nil {
		raw, err := json.Marshal(d)
		if err == nil {
			err = s.rdb.Set(ctx, CacheKeyMarketplace, raw, CacheExpiration).Err()
		}
		if err != nil {
			logger.Get().Warn("failed to cache marketplace statistics", "error", err)
		}
	}

	s.mu.Lock()
	s.lastUpdate = s.now()
	s.mu.Unlock()
	return d, nil
}

func (s *Service) shouldUpdate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.lastUpdate) > s.interval
}

func (s *Service) cached(ctx context.Context) (Data, bool) {
	if s.rdb == nil {
		return Data{}, false
	}
	raw, err := s.rdb.Get(ctx, CacheKeyMarketplace).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Get().Warn("failed to read marketplace statistics", "error", err)
		}
		return Data{}, false
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, false
	}
	return d, true
}

func (s *Service) compute(ctx context.Context) (Data, error) {
	db := s.db.WithContext(ctx)
	now := s.now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var d Data
	live := db.Model(&models.Pack{}).Where("is_archived = ?", false)
	if err := live.Count(&d.TotalPacks).Error; err != nil {
		return Data{}, err
	}
	if err := db.Model(&models.Pack{}).
		Where("is_archived = ? AND created_at >= ?", false, todayStart).
		Count(&d.PacksToday).Error; err != nil {
		return Data{}, err
	}
	if err := db.Model(&models.Pack{}).
		Where("is_archived = ?", false).
		Distinct("owner_id").
		Count(&d.TotalSellers).Error; err != nil {
		return Data{}, err
	}
	if err := db.Model(&models.Purchase{}).
		Where("status = ?", models.PurchaseStatusCompleted).
		Count(&d.TotalSales).Error; err != nil {
		return Data{}, err
	}
	d.UpdatedAt = now
	return d, nil
}
