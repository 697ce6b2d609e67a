package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	packViewsKey = "pack:counters:views"
)

// Counter buffers pack view counts in a Redis hash and folds them into
// packs.view_count on Flush.
type Counter struct {
	rdb *redis.Client
	db  *gorm.DB
}

func New(rdb *redis.Client, db *gorm.DB) *Counter {
	return &Counter{rdb: rdb, db: db}
}

// AddPackView increments the pending view counter for a pack in Redis
func (c *Counter) AddPackView(ctx context.Context, packID string) error {
	if _, err := uuid.Parse(packID); err != nil {
		return fmt.Errorf("invalid pack id %q", packID)
	}
	return c.rdb.HIncrBy(ctx, packViewsKey, packID, 1).Err()
}

// Pending returns the not yet flushed views for a pack.
func (c *Counter) Pending(ctx context.Context, packID string) (int64, error) {
	n, err := c.rdb.HGet(ctx, packViewsKey, packID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Flush drains the hash and applies batched increments to the packs table.
// RENAME moves the hash aside atomically so increments arriving during the
// flush land in a fresh hash.
func (c *Counter) Flush(ctx context.Context) error {
	tmpKey := fmt.Sprintf("%s:tmp:%d", packViewsKey, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, packViewsKey, tmpKey).Err(); err != nil {
		if errors.Is(err, redis.Nil) || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}
	defer c.rdb.Del(context.Background(), tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	return c.apply(ctx, data)
}

type pair struct {
	id  string
	inc int64
}

func (c *Counter) apply(ctx context.Context, data map[string]string) error {
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		if _, err := uuid.Parse(k); err != nil {
			continue
		}
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: k, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	// UPDATE packs SET view_count = view_count + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
	var b strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	b.WriteString("UPDATE packs SET view_count = view_count + CASE id")
	for _, p := range pairs {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	b.WriteString(" ELSE 0 END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
		args = append(args, p.id)
	}
	b.WriteString(")")

	return c.db.WithContext(ctx).Exec(b.String(), args...).Error
}
