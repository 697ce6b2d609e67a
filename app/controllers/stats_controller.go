package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/internal/pkg/statistics"
)

// StatsProvider returns the marketplace summary.
type StatsProvider interface {
	Get(ctx context.Context) (statistics.Data, error)
}

type StatsController struct {
	stats StatsProvider
}

func NewStatsController(stats StatsProvider) *StatsController {
	return &StatsController{stats: stats}
}

// HandleGet serves the public marketplace counters.
func (sc *StatsController) HandleGet(c *fiber.Ctx) error {
	data, err := sc.stats.Get(c.UserContext())
	if err != nil {
		return internal(err)
	}
	return c.JSON(data)
}
