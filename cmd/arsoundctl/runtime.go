package main

import (
	"github.com/arsound/arsound/app/repository"
	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/database"
	"github.com/arsound/arsound/internal/pkg/env"
	"github.com/arsound/arsound/internal/pkg/logger"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// runtime is what the commands that touch the database need.
type runtime struct {
	billing *billing.Service
	users   repository.UserRepository
}

// newRuntime connects to the database and the gateway the same way the
// server does.
func newRuntime() (*runtime, error) {
	env.SetupEnvFile()
	logger.Init()
	database.SetupDatabase()

	cfg, err := mercadopago.LoadConfig()
	if err != nil {
		return nil, err
	}

	db := database.GetDB()
	repo := billing.NewRepository(db)
	reconciler := billing.NewReconciler(repo, mercadopago.NewClient(cfg), plans.NewRegistry())
	return &runtime{
		billing: billing.NewService(repo, reconciler),
		users:   repository.NewUserRepository(db),
	}, nil
}
