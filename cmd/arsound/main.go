package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/arsound/arsound/app/controllers"
	"github.com/arsound/arsound/app/repository"
	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/cache"
	"github.com/arsound/arsound/internal/pkg/database"
	"github.com/arsound/arsound/internal/pkg/env"
	"github.com/arsound/arsound/internal/pkg/jobqueue"
	"github.com/arsound/arsound/internal/pkg/logger"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
	"github.com/arsound/arsound/internal/pkg/metrics/counter"
	"github.com/arsound/arsound/internal/pkg/plans"
	"github.com/arsound/arsound/internal/pkg/ratelimit"
	"github.com/arsound/arsound/internal/pkg/router"
	"github.com/arsound/arsound/internal/pkg/statistics"
	"github.com/arsound/arsound/internal/pkg/storage"
)

const healthTimeout = 3 * time.Second

func main() {
	app, manager := NewApplication()
	log := logger.Get()

	manager.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		log.Info("starting http server", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Error("http server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	manager.Stop()
}

// NewApplication wires the whole service. The returned manager owns the
// retry queue and the view counter flush and is started by the caller.
func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	logger.Init()
	log := logger.Get()

	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	registry := plans.NewRegistry()

	mpCfg, err := mercadopago.LoadConfig()
	if err != nil {
		panic(err)
	}
	gateway := mercadopago.NewClient(mpCfg)

	billingRepo := billing.NewRepository(db)
	discounts := billing.NewDiscountResolver(billingRepo)
	service := billing.NewService(billingRepo, billing.NewReconciler(billingRepo, gateway, registry))
	builder := billing.NewPreferenceBuilder(billingRepo, registry, discounts, billing.DefaultURLs(env.PublicURL()))

	rdb := cache.GetClient()
	workers, _ := strconv.Atoi(env.GetEnv("JOB_WORKERS", "2"))
	queue := jobqueue.NewQueue(rdb, workers)
	queue.Register(jobqueue.JobTypeReconcilePayment, jobqueue.ReconcileHandler(service))
	views := counter.New(rdb, db)
	manager := jobqueue.NewManager(queue, views, 30*time.Second)

	deps := router.Dependencies{
		Repos:         repos,
		Plans:         registry,
		Billing:       service,
		Checkout:      billing.NewCheckout(builder, gateway),
		Discounts:     discounts,
		Retries:       queue,
		Views:         views,
		Stats:         statistics.New(db, rdb),
		WebhookSecret: mpCfg.WebhookSecret,
	}

	// pack uploads stay disabled until S3 is configured
	var files *storage.Client
	if s3Cfg, err := storage.LoadConfig(); err != nil {
		log.Warn("object storage disabled", "error", err)
	} else if files, err = storage.NewClient(context.Background(), s3Cfg); err != nil {
		log.Warn("object storage disabled", "error", err)
		files = nil
	} else {
		deps.Files = files
	}

	if err := cache.Ping(context.Background()); err == nil {
		deps.LimiterStorage = ratelimit.NewStorage()
	} else {
		log.Warn("rate limits kept in memory", "error", err)
	}

	deps.Health = healthChecks(files)

	app := fiber.New(fiber.Config{
		ErrorHandler: controllers.ErrorHandler,
		BodyLimit:    1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), fiberlogger.New())

	// SWAGGER / OPENAPI
	if specFile := findOpenAPIFile(); specFile != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specFile,
			Path:     "v1",
		}))
	} else {
		log.Warn("openapi document not found, /docs/api disabled")
	}

	// ROUTER
	router.InstallRouter(app, deps)

	return app, manager
}

// healthChecks pings every backing service concurrently.
func healthChecks(files *storage.Client) func() map[string]error {
	return func() map[string]error {
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()

		var mu sync.Mutex
		results := map[string]error{}
		record := func(name string, err error) {
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			sqlDB, err := database.GetDB().DB()
			if err == nil {
				err = sqlDB.PingContext(gctx)
			}
			record("database", err)
			return nil
		})
		g.Go(func() error {
			record("redis", cache.Ping(gctx))
			return nil
		})
		if files != nil {
			g.Go(func() error {
				record("storage", files.Ping(gctx))
				return nil
			})
		}
		_ = g.Wait()
		return results
	}
}

func findOpenAPIFile() string {
	if path := env.GetEnv("OPENAPI_FILE", ""); path != "" {
		return path
	}
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
