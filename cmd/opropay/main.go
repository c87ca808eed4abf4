package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	controllers "github.com/ManuelReschke/OproPay/app/controllers"
	"github.com/ManuelReschke/OproPay/app/repository"
	apiv1 "github.com/ManuelReschke/OproPay/internal/api/v1"
	"github.com/ManuelReschke/OproPay/internal/pkg/cache"
	"github.com/ManuelReschke/OproPay/internal/pkg/catalog"
	"github.com/ManuelReschke/OproPay/internal/pkg/database"
	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/errtrack"
	"github.com/ManuelReschke/OproPay/internal/pkg/gateway"
	"github.com/ManuelReschke/OproPay/internal/pkg/lms"
	"github.com/ManuelReschke/OproPay/internal/pkg/mail"
	"github.com/ManuelReschke/OproPay/internal/pkg/metrics"
	"github.com/ManuelReschke/OproPay/internal/pkg/notify"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
	"github.com/ManuelReschke/OproPay/internal/pkg/promocode"
	"github.com/ManuelReschke/OproPay/internal/pkg/promofile"
	"github.com/ManuelReschke/OproPay/internal/pkg/router"
	"github.com/ManuelReschke/OproPay/internal/pkg/userdir"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/opropay to project root
		"../../../", // Fallback
	}

	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	app := fiber.New(fiber.Config{
		Views:     html.New(basePath+"views", ".html"),
		BodyLimit: 4 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// prometheus metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", ""),
		},
	}), metrics.Handler())

	// upsale icons
	app.Static("/uploads", catalog.IconDir(), fiber.Static{
		CacheDuration: 10 * time.Second,
		MaxAge:        604800, // 7 days
	})

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "docs/openapi.yml",
		Path:     "v1",
	}))

	deps, err := wire()
	if err != nil {
		log.Fatalf("wiring services: %v", err)
	}
	router.InstallRouter(app, deps)

	return app
}

// wire builds the payment core and its adapters from the environment.
func wire() (router.Deps, error) {
	db := database.GetDB()
	repos := repository.NewRepositories(db)
	store := payments.NewStore(db)
	promos := promocode.NewEngine(repos.PromoCode, repos.Catalog)

	checkout := payments.NewCheckout(repos, promos, payments.NewBuilder(store), store,
		userdir.NewClientFromEnv(),
		payments.NewCacheOrderMemo(env.GetEnvDuration("MODULE_ORDER_MEMO_TTL", 3*time.Hour)))

	promoSource, err := promofile.NewSourceFromEnv(context.Background())
	if err != nil {
		return router.Deps{}, fmt.Errorf("promo files: %w", err)
	}
	analytics, err := notify.NewAnalyticsFromEnv()
	if err != nil {
		return router.Deps{}, fmt.Errorf("analytics: %w", err)
	}
	templates, err := notify.NewTemplates()
	if err != nil {
		return router.Deps{}, fmt.Errorf("email templates: %w", err)
	}
	mailer := mail.NewSMTPMailerFromEnv()

	reconciler := payments.NewReconciler(payments.ReconcilerDeps{
		Store:    store,
		Repos:    repos,
		LMS:      lms.NewClientFromEnv(),
		Promos:   promoSource,
		Reporter: errtrack.NewLogReporter(),
		Notifiers: []payments.Notifier{
			analytics,
			notify.NewCRMFromEnv(),
			notify.NewEmail(mailer, templates),
			notify.NewStaffEmail(mailer, templates),
		},
		PushTimeout:   env.GetEnvDuration("LMS_PUSH_TIMEOUT", 10*time.Second),
		NotifyTimeout: env.GetEnvDuration("NOTIFY_TIMEOUT", 30*time.Second),
	})

	cfg := gateway.NewConfigFromEnv()
	if !cfg.Configured() {
		log.Println("[Gateway] Shop credentials are not configured, every callback will be refused")
	}
	processor := gateway.NewProcessor(cfg, gateway.NewEvents(gateway.NewRepository(db)), store)
	if err := processor.RegisterConfirmationHandler(reconciler); err != nil {
		return router.Deps{}, err
	}

	return router.Deps{
		Payments: &controllers.PaymentController{
			Checkout:  checkout,
			Promos:    promos,
			Outer:     payments.NewOuterChannel(checkout, store, reconciler),
			Processor: processor,
			Gateway:   cfg,
			Repos:     repos,
			Mailer:    mailer,
		},
		API:      apiv1.NewAPIServer(catalog.NewService(repos), store, catalog.IconDir()),
		Users:    repos.User,
		OuterKey: env.GetEnv("OUTER_PAYMENT_API_KEY", ""),
		AdminKey: env.GetEnv("ADMIN_API_KEY", ""),
	}, nil
}
