package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"djhub-api/res/auth"
	"djhub-api/res/notification"
	"djhub-api/res/notification/rabbitmq"
	"djhub-api/res/notification/sidemail"
	"djhub-api/res/notification/slack"
	"djhub-api/res/payment"
	"djhub-api/res/payment/omise"
	"djhub-api/res/storage"
	"djhub-api/res/store"
	"djhub-api/res/store/postgresql"
	"djhub-api/sys/http/handler"
	"djhub-api/sys/http/middleware"
	"djhub-api/sys/settlement"

	"github.com/gin-gonic/gin"
)

var logger = log.New(os.Stdout, "", log.LstdFlags|log.LUTC|log.Llongfile)

// CONFIGURATION CONVENTION:
// All environment variable configuration is centralized in this file (api/index.go).
// Settlement amounts and payroll rates are read by settlement.LoadSettings (SETTLEMENT_* variables).
//
// REQUIRED Environment Variables (minimum to run):
// - DATABASE_POSTGRES_URL: PostgreSQL connection string
// - AUTH_JWT_SECRET: JWT signing secret
// - OMISE_PUBLIC_KEY / OMISE_SECRET_KEY: payment processor keys
//
// OPTIONAL Environment Variables (with graceful degradation):
// - DATABASE_AUTO_MIGRATE: "true" migrates the schema on startup (default: false)
// - ENVIRONMENT / FRONTEND_URL: CORS policy
// - SLACK_WEBHOOK_URL: Slack webhook for the ops channel
// - SLACK_TIMEOUT_SECONDS: Timeout for Slack requests in seconds (default: 5)
// - RABBIT_URL / RABBIT_EXCHANGE: publish settlement events (default exchange: djhub.settlement)
// - SIDEMAIL_API_KEY: Sidemail API key for transactional email
// - SIDEMAIL_API_URL: Sidemail API base URL (default: https://api.sidemail.io/v1)
// - SIDEMAIL_FROM_ADDRESS / SIDEMAIL_FROM_NAME: email sender
// - GCS_BUCKET / GCS_PROJECT_ID / GCS_CREDENTIALS_PATH: payroll statement archive

// Global service instances initialized once
var (
	routerInstance    http.Handler
	engineInstance    *settlement.Engine
	publisherInstance *rabbitmq.Publisher
	archiveInstance   *storage.GCSService
	initOnce          sync.Once
	initError         error
)

func Handler(w http.ResponseWriter, r *http.Request) {
	// Initialize services only once using sync.Once
	initOnce.Do(func() {
		routerInstance, initError = configRouter()
	})

	if initError != nil {
		logger.Fatalf("Failed to initialize services: %v", initError)
	}

	routerInstance.ServeHTTP(w, r)
}

// Shutdown waits for in-flight notifications and releases the broker and storage clients
func Shutdown(ctx context.Context) error {
	if engineInstance != nil {
		done := make(chan struct{})
		go func() {
			engineInstance.Drain()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Printf("Gave up waiting for pending notifications: %s", ctx.Err())
		}
	}

	var errs []error
	if publisherInstance != nil {
		errs = append(errs, publisherInstance.Close())
	}
	if archiveInstance != nil {
		errs = append(errs, archiveInstance.Close())
	}
	return errors.Join(errs...)
}

func configRouter() (http.Handler, error) {
	storeInstance, err := configStore()
	if err != nil {
		return nil, err
	}
	authInstance := configAuth()

	settings, err := settlement.LoadSettings()
	if err != nil {
		return nil, err
	}
	processor, err := configProcessor(settings.ProcessorTimeout)
	if err != nil {
		return nil, err
	}

	engineConfig := &settlement.Config{
		Logger:    logger,
		Store:     storeInstance,
		Processor: processor,
		Gate:      middleware.AdminGate{},
		Settings:  settings,
	}
	if sink := configNotification(storeInstance); sink != nil {
		engineConfig.Notifier = sink
	}
	if archiveInstance, err = configArchive(); err != nil {
		return nil, err
	} else if archiveInstance != nil {
		engineConfig.Archive = archiveInstance
	}

	engineInstance, err = settlement.New(engineConfig)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		gin.RecoveryWithWriter(logger.Writer()),
		middleware.CSPMiddleware(),
		middleware.CORSMiddleware(readOptionalEnvVar("ENVIRONMENT", "development"), readOptionalEnvVar("FRONTEND_URL", "")),
		middleware.AuthMiddleware(logger, storeInstance, authInstance),
	)
	handler.New(&handler.Config{
		Logger:    logger,
		Engine:    engineInstance,
		Processor: processor,
	}).Register(router)

	return router, nil
}

func readRequiredEnvVar(name string) string {
	val, ok := os.LookupEnv(name)
	if !ok {
		logger.Fatalf("Env variable not set: %s", name)
	}
	return val
}

func readOptionalEnvVar(name, defaultValue string) string {
	val, ok := os.LookupEnv(name)
	if !ok {
		return defaultValue
	}
	return val
}

func configStore() (store.Store, error) {
	rawStore, err := postgresql.Connect(readRequiredEnvVar("DATABASE_POSTGRES_URL"))
	if err != nil {
		return nil, err
	}

	if autoMigrate, _ := strconv.ParseBool(readOptionalEnvVar("DATABASE_AUTO_MIGRATE", "false")); autoMigrate {
		if err := rawStore.Migrate(); err != nil {
			return nil, err
		}
		logger.Printf("Database schema migrated")
	}
	return rawStore, nil
}

func configAuth() auth.Auth {
	return auth.New(readRequiredEnvVar("AUTH_JWT_SECRET"))
}

func configProcessor(timeout time.Duration) (payment.Processor, error) {
	return omise.New(
		readRequiredEnvVar("OMISE_PUBLIC_KEY"),
		readRequiredEnvVar("OMISE_SECRET_KEY"),
		timeout,
		logger,
	)
}

// configNotification fans out to every configured sink; nil when none is
func configNotification(storeInstance store.Store) notification.Sink {
	var sinks notification.Fanout

	if webhookURL := readOptionalEnvVar("SLACK_WEBHOOK_URL", ""); webhookURL != "" {
		timeoutSeconds := readOptionalEnvVar("SLACK_TIMEOUT_SECONDS", "5")
		timeout, _ := time.ParseDuration(timeoutSeconds + "s")
		sinks = append(sinks, slack.New(webhookURL, timeout, logger))
	} else {
		logger.Printf("SLACK_WEBHOOK_URL not set, Slack notifications disabled")
	}

	if rabbitURL := readOptionalEnvVar("RABBIT_URL", ""); rabbitURL != "" {
		publisher, err := rabbitmq.NewPublisher(rabbitURL, readOptionalEnvVar("RABBIT_EXCHANGE", "djhub.settlement"), logger)
		if err != nil {
			logger.Printf("RabbitMQ unavailable, settlement events will not be published: %s", err)
		} else {
			publisherInstance = publisher
			sinks = append(sinks, publisher)
		}
	} else {
		logger.Printf("RABBIT_URL not set, settlement events will not be published")
	}

	if apiKey := readOptionalEnvVar("SIDEMAIL_API_KEY", ""); apiKey != "" {
		sinks = append(sinks, sidemail.New(
			apiKey,
			readOptionalEnvVar("SIDEMAIL_API_URL", "https://api.sidemail.io/v1"),
			readOptionalEnvVar("SIDEMAIL_FROM_ADDRESS", "bookings@djhub.app"),
			readOptionalEnvVar("SIDEMAIL_FROM_NAME", "DJ Hub"),
			storeInstance.Users(),
			10*time.Second,
			logger,
		))
	} else {
		logger.Printf("SIDEMAIL_API_KEY not set, email notifications disabled")
	}

	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

func configArchive() (*storage.GCSService, error) {
	bucket := readOptionalEnvVar("GCS_BUCKET", "")
	if bucket == "" {
		logger.Printf("GCS_BUCKET not set, payroll statements will not be archived")
		return nil, nil
	}

	return storage.NewGCSService(
		context.Background(),
		bucket,
		readOptionalEnvVar("GCS_PROJECT_ID", ""),
		readOptionalEnvVar("GCS_CREDENTIALS_PATH", ""),
	)
}
