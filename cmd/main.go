package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"djhub-api/api"
	"djhub-api/res/auth"
	"djhub-api/res/store"
	"djhub-api/res/store/postgresql"
	"djhub-api/res/tracing"

	"github.com/joho/godotenv"
)

var logger = log.New(os.Stdout, "(cmd/main.go)", log.LstdFlags|log.LUTC|log.Llongfile)

const version = "1.0.0"

func main() {
	mintTokenFor := flag.String("mint-admin-token", "", "print an access token for the global admin with this email and exit")
	flag.Parse()

	// Load .env file in development
	// Try multiple locations: current dir, djhub-api/
	err := godotenv.Load()
	if err != nil {
		err = godotenv.Load("djhub-api/.env")
	}
	if err != nil {
		logger.Printf("Note: .env file not found, using system environment variables")
	}

	if *mintTokenFor != "" {
		token, err := mintAdminToken(*mintTokenFor)
		if err != nil {
			logger.Fatalf("Failed to mint admin token: %v", err)
		}
		fmt.Println(token)
		return
	}

	port := readRequiredEnvVar("PORT")
	environment := readRequiredEnvVar("ENVIRONMENT")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := func(context.Context) error { return nil }
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		shutdownTracer, err = tracing.InitTracer(ctx, "djhub-api", version, environment, endpoint)
		if err != nil {
			logger.Printf("Warning: tracing disabled: %v", err)
			shutdownTracer = func(context.Context) error { return nil }
		}
	}

	// Bootstrap global admin if GLOBAL_ADMIN_EMAIL is set
	if globalAdminEmail := os.Getenv("GLOBAL_ADMIN_EMAIL"); globalAdminEmail != "" {
		if err := bootstrapGlobalAdmin(ctx, globalAdminEmail); err != nil {
			logger.Printf("Warning: Failed to bootstrap global admin: %v", err)
		} else {
			logger.Printf("Successfully checked/updated global admin: %s", globalAdminEmail)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/", api.Handler)
	mux.HandleFunc("/webhooks/", api.Handler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("Starting server on :%s (environment: %s)\n", port, environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Error shutting down server: %v", err)
	}
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Error releasing services: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Printf("Error flushing traces: %v", err)
	}
}

func readRequiredEnvVar(name string) string {
	val, ok := os.LookupEnv(name)
	if !ok {
		logger.Fatalf("Env variable not set: %s", name)
	}
	return val
}

func bootstrapGlobalAdmin(ctx context.Context, email string) error {
	// Connect to database
	dbURL := readRequiredEnvVar("DATABASE_POSTGRES_URL")
	storeInstance, err := postgresql.Connect(dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Find user by email
	user, err := storeInstance.Users().GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user with email %s: %w", email, err)
	}

	// If user already has global admin role, nothing to do
	if user.Role == store.UserRoleGlobalAdmin {
		logger.Printf("User %s already has global admin role", email)
		return nil
	}

	_, err = storeInstance.Users().UpdateRole(ctx, user.ID, store.UserRoleGlobalAdmin)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}

	logger.Printf("Successfully promoted user %s to global admin", email)
	return nil
}

// mintAdminToken issues an access token for an existing global admin.
// There is no interactive login; operators mint tokens with this command.
func mintAdminToken(email string) (string, error) {
	storeInstance, err := postgresql.Connect(readRequiredEnvVar("DATABASE_POSTGRES_URL"))
	if err != nil {
		return "", fmt.Errorf("failed to connect to database: %w", err)
	}

	user, err := storeInstance.Users().GetByEmail(context.Background(), email)
	if err != nil {
		return "", fmt.Errorf("failed to find user with email %s: %w", email, err)
	}
	if !user.IsGlobalAdmin() {
		return "", fmt.Errorf("user %s is not a global admin", email)
	}

	return auth.New(readRequiredEnvVar("AUTH_JWT_SECRET")).GenerateAccessToken(user.ID)
}
