package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coach-onboarding/internal/application/audit"
	"github.com/coach-onboarding/internal/application/invitation"
	"github.com/coach-onboarding/internal/application/session"
	"github.com/coach-onboarding/internal/config"
	"github.com/coach-onboarding/internal/infrastructure/dynamo"
	jwtinfra "github.com/coach-onboarding/internal/infrastructure/jwt"
	"github.com/coach-onboarding/internal/infrastructure/memstore"
	"github.com/coach-onboarding/internal/infrastructure/redisstore"
	s3infra "github.com/coach-onboarding/internal/infrastructure/s3"
	"github.com/coach-onboarding/internal/infrastructure/smtp"
	"github.com/coach-onboarding/internal/infrastructure/sns"
	"github.com/coach-onboarding/internal/pkg/seal"
	transporthttp "github.com/coach-onboarding/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	sessionStore, invitationStore := buildStores(cfg)

	sessionKey, err := cfg.SessionKey()
	if err != nil {
		log.Fatalf("session encryption: %v", err)
	}
	cipher, err := seal.New(sessionKey)
	if err != nil {
		log.Fatalf("session encryption: %v", err)
	}

	// Event publishing (optional).
	var publisher audit.Publisher
	if cfg.EventsTopicARN != "" {
		if client, err := sns.NewClient(cfg); err == nil {
			publisher = sns.NewPublisher(client, cfg.EventsTopicARN)
		} else {
			log.Printf("WARN: SNS publisher not available: %v", err)
		}
	}
	auditLog := audit.New(logger, publisher)

	// Session archive (optional).
	var archiver session.Archiver
	if cfg.ArchiveBucket != "" {
		if client, err := s3infra.NewClient(cfg); err == nil {
			archiver = s3infra.NewArchiver(client, cfg.ArchiveBucket)
		} else {
			log.Printf("WARN: session archive not available: %v", err)
		}
	}

	// Invitations (optional: disabled when no signing key is available).
	var invitationSvc invitation.Service
	if key, err := cfg.InvitationSigningKey(); err == nil {
		provider, err := jwtinfra.NewProvider(key)
		if err != nil {
			log.Fatalf("invitation signing: %v", err)
		}
		invitationSvc = invitation.NewService(invitationStore, provider, smtp.NewMailer(cfg), auditLog, cfg.InvitationTTL, cfg.OnboardingBaseURL)
	} else {
		log.Printf("WARN: invitations disabled: %v", err)
	}

	deps := session.ServiceDeps{
		Store:      sessionStore,
		Sealer:     cipher,
		Archiver:   archiver,
		Audit:      auditLog,
		DefaultTTL: cfg.SessionDefaultTTL,
		MaxTTL:     cfg.SessionMaxTTL,
	}
	if invitationSvc != nil {
		deps.Invitations = invitationSvc
	}
	sessionSvc := session.NewService(deps)

	stopSweeper := func() {}
	if cfg.SweepSchedule != "" {
		stop, err := session.StartSweeper(cfg.SweepSchedule, sessionSvc, time.Minute)
		if err != nil {
			log.Fatalf("invalid SESSION_SWEEP_SCHEDULE %q: %v", cfg.SweepSchedule, err)
		}
		stopSweeper = stop
	}

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Sessions:    sessionSvc,
		Invitations: invitationSvc,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, backend=%s)", cfg.AppPort, cfg.AppEnv, cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// buildStores selects the session backend. Invitations live in DynamoDB
// unless everything runs in memory.
func buildStores(cfg *config.Config) (session.Store, invitation.Store) {
	if cfg.SessionBackend == config.BackendMemory {
		if cfg.IsProduction() {
			log.Fatal("SESSION_BACKEND=memory is not allowed in production")
		}
		return memstore.NewSessionStore(), memstore.NewInvitationStore()
	}

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(cfg)
	if err != nil {
		log.Fatalf("dynamodb: %v", err)
	}
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)
	invitations := dynamo.NewInvitationRepo(dynamoClient, cfg.DynamoTables.Invitations)

	switch cfg.SessionBackend {
	case config.BackendRedis:
		store, err := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		return store, invitations
	case config.BackendDynamo:
		return dynamo.NewOnboardingSessionRepo(dynamoClient, cfg.DynamoTables.OnboardingSessions), invitations
	default:
		log.Fatalf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
		return nil, nil
	}
}
