package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"workbee/internal/adapter/api"
	"workbee/internal/adapter/api/handler"
	apimiddleware "workbee/internal/adapter/api/middleware"
	"workbee/internal/adapter/api/router"
	"workbee/internal/adapter/repository"
	domainrepo "workbee/internal/domain/repository"
	"workbee/internal/domain/service"
	"workbee/internal/infrastructure/firebase"
	"workbee/internal/infrastructure/kafka"
	"workbee/internal/infrastructure/ratelimit"
	"workbee/internal/infrastructure/scheduler"
	"workbee/internal/infrastructure/websocket"
	"workbee/internal/usecase"
	"workbee/pkg/config"
	"workbee/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger().Fatalf("Failed to load configuration: %v", err)
	}
	logger.Configure(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := credentialOptions(cfg)

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		logger.Logger().Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		logger.Logger().Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	var (
		convRepo domainrepo.ConversationRepository
		jobRepo  domainrepo.JobRepository
	)
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("Using in-memory storage; data is lost on restart")
		store := repository.NewMemoryStore()
		convRepo = repository.NewMemoryConversationRepository(store)
		jobRepo = repository.NewMemoryJobRepository(store)
	default:
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			logger.Logger().Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()
		convRepo = repository.NewFirestoreConversationRepository(firestoreClient)
		jobRepo = repository.NewFirestoreJobRepository(firestoreClient)
	}

	var publisher service.EventPublisher = service.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Logger().Fatalf("Failed to connect to Kafka: %v", err)
		}
		defer producer.Close()
		publisher = kafka.NewEventPublisher(producer, cfg.KafkaTopic)
		logger.Info("Publishing job events to Kafka topic %s", cfg.KafkaTopic)
	}

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	limiter := ratelimit.NewRateLimiter()
	paymentGateway := service.NewPaystackPaymentService(cfg.PaystackSecretKey, cfg.PaystackBaseURL)

	conversationUseCase := usecase.NewConversationUseCase(convRepo, wsManager, limiter)
	materializer := usecase.NewJobMaterializer(convRepo, jobRepo, cfg.Currency)
	proposalUseCase := usecase.NewProposalUseCase(conversationUseCase, convRepo, jobRepo, materializer, publisher, wsManager)
	jobUseCase := usecase.NewJobUseCase(jobRepo, conversationUseCase, publisher, wsManager)
	paymentUseCase := usecase.NewPaymentUseCase(jobRepo, jobUseCase, paymentGateway, cfg.PaystackCallbackURL)

	jobs := scheduler.New(2 * time.Minute)
	expiry := usecase.NewProposalExpiryJob(convRepo, proposalUseCase, cfg.ProposalTTL)
	if expiry.Enabled() {
		if err := jobs.Register(cfg.ProposalExpirySchedule, expiry); err != nil {
			logger.Logger().Fatalf("Invalid PROPOSAL_EXPIRY_SCHEDULE %q: %v", cfg.ProposalExpirySchedule, err)
		}
	}
	if err := jobs.Register("@every 1h", scheduler.Func{
		JobName: "rate-limit-cleanup",
		Fn: func(context.Context) error {
			if removed := limiter.Cleanup(2 * time.Hour); removed > 0 {
				logger.Debug("Dropped %d idle rate limit buckets", removed)
			}
			return nil
		},
	}); err != nil {
		logger.Logger().Fatalf("Failed to schedule rate limit cleanup: %v", err)
	}
	jobs.Start()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(firebase.NewFirebaseAuthClient(authClient))

	router.Setup(e, router.Handlers{
		Health:       handler.NewHealthHandler(cfg.StorageDriver),
		Conversation: handler.NewConversationHandler(conversationUseCase),
		Proposal:     handler.NewProposalHandler(proposalUseCase, conversationUseCase, materializer),
		Job:          handler.NewJobHandler(jobUseCase),
		Payment:      handler.NewPaymentHandler(paymentUseCase),
		WebSocket:    handler.NewWebSocketHandler(wsManager, conversationUseCase),
	}, authMiddleware, limiter)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			logger.Logger().Fatalf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	jobs.Stop(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}

// credentialOptions prefers inline service account JSON (production), then the
// key file (local development), then application default credentials.
func credentialOptions(cfg *config.Config) []option.ClientOption {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))}
	}
	if cfg.FirebaseServiceAccountPath != "" {
		if _, err := os.Stat(cfg.FirebaseServiceAccountPath); err == nil {
			logger.Info("Using Firebase service account from file: %s", cfg.FirebaseServiceAccountPath)
			return []option.ClientOption{option.WithCredentialsFile(cfg.FirebaseServiceAccountPath)}
		}
	}
	logger.Warn("No service account configured; using application default credentials")
	return nil
}
