package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/config"
	"github.com/mirelo-edu/coursegate-api/internal/database"
	"github.com/mirelo-edu/coursegate-api/internal/handler"
	"github.com/mirelo-edu/coursegate-api/internal/middleware"
	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/observability"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/router"
	"github.com/mirelo-edu/coursegate-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.CourseBlock{},
		&models.StudentScore{},
		&models.SubsectionGrade{},
		&models.SubsectionGradeOverride{},
		&models.CourseGrade{},
		&models.Milestone{},
		&models.CourseContentMilestone{},
		&models.UserMilestone{},
		&models.CourseConfig{},
		&models.CoursePolicy{},
		&models.CourseAccessRole{},
		&models.BlockCompletion{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	observability.RegisterMetrics()
	validate := validator.New(validator.WithRequiredStructEnabled())

	rootCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	blockRepo := repository.NewBlockRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	milestoneRepo := repository.NewMilestoneRepository(db)
	configRepo := repository.NewCourseConfigRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	completionRepo := repository.NewCompletionRepository(db)

	views := service.NewStructureProvider(blockRepo, redisClient, cfg.StructureCacheTTL, logger)
	roleService := service.NewRoleService(roleRepo, logger)
	completionService := service.NewCompletionService(completionRepo, views, logger)

	var submissions service.SubmissionsScoreProvider
	if cfg.SubmissionsURL != "" {
		submissions = service.NewSubmissionsClient(cfg.SubmissionsURL, cfg.SubmissionsTimeout, logger)
	}

	scoreReader := service.NewScoreReader(scoreRepo, submissions, logger)
	subsectionGrades := service.NewSubsectionGradeService(scoreReader, gradeRepo, logger)

	policyService, err := service.NewGradingPolicyService(policyRepo, logger)
	if err != nil {
		log.Fatalf("failed to build grading policy service: %v", err)
	}
	courseGrades := service.NewCourseGradeService(subsectionGrades, policyService, gradeRepo, logger)

	ledger := service.NewMilestoneLedgerService(milestoneRepo, roleService, logger)
	gatingPolicy := service.NewGatingPolicyService(milestoneRepo, blockRepo, views, logger)
	accessService := service.NewAccessService(configRepo, milestoneRepo, blockRepo, views, ledger, roleService, logger)
	configService := service.NewCourseConfigService(configRepo, views, logger)
	progressService := service.NewProgressSummaryService(views, scoreReader, accessService, roleService, redisClient, cfg.ProgressCacheTTL, logger)

	unlocks := service.NewUnlockPublisher(redisClient, cfg.UnlockChannel, natsConn, logger)
	unlocks.Start(rootCtx)

	evaluator := service.NewGatingEvaluator(configRepo, milestoneRepo, views, subsectionGrades, ledger, completionService, unlocks, logger)
	gradeListener := service.NewGradeUpdateListener(configRepo, views, subsectionGrades, courseGrades, logger)

	dispatcher := service.NewScoreDispatcher(logger)
	dispatcher.Register(gradeListener)
	dispatcher.Register(evaluator)
	dispatcher.Register(progressService)

	scoreService := service.NewScoreService(scoreRepo, blockRepo, dispatcher, logger)

	scoreHandler := handler.NewScoreHandler(scoreService, validate, logger)
	gradeHandler := handler.NewGradeHandler(configService, views, roleService, subsectionGrades, courseGrades, validate, logger)
	gatingHandler := handler.NewGatingHandler(gatingPolicy, ledger, validate, logger)
	accessHandler := handler.NewAccessHandler(accessService, logger)
	progressHandler := handler.NewProgressHandler(progressService, completionService, validate, logger)
	configHandler := handler.NewConfigHandler(configService, policyService, validate, logger)
	roleHandler := handler.NewRoleHandler(roleService, validate, logger)
	unlockHandler := handler.NewUnlockHandler(unlocks, logger, cfg.SSEKeepAlive)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	app.Get("/metrics", observability.MetricsHandler())
	router.Register(app, cfg, router.Dependencies{
		ScoreHandler:    scoreHandler,
		GradeHandler:    gradeHandler,
		GatingHandler:   gatingHandler,
		AccessHandler:   accessHandler,
		ProgressHandler: progressHandler,
		ConfigHandler:   configHandler,
		RoleHandler:     roleHandler,
		UnlockHandler:   unlockHandler,
		HealthHandler:   handler.HealthCheck(cfg, db, redisClient),
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
