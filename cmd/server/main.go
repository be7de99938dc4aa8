package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/opendesk/backend/internal/config"
	"github.com/opendesk/backend/internal/database"
	"github.com/opendesk/backend/internal/handlers"
	"github.com/opendesk/backend/internal/middleware"
	"github.com/opendesk/backend/internal/services"
	"github.com/opendesk/backend/internal/storage"
	"github.com/opendesk/backend/pkg/logger"
	"github.com/opendesk/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	orderingService := services.NewOrderingService(db)
	exportService := services.NewExportService(cfg.Gotenberg)
	purgeService := services.NewPurgeService(db, storageClient, cfg.Purge)
	purgeService.Start()

	authHandler := handlers.NewAuthHandler(db)
	driveHandler := handlers.NewDriveHandler(db, storageClient, orderingService, cfg.MinIO.PresignExpiry)
	documentHandler := handlers.NewDocumentHandler(db, storageClient, orderingService, exportService, cfg.MinIO.PresignExpiry)
	adminHandler := handlers.NewAdminHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	driveRoutes := api.Group("/drive", authMiddleware.RequireAuth)
	driveRoutes.Get("/", driveHandler.ListContents)
	driveRoutes.Post("/folders", driveHandler.CreateFolder)
	driveRoutes.Put("/folders/:id", driveHandler.RenameFolder)
	driveRoutes.Delete("/folders/:id", driveHandler.DeleteFolder)
	driveRoutes.Post("/move", driveHandler.Move)
	driveRoutes.Post("/reorder", driveHandler.Reorder)
	driveRoutes.Post("/files/init", driveHandler.InitUpload)
	driveRoutes.Post("/files/upload", driveHandler.Upload)
	driveRoutes.Post("/files/:id/finalize", driveHandler.FinalizeUpload)
	driveRoutes.Get("/files/:id/download", driveHandler.Download)
	driveRoutes.Put("/files/:id", driveHandler.RenameFile)
	driveRoutes.Delete("/files/:id", driveHandler.DeleteFile)

	documentRoutes := api.Group("/documents", authMiddleware.RequireAuth)
	documentRoutes.Post("/", documentHandler.Create)
	documentRoutes.Get("/", documentHandler.List)
	documentRoutes.Get("/:id", documentHandler.Get)
	documentRoutes.Put("/:id", documentHandler.Update)
	documentRoutes.Delete("/:id", documentHandler.Delete)
	documentRoutes.Post("/:id/export", documentHandler.ExportDocument)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Get("/users", adminHandler.ListUsers)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":       cfg.Server.Port,
		"address":    listenAddr,
		"body_limit": "100MB",
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		purgeService.Stop()
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
