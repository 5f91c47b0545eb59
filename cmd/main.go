package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secretary-backend/internal/config"
	"secretary-backend/internal/handler"
	"secretary-backend/internal/service"
	"secretary-backend/internal/storage"
	"secretary-backend/internal/utils"
	"secretary-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	store := newStore(cfg)

	chatService := service.NewChatService(cfg, store)
	tracker := service.NewUploadTracker(&cfg.Upload)
	publisher := service.NewPublishClient(cfg, utils.NewHTTPClient(cfg.Chat.Timeout))

	chatHandler := handler.NewChatHandler(chatService)
	uploadHandler := handler.NewUploadHandler(tracker, publisher, chatService)

	router := setupRouter(cfg, chatHandler, uploadHandler)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("Server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")
	tracker.Close()
	if err := server.Close(); err != nil {
		logger.Errorf("Server close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Errorf("Store close failed: %v", err)
	}
	logger.Info("Server stopped")
}

func newStore(cfg *config.Config) storage.Store {
	var store storage.Store

	if cfg.Storage.Type == "disk" {
		store = storage.NewDiskStore(cfg.Storage.DataDir)
	} else {
		store = storage.NewMemoryStore()
	}

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize storage, falling back to memory: %v", err)
		store = storage.NewMemoryStore()
		store.Init()
	}

	return store
}

func setupRouter(cfg *config.Config, chatHandler *handler.ChatHandler, uploadHandler *handler.UploadHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api")
	{
		chat := api.Group("/chat")
		{
			chat.POST("/send", chatHandler.SendMessage)
			chat.POST("/analysis", chatHandler.SendAnalysis)
			chat.POST("/stop", chatHandler.Stop)
			chat.GET("/messages/:session_id", chatHandler.GetMessages)
			chat.POST("/message/:message_id/confirm", chatHandler.ConfirmMessage)
			chat.DELETE("/session/:session_id", chatHandler.DeleteSession)
		}

		upload := api.Group("/upload")
		{
			upload.POST("/start", uploadHandler.StartTask)
			upload.GET("/tasks", uploadHandler.ListTasks)
			upload.DELETE("/task/:id", uploadHandler.CancelTask)
			upload.POST("/publish", uploadHandler.Publish)
		}
	}

	return router
}
