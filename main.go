package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"jansetu-be/config"
	"jansetu-be/controllers"
	"jansetu-be/middlewares"
	"jansetu-be/routes"
	"jansetu-be/services"
	"jansetu-be/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	db, err := config.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	media, err := storage.NewMediaStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}

	service := services.NewIssueService(db, media)
	ctrl := controllers.NewIssueController(service)

	r := gin.Default()
	r.Use(middlewares.Cors(cfg.CORSAllowedOrigins))

	var apiMiddleware []gin.HandlerFunc
	if cfg.RedisAddr != "" {
		rdb, err := config.ConnectRedis(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		apiMiddleware = append(apiMiddleware, middlewares.RateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow))
	}

	r.Static("/uploads", cfg.UploadDir)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routes.IssueRoutes(r, ctrl, apiMiddleware...)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
