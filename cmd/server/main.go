package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mikeboe/deep-search/pkg/bootstrap"
	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	cfg := config.Load()

	app, err := bootstrap.New(context.Background(), cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var logs server.LogStore
	if app.DB != nil {
		logs = app.DB
	} else {
		slog.Warn("DATABASE_URL not set, run logs are not persisted")
	}

	svc := server.NewService(app.NewEngine, logs, cfg.RequestTimeout)
	handler := server.NewHandler(svc)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Run-Id", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))

	handler.RegisterRoutes(r)

	slog.Info("Server starting", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
