package main

// @title Go WhatsApp Workflow Adapter
// @version 1.0.0
// @description WhatsApp actions and inbound-message triggers for workflow automation hosts

// @BasePath /

// @securityDefinitions.apikey AdminAuth
// @in header
// @name X-Admin-Secret
// @description Admin secret key for minting host tokens

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token for actions and triggers

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/router"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal"
)

type Server struct {
	Address string
	Port    string
}

func main() {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	app := fiber.New(fiber.Config{
		ErrorHandler:   router.HttpErrorHandler,
		BodyLimit:      router.BodyLimitBytes(),
		ReadBufferSize: 8192,
	})

	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "docs")
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Secret",
		AllowMethods: "GET,POST,DELETE",
	}))

	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	app.Use(router.HttpCacheInMemory(router.CacheTTLSeconds, router.BaseURL+"/docs"))
	app.Use(router.HttpRealIP())
	app.Use(router.HttpRateLimit(router.RateLimitPerSecond, router.RateLimitBurst))

	app.Get("/favicon.ico", router.ResponseNoContent)

	deps, err := internal.Startup(context.Background())
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	internal.Routes(app, deps)
	internal.Routines(c, deps)

	var serverConfig Server
	serverConfig.Address = env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")
	serverConfig.Port = env.GetEnvStringOrDefault("SERVER_PORT", "7001")

	go func() {
		if err := app.Listen(serverConfig.Address + ":" + serverConfig.Port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := app.ShutdownWithContext(ctxShutdown); err != nil {
		log.Print(nil).Error(err.Error())
	}

	// Triggers hold live WhatsApp sessions; release them before exiting.
	deps.Shutdown()
	<-c.Stop().Done()
}
