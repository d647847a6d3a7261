package internal

import (
	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/auth"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/router"

	ctlAction "github.com/gdbrns/go-whatsapp-workflow-adapter/internal/action"
	ctlAdmin "github.com/gdbrns/go-whatsapp-workflow-adapter/internal/admin"
	ctlIndex "github.com/gdbrns/go-whatsapp-workflow-adapter/internal/index"
	ctlTrigger "github.com/gdbrns/go-whatsapp-workflow-adapter/internal/trigger"
)

func Routes(app *fiber.App, deps *App) {
	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		return c.SendFile("docs/swagger.json")
	})
	app.Get(router.BaseURL+"/docs/*", swagger.New(swagger.Config{
		URL: router.BaseURL + "/docs/swagger.json",
	}))

	// Admin (X-Admin-Secret)
	// ---------------------------------------------
	admin := &ctlAdmin.Controller{Triggers: deps.Triggers, Versions: deps.Versions}
	adminGroup := app.Group(router.BaseURL+"/admin", auth.AdminAuth())
	adminGroup.Post("/tokens", admin.CreateToken)
	adminGroup.Get("/health", admin.Health)
	adminGroup.Get("/whatsapp/version", admin.GetVersion)
	adminGroup.Post("/whatsapp/version/refresh", admin.RefreshVersion)

	// Actions (Bearer token)
	// ---------------------------------------------
	action := &ctlAction.Controller{Runner: deps.Runner, Credentials: deps.Credentials}
	actionGroup := app.Group(router.BaseURL+"/actions", auth.HostAuth())
	actionGroup.Get("/", action.Actions)
	actionGroup.Post("/:resource/:operation", action.Run)

	// Triggers (Bearer token)
	// ---------------------------------------------
	trigger := &ctlTrigger.Controller{Registry: deps.Triggers, Credentials: deps.Credentials}
	triggerGroup := app.Group(router.BaseURL+"/triggers", auth.HostAuth())
	triggerGroup.Post("/", trigger.Create)
	triggerGroup.Get("/", trigger.List)
	triggerGroup.Get("/:id", trigger.Get)
	triggerGroup.Get("/:id/events", trigger.Events)
	triggerGroup.Post("/:id/manual", trigger.Manual)
	triggerGroup.Delete("/:id", trigger.Delete)
}
