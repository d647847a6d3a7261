// Package admin holds the X-Admin-Secret endpoints.
package admin

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/trigger"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/types"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/auth"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/router"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/validation"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

type Controller struct {
	Triggers *trigger.Registry
	Versions *whatsapp.VersionRefresher
}

// @Summary     Create Host Token
// @Description Mint a bearer token for a workflow host (Admin only)
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     201
// @Failure     400,401,500
// @Router      /admin/tokens [post]
func (ctl *Controller) CreateToken(c *fiber.Ctx) error {
	var req types.RequestToken
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	req.Host = strings.TrimSpace(req.Host)
	if err := validation.ValidateHostName(req.Host); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	var ttl time.Duration
	if raw := strings.TrimSpace(req.TTL); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return router.ResponseBadRequest(c, "ttl must be a positive duration such as 720h")
		}
		ttl = parsed
	}

	token, err := auth.GenerateHostToken(req.Host, ttl)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to create token: "+err.Error())
	}

	resp := types.ResponseToken{Token: token, Host: req.Host}
	if ttl > 0 {
		expires := time.Now().Add(ttl).UTC()
		resp.ExpiresAt = &expires
	}
	return router.ResponseCreatedWithData(c, "Token created", resp)
}

// @Summary     Show Trigger Health
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200
// @Router      /admin/health [get]
func (ctl *Controller) Health(c *fiber.Ctx) error {
	listening, stopped := ctl.Triggers.HealthCheck()
	total := len(ctl.Triggers.List())
	return router.ResponseSuccessWithData(c, "", map[string]interface{}{
		"triggers":  total,
		"listening": listening,
		"stopped":   stopped,
		"pending":   total - listening - stopped,
	})
}

// @Summary     Show WhatsApp Web Version
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200
// @Router      /admin/whatsapp/version [get]
func (ctl *Controller) GetVersion(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "", ctl.Versions.Status())
}

// @Summary     Refresh WhatsApp Web Version
// @Description Fetch the latest WhatsApp Web version. Throttled unless force=true.
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Param       force query bool false "Ignore the minimum refresh interval"
// @Success     200
// @Failure     502
// @Router      /admin/whatsapp/version/refresh [post]
func (ctl *Controller) RefreshVersion(c *fiber.Ctx) error {
	status, refreshed, err := ctl.Versions.Refresh(c.UserContext(), c.QueryBool("force", false))
	if err != nil {
		return router.ResponseErrorWithData(c, fiber.StatusBadGateway, "", err.Error(), status)
	}
	return router.ResponseSuccessWithData(c, "", map[string]interface{}{
		"refreshed": refreshed,
		"status":    status,
	})
}
