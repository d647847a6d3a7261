// Package trigger exposes inbound-message triggers over HTTP.
package trigger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/action"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/types"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/emitter"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/router"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/session"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/validation"
)

const manualTimeout = 30 * time.Second

type Controller struct {
	Registry    *Registry
	Credentials session.CredentialStore
}

func toResponse(a *Activation) types.ResponseTrigger {
	resp := types.ResponseTrigger{
		ID:        a.ID(),
		State:     a.sub.State().String(),
		Config:    a.sub.Config(),
		Emitted:   a.Emitted(),
		CreatedAt: a.CreatedAt(),
	}
	if hook := a.Webhook(); hook != nil {
		resp.Webhook = hook.URL
	}
	if err := a.sub.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (ctl *Controller) activation(c *fiber.Ctx) (*Activation, error) {
	id := c.Params("id")
	if err := validation.ValidateTriggerID(id); err != nil {
		return nil, router.ResponseBadRequest(c, err.Error())
	}
	a, err := ctl.Registry.Get(id)
	if err != nil {
		return nil, router.ResponseNotFound(c, err.Error())
	}
	return a, nil
}

// Create
// @Summary     Activate a Trigger
// @Description Opens a WhatsApp session and emits matching inbound messages until deleted.
// @Tags        Triggers
// @Accept      json
// @Produce     json
// @Success     201
// @Failure     400,422,503
// @Security    BearerAuth
// @Router      /triggers [post]
func (ctl *Controller) Create(c *fiber.Ctx) error {
	var req types.RequestTrigger
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "invalid request body")
	}
	if err := req.TriggerConfig.Validate(); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if req.Webhook != nil {
		req.Webhook.URL = strings.TrimSpace(req.Webhook.URL)
		if err := validation.ValidateURL(req.Webhook.URL); err != nil {
			return router.ResponseBadRequest(c, "webhook "+err.Error())
		}
		if ctl.Registry.deliverer != nil {
			if err := ctl.Registry.deliverer.ValidateURL(req.Webhook.URL); err != nil {
				return router.ResponseBadRequest(c, err.Error())
			}
		}
	}

	ctx := c.UserContext()
	cred, err := action.ResolveCredential(ctx, ctl.Credentials, req.RequestCredential)
	if err != nil {
		return err
	}

	a, err := ctl.Registry.Activate(ctx, req.TriggerConfig, cred, req.Webhook)
	if err != nil {
		log.Print(c).WithError(err).Warn("Trigger activation failed")
		return err
	}

	log.Trigger(a.ID()).WithField("trigger_type", req.TriggerType).Info("Trigger activated")
	return router.ResponseCreatedWithData(c, "Trigger activated", toResponse(a))
}

// List
// @Summary     List Triggers
// @Tags        Triggers
// @Produce     json
// @Success     200
// @Security    BearerAuth
// @Router      /triggers [get]
func (ctl *Controller) List(c *fiber.Ctx) error {
	activations := ctl.Registry.List()
	out := make([]types.ResponseTrigger, 0, len(activations))
	for _, a := range activations {
		out = append(out, toResponse(a))
	}
	return router.ResponseSuccessWithData(c, "", map[string]interface{}{"triggers": out})
}

// Get
// @Summary     Show Trigger Status
// @Tags        Triggers
// @Produce     json
// @Param       id path string true "Trigger ID"
// @Success     200
// @Failure     400,404
// @Security    BearerAuth
// @Router      /triggers/{id} [get]
func (ctl *Controller) Get(c *fiber.Ctx) error {
	a, err := ctl.activation(c)
	if a == nil {
		return err
	}
	return router.ResponseSuccessWithData(c, "", toResponse(a))
}

// Events
// @Summary     List Retained Trigger Events
// @Tags        Triggers
// @Produce     json
// @Param       id    path  string true  "Trigger ID"
// @Param       after query int    false "Only events with a greater sequence number"
// @Success     200
// @Failure     400,404
// @Security    BearerAuth
// @Router      /triggers/{id}/events [get]
func (ctl *Controller) Events(c *fiber.Ctx) error {
	a, err := ctl.activation(c)
	if a == nil {
		return err
	}

	var after uint64
	if raw := c.Query("after"); raw != "" {
		after, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return router.ResponseBadRequest(c, "after must be a non-negative integer")
		}
	}
	return router.ResponseSuccessWithData(c, "", map[string]interface{}{
		"state":  a.sub.State().String(),
		"events": a.Since(after),
	})
}

// Manual
// @Summary     Fire a Trigger Manually
// @Tags        Triggers
// @Produce     json
// @Param       id path string true "Trigger ID"
// @Success     200
// @Failure     400,404,409
// @Security    BearerAuth
// @Router      /triggers/{id}/manual [post]
func (ctl *Controller) Manual(c *fiber.Ctx) error {
	a, err := ctl.activation(c)
	if a == nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), manualTimeout)
	defer cancel()

	rec, err := a.sub.Manual(ctx)
	switch {
	case errors.Is(err, emitter.ErrStopped):
		return router.ResponseConflict(c, "trigger is stopped")
	case err != nil:
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccessWithData(c, rec.Message, rec)
}

// Delete
// @Summary     Stop a Trigger
// @Tags        Triggers
// @Produce     json
// @Param       id path string true "Trigger ID"
// @Success     200
// @Failure     400,404
// @Security    BearerAuth
// @Router      /triggers/{id} [delete]
func (ctl *Controller) Delete(c *fiber.Ctx) error {
	a, err := ctl.activation(c)
	if a == nil {
		return err
	}
	if err := ctl.Registry.Deactivate(a.ID()); err != nil && !errors.Is(err, ErrNotFound) {
		log.Trigger(a.ID()).WithError(err).Warn("Trigger stopped with error")
	}
	return router.ResponseSuccess(c, "Trigger stopped")
}
