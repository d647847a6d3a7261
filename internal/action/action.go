// Package action exposes the outbound dispatcher over HTTP.
package action

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/internal/types"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/dispatch"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/router"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/session"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/whatsapp"
)

type Controller struct {
	Runner      *dispatch.Runner
	Credentials session.CredentialStore
}

// ResolveCredential returns the inline credential or loads the named one.
func ResolveCredential(ctx context.Context, store session.CredentialStore, req types.RequestCredential) (session.Credential, error) {
	if req.Credential != nil {
		return *req.Credential, nil
	}
	if store == nil {
		return session.Credential{}, whatsapp.ConfigurationError("resolve credential", errors.New("no credential given and no credential store configured"))
	}
	cred, err := store.Load(ctx, strings.TrimSpace(req.CredentialName))
	if err != nil {
		return session.Credential{}, whatsapp.ConfigurationError("resolve credential", err)
	}
	return cred, nil
}

// Actions
// @Summary     List Supported Actions
// @Tags        Actions
// @Produce     json
// @Success     200
// @Security    BearerAuth
// @Router      /actions [get]
func (ctl *Controller) Actions(c *fiber.Ctx) error {
	actions := ctl.Runner.Dispatcher.Actions()
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, a.String())
	}
	return router.ResponseSuccessWithData(c, "", map[string]interface{}{"actions": names})
}

// Run
// @Summary     Run One Action Over a Batch of Items
// @Description Opens one WhatsApp session, runs every item in order and closes the session.
// @Tags        Actions
// @Accept      json
// @Produce     json
// @Param       resource  path string true "message, chat or contact"
// @Param       operation path string true "send, sendMedia, get or getAll"
// @Success     200
// @Failure     400,404,422,502,503
// @Security    BearerAuth
// @Router      /actions/{resource}/{operation} [post]
func (ctl *Controller) Run(c *fiber.Ctx) error {
	act := dispatch.Action{
		Resource:  c.Params("resource"),
		Operation: c.Params("operation"),
	}
	if !ctl.Runner.Dispatcher.Supports(act) {
		return router.ResponseNotFound(c, "unsupported action "+act.String())
	}

	var req types.RequestAction
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "invalid request body")
	}
	if len(req.Items) == 0 {
		return router.ResponseBadRequest(c, "items cannot be empty")
	}

	ctx := c.UserContext()
	cred, err := ResolveCredential(ctx, ctl.Credentials, req.RequestCredential)
	if err != nil {
		return err
	}

	start := time.Now()
	logger := log.Action(act.Resource, act.Operation)
	results, err := ctl.Runner.Run(ctx, dispatch.Batch{
		Action:         act,
		Credential:     cred,
		Items:          req.Items,
		ContinueOnFail: req.ContinueOnFail,
	})
	logger = logger.WithField("items", len(req.Items)).WithField("duration", time.Since(start).String())
	if err != nil {
		logger.WithError(err).Warn("Action failed")

		var itemErr *dispatch.ItemError
		if errors.As(err, &itemErr) {
			// Strict mode: report what already ran next to the failure.
			return router.ResponseErrorWithData(c, router.StatusForError(err), whatsapp.KindOf(err), err.Error(),
				types.ResponseAction{Action: act.String(), Results: results})
		}
		return err
	}

	logger.Info("Action completed")
	return router.ResponseSuccessWithData(c, "", types.ResponseAction{Action: act.String(), Results: results})
}
