package internal

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/env"
	"github.com/gdbrns/go-whatsapp-workflow-adapter/pkg/log"
)

func Routines(c *cron.Cron, app *App) {
	log.Print(nil).Info("Running Routine Tasks")

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true) {
		_, err := c.AddFunc("0 */5 * * * *", func() {
			if len(app.Triggers.List()) == 0 {
				return
			}
			listening, stopped := app.Triggers.HealthCheck()
			log.Print(nil).WithField("listening", listening).WithField("stopped", stopped).Info("Trigger health check")
		})
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add health check cron job")
		}
	} else {
		log.Print(nil).Info("Health check cron disabled")
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false) {
		spec := waVersionRefreshCronSpec()
		force := env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false)
		_, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			status, refreshed, err := app.Versions.Refresh(ctx, force)
			v := status.CurrentVersion
			version := strconv.FormatUint(uint64(v[0]), 10) + "." + strconv.FormatUint(uint64(v[1]), 10) + "." + strconv.FormatUint(uint64(v[2]), 10)
			if err != nil {
				log.Print(nil).WithField("version", version).WithField("force", force).Error("WA Web version refresh failed: " + err.Error())
				return
			}
			log.Print(nil).WithField("version", version).WithField("refreshed", refreshed).Info("WA Web version refresh completed")
		})
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add WA Web version refresh cron job")
		} else {
			log.Print(nil).WithField("spec", spec).WithField("force", force).Info("WA Web version refresh cron enabled")
		}
	}

	c.Start()
}

// waVersionRefreshCronSpec uses the seconds field. Default: daily at 03:00:00.
func waVersionRefreshCronSpec() string {
	spec := strings.TrimSpace(env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", ""))
	if spec == "" {
		return "0 0 3 * * *"
	}
	return spec
}
