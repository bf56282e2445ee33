package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gametimed/internal/sched"
	logx "gametimed/pkg/logx"
)

// registerBuiltinHandlers installs the handlers every deployment gets.
// Embedding hosts add their own through App.Registry before Start.
func registerBuiltinHandlers(reg *sched.Registry, log logx.Logger) error {
	hlog := log.With(logx.String("comp", "handler.log"))
	return reg.Register("log", func(_ context.Context, args json.RawMessage) error {
		var a struct {
			Level   string `json:"level,omitempty"`
			Message string `json:"message"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &a); err != nil {
				return fmt.Errorf("log handler args: %w", err)
			}
		}
		if a.Message == "" {
			a.Message = "scheduled event fired"
		}
		switch strings.ToLower(a.Level) {
		case "warn", "warning":
			hlog.Warn(a.Message)
		case "debug":
			hlog.Debug(a.Message)
		default:
			hlog.Info(a.Message)
		}
		return nil
	})
}
