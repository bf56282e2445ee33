package config

import (
	"reflect"
	"sort"
	"strings"

	logx "gametimed/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections, safe
// structured attrs for logging, and whether the game_time section changed.
// game_time is immutable at runtime, so the caller rejects the reload when
// that flag is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	gameTimeChanged := oldCfg.GameTime.SpeedFactor != newCfg.GameTime.SpeedFactor ||
		!reflect.DeepEqual(oldCfg.GameTime.Units, newCfg.GameTime.Units)
	if gameTimeChanged {
		changed = append(changed, "game_time")
		attrs = append(attrs,
			logx.Float64("game_time.speed_factor", newCfg.GameTime.SpeedFactor),
			logx.Int("game_time.override_count", len(newCfg.GameTime.Units)),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage (persistence). Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// HTTP. Nil means disabled.
	var oEnabled, nEnabled bool
	var oAddr, nAddr string
	if oldCfg.HTTP != nil {
		oEnabled = oldCfg.HTTP.Enabled
		oAddr = strings.TrimSpace(oldCfg.HTTP.Addr)
	}
	if newCfg.HTTP != nil {
		nEnabled = newCfg.HTTP.Enabled
		nAddr = strings.TrimSpace(newCfg.HTTP.Addr)
	}
	if oEnabled != nEnabled || oAddr != nAddr {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", nEnabled),
			logx.String("http.addr", nAddr),
		)
	}

	// Pprof (never log token)
	var oPPEnabled, nPPEnabled, oPPTokenSet, nPPTokenSet bool
	var oPPAddr, nPPAddr string
	if oldCfg.Pprof != nil {
		oPPEnabled = oldCfg.Pprof.Enabled
		oPPAddr = strings.TrimSpace(oldCfg.Pprof.Addr)
		oPPTokenSet = strings.TrimSpace(oldCfg.Pprof.Token) != ""
	}
	if newCfg.Pprof != nil {
		nPPEnabled = newCfg.Pprof.Enabled
		nPPAddr = strings.TrimSpace(newCfg.Pprof.Addr)
		nPPTokenSet = strings.TrimSpace(newCfg.Pprof.Token) != ""
	}
	if oPPEnabled != nPPEnabled || oPPAddr != nPPAddr || oPPTokenSet != nPPTokenSet {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", nPPEnabled),
			logx.String("pprof.addr", nPPAddr),
			logx.Bool("pprof.token_set", nPPTokenSet),
		)
	}

	// Checkpoint
	if strings.TrimSpace(oldCfg.Checkpoint.Interval) != strings.TrimSpace(newCfg.Checkpoint.Interval) {
		changed = append(changed, "checkpoint")
		attrs = append(attrs,
			logx.String("checkpoint.interval", strings.TrimSpace(newCfg.Checkpoint.Interval)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, gameTimeChanged
}
