package config

import (
	"reflect"
	"testing"
)

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	base := &Config{
		GameTime: GameTimeConfig{SpeedFactor: 2},
		Logging:  LoggingConfig{Level: "info", Console: true},
		Storage:  &StorageConfig{Driver: "file", Path: "./state"},
	}

	t.Run("no change", func(t *testing.T) {
		t.Parallel()
		cp := *base
		changed, _, gtChanged := SummarizeConfigChange(base, &cp)
		if len(changed) != 0 || gtChanged {
			t.Errorf("changed = %v, gameTimeChanged = %v, want none", changed, gtChanged)
		}
	})

	t.Run("game_time flagged", func(t *testing.T) {
		t.Parallel()
		next := *base
		next.GameTime.SpeedFactor = 3
		changed, _, gtChanged := SummarizeConfigChange(base, &next)
		if !gtChanged {
			t.Error("game_time change should be flagged")
		}
		if !reflect.DeepEqual(changed, []string{"game_time"}) {
			t.Errorf("changed = %v, want [game_time]", changed)
		}
	})

	t.Run("logging and storage", func(t *testing.T) {
		t.Parallel()
		next := *base
		next.Logging.Level = "debug"
		next.Storage = &StorageConfig{Driver: "memory"}
		changed, attrs, gtChanged := SummarizeConfigChange(base, &next)
		if gtChanged {
			t.Error("game_time unchanged; should not be flagged")
		}
		if !reflect.DeepEqual(changed, []string{"logging", "storage"}) {
			t.Errorf("changed = %v, want [logging storage]", changed)
		}
		if len(attrs) == 0 {
			t.Error("expected structured attrs for changed sections")
		}
	})

	t.Run("nil sections treated as disabled", func(t *testing.T) {
		t.Parallel()
		next := *base
		next.Storage = nil
		changed, _, _ := SummarizeConfigChange(base, &next)
		if !reflect.DeepEqual(changed, []string{"storage"}) {
			t.Errorf("changed = %v, want [storage]", changed)
		}
	})
}
