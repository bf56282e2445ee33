package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gametimed/internal/config"
	"gametimed/internal/convert"
	"gametimed/internal/units"
)

var (
	convertFactor float64
	convertReal   float64
	convertGame   []string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between real and game time offline",
	Long: `Convert a real-seconds duration to game units, or game units to real
seconds, using the configured unit hierarchy. Reads game_time from --config
when the file exists; --factor overrides the speed factor either way.

Examples:
  gametimed convert --real 3600
  gametimed convert --game hour=2 --game min=30`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().Float64Var(&convertFactor, "factor", 0, "speed factor override (game seconds per real second)")
	convertCmd.Flags().Float64Var(&convertReal, "real", 0, "real duration in seconds to convert to game units")
	convertCmd.Flags().StringArrayVar(&convertGame, "game", nil, "game duration component as unit=value (repeatable)")
}

func runConvert(cmd *cobra.Command, _ []string) error {
	if convertReal == 0 && len(convertGame) == 0 {
		return fmt.Errorf("one of --real or --game is required")
	}
	if convertReal != 0 && len(convertGame) > 0 {
		return fmt.Errorf("--real and --game are mutually exclusive")
	}

	table, err := loadTable()
	if err != nil {
		return err
	}
	conv := convert.New(table)

	if convertReal != 0 {
		parts := conv.RealToGameParts(convertReal)
		sizes := table.DistinctSizesDesc()
		fmt.Printf("%.0f real seconds at factor %g:\n", convertReal, table.SpeedFactor())
		for i, v := range parts {
			fmt.Printf("  %-6s %d\n", table.NameFor(sizes[i]), v)
		}
		return nil
	}

	target, err := parseGameArgs(convertGame)
	if err != nil {
		return err
	}
	realSecs, err := conv.GameToReal(target)
	if err != nil {
		return err
	}
	fmt.Printf("%s of game time takes %.2f real seconds", strings.Join(convertGame, " "), realSecs)
	ladder, err := conv.GameToRealParts(target)
	if err != nil {
		return err
	}
	names := []string{"year", "month", "week", "day", "hour", "min", "sec"}
	fmt.Print(" (")
	first := true
	for i, v := range ladder {
		if v == 0 {
			continue
		}
		if !first {
			fmt.Print(" ")
		}
		fmt.Printf("%d %s", v, names[i])
		first = false
	}
	if first {
		fmt.Print("0 sec")
	}
	fmt.Println(")")
	return nil
}

// loadTable builds the unit table from the config file when present,
// otherwise from defaults. --factor wins over both.
func loadTable() (*units.Table, error) {
	gt := config.GameTimeConfig{SpeedFactor: 1}
	if cfg, err := config.NewConfigManager(cfgPath).Parse(); err == nil {
		gt = cfg.GameTime
		if gt.SpeedFactor == 0 {
			gt.SpeedFactor = 1
		}
	}
	if convertFactor != 0 {
		gt.SpeedFactor = convertFactor
	}
	return gt.Table()
}

func parseGameArgs(args []string) (map[string]int64, error) {
	out := make(map[string]int64, len(args))
	for _, arg := range args {
		for _, pair := range strings.Split(arg, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, value, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid --game component %q: want unit=value", pair)
			}
			n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid --game value in %q: %w", pair, err)
			}
			out[strings.TrimSpace(name)] = n
		}
	}
	return out, nil
}
