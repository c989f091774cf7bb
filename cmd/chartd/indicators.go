package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stockchart/internal/fetch"
	"stockchart/internal/indicator"
	"stockchart/internal/interval"
	"stockchart/internal/model"
)

var indicatorsOpts struct {
	stock    string
	interval string
	overlays string
	full     bool
}

var indicatorsCmd = &cobra.Command{
	Use:   "indicators",
	Short: "Fetch one page of history and print indicator values",
	Long: `Fetches the newest page of bars for a stock and prints the latest value of
every overlay. Overlays come from a YAML file:

  indicators:
    - {type: sma, length: 12}
    - {type: ema, length: 200}
  advanced: {type: macd, fast: 12, slow: 26, signal: 9}

Without --overlays an SMA(12) and RSI(14) are computed.`,
	RunE: runIndicators,
}

func init() {
	f := indicatorsCmd.Flags()
	f.StringVarP(&indicatorsOpts.stock, "stock", "s", "", "stock symbol (default poller.default_stock)")
	f.StringVarP(&indicatorsOpts.interval, "interval", "i", "", "interval code (default poller.default_interval)")
	f.StringVarP(&indicatorsOpts.overlays, "overlays", "o", "", "YAML overlay file")
	f.BoolVar(&indicatorsOpts.full, "full", false, "print every overlay point instead of the latest values")
}

func loadOverlays(path string) (indicator.Overlays, error) {
	if path == "" {
		rsi := indicator.DefaultAdvanced(indicator.TypeRSI)
		return indicator.Overlays{
			Simple:   []indicator.SimpleSpec{{Type: indicator.TypeSMA, Length: indicator.NextSimpleLength(nil)}},
			Advanced: &rsi,
		}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return indicator.Overlays{}, errors.Wrap(err, "read overlays")
	}
	var o indicator.Overlays
	if err := yaml.Unmarshal(data, &o); err != nil {
		return indicator.Overlays{}, errors.Wrapf(err, "parse %s", path)
	}
	if err := indicator.Validate(o); err != nil {
		return indicator.Overlays{}, err
	}
	return o.Clamped(), nil
}

func runIndicators(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup("chartd-indicators")
	if err != nil {
		return err
	}
	defer log.Sync()

	stock := strings.ToUpper(indicatorsOpts.stock)
	if stock == "" {
		stock = strings.ToUpper(cfg.Poller.DefaultStock)
	}
	code := cfg.DefaultCode()
	if indicatorsOpts.interval != "" {
		if code, err = interval.Parse(indicatorsOpts.interval); err != nil {
			return err
		}
	}
	o, err := loadOverlays(indicatorsOpts.overlays)
	if err != nil {
		return err
	}

	api := fetch.New(fetch.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
		Log:       log,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout+5*time.Second)
	defer cancel()
	bars, err := api.FetchHistory(ctx, stock, code, 0, 0)
	if err != nil {
		return err
	}

	ser := model.Series{Data: bars, Complete: len(bars) < cfg.API.PageLimit, LastUpdate: time.Now()}
	engine := indicator.NewEngine(log)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if indicatorsOpts.full {
		return enc.Encode(engine.Compute(ser, o))
	}
	return enc.Encode(struct {
		Stock    string              `json:"stock"`
		Interval interval.Code       `json:"interval"`
		Bars     int                 `json:"bars"`
		Latest   []indicator.Reading `json:"latest"`
	}{stock, code, len(bars), engine.Latest(ser, o)})
}
