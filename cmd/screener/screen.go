package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/catalog"
	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/screener"
)

func screenCmd() *cobra.Command {
	var (
		preset      string
		sets        []string
		date        string
		tickers     []string
		asJSON      bool
		explain     string
		sendNotify  bool
		showRejects bool
	)

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Screen option chains with a preset and/or key=value filters",
		Long: `Screen the option chains stored for a trading date.

Filters come from a preset in the preset directory (.ini with a [FILTER]
section, or .yaml with a filter: map) and/or --set key=value overrides.
Run "options-screener fields" to list every accepted key.

Examples:
  # Screen the latest date with a preset
  options-screener screen --preset high_iv

  # Ad-hoc filter on a specific date
  options-screener screen --date 2025-11-14 --set calls=true --set min-voi=2 --set order-by=voi_desc

  # Why was GME rejected?
  options-screener screen --preset high_iv --explain GME`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			overrides, err := parseSets(sets)
			if err != nil {
				return err
			}
			raw, err := loadFilter(preset, overrides)
			if err != nil {
				return err
			}

			date, err := resolveDate(date)
			if err != nil {
				return err
			}

			var load []string
			if len(tickers) > 0 {
				load = effectiveTickers(tickers)
			}

			loader := data.NewFileLoader(cfg.Data.Directory, logger)
			records, err := loader.Load(ctx, date, load)
			if err != nil {
				return fmt.Errorf("loading records for %s: %w", date, err)
			}

			engine := screener.NewEngine(cfg.Screen.Workers, nil, logger)
			res, err := engine.Run(ctx, raw, records)
			if err != nil {
				return err
			}

			if asJSON {
				err = writeJSON(os.Stdout, date, preset, res, explain)
			} else {
				err = writeTable(os.Stdout, date, preset, res, explain, showRejects)
			}
			if err != nil {
				return err
			}

			if sendNotify {
				notifier := newNotifier(cfg, logger)
				if err := notifier.SendScreen(ctx, presetLabel(preset), date, res); err != nil {
					logger.Warn("failed to send notification", zap.Error(err))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&preset, "preset", "p", "", "preset name in the preset directory, or a path to a preset file")
	cmd.Flags().StringArrayVarP(&sets, "set", "s", nil, "filter override as key=value (repeatable)")
	cmd.Flags().StringVarP(&date, "date", "d", "latest", "trading date (YYYY-MM-DD or latest)")
	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "only load these tickers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write the result as JSON")
	cmd.Flags().StringVar(&explain, "explain", "", "list why each contract of this ticker was rejected")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "send the result to ntfy")
	cmd.Flags().BoolVar(&showRejects, "rejections", false, "show rejection counts per key")

	return cmd
}

func presetLabel(preset string) string {
	if preset == "" {
		return "ad-hoc"
	}
	return preset
}

type jsonExplain struct {
	ContractSymbol string             `json:"contract_symbol"`
	Failures       []screener.Failure `json:"failures"`
}

type jsonResult struct {
	Date       string                    `json:"date"`
	Preset     string                    `json:"preset,omitempty"`
	OrderBy    string                    `json:"order_by"`
	Evaluated  int                       `json:"evaluated"`
	Passed     int                       `json:"passed"`
	Matches    []*data.OptionRecord      `json:"matches"`
	Rejections []screener.RejectionCount `json:"rejections"`
	Explain    []jsonExplain             `json:"explain,omitempty"`
}

func writeJSON(w io.Writer, date, preset string, res *screener.Result, explain string) error {
	out := jsonResult{
		Date:       date,
		Preset:     preset,
		OrderBy:    res.Spec.Order().Token,
		Evaluated:  res.Evaluated,
		Passed:     res.Passed,
		Matches:    make([]*data.OptionRecord, 0, len(res.Matches)),
		Rejections: res.RejectionCounts(),
	}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, m.Record)
	}
	if explain != "" {
		for _, v := range res.Explain(explain) {
			out.Explain = append(out.Explain, jsonExplain{ContractSymbol: v.Record.ContractSymbol, Failures: v.Failures})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeTable(w io.Writer, date, preset string, res *screener.Result, explain string, showRejects bool) error {
	fmt.Fprintf(w, "%s  preset=%s  order=%s  evaluated=%d  passed=%d  shown=%d\n\n",
		date, presetLabel(preset), res.Spec.Order().Token, res.Evaluated, res.Passed, len(res.Matches))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCONTRACT\tTYPE\tSTRIKE\tEXPIRY\tDTE\tLAST\tIV\tDELTA\tOI\tVOL")
	for i, m := range res.Matches {
		r := m.Record
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.ContractSymbol, r.Type, r.Strike, r.Expiration, catalog.DaysToExpiration(r),
			r.LastPrice, r.ImpliedVol, r.Delta, r.OpenInterest, r.Volume)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if showRejects {
		fmt.Fprintln(w, "\nRejections by key:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, rc := range res.RejectionCounts() {
			fmt.Fprintf(tw, "  %s\t%d\n", rc.Key, rc.Count)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if explain != "" {
		rejected := res.Explain(explain)
		fmt.Fprintf(w, "\n%s: %d rejected contracts\n", data.NormalizeTicker(explain), len(rejected))
		for _, v := range rejected {
			fmt.Fprintf(w, "  %s\n", v.Record.ContractSymbol)
			for _, f := range v.Failures {
				fmt.Fprintf(w, "    %s: %s\n", f.Key, f.Reason)
			}
		}
	}
	return nil
}

