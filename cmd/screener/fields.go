package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/options-screener/internal/catalog"
	"github.com/dgnsrekt/options-screener/internal/config"
	"github.com/dgnsrekt/options-screener/internal/filter"
)

func fieldsCmd() *cobra.Command {
	var showSort bool

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List every filter key with its type and data window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTYPE\tWINDOW\tGROUP\tDESCRIPTION")
			for _, key := range catalog.Keys() {
				d, _ := catalog.Resolve(key)
				group := d.Field.Group
				if group == "" {
					group = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", key, d.Type, d.Field.Window, group, d.Field.Doc)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\nlimit defaults to %d and is capped at %d; order-by defaults to %s\n",
				filter.DefaultLimit, filter.MaxLimit, catalog.DefaultSortToken)
			if showSort {
				fmt.Printf("order-by tokens: %s\n", strings.Join(catalog.SortTokens(), ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSort, "sort", false, "also list every order-by token")
	return cmd
}

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List presets and validate their filter settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := config.ListPresets(cfg.Screen.PresetDir)
			if err != nil {
				return err
			}

			invalid := 0
			for _, name := range names {
				path, err := config.ResolvePreset(cfg.Screen.PresetDir, name)
				if err != nil {
					return err
				}
				raw, err := config.LoadPreset(path)
				if err == nil {
					_, err = filter.Parse(raw)
				}
				if err != nil {
					invalid++
					fmt.Printf("%s  INVALID\n%s\n", name, indent(err.Error()))
					continue
				}
				fmt.Printf("%s  ok (%d keys)\n", name, len(raw))
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d presets are invalid", invalid, len(names))
			}
			return nil
		},
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
