package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hlscope/metrics-engine/internal/config"
	"github.com/hlscope/metrics-engine/internal/engine"
	"github.com/hlscope/metrics-engine/internal/hyperliquid"
	"github.com/hlscope/metrics-engine/internal/model"
	"github.com/hlscope/metrics-engine/internal/normalize"
)

type globalFlags struct {
	sideFallback string
	gap          time.Duration
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "metricsctl",
		Short:         "Compute Hyperliquid wallet metrics",
		Long:          `Derives windowed PnL, trade sessions and portfolio snapshots from Hyperliquid fills and clearinghouse state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.sideFallback, "side-fallback", "sign", "side for fills without a side code: sign, buy or sell")
	root.PersistentFlags().DurationVar(&g.gap, "gap", 5*time.Minute, "maximum time from a session's first fill to a fill joining it")

	root.AddCommand(newPnLCmd(&g), newSnapshotCmd(&g), newFetchCmd(&g))
	return root
}

func (g *globalFlags) engine() (*engine.Engine, error) {
	f, err := normalize.ParseSideFallback(g.sideFallback)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.WithSideFallback(f), engine.WithSessionGap(g.gap)), nil
}

func newPnLCmd(g *globalFlags) *cobra.Command {
	var file string
	var nowMs int64

	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "Compute a PnL summary from a userFills JSON array",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := g.engine()
			if err != nil {
				return err
			}
			var raws []model.RawFill
			if err := readJSON(cmd.InOrStdin(), file, &raws); err != nil {
				return err
			}
			if !cmd.Flags().Changed("now") {
				nowMs = time.Now().UnixMilli()
			}
			summary, err := eng.ComputePnLSummaryWithGap(raws, nowMs, g.gap)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "fills file, - for stdin")
	cmd.Flags().Int64Var(&nowMs, "now", 0, "reference time in epoch ms (default: current time)")
	return cmd
}

func newSnapshotCmd(g *globalFlags) *cobra.Command {
	var file, accountValue string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Compute a wallet snapshot from a clearinghouseState JSON object",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := g.engine()
			if err != nil {
				return err
			}
			var state hyperliquid.ClearinghouseState
			if err := readJSON(cmd.InOrStdin(), file, &state); err != nil {
				return err
			}
			av := state.AccountValue()
			if accountValue != "" {
				if av, err = decimal.NewFromString(accountValue); err != nil {
					return fmt.Errorf("invalid --account-value: %w", err)
				}
			}
			return writeJSON(cmd.OutOrStdout(), eng.ComputeWalletSnapshot(state.AssetPositions, av))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "clearinghouse state file, - for stdin")
	cmd.Flags().StringVar(&accountValue, "account-value", "", "override the account value in USD")
	return cmd
}

func newFetchCmd(g *globalFlags) *cobra.Command {
	var address, baseURL string

	cmd := &cobra.Command{
		Use:       "fetch pnl|snapshot",
		Short:     "Fetch a wallet from the Hyperliquid API and compute its metrics",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"pnl", "snapshot"},
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := g.engine()
			if err != nil {
				return err
			}
			addr, err := engine.ValidateAddress(address)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			hl := cfg.Hyperliquid()
			if baseURL != "" {
				hl.BaseURL = baseURL
			}
			client := hyperliquid.NewClient(hl)
			ctx := cmd.Context()

			switch args[0] {
			case "pnl":
				raws, err := client.UserFills(ctx, addr)
				if err != nil {
					return err
				}
				summary, err := eng.ComputePnLSummary(raws, time.Now().UnixMilli())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			default:
				state, err := client.AccountState(ctx, addr)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), eng.ComputeWalletSnapshot(state.AssetPositions, state.AccountValueUsd))
			}
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "wallet address (0x...)")
	cmd.Flags().StringVar(&baseURL, "url", "", "API root (default: HYPERLIQUID_API_URL)")
	cmd.MarkFlagRequired("address")
	return cmd
}

// readJSON decodes a file, or stdin for "-", keeping numbers exact.
func readJSON(stdin io.Reader, path string, v any) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
