// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package main provides the entrypoint of bridgectl, an executable for
// interacting with a local bridged instance from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/apd/v3"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/quantumbridge/bridge/common"
	"github.com/quantumbridge/bridge/rpcclient"
)

const (
	flagEndpoint  = "endpoint"
	flagUserID    = "user-id"
	flagFromChain = "from-chain"
	flagToChain   = "to-chain"
	flagFromToken = "from-token"
	flagToToken   = "to-token"
	flagAmountIn  = "amount-in"
	flagRecipient = "recipient"
	flagSwapID    = "swap-id"
	flagAllow     = "allow"
)

var endpointFlag = &cli.StringFlag{
	Name:    flagEndpoint,
	Aliases: []string{"e"},
	Usage:   "bridged's JSON-RPC endpoint",
	Value:   "http://127.0.0.1:8546",
	EnvVars: []string{"BRIDGECTL_ENDPOINT"},
}

func cliApp() *cli.App {
	return &cli.App{
		Name:  "bridgectl",
		Usage: "Client for bridged",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Price and persist a new cross-chain swap",
				Action: runInit,
				Flags: []cli.Flag{
					endpointFlag,
					&cli.StringFlag{Name: flagUserID, Required: true, Usage: "requesting user's UUID"},
					&cli.StringFlag{Name: flagFromChain, Required: true, Usage: "source chain (chain_a or chain_b)"},
					&cli.StringFlag{Name: flagToChain, Required: true, Usage: "destination chain (chain_a or chain_b)"},
					&cli.StringFlag{Name: flagFromToken, Required: true, Usage: "source token symbol"},
					&cli.StringFlag{Name: flagToToken, Required: true, Usage: "destination token symbol"},
					&cli.StringFlag{Name: flagAmountIn, Required: true, Usage: "amount to bridge, in from_token units"},
					&cli.StringFlag{Name: flagRecipient, Required: true, Usage: "destination address"},
				},
			},
			{
				Name:   "execute",
				Usage:  "Drive a swap forward from its current persisted status",
				Action: runExecute,
				Flags: []cli.Flag{
					endpointFlag,
					&cli.StringFlag{Name: flagSwapID, Required: true},
				},
			},
			{
				Name:   "resolve-review",
				Usage:  "Apply an operator decision to a swap awaiting manual review",
				Action: runResolveReview,
				Flags: []cli.Flag{
					endpointFlag,
					&cli.StringFlag{Name: flagSwapID, Required: true},
					&cli.BoolFlag{Name: flagAllow, Usage: "allow the swap to proceed instead of blocking it"},
				},
			},
			{
				Name:   "status",
				Usage:  "Print a swap's current persisted state",
				Action: runStatus,
				Flags: []cli.Flag{
					endpointFlag,
					&cli.StringFlag{Name: flagSwapID, Required: true},
				},
			},
		},
	}
}

func main() {
	if err := cliApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func newClient(ctx *cli.Context) *rpcclient.Client {
	return rpcclient.NewClient(ctx.String(flagEndpoint))
}

func parseSwapID(ctx *cli.Context) (uuid.UUID, error) {
	return uuid.Parse(ctx.String(flagSwapID))
}

// terminalLine bolds status lines once a swap reaches a status it will
// never leave, the same way a completed or refunded swap is called out at
// the end of a run.
func terminalLine(status string, format string, args ...any) string {
	if common.Status(status).IsTerminal() {
		return color.New(color.Bold).Sprintf(format, args...)
	}
	return fmt.Sprintf(format, args...)
}

func runInit(ctx *cli.Context) error {
	userID, err := uuid.Parse(ctx.String(flagUserID))
	if err != nil {
		return fmt.Errorf("invalid --%s: %w", flagUserID, err)
	}
	if _, _, err := apd.NewFromString(ctx.String(flagAmountIn)); err != nil {
		return fmt.Errorf("invalid --%s: %w", flagAmountIn, err)
	}

	req := map[string]any{
		"user_id":    userID,
		"from_chain": ctx.String(flagFromChain),
		"to_chain":   ctx.String(flagToChain),
		"from_token": ctx.String(flagFromToken),
		"to_token":   ctx.String(flagToToken),
		"amount_in":  ctx.String(flagAmountIn),
		"recipient":  ctx.String(flagRecipient),
	}

	var resp struct {
		SwapID            uuid.UUID `json:"swap_id"`
		Status            string    `json:"status"`
		EstimatedTimeSecs int64     `json:"estimated_time_seconds"`
	}
	if err := newClient(ctx).Call(ctx.Context, "InitSwap", req, &resp); err != nil {
		return err
	}

	fmt.Printf("Swap ID: %s\n", resp.SwapID)
	fmt.Println(terminalLine(resp.Status, "Status: %s", resp.Status))
	fmt.Printf("Estimated time to completion: %ds\n", resp.EstimatedTimeSecs)
	return nil
}

func runExecute(ctx *cli.Context) error {
	swapID, err := parseSwapID(ctx)
	if err != nil {
		return err
	}

	var resp struct {
		SwapID            uuid.UUID `json:"swap_id"`
		Status            string    `json:"status"`
		SourceTxHash      string    `json:"source_tx_hash"`
		DestinationTxHash string    `json:"destination_tx_hash"`
	}
	if err := newClient(ctx).Call(ctx.Context, "ExecuteSwap", map[string]any{"swap_id": swapID}, &resp); err != nil {
		return err
	}

	fmt.Println(terminalLine(resp.Status, "Status: %s", resp.Status))
	if resp.SourceTxHash != "" {
		fmt.Printf("Source tx: %s\n", resp.SourceTxHash)
	}
	if resp.DestinationTxHash != "" {
		fmt.Printf("Destination tx: %s\n", resp.DestinationTxHash)
	}
	return nil
}

func runResolveReview(ctx *cli.Context) error {
	swapID, err := parseSwapID(ctx)
	if err != nil {
		return err
	}

	var resp struct {
		SwapID uuid.UUID `json:"swap_id"`
		Status string    `json:"status"`
	}
	req := map[string]any{"swap_id": swapID, "allow": ctx.Bool(flagAllow)}
	if err := newClient(ctx).Call(ctx.Context, "ResolveReview", req, &resp); err != nil {
		return err
	}

	fmt.Println(terminalLine(resp.Status, "Status: %s", resp.Status))
	return nil
}

func runStatus(ctx *cli.Context) error {
	swapID, err := parseSwapID(ctx)
	if err != nil {
		return err
	}

	var resp struct {
		SwapID            uuid.UUID `json:"swap_id"`
		Status            string    `json:"status"`
		FromChain         string    `json:"from_chain"`
		ToChain           string    `json:"to_chain"`
		AmountIn          string    `json:"amount_in"`
		ExpectedAmountOut string    `json:"expected_amount_out"`
		SourceTxHash      string    `json:"source_tx_hash"`
		DestinationTxHash string    `json:"destination_tx_hash"`
	}
	if err := newClient(ctx).Call(ctx.Context, "SwapStatus", map[string]any{"swap_id": swapID}, &resp); err != nil {
		return err
	}

	fmt.Printf("Swap ID: %s\n", resp.SwapID)
	fmt.Println(terminalLine(resp.Status, "Status: %s", resp.Status))
	fmt.Printf("Route: %s -> %s\n", resp.FromChain, resp.ToChain)
	fmt.Printf("Amount in: %s\n", resp.AmountIn)
	fmt.Printf("Expected amount out: %s\n", resp.ExpectedAmountOut)
	if resp.SourceTxHash != "" {
		fmt.Printf("Source tx: %s\n", resp.SourceTxHash)
	}
	if resp.DestinationTxHash != "" {
		fmt.Printf("Destination tx: %s\n", resp.DestinationTxHash)
	}
	return nil
}
