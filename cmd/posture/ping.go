package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-posture/pkg/predict"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the inference service is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := predict.NewClient(
			predict.WithBaseURL(cfg.APIBase),
			predict.WithTimeout(cfg.TickTimeout),
			predict.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TickTimeout)
		defer cancel()

		start := time.Now()
		if err := client.Ping(ctx); err != nil {
			return err
		}
		fmt.Printf("%s is up (%dms)\n", client.BaseURL(), time.Since(start).Milliseconds())
		return nil
	},
}
