package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-posture/pkg/camera"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List capture devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := camera.NewManager(newSource(logger), camera.DefaultConfig(), logger)
		if err != nil {
			return err
		}
		devices, err := mgr.ListCameras(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(devices)
		}
		for _, d := range devices {
			fmt.Printf("%-16s %s\n", d.ID, d.Label)
		}
		return nil
	},
}
