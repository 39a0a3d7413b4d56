package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the MarketHub service",
	Long:  `Check the health status of the MarketHub API, including its database and queue connectivity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("GET", "/healthz", nil)
		if err != nil {
			return fmt.Errorf("HTTP health check failed: %w", err)
		}
		defer resp.Body.Close()

		var status struct {
			OK       bool   `json:"ok"`
			Message  string `json:"message"`
			Database bool   `json:"database"`
			Queue    bool   `json:"queue"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			if resp.StatusCode == 200 {
				fmt.Println("✓ Service is healthy")
				return nil
			}
			return fmt.Errorf("service unhealthy (HTTP %d)", resp.StatusCode)
		}

		if outputJSON {
			printOutput(status)
			return nil
		}

		if status.OK {
			fmt.Println("✓ Service is healthy")
		} else {
			fmt.Printf("✗ Service is unhealthy: %s\n", status.Message)
		}
		if !status.Database {
			fmt.Println("  ✗ database unreachable")
		}
		if !status.Queue {
			fmt.Println("  ✗ queue unreachable")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
