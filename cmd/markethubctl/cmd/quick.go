package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// quickCmd represents a set of quick/easy commands for common operations
var quickCmd = &cobra.Command{
	Use:   "quick",
	Short: "Quick operations for common tasks",
	Long:  `Quick operations that combine multiple steps for common workflows.`,
}

// quickPublishCmd publishes a product and polls the task until it settles
var quickPublishCmd = &cobra.Command{
	Use:   "publish [product-id] [marketplace-id]",
	Short: "Quick publish: start a publication and wait for it to finish",
	Long: `Start a publication and poll the task status until it completes or fails.

Example:
  markethubctl quick publish 4f0c... 9a1b... --wait 120s`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")
		interval, _ := cmd.Flags().GetDuration("interval")

		// Start the publication
		fmt.Printf("Starting publication...\n")
		body := map[string]interface{}{
			"product_id":     args[0],
			"marketplace_id": args[1],
		}
		resp, err := makeHTTPRequest("POST", "/v1/publications", body)
		if err != nil {
			return fmt.Errorf("failed to start publication: %w", err)
		}
		created, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		taskID := stringField(created, "task_id")
		fmt.Printf("✅ Started task %s (%s → %s)\n", taskID,
			stringField(created, "product_title"), stringField(created, "marketplace_name"))

		// Poll until the task reaches a terminal status or the wait expires
		deadline := time.Now().Add(wait)
		var last map[string]interface{}
		for time.Now().Before(deadline) {
			time.Sleep(interval)

			resp, err := makeHTTPRequest("GET", "/v1/publications/"+taskID, nil)
			if err != nil {
				return fmt.Errorf("failed to poll task: %w", err)
			}
			snap, err := decodeResponse(resp)
			if err != nil {
				return err
			}
			last = snap

			status := stringField(snap, "status")
			progress, _ := snap["progress_percentage"].(float64)
			fmt.Printf("  %s (%.1f%%) step=%s\n", status, progress, stringField(snap, "current_step"))

			if status == "completed" || status == "failed" {
				break
			}
		}

		if last == nil {
			return fmt.Errorf("no status received for task %s", taskID)
		}

		if outputJSON {
			printOutput(last)
			return nil
		}

		switch stringField(last, "status") {
		case "completed":
			fmt.Printf("\n🎉 Publication complete!\n")
		case "failed":
			fmt.Printf("\n❌ Publication failed: %s\n", stringField(last, "error_details"))
		default:
			fmt.Printf("\n⚠️  Task still %s after %s; check later with:\n", stringField(last, "status"), wait)
			fmt.Printf("  markethubctl status %s\n", taskID)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(quickCmd)
	quickCmd.AddCommand(quickPublishCmd)

	// Flags for quick publish
	quickPublishCmd.Flags().Duration("wait", 2*time.Minute, "maximum time to wait for the task")
	quickPublishCmd.Flags().Duration("interval", 2*time.Second, "poll interval")
}
