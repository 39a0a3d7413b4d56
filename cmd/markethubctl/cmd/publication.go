package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish [product-id] [marketplace-id]",
	Short: "Publish a product to a marketplace",
	Long: `Start the asynchronous publication flow for a product and marketplace pair.
The flow enhances the product, publishes it to the marketplace, and sends a
webhook notification. Use 'markethubctl status' to follow the task.

Example:
  markethubctl publish 4f0c... 9a1b...`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{
			"product_id":     args[0],
			"marketplace_id": args[1],
		}

		resp, err := makeHTTPRequest("POST", "/v1/publications", body)
		if err != nil {
			return fmt.Errorf("failed to start publication: %w", err)
		}

		result, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("Publication started: %s\n", stringField(result, "task_id"))
			fmt.Printf("  Product:     %s\n", stringField(result, "product_title"))
			fmt.Printf("  Marketplace: %s\n", stringField(result, "marketplace_name"))
			fmt.Printf("  Status:      %s\n", stringField(result, "status"))
		}

		return nil
	},
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Get the status of a publication task",
	Long: `Get the live status snapshot for a publication task, including the current
step, completed steps, retry counts, and progress.

Example:
  markethubctl status 4f0c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("GET", "/v1/publications/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to get task status: %w", err)
		}

		result, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
			return nil
		}

		fmt.Printf("Task %s:\n", stringField(result, "task_id"))
		fmt.Printf("  Status:       %s\n", stringField(result, "status"))
		if step := stringField(result, "current_step"); step != "" {
			fmt.Printf("  Current step: %s\n", step)
		}
		if progress, ok := result["progress_percentage"].(float64); ok {
			fmt.Printf("  Progress:     %.1f%%\n", progress)
		}
		if steps, ok := result["steps_completed"].([]interface{}); ok && len(steps) > 0 {
			fmt.Printf("  Completed steps:\n")
			for _, s := range steps {
				fmt.Printf("    - %v\n", s)
			}
		}
		if retries, ok := result["retries"].(map[string]interface{}); ok {
			for step, n := range retries {
				if count, ok := n.(float64); ok && count > 0 {
					fmt.Printf("  Retries (%s): %.0f\n", step, count)
				}
			}
		}
		if errDetails := stringField(result, "error_details"); errDetails != "" {
			fmt.Printf("  Error:        %s\n", errDetails)
		}

		return nil
	},
}

// tasksCmd represents the tasks command
var tasksCmd = &cobra.Command{
	Use:   "tasks [product-id]",
	Short: "List publication tasks for a product",
	Long: `List a product's publication tasks, newest first, with status and
marketplace rollups.

Example:
  markethubctl tasks 4f0c... --status failed --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		marketplaceID, _ := cmd.Flags().GetString("marketplace-id")
		limit, _ := cmd.Flags().GetString("limit")
		offset, _ := cmd.Flags().GetString("offset")

		if _, err := parseInt(limit); err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if _, err := parseInt(offset); err != nil {
			return fmt.Errorf("invalid offset: %w", err)
		}

		path := fmt.Sprintf("/v1/products/%s/publications?limit=%s&offset=%s", args[0], limit, offset)
		if status != "" {
			path += "&status=" + status
		}
		if marketplaceID != "" {
			path += "&marketplace_id=" + marketplaceID
		}

		resp, err := makeHTTPRequest("GET", path, nil)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}

		result, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
			return nil
		}

		fmt.Printf("Publications for %s (%s):\n", stringField(result, "product_title"), stringField(result, "product_sku"))
		tasks, _ := result["tasks"].([]interface{})
		if len(tasks) == 0 {
			fmt.Println("  No tasks found")
			return nil
		}

		for i, raw := range tasks {
			task, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Printf("\n  Task %d:\n", i+1)
			fmt.Printf("    Task ID:     %s\n", stringField(task, "task_id"))
			fmt.Printf("    Marketplace: %s\n", stringField(task, "marketplace_name"))
			fmt.Printf("    Status:      %s\n", stringField(task, "status"))
			if progress, ok := task["progress_percentage"].(float64); ok {
				fmt.Printf("    Progress:    %.1f%%\n", progress)
			}
			if errDetails := stringField(task, "error_details"); errDetails != "" {
				fmt.Printf("    Error:       %s\n", errDetails)
			}
		}

		if counts, ok := result["status_summary"].(map[string]interface{}); ok {
			fmt.Printf("\n  By status:\n")
			for status, n := range counts {
				fmt.Printf("    %s: %v\n", status, n)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tasksCmd)

	// Flags for tasks command
	tasksCmd.Flags().String("status", "", "filter by task status (pending|processing|completed|failed)")
	tasksCmd.Flags().String("marketplace-id", "", "filter by marketplace ID")
	tasksCmd.Flags().String("limit", "50", "maximum number of results")
	tasksCmd.Flags().String("offset", "0", "listing offset")
}
