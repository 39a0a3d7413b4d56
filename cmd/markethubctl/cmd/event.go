package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// eventCmd represents the event command
var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Manage webhook events",
	Long:  `Inspect webhook notifications, send ad-hoc events, and retry failed deliveries.`,
}

// eventListCmd represents the event list command
var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List webhook events",
	Long: `List recorded webhook events, newest first.

Example:
  markethubctl event list --status failed --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		eventType, _ := cmd.Flags().GetString("event-type")
		limit, _ := cmd.Flags().GetString("limit")

		if _, err := parseInt(limit); err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}

		path := "/v1/webhook-events?limit=" + limit
		if status != "" {
			path += "&status=" + status
		}
		if eventType != "" {
			path += "&event_type=" + eventType
		}

		resp, err := makeHTTPRequest("GET", path, nil)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		events, err := decodeListResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(events)
			return nil
		}

		if len(events) == 0 {
			fmt.Println("No webhook events found")
			return nil
		}
		for i, ev := range events {
			fmt.Printf("\nEvent %d:\n", i+1)
			fmt.Printf("  ID:       %s\n", stringField(ev, "id"))
			fmt.Printf("  Type:     %s\n", stringField(ev, "event_type"))
			fmt.Printf("  Status:   %s\n", stringField(ev, "status"))
			if attempts, ok := ev["attempts"].(float64); ok {
				fmt.Printf("  Attempts: %.0f\n", attempts)
			}
			if code, ok := ev["response_status_code"].(float64); ok && code > 0 {
				fmt.Printf("  HTTP:     %.0f\n", code)
			}
		}

		return nil
	},
}

// eventSendCmd represents the event send command
var eventSendCmd = &cobra.Command{
	Use:   "send [event-type] [payload-json]",
	Short: "Send an ad-hoc webhook event",
	Long: `Record an ad-hoc webhook event and queue its delivery.

Example:
  markethubctl event send product.published '{"product_id":"4f0c...","status":"completed"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		webhookURL, _ := cmd.Flags().GetString("url")

		payload, err := parseJSON(args[1])
		if err != nil {
			return fmt.Errorf("invalid payload JSON: %w", err)
		}

		body := map[string]interface{}{
			"event_type": args[0],
			"payload":    payload,
		}
		if webhookURL != "" {
			body["webhook_url"] = webhookURL
		}

		resp, err := makeHTTPRequest("POST", "/v1/webhook-events", body)
		if err != nil {
			return fmt.Errorf("failed to send event: %w", err)
		}

		result, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else if msg := stringField(result, "message"); msg != "" {
			fmt.Println(msg)
		} else {
			fmt.Printf("Queued event: %s\n", stringField(result, "id"))
			fmt.Printf("  Type:   %s\n", stringField(result, "event_type"))
			fmt.Printf("  Status: %s\n", stringField(result, "status"))
		}

		return nil
	},
}

// eventRetryCmd represents the event retry command
var eventRetryCmd = &cobra.Command{
	Use:   "retry [event-id]",
	Short: "Retry a failed webhook event",
	Long: `Queue a failed webhook event for another delivery attempt. Only failed
events with attempts remaining can be retried.

Example:
  markethubctl event retry 4f0c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("POST", "/v1/webhook-events/"+args[0]+"/retry", nil)
		if err != nil {
			return fmt.Errorf("failed to retry event: %w", err)
		}

		result, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("%s (event %s)\n", stringField(result, "message"), stringField(result, "webhook_id"))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventListCmd)
	eventCmd.AddCommand(eventSendCmd)
	eventCmd.AddCommand(eventRetryCmd)

	// Flags for list command
	eventListCmd.Flags().String("status", "", "filter by delivery status (pending|completed|failed)")
	eventListCmd.Flags().String("event-type", "", "filter by event type")
	eventListCmd.Flags().String("limit", "50", "maximum number of results")

	// Flags for send command
	eventSendCmd.Flags().String("url", "", "delivery URL (defaults to the configured webhook receiver)")
}
