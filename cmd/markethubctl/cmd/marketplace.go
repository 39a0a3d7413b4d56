package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// marketplaceCmd represents the marketplace command
var marketplaceCmd = &cobra.Command{
	Use:   "marketplace",
	Short: "Manage marketplaces",
	Long:  `List and register the marketplaces products can be published to.`,
}

// marketplaceListCmd represents the marketplace list command
var marketplaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List marketplaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		activeOnly, _ := cmd.Flags().GetBool("active")

		path := "/v1/marketplaces"
		if activeOnly {
			path += "?active=true"
		}

		resp, err := makeHTTPRequest("GET", path, nil)
		if err != nil {
			return fmt.Errorf("failed to list marketplaces: %w", err)
		}

		marketplaces, err := decodeListResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(marketplaces)
			return nil
		}

		if len(marketplaces) == 0 {
			fmt.Println("No marketplaces found")
			return nil
		}
		for _, m := range marketplaces {
			active := "inactive"
			if isActive, ok := m["is_active"].(bool); ok && isActive {
				active = "active"
			}
			fmt.Printf("%s  %-14s  %-8s  %s\n", stringField(m, "id"), stringField(m, "slug"), active, stringField(m, "name"))
		}

		return nil
	},
}

// marketplaceCreateCmd represents the marketplace create command
var marketplaceCreateCmd = &cobra.Command{
	Use:   "create [name] [slug] [api-url]",
	Short: "Register a marketplace",
	Long: `Register a marketplace the publication flow can target.

Example:
  markethubctl marketplace create MercadoLibre mercadolibre https://api.mercadolibre.com`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		webhookURL, _ := cmd.Flags().GetString("webhook-url")

		body := map[string]interface{}{
			"name":    args[0],
			"slug":    args[1],
			"api_url": args[2],
		}
		if webhookURL != "" {
			body["webhook_url"] = webhookURL
		}

		resp, err := makeHTTPRequest("POST", "/v1/marketplaces", body)
		if err != nil {
			return fmt.Errorf("failed to create marketplace: %w", err)
		}

		result, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("Created marketplace: %s\n", stringField(result, "id"))
			fmt.Printf("  Name: %s\n", stringField(result, "name"))
			fmt.Printf("  Slug: %s\n", stringField(result, "slug"))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(marketplaceCmd)
	marketplaceCmd.AddCommand(marketplaceListCmd)
	marketplaceCmd.AddCommand(marketplaceCreateCmd)

	// Flags for list command
	marketplaceListCmd.Flags().Bool("active", false, "only list active marketplaces")

	// Flags for create command
	marketplaceCreateCmd.Flags().String("webhook-url", "", "notification URL for this marketplace")
}
