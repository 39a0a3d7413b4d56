package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// productCmd represents the product command
var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage catalog products",
	Long:  `Create, inspect, and list products in the catalog.`,
}

// productListCmd represents the product list command
var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetString("limit")
		offset, _ := cmd.Flags().GetString("offset")

		if _, err := parseInt(limit); err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if _, err := parseInt(offset); err != nil {
			return fmt.Errorf("invalid offset: %w", err)
		}

		path := fmt.Sprintf("/v1/products?limit=%s&offset=%s", limit, offset)
		resp, err := makeHTTPRequest("GET", path, nil)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}

		products, err := decodeListResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(products)
			return nil
		}

		if len(products) == 0 {
			fmt.Println("No products found")
			return nil
		}
		for _, p := range products {
			fmt.Printf("%s  %-12s  %s\n", stringField(p, "id"), stringField(p, "sku"), stringField(p, "title"))
		}

		return nil
	},
}

// productGetCmd represents the product get command
var productGetCmd = &cobra.Command{
	Use:   "get [product-id]",
	Short: "Get a product by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("GET", "/v1/products/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("failed to get product: %w", err)
		}

		result, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
			return nil
		}

		fmt.Printf("Product %s:\n", stringField(result, "id"))
		fmt.Printf("  Title:    %s\n", stringField(result, "title"))
		fmt.Printf("  SKU:      %s\n", stringField(result, "sku"))
		fmt.Printf("  Price:    %v\n", result["price"])
		fmt.Printf("  Stock:    %v\n", result["stock"])
		fmt.Printf("  Status:   %s\n", stringField(result, "status"))
		if enhanced, ok := result["ai_enhanced"].(bool); ok && enhanced {
			fmt.Printf("  Enhanced: yes\n")
		}

		return nil
	},
}

// productCreateCmd represents the product create command
var productCreateCmd = &cobra.Command{
	Use:   "create [title] [sku] [price]",
	Short: "Create a product",
	Long: `Create a product in the catalog.

Example:
  markethubctl product create "Wireless Mouse" MOUSE-01 29.99 --stock 100 --category electronics`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		category, _ := cmd.Flags().GetString("category")
		stock, _ := cmd.Flags().GetInt("stock")

		body := map[string]interface{}{
			"title":       args[0],
			"sku":         args[1],
			"price":       args[2],
			"description": description,
			"category":    category,
			"stock":       stock,
			"status":      "active",
		}

		resp, err := makeHTTPRequest("POST", "/v1/products", body)
		if err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}

		result, err := decodeResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("Created product: %s\n", stringField(result, "id"))
			fmt.Printf("  Title: %s\n", stringField(result, "title"))
			fmt.Printf("  SKU:   %s\n", stringField(result, "sku"))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(productCmd)
	productCmd.AddCommand(productListCmd)
	productCmd.AddCommand(productGetCmd)
	productCmd.AddCommand(productCreateCmd)

	// Flags for list command
	productListCmd.Flags().String("limit", "50", "maximum number of results")
	productListCmd.Flags().String("offset", "0", "listing offset")

	// Flags for create command
	productCreateCmd.Flags().String("description", "", "product description")
	productCreateCmd.Flags().String("category", "", "product category")
	productCreateCmd.Flags().Int("stock", 0, "stock on hand")
}
