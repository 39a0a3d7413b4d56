package cmd

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// TrafficConfig holds the configuration for traffic generation
type TrafficConfig struct {
	Duration      int     `json:"duration"`
	Volume        int     `json:"volume"`
	ServerHost    string  `json:"server_host"`
	BadWebhookURL string  `json:"bad_webhook_url"`
	Mode          string  `json:"mode"`
	FailureRate   float64 `json:"failure_rate"`   // Percentage of requests that should fail (0-100)
	Burst         bool    `json:"burst"`          // Whether to generate burst traffic after normal traffic
	BurstVolume   int     `json:"burst_volume"`   // Requests per second during burst (default: 25)
	BurstDuration int     `json:"burst_duration"` // Duration of burst in seconds (default: 30)
}

// TrafficSummary holds the summary of generated traffic
type TrafficSummary struct {
	TotalRequests   int           `json:"total_requests"`
	SuccessRequests int           `json:"success_requests"`
	FailedRequests  int           `json:"failed_requests"`
	PublicationReqs int           `json:"publication_requests"` // Publication flow requests
	BadWebhookReqs  int           `json:"bad_webhook_requests"` // Webhook events aimed at the failing receiver
	NormalRequests  int           `json:"normal_requests"`      // Normal traffic phase
	BurstRequests   int           `json:"burst_requests"`       // Burst traffic phase
	TotalDuration   time.Duration `json:"total_duration"`       // Total time including burst
	NormalDuration  time.Duration `json:"normal_duration"`      // Normal traffic duration
	BurstDuration   time.Duration `json:"burst_duration"`       // Burst traffic duration
	NormalRPS       float64       `json:"normal_rps"`           // RPS during normal phase
	BurstRPS        float64       `json:"burst_rps"`            // RPS during burst phase
	OverallRPS      float64       `json:"overall_rps"`          // Overall RPS
	ProductID       string        `json:"product_id"`
	Marketplaces    []string      `json:"marketplaces"`
	Mode            string        `json:"mode"`
	HadBurst        bool          `json:"had_burst"` // Whether burst traffic was generated
}

// trafficCmd represents the traffic command
var trafficCmd = &cobra.Command{
	Use:   "traffic",
	Short: "Generate test traffic for MarketHub",
	Long: `Generate test traffic to demonstrate MarketHub functionality.
This command provides an interactive interface to configure and generate
publication traffic for testing observability, performance, and functionality.

Supports two modes:
• Good traffic: Successful publication flows for normal testing
• Bad traffic: Webhook deliveries to an unreachable receiver to demonstrate
  retry exhaustion and failed-event behavior`,
}

// generateCmd represents the generate subcommand
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate test traffic interactively",
	Long: `Start an interactive session to configure and generate test traffic.
You'll be prompted for parameters like duration, volume, and traffic mode.

Choose between two traffic modes:
• good: Generates mostly successful publications with configurable failure rate and optional burst (default: 120s, 10 req/s, 5% failures)
• bad:  Generates failing webhook deliveries (default: 30s, 5 req/s) for testing retry exhaustion

After confirmation, the command will generate the specified traffic pattern.`,
	RunE: runGenerateTraffic,
}

func init() {
	rootCmd.AddCommand(trafficCmd)
	trafficCmd.AddCommand(generateCmd)
}

// runGenerateTraffic handles the interactive traffic generation
func runGenerateTraffic(cmd *cobra.Command, args []string) error {
	printHeader("🚀 MarketHub Traffic Generator")

	// Step 1: Collect parameters interactively
	config, err := collectTrafficParameters()
	if err != nil {
		return fmt.Errorf("failed to collect parameters: %w", err)
	}

	// Step 2: Show parameters and get confirmation
	if !confirmParameters(config) {
		printInfo("Traffic generation cancelled")
		return nil
	}

	// Step 3: Setup a traffic product and find target marketplaces
	productID, marketplaceIDs, marketplaceNames, err := setupTrafficCatalog(config)
	if err != nil {
		return fmt.Errorf("failed to setup catalog: %w", err)
	}
	printSuccess(fmt.Sprintf("Traffic Product ID: %s", productID))
	if config.Mode == "good" {
		printSuccess(fmt.Sprintf("Target marketplaces: %s", strings.Join(marketplaceNames, ", ")))
	}

	// Step 4: Generate traffic
	summary, err := generateTrafficWithProgress(config, productID, marketplaceIDs)
	if err != nil {
		return fmt.Errorf("failed to generate traffic: %w", err)
	}
	summary.ProductID = productID
	summary.Marketplaces = marketplaceNames
	summary.Mode = config.Mode

	// Step 5: Show summary
	printTrafficSummary(summary)

	return nil
}

// collectTrafficParameters interactively collects traffic generation parameters
func collectTrafficParameters() (*TrafficConfig, error) {
	reader := bufio.NewReader(os.Stdin)

	printStep("Configuring traffic generation parameters...")
	fmt.Println()

	// Traffic mode selection first
	fmt.Printf("Traffic mode (good/bad) [default: good]: ")
	mode := "good"
	if input, _ := reader.ReadString('\n'); strings.TrimSpace(input) != "" {
		input = strings.ToLower(strings.TrimSpace(input))
		if input == "bad" || input == "fail" {
			mode = "bad"
		}
	}

	// Set defaults based on traffic mode
	var config *TrafficConfig
	if mode == "bad" {
		config = &TrafficConfig{
			Duration:      30, // Shorter duration for bad traffic
			Volume:        5,  // Lower volume for bad traffic
			ServerHost:    "localhost:8080",
			BadWebhookURL: "http://fake-receiver:8083/nope", // Unreachable path
			Mode:          "bad",
		}
	} else {
		config = &TrafficConfig{
			Duration:      120,
			Volume:        10,
			ServerHost:    "localhost:8080",
			BadWebhookURL: "http://fake-receiver:8083/nope",
			Mode:          "good",
			FailureRate:   5.0,   // 5% failure rate by default
			Burst:         false, // No burst by default
			BurstVolume:   25,    // 25 req/s for stability
			BurstDuration: 30,    // 30 seconds of burst
		}
	}

	// Traffic duration
	fmt.Printf("Traffic duration in seconds [default: %d]: ", config.Duration)
	if input, _ := reader.ReadString('\n'); strings.TrimSpace(input) != "" {
		if duration, err := strconv.Atoi(strings.TrimSpace(input)); err == nil && duration > 0 {
			config.Duration = duration
		}
	}

	// Traffic volume
	fmt.Printf("Traffic volume (requests per second) [default: %d]: ", config.Volume)
	if input, _ := reader.ReadString('\n'); strings.TrimSpace(input) != "" {
		if volume, err := strconv.Atoi(strings.TrimSpace(input)); err == nil && volume > 0 {
			config.Volume = volume
		}
	}

	// Server host
	fmt.Printf("Server host [default: %s]: ", config.ServerHost)
	if input, _ := reader.ReadString('\n'); strings.TrimSpace(input) != "" {
		config.ServerHost = strings.TrimSpace(input)
	}

	// Failure rate and burst (only for good traffic mode)
	if config.Mode == "good" {
		fmt.Printf("Failure rate percentage (0-100) [default: %.1f]: ", config.FailureRate)
		if input, _ := reader.ReadString('\n'); strings.TrimSpace(input) != "" {
			if failureRate, err := strconv.ParseFloat(strings.TrimSpace(input), 64); err == nil && failureRate >= 0 && failureRate <= 100 {
				config.FailureRate = failureRate
			}
		}

		// Burst traffic options
		fmt.Printf("Enable burst traffic after normal traffic? (y/N) [default: N]: ")
		if input, _ := reader.ReadString('\n'); strings.ToLower(strings.TrimSpace(input)) == "y" || strings.ToLower(strings.TrimSpace(input)) == "yes" {
			config.Burst = true

			fmt.Printf("Burst volume (requests per second) [default: %d]: ", config.BurstVolume)
			if input, _ := reader.ReadString('\n'); strings.TrimSpace(input) != "" {
				if burstVolume, err := strconv.Atoi(strings.TrimSpace(input)); err == nil && burstVolume > 0 {
					config.BurstVolume = burstVolume
				}
			}

			fmt.Printf("Burst duration in seconds [default: %d]: ", config.BurstDuration)
			if input, _ := reader.ReadString('\n'); strings.TrimSpace(input) != "" {
				if burstDuration, err := strconv.Atoi(strings.TrimSpace(input)); err == nil && burstDuration > 0 {
					config.BurstDuration = burstDuration
				}
			}
		}
	}

	return config, nil
}

// confirmParameters displays the configuration and asks for confirmation
func confirmParameters(config *TrafficConfig) bool {
	fmt.Println()
	printStep("Configuration Summary:")

	// Show mode prominently with emoji
	if config.Mode == "bad" {
		fmt.Printf("  Mode:         🔥 %s traffic (retry exhaustion testing)\n", config.Mode)
	} else {
		fmt.Printf("  Mode:         ✅ %s traffic (mixed success/failure)\n", config.Mode)
	}

	fmt.Printf("  Duration:     %d seconds\n", config.Duration)
	fmt.Printf("  Volume:       %d requests/second\n", config.Volume)
	fmt.Printf("  Server Host:  %s\n", config.ServerHost)
	if config.Mode == "good" {
		fmt.Printf("  Failure Rate: %.1f%%\n", config.FailureRate)
		if config.Burst {
			fmt.Printf("  Burst:        Yes (%d req/s for %ds after normal traffic)\n", config.BurstVolume, config.BurstDuration)
		} else {
			fmt.Printf("  Burst:        No\n")
		}
	} else {
		fmt.Printf("  Webhook URL:  %s\n", config.BadWebhookURL)
	}
	fmt.Println()

	normalRequests := config.Duration * config.Volume
	burstRequests := 0
	if config.Burst {
		burstRequests = config.BurstDuration * config.BurstVolume
	}
	totalRequests := normalRequests + burstRequests
	fmt.Printf("This will generate approximately %d total requests", normalRequests)
	if config.Burst {
		fmt.Printf(" + %d burst requests = %d total", burstRequests, totalRequests)
	}
	fmt.Printf(".\n")

	if config.Mode == "bad" {
		fmt.Printf("\n⚠️  Bad Traffic: These webhook deliveries will intentionally fail and\n")
		fmt.Printf("   exhaust their retries. Monitor NSQ Admin (http://localhost:4171)\n")
		fmt.Printf("   and the webhook_deliveries topic to watch the retry behavior.\n")
	} else {
		expectedFailures := int(float64(totalRequests) * (config.FailureRate / 100))
		expectedSuccesses := totalRequests - expectedFailures
		fmt.Printf("\n✅ Mixed Traffic: ~%d publications should succeed (%.1f%%), ~%d webhook deliveries should fail (%.1f%%)\n", expectedSuccesses, 100-config.FailureRate, expectedFailures, config.FailureRate)
		if config.Burst {
			fmt.Printf("   Includes burst phase: %d req/s for %ds after normal %d req/s for %ds\n", config.BurstVolume, config.BurstDuration, config.Volume, config.Duration)
		}
		fmt.Printf("   This provides realistic failure patterns for testing alerting and monitoring.\n")
	}
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Continue with traffic generation? (y/N): ")
	response, _ := reader.ReadString('\n')
	response = strings.ToLower(strings.TrimSpace(response))

	return response == "y" || response == "yes"
}

// setupTrafficCatalog creates the traffic product and resolves the target
// marketplaces. Returns: productID, marketplaceIDs, marketplaceNames, error
func setupTrafficCatalog(config *TrafficConfig) (string, []string, []string, error) {
	printStep("Setting up traffic product and marketplaces...")

	// Temporarily point the shared HTTP helper at the configured host
	originalServer := serverAddr
	serverAddr = config.ServerHost
	defer func() { serverAddr = originalServer }()

	// Create a dedicated product so traffic runs don't touch real catalog rows
	sku := fmt.Sprintf("TRAFFIC-%d", time.Now().Unix())
	productPayload := map[string]interface{}{
		"title":       "Traffic Generator Product",
		"description": "Synthetic product created by markethubctl traffic generate",
		"sku":         sku,
		"price":       "19.99",
		"stock":       1000,
		"category":    "traffic-test",
		"status":      "active",
	}

	resp, err := makeHTTPRequest("POST", "/v1/products", productPayload)
	if err != nil {
		return "", nil, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	productResult, err := decodeResponse(resp)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to create traffic product: %w", err)
	}
	productID := stringField(productResult, "id")
	if productID == "" {
		return "", nil, nil, fmt.Errorf("product ID not found in response")
	}

	// Resolve the active marketplaces to round-robin publications across
	resp2, err := makeHTTPRequest("GET", "/v1/marketplaces?active=true", nil)
	if err != nil {
		return "", nil, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	marketplaces, err := decodeListResponse(resp2)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to list marketplaces: %w", err)
	}

	var ids, names []string
	for _, m := range marketplaces {
		if id := stringField(m, "id"); id != "" {
			ids = append(ids, id)
			names = append(names, stringField(m, "name"))
		}
	}
	if config.Mode == "good" && len(ids) == 0 {
		return "", nil, nil, fmt.Errorf("no active marketplaces available (run migrations to seed defaults)")
	}

	return productID, ids, names, nil
}

// generateTrafficWithProgress generates traffic and shows progress updates
func generateTrafficWithProgress(config *TrafficConfig, productID string, marketplaceIDs []string) (*TrafficSummary, error) {
	trafficDesc := fmt.Sprintf("%d RPS for %d seconds", config.Volume, config.Duration)
	if config.Burst {
		trafficDesc += fmt.Sprintf(" + BURST %d RPS for %d seconds", config.BurstVolume, config.BurstDuration)
	}
	printStep(fmt.Sprintf("Generating traffic (%s)...", trafficDesc))

	// Phase 1: Normal traffic
	fmt.Printf("Phase 1: Normal Traffic (%d RPS for %d seconds)\n", config.Volume, config.Duration)
	normalSummary, err := generateTrafficPhase(config, productID, marketplaceIDs, config.Volume, config.Duration, "normal")
	if err != nil {
		return nil, fmt.Errorf("normal traffic phase failed: %w", err)
	}

	// Phase 2: Burst traffic (if enabled)
	var burstSummary *TrafficSummary
	if config.Burst {
		fmt.Printf("\nPhase 2: Burst Traffic (%d RPS for %d seconds)\n", config.BurstVolume, config.BurstDuration)
		burstSummary, err = generateTrafficPhase(config, productID, marketplaceIDs, config.BurstVolume, config.BurstDuration, "burst")
		if err != nil {
			return nil, fmt.Errorf("burst traffic phase failed: %w", err)
		}
	}

	// Combine summaries
	combinedSummary := combineTrafficSummaries(normalSummary, burstSummary, config.Burst)
	return combinedSummary, nil
}

// generateTrafficPhase generates traffic for a single phase (normal or burst)
func generateTrafficPhase(config *TrafficConfig, productID string, marketplaceIDs []string, volume, duration int, phase string) (*TrafficSummary, error) {
	// Temporarily point the shared HTTP helper at the configured host
	originalServer := serverAddr
	serverAddr = config.ServerHost
	defer func() { serverAddr = originalServer }()

	startTime := time.Now()
	endTime := startTime.Add(time.Duration(duration) * time.Second)

	requestCount := 0
	successCount := 0
	publicationRequests := 0
	badWebhookRequests := 0

	// Initialize random number generator for failure rate
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Rate limiting: sleep time between requests
	sleepDuration := time.Second / time.Duration(volume)

	fmt.Printf("Progress: ")

	for time.Now().Before(endTime) {
		// Determine if this request should fail (always in bad mode,
		// per failure rate in good mode)
		shouldFail := config.Mode == "bad"
		if config.Mode == "good" && config.FailureRate > 0 {
			shouldFail = rng.Float64()*100 < config.FailureRate
		}

		var ok bool
		if shouldFail {
			// Failing path: queue a webhook event aimed at an unreachable
			// receiver so delivery retries exhaust
			badWebhookRequests++
			payload := map[string]interface{}{
				"demo":       true,
				"type":       "traffic_test",
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
				"request_id": fmt.Sprintf("req-%d", requestCount),
				"mode":       config.Mode,
			}
			body := map[string]interface{}{
				"event_type":  "traffic.failevent",
				"payload":     payload,
				"webhook_url": config.BadWebhookURL,
			}
			resp, err := makeHTTPRequest("POST", "/v1/webhook-events", body)
			if err == nil {
				ok = resp.StatusCode < 300
				resp.Body.Close()
			}
		} else {
			// Success path: start a publication, round-robin across
			// marketplaces
			publicationRequests++
			body := map[string]interface{}{
				"product_id":     productID,
				"marketplace_id": marketplaceIDs[requestCount%len(marketplaceIDs)],
			}
			resp, err := makeHTTPRequest("POST", "/v1/publications", body)
			if err == nil {
				ok = resp.StatusCode < 300
				resp.Body.Close()
			}
		}

		if ok {
			successCount++
		}
		requestCount++

		// Progress indicator
		if requestCount%10 == 0 {
			fmt.Print(".")
		}
		if requestCount%(volume*10) == 0 {
			elapsed := time.Since(startTime)
			remaining := time.Duration(duration)*time.Second - elapsed
			fmt.Printf(" [%d reqs, %ds remaining]\n          ", requestCount, int(remaining.Seconds()))
		}

		// Rate limiting
		time.Sleep(sleepDuration)
	}

	actualDuration := time.Since(startTime)
	fmt.Println() // New line after progress

	summary := &TrafficSummary{
		TotalRequests:   requestCount,
		SuccessRequests: successCount,
		FailedRequests:  requestCount - successCount,
		PublicationReqs: publicationRequests,
		BadWebhookReqs:  badWebhookRequests,
		TotalDuration:   actualDuration,
		OverallRPS:      float64(requestCount) / actualDuration.Seconds(),
	}

	// Set phase-specific fields
	if phase == "normal" {
		summary.NormalRequests = requestCount
		summary.NormalDuration = actualDuration
		summary.NormalRPS = float64(requestCount) / actualDuration.Seconds()
	} else if phase == "burst" {
		summary.BurstRequests = requestCount
		summary.BurstDuration = actualDuration
		summary.BurstRPS = float64(requestCount) / actualDuration.Seconds()
	}

	return summary, nil
}

// combineTrafficSummaries combines normal and burst traffic summaries
func combineTrafficSummaries(normal, burst *TrafficSummary, hadBurst bool) *TrafficSummary {
	combined := &TrafficSummary{
		TotalRequests:   normal.TotalRequests,
		SuccessRequests: normal.SuccessRequests,
		FailedRequests:  normal.FailedRequests,
		PublicationReqs: normal.PublicationReqs,
		BadWebhookReqs:  normal.BadWebhookReqs,
		NormalRequests:  normal.NormalRequests,
		NormalDuration:  normal.NormalDuration,
		NormalRPS:       normal.NormalRPS,
		TotalDuration:   normal.TotalDuration,
		HadBurst:        hadBurst,
	}

	if hadBurst && burst != nil {
		// Add burst statistics
		combined.TotalRequests += burst.TotalRequests
		combined.SuccessRequests += burst.SuccessRequests
		combined.FailedRequests += burst.FailedRequests
		combined.PublicationReqs += burst.PublicationReqs
		combined.BadWebhookReqs += burst.BadWebhookReqs
		combined.BurstRequests = burst.BurstRequests
		combined.BurstDuration = burst.BurstDuration
		combined.BurstRPS = burst.BurstRPS
		combined.TotalDuration = normal.TotalDuration + burst.TotalDuration
	}

	// Calculate overall RPS
	if combined.TotalDuration.Seconds() > 0 {
		combined.OverallRPS = float64(combined.TotalRequests) / combined.TotalDuration.Seconds()
	}

	return combined
}

// printTrafficSummary prints the final traffic generation summary
func printTrafficSummary(summary *TrafficSummary) {
	// Mode-specific header
	if summary.Mode == "bad" {
		printHeader("🔥 Bad Traffic Generation Complete!")
	} else if summary.HadBurst {
		printHeader("🚀 Mixed Traffic + Burst Generation Complete!")
	} else {
		printHeader("✅ Traffic Generation Complete!")
	}

	fmt.Printf("Total Requests:    %d\n", summary.TotalRequests)
	fmt.Printf("Accepted:          %d (%.2f%%) - Successfully queued by MarketHub\n", summary.SuccessRequests, float64(summary.SuccessRequests)/float64(summary.TotalRequests)*100)
	fmt.Printf("Rejected:          %d (%.2f%%) - Failed to queue\n", summary.FailedRequests, float64(summary.FailedRequests)/float64(summary.TotalRequests)*100)
	fmt.Println()

	if summary.Mode == "bad" {
		fmt.Printf("⚠️  Note: Queued webhook events will fail delivery to the unreachable\n")
		fmt.Printf("   receiver and settle as failed after retry exhaustion.\n")
	} else if summary.PublicationReqs > 0 && summary.BadWebhookReqs > 0 {
		fmt.Printf("Publications:      %d (%.1f%%) - Should complete the full flow\n", summary.PublicationReqs, float64(summary.PublicationReqs)/float64(summary.TotalRequests)*100)
		fmt.Printf("Bad Webhooks:      %d (%.1f%%) - Will fail delivery\n", summary.BadWebhookReqs, float64(summary.BadWebhookReqs)/float64(summary.TotalRequests)*100)
	} else {
		fmt.Printf("All requests were publications - Should complete the full flow\n")
	}

	if summary.HadBurst {
		fmt.Printf("Normal Phase:      %d requests in %.1fs (%.2f RPS)\n", summary.NormalRequests, summary.NormalDuration.Seconds(), summary.NormalRPS)
		fmt.Printf("Burst Phase:       %d requests in %.1fs (%.2f RPS)\n", summary.BurstRequests, summary.BurstDuration.Seconds(), summary.BurstRPS)
		fmt.Printf("Total Duration:    %.2f seconds\n", summary.TotalDuration.Seconds())
		fmt.Printf("Overall RPS:       %.2f requests/second\n", summary.OverallRPS)
	} else {
		fmt.Printf("Duration:          %.2f seconds\n", summary.TotalDuration.Seconds())
		fmt.Printf("Actual RPS:        %.2f requests/second\n", summary.OverallRPS)
	}
	fmt.Printf("Product ID:        %s\n", summary.ProductID)
	if len(summary.Marketplaces) > 0 {
		fmt.Printf("Marketplaces:      %s\n", strings.Join(summary.Marketplaces, ", "))
	}

	fmt.Println()

	// Mode-specific next steps
	if summary.Mode == "bad" {
		printInfo("🔥 Bad Traffic Next Steps:")
		fmt.Println("1. Check NSQ Admin (http://localhost:4171) to watch webhook_deliveries retries")
		fmt.Println("2. List failed events: markethubctl event list --status failed")
		fmt.Println("3. Watch the worker logs for 'Max retries exceeded' markers")
		fmt.Println("4. Webhook events will settle as failed within 3-4 minutes")
	} else {
		printInfo("✅ Publication Traffic Next Steps:")
		fmt.Printf("1. Follow the tasks: markethubctl tasks %s\n", summary.ProductID)
		fmt.Println("2. Check /metrics on the worker for step and retry counters")
		fmt.Println("3. Check NSQ Admin (http://localhost:4171) for publication_steps depth")
		if summary.BadWebhookReqs > 0 {
			fmt.Println("4. List failed webhook events: markethubctl event list --status failed")
		}
	}

	fmt.Println()
}

// Helper functions for colored output
func printHeader(msg string) {
	fmt.Printf("\n\033[0;35m%s\033[0m\n", msg)
	fmt.Println("==============================================")
}

func printStep(msg string) {
	fmt.Printf("\033[0;34m==> %s\033[0m\n", msg)
}

func printSuccess(msg string) {
	fmt.Printf("\033[0;32m✓ %s\033[0m\n", msg)
}

func printInfo(msg string) {
	fmt.Printf("\033[0;36mℹ %s\033[0m\n", msg)
}
