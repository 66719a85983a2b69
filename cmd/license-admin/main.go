// license-admin is an offline tool for minting and checking license
// credentials. It talks to no database; codes minted here still need to be
// registered through the admin API before desktop activation can succeed.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/plans"
)

func main() {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("========================================")
	fmt.Println(" License Admin Tool")
	fmt.Println("========================================")

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Generate single license code")
		fmt.Println("  2. Generate batch of license codes")
		fmt.Println("  3. Validate license code")
		fmt.Println("  4. Generate forex EA key")
		fmt.Println("  5. Show plan catalog")
		fmt.Println("  6. Exit")
		fmt.Print("\nSelect option (1-6): ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			generateSingle(reader)
		case "2":
			generateBatch(reader)
		case "3":
			validateCode(reader)
		case "4":
			generateForexKey(reader)
		case "5":
			showCatalog()
		case "6":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Invalid option")
		}
	}
}

func promptTier(reader *bufio.Reader) (plans.PlanTier, bool) {
	fmt.Println("\nPlan tiers:")
	fmt.Println("  1. Free (FRE)")
	fmt.Println("  2. Starter (STR)")
	fmt.Println("  3. Pro (PRO)")
	fmt.Println("  4. Elite (ELT)")
	fmt.Println("  5. Desktop (DSK)")
	fmt.Print("Select tier (1-5): ")

	input, _ := reader.ReadString('\n')
	switch strings.TrimSpace(input) {
	case "1":
		return plans.TierFree, true
	case "2":
		return plans.TierStarter, true
	case "3":
		return plans.TierPro, true
	case "4":
		return plans.TierElite, true
	case "5":
		return plans.TierDesktop, true
	}
	fmt.Println("Invalid tier")
	return "", false
}

func promptCycle(reader *bufio.Reader) (plans.BillingCycle, bool) {
	fmt.Println("\nBilling cycles:")
	fmt.Println("  1. Monthly")
	fmt.Println("  2. Yearly")
	fmt.Println("  3. Lifetime")
	fmt.Print("Select cycle (1-3): ")

	input, _ := reader.ReadString('\n')
	switch strings.TrimSpace(input) {
	case "1":
		return plans.CycleMonthly, true
	case "2":
		return plans.CycleYearly, true
	case "3":
		return plans.CycleLifetime, true
	}
	fmt.Println("Invalid cycle")
	return "", false
}

func generateSingle(reader *bufio.Reader) {
	fmt.Println("\n--- Generate License Code ---")

	tier, ok := promptTier(reader)
	if !ok {
		return
	}
	cycle, ok := promptCycle(reader)
	if !ok {
		return
	}

	code, err := license.Generate(tier, cycle)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  Tier:  %s\n", tier)
	fmt.Printf("  Cycle: %s\n", cycle)
	fmt.Printf("  Code:  %s\n", code)
	fmt.Println("========================================")
}

func generateBatch(reader *bufio.Reader) {
	fmt.Println("\n--- Generate Batch License Codes ---")

	tier, ok := promptTier(reader)
	if !ok {
		return
	}
	cycle, ok := promptCycle(reader)
	if !ok {
		return
	}

	fmt.Print("How many codes to generate? ")
	countInput, _ := reader.ReadString('\n')
	count, err := strconv.Atoi(strings.TrimSpace(countInput))
	if err != nil || count < 1 || count > 100 {
		fmt.Println("Invalid count (1-100)")
		return
	}

	fmt.Printf("\nGenerating %d %s/%s license codes...\n", count, tier, cycle)
	fmt.Println("========================================")

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := license.Generate(tier, cycle)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		codes = append(codes, code)
		fmt.Printf("  %d. %s\n", i+1, code)
	}
	fmt.Println("========================================")

	// Save to file
	filename := fmt.Sprintf("codes_%s_%s_%s.txt", tier, cycle, time.Now().Format("20060102_150405"))
	var content strings.Builder
	content.WriteString(fmt.Sprintf("# %s / %s license codes\n", tier, cycle))
	content.WriteString(fmt.Sprintf("# Generated: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	content.WriteString(fmt.Sprintf("# Count: %d\n\n", count))
	for i, code := range codes {
		content.WriteString(fmt.Sprintf("%d. %s\n", i+1, code))
	}
	if err := os.WriteFile(filename, []byte(content.String()), 0644); err != nil {
		fmt.Printf("Failed to save file: %v\n", err)
		return
	}
	fmt.Printf("\nSaved to: %s\n", filename)
}

func validateCode(reader *bufio.Reader) {
	fmt.Println("\n--- Validate License Code ---")
	fmt.Print("Enter license code: ")

	code, _ := reader.ReadString('\n')
	code = strings.TrimSpace(code)

	result := license.Validate(code)

	fmt.Println("\n========================================")
	if result.Valid {
		fmt.Printf("  Status: VALID\n")
		fmt.Printf("  Tier:   %s\n", result.PlanTier)
	} else {
		fmt.Printf("  Status: INVALID\n")
		fmt.Printf("  Error:  %s\n", result.Error)
	}
	fmt.Println("========================================")
}

func generateForexKey(reader *bufio.Reader) {
	fmt.Println("\n--- Generate Forex EA Key ---")
	fmt.Print("User ID (or email): ")

	userID, _ := reader.ReadString('\n')
	userID = strings.TrimSpace(userID)
	if userID == "" {
		fmt.Println("User ID is required")
		return
	}

	fmt.Println("\nPlan types:")
	fmt.Println("  1. Monthly")
	fmt.Println("  2. Lifetime")
	fmt.Print("Select plan (1-2): ")

	planInput, _ := reader.ReadString('\n')
	var plan license.ForexPlan
	switch strings.TrimSpace(planInput) {
	case "1":
		plan = license.ForexPlanMonthly
	case "2":
		plan = license.ForexPlanLifetime
	default:
		fmt.Println("Invalid plan")
		return
	}

	key, err := license.GenerateForexKey(userID, plan)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  Plan: %s\n", plan)
	fmt.Printf("  Key:  %s\n", key)
	fmt.Println("========================================")
}

func showCatalog() {
	catalog := plans.DefaultCatalog()

	fmt.Println("\n========================================")
	fmt.Printf(" Plan Catalog (version %d)\n", catalog.Version())
	fmt.Println("========================================")

	for _, tier := range plans.AllTiers {
		f := catalog.GetPlan(tier)
		p := catalog.GetPricing(tier)

		fmt.Printf("\n%s (%s/month)\n", strings.ToUpper(string(tier)), plans.FormatPrice(p.MonthlyCents))
		fmt.Printf("  Daily trades:      %s\n", formatLimit(f.DailyTradeLimit))
		fmt.Printf("  Total trades:      %s\n", formatLimit(f.TotalTradeLimit))
		fmt.Printf("  Active strategies: %s\n", formatLimit(f.MaxActiveStrategies))
		fmt.Printf("  Wallets:           %s\n", formatLimit(f.MaxWallets))
		fmt.Printf("  Auto trading:      %t\n", f.AutoTrading)
		if f.Arbitrage {
			fmt.Println("  Arbitrage:         true")
		}
		if f.WhiteLabel {
			fmt.Println("  White label:       true")
		}
	}
	fmt.Println()
}

func formatLimit(n int) string {
	if n == plans.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(n)
}
