package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/promatty/subtrackr/internal/config"
	"github.com/promatty/subtrackr/internal/domain"
	"github.com/promatty/subtrackr/internal/logger"
	"github.com/promatty/subtrackr/internal/recurring"
	"github.com/promatty/subtrackr/internal/roast"
	"github.com/promatty/subtrackr/internal/services"
	"github.com/promatty/subtrackr/internal/store/bigquery"
)

func main() {
	log := logger.New("cli")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "detect":
		runDetect(log)
	case "lookup":
		runLookup(log)
	case "roast":
		runRoast(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("subtrackr CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  detect    Detect recurring subscriptions from a JSON file or BigQuery")
	fmt.Println("  lookup    Look up cancellation info for a service by name")
	fmt.Println("  roast     Generate a roast of detected subscriptions")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// fileTransaction is the JSON shape accepted by the -file input: one bank
// transaction per array element. Dates accept YYYY-MM-DD or RFC 3339.
type fileTransaction struct {
	UserID     string  `json:"user_id"`
	ExternalID string  `json:"transaction_id"`
	AccountID  string  `json:"account_id"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date"`
	Name       string  `json:"name"`
	Merchant   string  `json:"merchant_name"`
	Pending    bool    `json:"pending"`
	CreatedAt  string  `json:"created_at"`
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// loadTransactions reads transactions either from a local JSON file or from
// the warehouse for a user. Exactly one of file/userID must be set.
func loadTransactions(ctx context.Context, log zerolog.Logger, file, userID string) []domain.Transaction {
	if (file == "") == (userID == "") {
		log.Fatal().Msg("Exactly one of -file or -user is required")
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read transactions file")
		}

		var raw []fileTransaction
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse transactions file")
		}

		txns := make([]domain.Transaction, 0, len(raw))
		for i, ft := range raw {
			date, err := parseDate(ft.Date)
			if err != nil {
				log.Fatal().Err(err).Int("index", i).Msg("Invalid transaction date")
			}
			createdAt, err := parseDate(ft.CreatedAt)
			if err != nil {
				log.Fatal().Err(err).Int("index", i).Msg("Invalid created_at timestamp")
			}
			txns = append(txns, domain.Transaction{
				UserID:     ft.UserID,
				ExternalID: ft.ExternalID,
				AccountID:  ft.AccountID,
				Amount:     ft.Amount,
				Date:       date,
				Name:       ft.Name,
				Merchant:   ft.Merchant,
				Pending:    ft.Pending,
				CreatedAt:  createdAt,
			})
		}
		return txns
	}

	repo, err := bigquery.NewRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction repository")
	}
	defer repo.Close()

	txns, err := repo.ListUserTransactions(ctx, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query transactions")
	}
	return txns
}

func detect(ctx context.Context, log zerolog.Logger, file, userID string, minOccurrences int) recurring.Result {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	registry, err := services.Load(cfg.ServicesTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load service table")
	}

	if minOccurrences == 0 {
		minOccurrences = cfg.MinOccurrences
	}

	txns := loadTransactions(ctx, log, file, userID)

	return recurring.Detect(txns, recurring.Options{
		MinOccurrences: minOccurrences,
		Services:       registry,
	})
}

func runDetect(log zerolog.Logger) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	file := fs.String("file", "", "Path to a JSON file of transactions")
	userID := fs.String("user", "", "User ID to load transactions for from BigQuery")
	minOcc := fs.Int("min-occurrences", 0, "Minimum charges before a merchant is considered recurring")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	result := detect(ctx, log, *file, *userID, *minOcc)

	if *asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode result")
		}
		fmt.Println(string(out))
		return
	}

	fmt.Printf("\n=== Subscriptions (%d) ===\n", len(result.Subscriptions))
	for i, sub := range result.Subscriptions {
		fmt.Printf("\n%d. %s\n", i+1, sub.DisplayName)
		fmt.Printf("   Amount:    $%.2f\n", sub.Amount)
		fmt.Printf("   Frequency: %s\n", sub.Frequency)
		fmt.Printf("   Charges:   %d\n", sub.TransactionCount)
		fmt.Printf("   Last seen: %s\n", sub.LastChargeDate.Format("2006-01-02"))
		if sub.NextChargeDate != nil {
			fmt.Printf("   Next due:  %s\n", sub.NextChargeDate.Format("2006-01-02"))
		}
		if sub.Category != "" {
			fmt.Printf("   Category:  %s\n", sub.Category)
		}
	}
	fmt.Printf("\n=== Totals ===\n")
	fmt.Printf("Monthly: $%.2f\n", result.Totals.Monthly)
	fmt.Printf("Annual:  $%.2f\n", result.Totals.Annual)
	fmt.Println()
}

func runLookup(log zerolog.Logger) {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	service := fs.String("service", "", "Service name to look up")
	fs.Parse(os.Args[2:])

	if *service == "" {
		log.Fatal().Msg("Error: --service is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	registry, err := services.Load(cfg.ServicesTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load service table")
	}

	entry, confidence, ok := registry.Find(*service)
	if !ok {
		fmt.Printf("No match found for %q\n", *service)
		os.Exit(1)
	}

	fmt.Printf("\n=== %s ===\n", entry.CanonicalName)
	fmt.Printf("Confidence: %d\n", confidence)
	if entry.Category != "" {
		fmt.Printf("Category:   %s\n", entry.Category)
	}
	if entry.CancelURL != "" {
		fmt.Printf("Cancel at:  %s\n", entry.CancelURL)
	}
	if entry.Notes != "" {
		fmt.Printf("Notes:      %s\n", entry.Notes)
	}
	fmt.Println()
}

func runRoast(log zerolog.Logger) {
	fs := flag.NewFlagSet("roast", flag.ExitOnError)
	file := fs.String("file", "", "Path to a JSON file of transactions")
	userID := fs.String("user", "", "User ID to load transactions for from BigQuery")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	result := detect(ctx, log, *file, *userID, 0)
	if len(result.Subscriptions) == 0 {
		fmt.Println("No subscriptions found - nothing to roast.")
		return
	}

	generator := roast.NewGenerator(cfg.RoastModel)
	text, err := generator.Generate(ctx, result.Subscriptions, result.Totals)
	if err != nil {
		log.Fatal().Err(err).Msg("Roast generation failed")
	}

	fmt.Println("\n" + text)
	fmt.Println()
}
