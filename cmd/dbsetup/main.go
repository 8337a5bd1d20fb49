package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"wallet-gate-api/internal/config"
	"wallet-gate-api/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	var (
		initDB      = flag.Bool("init", false, "Initialize the usage ledger collection and indexes")
		seedData    = flag.Bool("seed", false, "Seed the ledger with test usage records")
		healthCheck = flag.Bool("health", false, "Run a ledger store health check")
		all         = flag.Bool("all", false, "Run init, health, and seed (full setup)")
	)
	flag.Parse()

	cfg := config.LoadConfig()

	if !*initDB && !*seedData && !*healthCheck && !*all {
		fmt.Println("Ledger Store Setup Utility")
		fmt.Println("Usage:")
		fmt.Println("  -init    Initialize the usage ledger collection and indexes")
		fmt.Println("  -seed    Seed the ledger with test usage records")
		fmt.Println("  -health  Run a ledger store health check")
		fmt.Println("  -all     Run full setup (init + health + seed)")
		fmt.Println()
		fmt.Println("Environment Variables:")
		fmt.Println("  MONGODB_URI                MongoDB connection string")
		fmt.Println("  MONGODB_DATABASE           Database name")
		fmt.Println("  MONGODB_LEDGER_COLLECTION  Usage ledger collection name")
		os.Exit(1)
	}

	if *healthCheck || *all {
		if err := runHealthCheck(&cfg.MongoDB); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
	}

	if *initDB || *all {
		if err := initializeLedger(&cfg.MongoDB); err != nil {
			log.Fatalf("Ledger initialization failed: %v", err)
		}
	}

	if *seedData || *all {
		if err := seedTestRecords(&cfg.MongoDB); err != nil {
			log.Fatalf("Data seeding failed: %v", err)
		}
	}

	log.Println("Ledger store setup completed successfully!")
}

// connect opens a Mongo client with the configured timeouts
func connect(cfg *config.MongoDBConfig) (*mongo.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return client, ctx, cancel, nil
}

// runHealthCheck pings the ledger database
func runHealthCheck(cfg *config.MongoDBConfig) error {
	log.Println("Running ledger store health check...")

	client, ctx, cancel, err := connect(cfg)
	if err != nil {
		return err
	}
	defer cancel()
	defer client.Disconnect(ctx)

	start := time.Now()
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	log.Printf("  ✓ ledger_store: healthy (%v)", time.Since(start))
	return nil
}

// initializeLedger creates the usage ledger collection and its indexes
func initializeLedger(cfg *config.MongoDBConfig) error {
	log.Println("Initializing usage ledger collection...")

	client, ctx, cancel, err := connect(cfg)
	if err != nil {
		return err
	}
	defer cancel()
	defer client.Disconnect(ctx)

	collection := client.Database(cfg.Database).Collection(cfg.LedgerCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "wallet", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("wallet_unique"),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("updated_at_asc"),
		},
		{
			Keys:    bson.D{{Key: "date", Value: 1}},
			Options: options.Index().SetName("date_asc"),
		},
	}

	names, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Printf("Created indexes: %v", names)
	return nil
}

// seedTestRecords inserts a few usage records for local development
func seedTestRecords(cfg *config.MongoDBConfig) error {
	log.Println("Seeding test usage records...")

	client, ctx, cancel, err := connect(cfg)
	if err != nil {
		return err
	}
	defer cancel()
	defer client.Disconnect(ctx)

	collection := client.Database(cfg.Database).Collection(cfg.LedgerCollection)

	now := time.Now().UTC()
	today := now.Format("2006-01-02")

	records := []models.UsageRecord{
		{Wallet: "So11111111111111111111111111111111111111112", Count: 3, Date: today, UpdatedAt: now},
		{Wallet: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", Count: 0, Date: today, UpdatedAt: now},
	}

	for _, record := range records {
		filter := bson.M{"wallet": record.Wallet}
		opts := options.Replace().SetUpsert(true)

		if _, err := collection.ReplaceOne(ctx, filter, record, opts); err != nil {
			return fmt.Errorf("failed to seed record for %s: %w", record.Wallet, err)
		}
		log.Printf("  Seeded usage record: %s (count %d)", record.Wallet, record.Count)
	}

	return nil
}
