package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"wallet-gate-api/internal/config"
	"wallet-gate-api/internal/models"
	"wallet-gate-api/pkg/logger"
	"wallet-gate-api/pkg/metrics"
	"wallet-gate-api/pkg/mutex"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ErrStoreFull signals that the ledger store cannot accept new records
// until something is pruned.
var ErrStoreFull = errors.New("ledger store full")

// pruneBatch is how many stale records a full-store recovery removes
const pruneBatch = 100

const dateLayout = "2006-01-02"

// UsageLedger counts gated actions per wallet per UTC calendar day.
// Records roll over lazily: a stale date reads as 0 and nothing is written
// back until the next increment. The ledger itself enforces no caps.
type UsageLedger struct {
	store   LedgerStore
	locks   *mutex.WalletMutex
	metrics *metrics.MetricsCollector
	nowFn   func() time.Time
}

// NewUsageLedger creates a ledger over the given store
func NewUsageLedger(store LedgerStore, collector *metrics.MetricsCollector) *UsageLedger {
	return &UsageLedger{
		store:   store,
		locks:   mutex.New(10 * time.Minute),
		metrics: collector,
		nowFn:   time.Now,
	}
}

func (ul *UsageLedger) today() string {
	return ul.nowFn().UTC().Format(dateLayout)
}

// GetTodayCount returns how many gated actions the wallet consumed today.
// A record dated before today reads as 0 without being rewritten.
func (ul *UsageLedger) GetTodayCount(ctx context.Context, wallet string) (int, error) {
	record, err := ul.store.Get(ctx, wallet)
	if err != nil {
		return 0, err
	}
	if record == nil || record.Date != ul.today() {
		return 0, nil
	}
	return record.Count, nil
}

// Increment charges one action against the wallet's count for today and
// returns the new count. The per-wallet lock keeps the read-modify-write
// atomic under concurrent requests for the same wallet.
func (ul *UsageLedger) Increment(ctx context.Context, wallet string) (int, error) {
	lock := ul.locks.Get(wallet)
	lock.Lock()
	defer lock.Unlock()

	current, err := ul.GetTodayCount(ctx, wallet)
	if err != nil {
		return 0, err
	}

	record := &models.UsageRecord{
		Wallet:    wallet,
		Count:     current + 1,
		Date:      ul.today(),
		UpdatedAt: ul.nowFn().UTC(),
	}

	if err := ul.put(ctx, wallet, record); err != nil {
		return 0, err
	}

	ul.metrics.RecordUsageIncrement()
	return record.Count, nil
}

// put writes a record, recovering from a full store by pruning the oldest
// records and retrying once. If the retry also fails the write is dropped
// and logged; the session continues without the persisted count.
func (ul *UsageLedger) put(ctx context.Context, wallet string, record *models.UsageRecord) error {
	err := ul.store.Put(ctx, wallet, record)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrStoreFull) {
		return err
	}

	log := logger.GetLogger()
	pruned, pruneErr := ul.store.Prune(ctx, pruneBatch)
	if pruneErr != nil {
		log.Error("Ledger prune failed", zap.Error(pruneErr), zap.String("wallet_address", wallet))
	} else {
		log.Warn("Ledger store full, pruned oldest records", zap.Int("pruned", pruned))
	}

	if retryErr := ul.store.Put(ctx, wallet, record); retryErr != nil {
		log.Error("Dropping usage write after prune-and-retry",
			zap.Error(retryErr),
			zap.String("wallet_address", wallet),
		)
	}
	return nil
}

// Stop releases the per-wallet lock registry
func (ul *UsageLedger) Stop() {
	ul.locks.Stop()
}

// MemoryLedgerStore is a bounded in-memory LedgerStore for tests and
// single-process deployments.
type MemoryLedgerStore struct {
	records    map[string]*models.UsageRecord
	mutex      sync.RWMutex
	maxRecords int
}

// NewMemoryLedgerStore creates an in-memory store capped at maxRecords
// entries (0 means unbounded).
func NewMemoryLedgerStore(maxRecords int) *MemoryLedgerStore {
	return &MemoryLedgerStore{
		records:    make(map[string]*models.UsageRecord),
		maxRecords: maxRecords,
	}
}

// Get returns the stored record for a wallet, or (nil, nil) if absent
func (s *MemoryLedgerStore) Get(ctx context.Context, wallet string) (*models.UsageRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, exists := s.records[wallet]
	if !exists {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

// Put stores the record, rejecting new wallets once the cap is reached
func (s *MemoryLedgerStore) Put(ctx context.Context, wallet string, record *models.UsageRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.records[wallet]; !exists && s.maxRecords > 0 && len(s.records) >= s.maxRecords {
		return ErrStoreFull
	}

	copied := *record
	s.records[wallet] = &copied
	return nil
}

// Prune removes up to n records with the oldest update times
func (s *MemoryLedgerStore) Prune(ctx context.Context, n int) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	type aged struct {
		wallet    string
		updatedAt time.Time
	}

	entries := make([]aged, 0, len(s.records))
	for wallet, record := range s.records {
		entries = append(entries, aged{wallet: wallet, updatedAt: record.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updatedAt.Before(entries[j].updatedAt)
	})

	removed := 0
	for _, entry := range entries {
		if removed >= n {
			break
		}
		delete(s.records, entry.wallet)
		removed++
	}
	return removed, nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryLedgerStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store
func (s *MemoryLedgerStore) Close(ctx context.Context) error { return nil }

// Size returns the number of stored records
func (s *MemoryLedgerStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.records)
}

// MongoLedgerStore persists usage records in MongoDB, one document per
// wallet, making usage accounting server-authoritative.
type MongoLedgerStore struct {
	db         *mongo.Database
	collection *mongo.Collection
	config     *config.MongoDBConfig
}

// NewMongoLedgerStore connects to MongoDB with pooling tuned like the rest
// of the service and ensures the wallet index exists.
func NewMongoLedgerStore(cfg *config.MongoDBConfig) (*MongoLedgerStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.URI)
	clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	clientOptions.SetMinPoolSize(cfg.MaxPoolSize / 4)
	clientOptions.SetMaxConnIdleTime(30 * time.Minute)
	clientOptions.SetConnectTimeout(cfg.ConnectTimeout)
	clientOptions.SetSocketTimeout(30 * time.Second)
	clientOptions.SetServerSelectionTimeout(5 * time.Second)
	clientOptions.SetRetryWrites(true)
	clientOptions.SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	collection := db.Collection(cfg.LedgerCollection)

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "wallet", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	// Index may already exist, which is fine
	_, _ = collection.Indexes().CreateOne(ctx, indexModel)

	return &MongoLedgerStore{
		db:         db,
		collection: collection,
		config:     cfg,
	}, nil
}

// Get returns the record for a wallet, or (nil, nil) if absent
func (s *MongoLedgerStore) Get(ctx context.Context, wallet string) (*models.UsageRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var record models.UsageRecord
	err := s.collection.FindOne(opCtx, bson.M{"wallet": wallet}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Put upserts the wallet's record
func (s *MongoLedgerStore) Put(ctx context.Context, wallet string, record *models.UsageRecord) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(opCtx, bson.M{"wallet": wallet}, record, opts)
	return err
}

// Prune removes up to n records with the oldest update times
func (s *MongoLedgerStore) Prune(ctx context.Context, n int) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	findOpts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(n)).
		SetProjection(bson.M{"wallet": 1})

	cursor, err := s.collection.Find(opCtx, bson.M{}, findOpts)
	if err != nil {
		return 0, err
	}

	var stale []models.UsageRecord
	if err := cursor.All(opCtx, &stale); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wallets := make([]string, len(stale))
	for i, record := range stale {
		wallets[i] = record.Wallet
	}

	result, err := s.collection.DeleteMany(opCtx, bson.M{"wallet": bson.M{"$in": wallets}})
	if err != nil {
		return 0, err
	}
	return int(result.DeletedCount), nil
}

// Ping verifies the MongoDB connection
func (s *MongoLedgerStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.Client().Ping(opCtx, nil)
}

// Close closes the MongoDB connection
func (s *MongoLedgerStore) Close(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.Client().Disconnect(opCtx)
}
