package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rubex-exchange/rubex/pkg/metrics"
	"github.com/rubex-exchange/rubex/pkg/models"
)

const redisSnapshotKey = "rubex:rates:latest"

// Config configures the rate feed poller.
type Config struct {
	URL        string
	APIKey     string
	Interval   time.Duration
	Currencies []string
}

// Service polls the external price feed on a fixed interval and
// replaces the current snapshot wholesale on each cycle. The redis
// mirror, when configured, lets a restarted or additional instance warm
// up without waiting for the next poll.
type Service struct {
	logger     *zap.Logger
	db         *gorm.DB
	store      *Store
	redis      *redis.Client // optional
	httpClient *http.Client
	cfg        Config

	mutex     sync.Mutex
	stopChan  chan struct{}
	isRunning bool
}

// NewService creates a new rate feed service. redisClient may be nil.
func NewService(logger *zap.Logger, db *gorm.DB, store *Store, redisClient *redis.Client, cfg Config) (*Service, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	svc := &Service{
		logger:     logger,
		db:         db,
		store:      store,
		redis:      redisClient,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cfg:        cfg,
	}
	return svc, nil
}

// Start warms the store from the last persisted snapshot and launches
// the poll loop.
func (s *Service) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("rates service is already running")
	}

	ctx := context.Background()
	if err := s.warm(ctx); err != nil {
		s.logger.Warn("No previous rate snapshot available", zap.Error(err))
	}

	s.stopChan = make(chan struct{})
	go s.pollLoop()

	s.isRunning = true
	s.logger.Info("Rates service started", zap.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop stops the poll loop.
func (s *Service) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isRunning {
		return fmt.Errorf("rates service is not running")
	}

	close(s.stopChan)
	s.isRunning = false
	s.logger.Info("Rates service stopped")
	return nil
}

func (s *Service) pollLoop() {
	// First refresh immediately so the store does not stay empty for a
	// full interval after boot.
	s.refreshOnce()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.refreshOnce()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Service) refreshOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Refresh(ctx); err != nil {
		metrics.RateRefreshes.WithLabelValues("error").Inc()
		s.logger.Error("Rate refresh failed", zap.Error(err))
		return
	}
	metrics.RateRefreshes.WithLabelValues("ok").Inc()
}

// Refresh fetches current prices and swaps in a new snapshot.
func (s *Service) Refresh(ctx context.Context) error {
	snap, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	s.store.Replace(snap)

	if err := s.persist(ctx, snap); err != nil {
		s.logger.Warn("Failed to persist rate snapshot", zap.Error(err))
	}
	if err := s.mirror(ctx, snap); err != nil {
		s.logger.Warn("Failed to mirror rate snapshot to redis", zap.Error(err))
	}

	s.logger.Debug("Rate snapshot refreshed",
		zap.Int("currencies", len(snap.Rates)),
		zap.Time("timestamp", snap.Timestamp))
	return nil
}

// fetch queries the pricemulti endpoint for all configured currencies
// against the fiat currency.
func (s *Service) fetch(ctx context.Context) (*Snapshot, error) {
	endpoint, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid rates url: %w", err)
	}
	query := endpoint.Query()
	query.Set("fsyms", strings.Join(s.cfg.Currencies, ","))
	query.Set("tsyms", models.FiatCurrency)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rates request: %w", err)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Apikey "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates feed returned status %d", resp.StatusCode)
	}

	var raw map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode rates response: %w", err)
	}

	snap := &Snapshot{
		Rates:     make(map[string]decimal.Decimal, len(raw)),
		Timestamp: time.Now().UTC(),
	}
	for symbol, legs := range raw {
		fiat, ok := legs[models.FiatCurrency]
		if !ok || fiat <= 0 {
			continue
		}
		snap.Rates[symbol] = decimal.NewFromFloat(fiat)
	}
	// The feed reports RUB/RUB as 1 but guard against it being absent.
	snap.Rates[models.FiatCurrency] = decimal.NewFromInt(1)

	if len(snap.Rates) < 2 {
		return nil, fmt.Errorf("rates response contained no usable rates")
	}
	return snap, nil
}

// persist stores the snapshot as the single latest row.
func (s *Service) persist(ctx context.Context, snap *Snapshot) error {
	data, err := marshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	row := &models.RateSnapshot{
		ID:        1,
		Rates:     string(data),
		Timestamp: snap.Timestamp,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *Service) mirror(ctx context.Context, snap *Snapshot) error {
	if s.redis == nil {
		return nil
	}
	data, err := marshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, redisSnapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to redis: %w", err)
	}
	return nil
}

// warm loads the most recent persisted snapshot, preferring the redis
// mirror over the database row.
func (s *Service) warm(ctx context.Context) error {
	if s.redis != nil {
		data, err := s.redis.Get(ctx, redisSnapshotKey).Bytes()
		if err == nil {
			snap, err := unmarshalSnapshot(data)
			if err == nil {
				s.store.Replace(snap)
				s.logger.Info("Warmed rate snapshot from redis", zap.Time("timestamp", snap.Timestamp))
				return nil
			}
			s.logger.Warn("Discarding corrupt redis snapshot", zap.Error(err))
		} else if err != redis.Nil {
			s.logger.Warn("Failed to read snapshot from redis", zap.Error(err))
		}
	}

	var row models.RateSnapshot
	if err := s.db.WithContext(ctx).Order("timestamp DESC").First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNoSnapshot
		}
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	snap, err := unmarshalSnapshot([]byte(row.Rates))
	if err != nil {
		return err
	}
	s.store.Replace(snap)
	s.logger.Info("Warmed rate snapshot from database", zap.Time("timestamp", snap.Timestamp))
	return nil
}
