package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfigInvalid marks configuration that must never be silently
// corrected: bad weight vectors, non-decreasing tier thresholds,
// non-positive wait times.
type ErrConfigInvalid struct {
	Reason string
}

func (e *ErrConfigInvalid) Error() string {
	return "invalid configuration: " + e.Reason
}

func invalid(format string, args ...any) error {
	return &ErrConfigInvalid{Reason: fmt.Sprintf(format, args...)}
}

// WeightTolerance is the floating tolerance applied when checking that a
// weight vector sums to 1.0.
const WeightTolerance = 1e-6

// Tier is one advisor cohort: who qualifies (MinScore), how long to wait
// before escalating past it, and which channel its notifications use.
type Tier struct {
	MinScore float64
	Wait     time.Duration
	Channel  string
}

// AdvisorWeights ranks advisors for notification.
type AdvisorWeights struct {
	Proximity   float64
	Activity    float64
	Performance float64
	Trust       float64
}

func (w AdvisorWeights) Sum() float64 {
	return w.Proximity + w.Activity + w.Performance + w.Trust
}

// OfferWeights ranks competing offers for award.
type OfferWeights struct {
	Price    float64
	Delivery float64
	Warranty float64
}

func (w OfferWeights) Sum() float64 {
	return w.Price + w.Delivery + w.Warranty
}

// Settings are the tunable engine parameters. The engine snapshots them
// once per pass; it never reads them mid-transition.
type Settings struct {
	Tiers          []Tier
	AdvisorWeights AdvisorWeights
	OfferWeights   OfferWeights

	// MinDesiredOffers triggers early evaluation once reached.
	MinDesiredOffers int

	// MaxWarrantyMonths caps warranty before normalization so one outlier
	// offer cannot dominate the warranty sub-score.
	MaxWarrantyMonths int

	// ActivityWindow is the lookback used when the directory computes
	// advisor response rates; carried here so snapshots are self-contained.
	ActivityWindow time.Duration

	ClientResponseWindow time.Duration
	// ReminderOffsets are durations before the client deadline at which
	// reminder intents fire. They never alter state.
	ReminderOffsets []time.Duration
}

// Validate fails fast on any parameter that would silently bias scoring
// or stall the scheduler.
func (s Settings) Validate() error {
	if len(s.Tiers) == 0 {
		return invalid("at least one tier is required")
	}
	for i, t := range s.Tiers {
		if t.Wait <= 0 {
			return invalid("tier %d wait must be positive, got %s", i+1, t.Wait)
		}
		if i > 0 && t.MinScore >= s.Tiers[i-1].MinScore {
			return invalid("tier thresholds must strictly decrease: tier %d (%.4f) >= tier %d (%.4f)",
				i+1, t.MinScore, i, s.Tiers[i-1].MinScore)
		}
	}
	if err := checkWeights("advisor", s.AdvisorWeights.Sum(),
		s.AdvisorWeights.Proximity, s.AdvisorWeights.Activity, s.AdvisorWeights.Performance, s.AdvisorWeights.Trust); err != nil {
		return err
	}
	if err := checkWeights("offer", s.OfferWeights.Sum(),
		s.OfferWeights.Price, s.OfferWeights.Delivery, s.OfferWeights.Warranty); err != nil {
		return err
	}
	if s.MinDesiredOffers < 1 {
		return invalid("minimum desired offers must be >= 1, got %d", s.MinDesiredOffers)
	}
	if s.MaxWarrantyMonths < 1 {
		return invalid("max warranty months must be >= 1, got %d", s.MaxWarrantyMonths)
	}
	if s.ClientResponseWindow <= 0 {
		return invalid("client response window must be positive, got %s", s.ClientResponseWindow)
	}
	for _, off := range s.ReminderOffsets {
		if off <= 0 || off >= s.ClientResponseWindow {
			return invalid("reminder offset %s must fall inside the client response window %s", off, s.ClientResponseWindow)
		}
	}
	return nil
}

func checkWeights(name string, sum float64, weights ...float64) error {
	for _, w := range weights {
		if w < 0 {
			return invalid("%s weight vector contains a negative weight", name)
		}
	}
	if sum < 1-WeightTolerance || sum > 1+WeightTolerance {
		return invalid("%s weight vector sums to %.8f, want 1.0", name, sum)
	}
	return nil
}

// Source supplies a settings snapshot per engine pass. Implementations may
// hot-reload; the engine only sees whole snapshots, never partial updates.
type Source interface {
	Snapshot() Settings
}

// Static is a Source that always returns the same settings.
type Static struct {
	S Settings
}

func (s Static) Snapshot() Settings { return s.S }

// Config is everything the binary needs at startup.
type Config struct {
	Port        string
	Environment string

	StoreType           string
	MongoURI            string
	MongoDB             string
	FirestoreProjectID  string
	FirestoreCollection string

	DirectoryURL    string
	DirectoryAPIKey string

	// NotifyWebhookURL, when set, receives every notify-intent the
	// dispatcher should deliver.
	NotifyWebhookURL string

	RedisAddr   string
	RedisStream string

	// SweepInterval drives the timer reconciliation cron.
	SweepInterval time.Duration

	Engine Settings
}

// Load reads configuration from the environment, applying development
// defaults, and validates the engine settings.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		StoreType:           getEnv("STORE_TYPE", "memory"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:             getEnv("MONGO_DB", "partsgrid"),
		FirestoreProjectID:  getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "requests"),
		DirectoryURL:        getEnv("ADVISOR_DIRECTORY_URL", "http://localhost:8086"),
		DirectoryAPIKey:     getEnv("ADVISOR_DIRECTORY_API_KEY", ""),
		NotifyWebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisStream:         getEnv("REDIS_NOTIFY_STREAM", "notify-intents"),
	}

	var err error
	if cfg.SweepInterval, err = getDuration("TIMER_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if cfg.Engine, err = loadEngineSettings(); err != nil {
		return nil, err
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" && cfg.StoreType == "firestore" && cfg.FirestoreProjectID == "" {
		return nil, fmt.Errorf("FIRESTORE_PROJECT_ID is required in production with firestore store")
	}

	return cfg, nil
}

func loadEngineSettings() (Settings, error) {
	var s Settings

	thresholds, err := getFloats("TIER_THRESHOLDS", []float64{4.5, 4.0, 3.5, 0})
	if err != nil {
		return s, err
	}
	waits, err := getDurations("TIER_WAITS", []time.Duration{10 * time.Minute, 15 * time.Minute, 20 * time.Minute, 30 * time.Minute})
	if err != nil {
		return s, err
	}
	channels := strings.Split(getEnv("TIER_CHANNELS", "push,push,sms,whatsapp"), ",")
	if len(waits) != len(thresholds) || len(channels) != len(thresholds) {
		return s, invalid("TIER_THRESHOLDS, TIER_WAITS and TIER_CHANNELS must have equal length")
	}

	for i := range thresholds {
		s.Tiers = append(s.Tiers, Tier{
			MinScore: thresholds[i],
			Wait:     waits[i],
			Channel:  strings.TrimSpace(channels[i]),
		})
	}

	aw, err := getFloats("ADVISOR_WEIGHTS", []float64{0.35, 0.25, 0.25, 0.15})
	if err != nil {
		return s, err
	}
	if len(aw) != 4 {
		return s, invalid("ADVISOR_WEIGHTS must have 4 entries (proximity,activity,performance,trust)")
	}
	s.AdvisorWeights = AdvisorWeights{Proximity: aw[0], Activity: aw[1], Performance: aw[2], Trust: aw[3]}

	ow, err := getFloats("OFFER_WEIGHTS", []float64{0.5, 0.35, 0.15})
	if err != nil {
		return s, err
	}
	if len(ow) != 3 {
		return s, invalid("OFFER_WEIGHTS must have 3 entries (price,delivery,warranty)")
	}
	s.OfferWeights = OfferWeights{Price: ow[0], Delivery: ow[1], Warranty: ow[2]}

	if s.MinDesiredOffers, err = getInt("MIN_DESIRED_OFFERS", 2); err != nil {
		return s, err
	}
	if s.MaxWarrantyMonths, err = getInt("MAX_WARRANTY_MONTHS", 24); err != nil {
		return s, err
	}
	if s.ActivityWindow, err = getDuration("ACTIVITY_WINDOW", 30*24*time.Hour); err != nil {
		return s, err
	}
	if s.ClientResponseWindow, err = getDuration("CLIENT_RESPONSE_WINDOW", 24*time.Hour); err != nil {
		return s, err
	}
	if s.ReminderOffsets, err = getDurations("REMINDER_OFFSETS", []time.Duration{6 * time.Hour, time.Hour}); err != nil {
		return s, err
	}

	return s, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("%s: %v", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, invalid("%s: %v", key, err)
	}
	return d, nil
}

func getFloats(key string, defaultValue []float64) ([]float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, invalid("%s: %v", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func getDurations(key string, defaultValue []time.Duration) ([]time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, invalid("%s: %v", key, err)
		}
		out = append(out, d)
	}
	return out, nil
}
