package profile

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/silvercoin/advisor/backend/internal/logging"
	profilemodel "github.com/silvercoin/advisor/backend/internal/model/profile"
)

const (
	DefaultSpendingEntries = 30
	MaxSpendingEntries     = 365

	minSpendingAmount = 5.0
	maxSpendingAmount = 200.0
)

var (
	ErrNameRequired      = errors.New("profile name is required")
	ErrInvalidEntryCount = errors.New("num_entries must be between 1 and 365")
)

var spendingCategories = []string{"groceries", "utilities", "healthcare", "transportation", "entertainment", "dining", "clothing", "gifts"}

var spendingDescriptions = map[string]string{
	"groceries":      "Weekly grocery shopping",
	"utilities":      "Electricity and water bill",
	"healthcare":     "Pharmacy and doctor visit",
	"transportation": "Bus pass and taxi rides",
	"entertainment":  "Movies and books",
	"dining":         "Lunch with friends",
	"clothing":       "Seasonal clothing",
	"gifts":          "Gift for a grandchild",
}

// Option customises the service.
type Option func(*Service)

// WithRand replaces the random source used for synthetic spending.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

// WithClock replaces the clock used to date synthetic spending.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service manages profile records on top of a store.
type Service struct {
	store  profilemodel.Store
	logger *zap.Logger
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewService creates a profile service.
func NewService(store profilemodel.Store, logger *zap.Logger, opts ...Option) *Service {
	svc := &Service{
		store:  store,
		logger: logging.OrNop(logger).Named("profile"),
		now:    time.Now,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create stores a new profile. Any client supplied id or history is ignored.
func (s *Service) Create(ctx context.Context, p profilemodel.Profile) (profilemodel.Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return profilemodel.Profile{}, ErrNameRequired
	}
	p.ID = ""
	p.ConversationHistory = nil

	created, err := s.store.Create(ctx, p)
	if err != nil {
		return profilemodel.Profile{}, err
	}
	s.logger.Info("profile created", zap.String("profile_id", created.ID))
	return created, nil
}

// Get returns a profile by id.
func (s *Service) Get(ctx context.Context, id string) (profilemodel.Profile, error) {
	return s.store.Get(ctx, strings.TrimSpace(id))
}

// List returns every profile sorted by name.
func (s *Service) List(ctx context.Context) ([]profilemodel.Profile, error) {
	return s.store.List(ctx)
}

// Update replaces the editable fields of profile id. The id and the
// conversation history are kept.
func (s *Service) Update(ctx context.Context, id string, p profilemodel.Profile) (profilemodel.Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return profilemodel.Profile{}, ErrNameRequired
	}
	p.ID = strings.TrimSpace(id)

	if err := s.store.Put(ctx, p); err != nil {
		return profilemodel.Profile{}, err
	}
	s.logger.Info("profile updated", zap.String("profile_id", p.ID))
	return s.store.Get(ctx, p.ID)
}

// GenerateSpending appends n synthetic spending entries, one per day ending today.
func (s *Service) GenerateSpending(ctx context.Context, id string, n int) ([]profilemodel.SpendingEntry, error) {
	if n < 1 || n > MaxSpendingEntries {
		return nil, ErrInvalidEntryCount
	}
	id = strings.TrimSpace(id)
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}

	entries := s.syntheticEntries(n)
	if err := s.store.AppendSpending(ctx, id, entries); err != nil {
		return nil, err
	}
	s.logger.Info("synthetic spending generated", zap.String("profile_id", id), zap.Int("entries", n))
	return entries, nil
}

func (s *Service) syntheticEntries(n int) []profilemodel.SpendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().UTC()
	entries := make([]profilemodel.SpendingEntry, 0, n)
	for i := n - 1; i >= 0; i-- {
		category := spendingCategories[s.rng.IntN(len(spendingCategories))]
		amount := minSpendingAmount + s.rng.Float64()*(maxSpendingAmount-minSpendingAmount)
		entries = append(entries, profilemodel.SpendingEntry{
			Date:        today.AddDate(0, 0, -i).Format(time.DateOnly),
			Category:    category,
			Amount:      math.Round(amount*100) / 100,
			Description: spendingDescriptions[category],
		})
	}
	return entries
}
