// Package memory provides in-memory implementations of the repository
// interfaces. They back the service tests and the storage-free dev mode;
// semantics (sort orders, uniqueness, not-found) mirror the mongodb package.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the shared backing state for all in-memory repositories.
// One mutex guards everything: coarse, but it makes the best-effort unit
// of work serialize whole operations the way a single Mongo node would
// serialize individual writes.
type Store struct {
	mu sync.Mutex

	customers    map[primitive.ObjectID]*models.Customer
	lots         map[primitive.ObjectID]*models.PointLot
	lotSeq       map[primitive.ObjectID]int
	seq          int
	transactions map[primitive.ObjectID]*models.Transaction
	txByKey      map[string]primitive.ObjectID
	tiers        map[primitive.ObjectID]*models.Tier
	criteria     []*models.TierEligibilityCriteria
	rules        []*models.PointsExpirationRules
	adminUsers   map[primitive.ObjectID]*models.AdminUser
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		customers:    make(map[primitive.ObjectID]*models.Customer),
		lots:         make(map[primitive.ObjectID]*models.PointLot),
		lotSeq:       make(map[primitive.ObjectID]int),
		transactions: make(map[primitive.ObjectID]*models.Transaction),
		txByKey:      make(map[string]primitive.ObjectID),
		tiers:        make(map[primitive.ObjectID]*models.Tier),
		adminUsers:   make(map[primitive.ObjectID]*models.AdminUser),
	}
}

// UnitOfWork serializes operations on the shared store. It is best-effort:
// there is no rollback, so Transactional reports false, mirroring the
// standalone-Mongo deployment mode.
type UnitOfWork struct {
	store *Store
}

var _ repositories.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a UnitOfWork over the store.
func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

// Transactional reports false: the memory store has no rollback.
func (u *UnitOfWork) Transactional() bool { return false }

// WithinTransaction runs fn while holding the store lock.
func (u *UnitOfWork) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(context.WithValue(ctx, lockHeldKey{}, true))
}

// lockHeldKey marks a context as already holding the store lock, so nested
// repository calls made inside a unit of work do not deadlock.
type lockHeldKey struct{}

func (s *Store) lock(ctx context.Context) func() {
	if held, _ := ctx.Value(lockHeldKey{}).(bool); held {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- CustomerRepository ---

type CustomerRepository struct{ store *Store }

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

func NewCustomerRepository(store *Store) *CustomerRepository {
	return &CustomerRepository{store: store}
}

func (r *CustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	customer.ID = primitive.NewObjectID()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}
	customer.UpdatedAt = time.Now()
	cp := *customer
	r.store.customers[customer.ID] = &cp
	return nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Customer, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	c, ok := r.store.customers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CustomerRepository) FindByTier(ctx context.Context, tierID primitive.ObjectID) ([]*models.Customer, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	out := []*models.Customer{}
	for _, c := range r.store.customers {
		if c.TierID == tierID && c.IsActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *CustomerRepository) FindAll(ctx context.Context, page, limit int) ([]*models.Customer, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	all := make([]*models.Customer, 0, len(r.store.customers))
	for _, c := range r.store.customers {
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page, limit), nil
}

func (r *CustomerRepository) Update(ctx context.Context, customer *models.Customer) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	if _, ok := r.store.customers[customer.ID]; !ok {
		return repositories.ErrNotFound
	}
	customer.UpdatedAt = time.Now()
	cp := *customer
	r.store.customers[customer.ID] = &cp
	return nil
}

func (r *CustomerRepository) IncrementPoints(ctx context.Context, id primitive.ObjectID, delta int64) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	c, ok := r.store.customers[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.TotalPoints += delta
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CustomerRepository) UpdateTier(ctx context.Context, id primitive.ObjectID, tierID primitive.ObjectID) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	c, ok := r.store.customers[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.TierID = tierID
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CustomerRepository) Count(ctx context.Context) (int64, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	return int64(len(r.store.customers)), nil
}

// --- PointLotRepository ---

type PointLotRepository struct{ store *Store }

var _ repositories.PointLotRepository = (*PointLotRepository)(nil)

func NewPointLotRepository(store *Store) *PointLotRepository {
	return &PointLotRepository{store: store}
}

func (r *PointLotRepository) Create(ctx context.Context, lot *models.PointLot) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	lot.ID = primitive.NewObjectID()
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now()
	}
	lot.UpdatedAt = time.Now()
	r.store.seq++
	r.store.lotSeq[lot.ID] = r.store.seq
	cp := *lot
	r.store.lots[lot.ID] = &cp
	return nil
}

func (r *PointLotRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PointLot, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	l, ok := r.store.lots[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// FindActiveByCustomer returns active unexpired lots in FIFO consumption
// order: expiry ascending, insertion order for ties.
func (r *PointLotRepository) FindActiveByCustomer(ctx context.Context, customerID primitive.ObjectID, asOf time.Time) ([]*models.PointLot, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	out := []*models.PointLot{}
	for _, l := range r.store.lots {
		if l.CustomerID == customerID && l.Status == models.LotStatusActive && !l.ExpiresAt.Before(asOf) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return r.store.lotSeq[out[i].ID] < r.store.lotSeq[out[j].ID]
	})
	return out, nil
}

func (r *PointLotRepository) SumActiveByCustomer(ctx context.Context, customerID primitive.ObjectID, asOf time.Time) (int64, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	var total int64
	for _, l := range r.store.lots {
		if l.CustomerID == customerID && l.Status == models.LotStatusActive && !l.ExpiresAt.Before(asOf) {
			total += l.Amount
		}
	}
	return total, nil
}

func (r *PointLotRepository) SumExpiringBetween(ctx context.Context, customerID primitive.ObjectID, from, to time.Time) (int64, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	var total int64
	for _, l := range r.store.lots {
		if l.CustomerID == customerID && l.Status == models.LotStatusActive &&
			!l.ExpiresAt.Before(from) && l.ExpiresAt.Before(to) {
			total += l.Amount
		}
	}
	return total, nil
}

func (r *PointLotRepository) FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*models.PointLot, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	out := []*models.PointLot{}
	for _, l := range r.store.lots {
		if l.Status == models.LotStatusActive && l.ExpiresAt.Before(asOf) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PointLotRepository) Update(ctx context.Context, lot *models.PointLot) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	if _, ok := r.store.lots[lot.ID]; !ok {
		return repositories.ErrNotFound
	}
	lot.UpdatedAt = time.Now()
	cp := *lot
	r.store.lots[lot.ID] = &cp
	return nil
}

// --- TransactionRepository ---

type TransactionRepository struct{ store *Store }

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

func (r *TransactionRepository) Create(ctx context.Context, transaction *models.Transaction) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	if _, exists := r.store.txByKey[transaction.IdempotencyKey]; exists {
		return repositories.ErrDuplicateKey
	}
	transaction.ID = primitive.NewObjectID()
	if transaction.CreatedAt.IsZero() {
		transaction.CreatedAt = time.Now()
	}
	transaction.UpdatedAt = time.Now()
	cp := *transaction
	r.store.transactions[transaction.ID] = &cp
	r.store.txByKey[transaction.IdempotencyKey] = transaction.ID
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	t, ok := r.store.transactions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	id, ok := r.store.txByKey[key]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *r.store.transactions[id]
	return &cp, nil
}

func (r *TransactionRepository) FindByCustomer(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]*models.Transaction, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	out := []*models.Transaction{}
	for _, t := range r.store.transactions {
		if t.CustomerID == customerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, page, limit), nil
}

func (r *TransactionRepository) FindCompletedInRange(ctx context.Context, customerID primitive.ObjectID, from, to time.Time) ([]*models.Transaction, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	out := []*models.Transaction{}
	for _, t := range r.store.transactions {
		if t.CustomerID == customerID && t.Status == models.TransactionStatusCompleted &&
			!t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TransactionRepository) FindByRefTransaction(ctx context.Context, refID primitive.ObjectID) (*models.Transaction, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	for _, t := range r.store.transactions {
		if t.RefTransactionID == refID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	t, ok := r.store.transactions[id]
	if !ok {
		return repositories.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

func (r *TransactionRepository) Update(ctx context.Context, transaction *models.Transaction) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	if _, ok := r.store.transactions[transaction.ID]; !ok {
		return repositories.ErrNotFound
	}
	transaction.UpdatedAt = time.Now()
	cp := *transaction
	r.store.transactions[transaction.ID] = &cp
	return nil
}

// --- TierRepository ---

type TierRepository struct{ store *Store }

var _ repositories.TierRepository = (*TierRepository)(nil)

func NewTierRepository(store *Store) *TierRepository {
	return &TierRepository{store: store}
}

func (r *TierRepository) Create(ctx context.Context, tier *models.Tier) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	for _, t := range r.store.tiers {
		if t.HierarchyLevel == tier.HierarchyLevel {
			return repositories.ErrDuplicateKey
		}
	}
	tier.ID = primitive.NewObjectID()
	if tier.CreatedAt.IsZero() {
		tier.CreatedAt = time.Now()
	}
	tier.UpdatedAt = time.Now()
	cp := *tier
	r.store.tiers[tier.ID] = &cp
	return nil
}

func (r *TierRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Tier, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	t, ok := r.store.tiers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TierRepository) FindByLevel(ctx context.Context, level int) (*models.Tier, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	for _, t := range r.store.tiers {
		if t.HierarchyLevel == level && t.IsActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *TierRepository) FindAll(ctx context.Context) ([]*models.Tier, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	out := []*models.Tier{}
	for _, t := range r.store.tiers {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HierarchyLevel < out[j].HierarchyLevel })
	return out, nil
}

func (r *TierRepository) Update(ctx context.Context, tier *models.Tier) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	if _, ok := r.store.tiers[tier.ID]; !ok {
		return repositories.ErrNotFound
	}
	tier.UpdatedAt = time.Now()
	cp := *tier
	r.store.tiers[tier.ID] = &cp
	return nil
}

// --- TierCriteriaRepository ---

type TierCriteriaRepository struct{ store *Store }

var _ repositories.TierCriteriaRepository = (*TierCriteriaRepository)(nil)

func NewTierCriteriaRepository(store *Store) *TierCriteriaRepository {
	return &TierCriteriaRepository{store: store}
}

func (r *TierCriteriaRepository) Upsert(ctx context.Context, criteria *models.TierEligibilityCriteria) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	now := time.Now()
	for i, c := range r.store.criteria {
		if c.TierID == criteria.TierID && c.AppID == criteria.AppID {
			criteria.ID = c.ID
			criteria.CreatedAt = c.CreatedAt
			criteria.UpdatedAt = now
			cp := *criteria
			r.store.criteria[i] = &cp
			return nil
		}
	}
	criteria.ID = primitive.NewObjectID()
	criteria.CreatedAt = now
	criteria.UpdatedAt = now
	cp := *criteria
	r.store.criteria = append(r.store.criteria, &cp)
	return nil
}

func (r *TierCriteriaRepository) FindByTierAndApp(ctx context.Context, tierID primitive.ObjectID, appID string) (*models.TierEligibilityCriteria, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	for _, c := range r.store.criteria {
		if c.TierID == tierID && c.AppID == appID && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *TierCriteriaRepository) FindByTier(ctx context.Context, tierID primitive.ObjectID) ([]*models.TierEligibilityCriteria, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	out := []*models.TierEligibilityCriteria{}
	for _, c := range r.store.criteria {
		if c.TierID == tierID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- ExpirationRulesRepository ---

type ExpirationRulesRepository struct{ store *Store }

var _ repositories.ExpirationRulesRepository = (*ExpirationRulesRepository)(nil)

func NewExpirationRulesRepository(store *Store) *ExpirationRulesRepository {
	return &ExpirationRulesRepository{store: store}
}

func (r *ExpirationRulesRepository) Create(ctx context.Context, rules *models.PointsExpirationRules) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	now := time.Now()
	for _, existing := range r.store.rules {
		existing.IsActive = false
		existing.UpdatedAt = now
	}
	rules.ID = primitive.NewObjectID()
	rules.IsActive = true
	rules.CreatedAt = now
	rules.UpdatedAt = now
	cp := *rules
	r.store.rules = append(r.store.rules, &cp)
	return nil
}

func (r *ExpirationRulesRepository) FindActive(ctx context.Context) (*models.PointsExpirationRules, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	for i := len(r.store.rules) - 1; i >= 0; i-- {
		if r.store.rules[i].IsActive {
			cp := *r.store.rules[i]
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// --- AdminUserRepository ---

type AdminUserRepository struct{ store *Store }

var _ repositories.AdminUserRepository = (*AdminUserRepository)(nil)

func NewAdminUserRepository(store *Store) *AdminUserRepository {
	return &AdminUserRepository{store: store}
}

func (r *AdminUserRepository) Create(ctx context.Context, user *models.AdminUser) error {
	unlock := r.store.lock(ctx)
	defer unlock()
	for _, u := range r.store.adminUsers {
		if strings.EqualFold(u.Email, user.Email) {
			return repositories.ErrDuplicateKey
		}
	}
	user.ID = primitive.NewObjectID()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = time.Now()
	cp := *user
	r.store.adminUsers[user.ID] = &cp
	return nil
}

func (r *AdminUserRepository) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	for _, u := range r.store.adminUsers {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *AdminUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.AdminUser, error) {
	unlock := r.store.lock(ctx)
	defer unlock()
	u, ok := r.store.adminUsers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func paginate[T any](items []*T, page, limit int) []*T {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []*T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
