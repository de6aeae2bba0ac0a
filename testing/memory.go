package testing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type memTxKey struct{}

// MemoryStore is an in-memory stand-in for the Postgres repositories. It
// keeps the guarantees the flows rely on: conditional status updates, the
// guarded disbursement increment, unique indexes and rollback on error.
// A transaction holds the store lock until it commits or rolls back.
type MemoryStore struct {
	mu sync.Mutex

	campaigns    map[uint]models.Campaign
	donations    map[uint]models.Donation
	transactions map[uint]models.Transaction
	audits       []models.AuditLog
	admins       map[uint]models.Admin
	nextID       map[string]uint

	// TransactionSaveErr, when set, fails every transaction insert
	TransactionSaveErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:    make(map[uint]models.Campaign),
		donations:    make(map[uint]models.Donation),
		transactions: make(map[uint]models.Transaction),
		admins:       make(map[uint]models.Admin),
		nextID:       make(map[string]uint),
	}
}

type memSnapshot struct {
	campaigns    map[uint]models.Campaign
	donations    map[uint]models.Donation
	transactions map[uint]models.Transaction
	audits       []models.AuditLog
	admins       map[uint]models.Admin
	nextID       map[string]uint
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) snapshot() memSnapshot {
	return memSnapshot{
		campaigns:    copyMap(s.campaigns),
		donations:    copyMap(s.donations),
		transactions: copyMap(s.transactions),
		audits:       append([]models.AuditLog(nil), s.audits...),
		admins:       copyMap(s.admins),
		nextID:       copyMap(s.nextID),
	}
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.campaigns = snap.campaigns
	s.donations = snap.donations
	s.transactions = snap.transactions
	s.audits = snap.audits
	s.admins = snap.admins
	s.nextID = snap.nextID
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(memTxKey{}).(*MemoryStore)
	return ok && owner == s
}

// lock takes the store lock unless ctx already runs inside a transaction
func (s *MemoryStore) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) id(table string) uint {
	s.nextID[table]++
	return s.nextID[table]
}

// WithinTransaction implements repository.Transactor
func (s *MemoryStore) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()

	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// WithinReadSnapshot implements repository.Transactor. The store lock is held
// for the whole of fn, so no write can land between its reads.
func (s *MemoryStore) WithinReadSnapshot(ctx context.Context, fn func(txCtx context.Context) error) error {
	return s.WithinTransaction(ctx, fn)
}

func (s *MemoryStore) Transactor() repository.Transactor              { return s }
func (s *MemoryStore) Campaigns() repository.CampaignRepository       { return &memCampaignRepo{s} }
func (s *MemoryStore) Donations() repository.DonationRepository       { return &memDonationRepo{s} }
func (s *MemoryStore) Transactions() repository.TransactionRepository { return &memTransactionRepo{s} }
func (s *MemoryStore) AuditLogs() repository.AuditLogRepository       { return &memAuditLogRepo{s} }
func (s *MemoryStore) Admins() repository.AdminRepository             { return &memAdminRepo{s} }

// SeedCampaign inserts c as-is, assigning ID and UUID when missing
func (s *MemoryStore) SeedCampaign(c models.Campaign) *models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id("campaigns")
	}
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusActive
	}
	if c.Currency == "" {
		c.Currency = "INR"
	}
	s.campaigns[c.ID] = c
	return &c
}

// AuditEntries returns a copy of all audit rows written so far
func (s *MemoryStore) AuditEntries() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.audits...)
}

func sortByID[T any](items []*T, idOf func(*T) uint, orderBy string) {
	asc := strings.Contains(strings.ToUpper(orderBy), "ASC")
	sort.Slice(items, func(i, j int) bool {
		if asc {
			return idOf(items[i]) < idOf(items[j])
		}
		return idOf(items[i]) > idOf(items[j])
	})
}

func page[T any](items []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return []*T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func duplicate(index string) error {
	return fmt.Errorf("%s: %w", index, gorm.ErrDuplicatedKey)
}

// campaigns

type memCampaignRepo struct{ s *MemoryStore }

func (r *memCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memCampaignRepo) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	defer r.s.lock(ctx)()
	for _, c := range r.s.campaigns {
		if c.UUID == parsed {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	defer r.s.lock(ctx)()
	var out []*models.Campaign
	for _, c := range r.s.campaigns {
		if filter.ID != nil && c.ID != *filter.ID {
			continue
		}
		if filter.UUID != nil && c.UUID != *filter.UUID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sortByID(out, func(c *models.Campaign) uint { return c.ID }, orderBy)
	return page(out, limit, offset), nil
}

func (r *memCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	defer r.s.lock(ctx)()
	if c.ID == 0 {
		c.ID = r.s.id("campaigns")
	}
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *memCampaignRepo) IncrementRaised(ctx context.Context, id uint, amount decimal.Decimal) (bool, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.campaigns[id]
	if !ok {
		return false, nil
	}
	c.RaisedAmount = c.RaisedAmount.Add(amount)
	c.TotalDonors++
	c.UpdatedAt = time.Now().UTC()
	r.s.campaigns[id] = c
	return true, nil
}

func (r *memCampaignRepo) IncrementDisbursedIfAvailable(ctx context.Context, id uint, amount decimal.Decimal) (bool, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.campaigns[id]
	if !ok {
		return false, nil
	}
	if c.DisbursedAmount.Add(amount).GreaterThan(c.RaisedAmount) {
		return false, nil
	}
	c.DisbursedAmount = c.DisbursedAmount.Add(amount)
	c.UpdatedAt = time.Now().UTC()
	r.s.campaigns[id] = c
	return true, nil
}

// donations

type memDonationRepo struct{ s *MemoryStore }

func (r *memDonationRepo) ByID(ctx context.Context, id uint) (*models.Donation, error) {
	defer r.s.lock(ctx)()
	d, ok := r.s.donations[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *memDonationRepo) find(ctx context.Context, match func(models.Donation) bool) *models.Donation {
	defer r.s.lock(ctx)()
	for _, d := range r.s.donations {
		if match(d) {
			d := d
			return &d
		}
	}
	return nil
}

func (r *memDonationRepo) ByUUID(ctx context.Context, id string) (*models.Donation, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, func(d models.Donation) bool { return d.UUID == parsed }), nil
}

func (r *memDonationRepo) ByGatewayOrderID(ctx context.Context, orderID string) (*models.Donation, error) {
	return r.find(ctx, func(d models.Donation) bool { return d.GatewayOrderID == orderID }), nil
}

func (r *memDonationRepo) ByGatewayPaymentID(ctx context.Context, paymentID string) (*models.Donation, error) {
	return r.find(ctx, func(d models.Donation) bool {
		return d.GatewayPaymentID != nil && *d.GatewayPaymentID == paymentID
	}), nil
}

func donationMatches(d models.Donation, f models.DonationFilter) bool {
	switch {
	case f.ID != nil && d.ID != *f.ID:
		return false
	case f.UUID != nil && d.UUID != *f.UUID:
		return false
	case f.CampaignID != nil && d.CampaignID != *f.CampaignID:
		return false
	case f.DonorID != nil && d.DonorID != *f.DonorID:
		return false
	case f.Status != nil && d.Status != *f.Status:
		return false
	case f.GatewayOrderID != nil && d.GatewayOrderID != *f.GatewayOrderID:
		return false
	case f.CreatedAfter != nil && !d.CreatedAt.After(*f.CreatedAfter):
		return false
	case f.CreatedBefore != nil && !d.CreatedAt.Before(*f.CreatedBefore):
		return false
	}
	return true
}

func (r *memDonationRepo) ByFilter(ctx context.Context, filter models.DonationFilter, orderBy string, limit, offset int) ([]*models.Donation, error) {
	defer r.s.lock(ctx)()
	var out []*models.Donation
	for _, d := range r.s.donations {
		if donationMatches(d, filter) {
			d := d
			out = append(out, &d)
		}
	}
	sortByID(out, func(d *models.Donation) uint { return d.ID }, orderBy)
	return page(out, limit, offset), nil
}

func (r *memDonationRepo) Count(ctx context.Context, filter models.DonationFilter) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for _, d := range r.s.donations {
		if donationMatches(d, filter) {
			n++
		}
	}
	return n, nil
}

func (r *memDonationRepo) Save(ctx context.Context, d *models.Donation) error {
	defer r.s.lock(ctx)()
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.CorrelationID == uuid.Nil {
		d.CorrelationID = uuid.New()
	}
	for _, other := range r.s.donations {
		if other.ID == d.ID {
			continue
		}
		if other.UUID == d.UUID {
			return duplicate("uk_donations_uuid")
		}
		if other.GatewayOrderID == d.GatewayOrderID {
			return duplicate("uk_donations_gateway_order_id")
		}
		if d.GatewayPaymentID != nil && other.GatewayPaymentID != nil && *other.GatewayPaymentID == *d.GatewayPaymentID {
			return duplicate("uk_donations_gateway_payment_id")
		}
	}
	if d.ID == 0 {
		d.ID = r.s.id("donations")
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	r.s.donations[d.ID] = *d
	return nil
}

func (r *memDonationRepo) transition(ctx context.Context, id uint, apply func(*models.Donation)) (bool, error) {
	defer r.s.lock(ctx)()
	d, ok := r.s.donations[id]
	if !ok || d.Status != models.DonationStatusInitiated {
		return false, nil
	}
	apply(&d)
	d.UpdatedAt = time.Now().UTC()
	r.s.donations[id] = d
	return true, nil
}

func (r *memDonationRepo) CompleteIfInitiated(ctx context.Context, id uint, completedAt time.Time) (bool, error) {
	return r.transition(ctx, id, func(d *models.Donation) {
		d.Status = models.DonationStatusCompleted
		d.CompletedAt = &completedAt
	})
}

func (r *memDonationRepo) FailIfInitiated(ctx context.Context, id uint, reason string, failedAt time.Time) (bool, error) {
	return r.transition(ctx, id, func(d *models.Donation) {
		d.Status = models.DonationStatusFailed
		d.FailureReason = &reason
		d.FailedAt = &failedAt
	})
}

func (r *memDonationRepo) AttachGatewayPayment(ctx context.Context, id uint, paymentID, signature string) error {
	defer r.s.lock(ctx)()
	d, ok := r.s.donations[id]
	if !ok {
		return fmt.Errorf("donation %d not found", id)
	}
	for _, other := range r.s.donations {
		if other.ID != id && other.GatewayPaymentID != nil && *other.GatewayPaymentID == paymentID {
			return duplicate("uk_donations_gateway_payment_id")
		}
	}
	d.GatewayPaymentID = &paymentID
	d.GatewaySignature = &signature
	r.s.donations[id] = d
	return nil
}

func (r *memDonationRepo) SumCompletedByCampaign(ctx context.Context, campaignID uint) (decimal.Decimal, error) {
	defer r.s.lock(ctx)()
	total := decimal.Zero
	for _, d := range r.s.donations {
		if d.CampaignID == campaignID && d.Status == models.DonationStatusCompleted {
			total = total.Add(d.Amount)
		}
	}
	return total, nil
}

// transactions

type memTransactionRepo struct{ s *MemoryStore }

func (r *memTransactionRepo) Save(ctx context.Context, t *models.Transaction) error {
	defer r.s.lock(ctx)()
	if r.s.TransactionSaveErr != nil {
		return r.s.TransactionSaveErr
	}
	for _, other := range r.s.transactions {
		if other.TransactionID == t.TransactionID {
			return duplicate("uk_transactions_transaction_id")
		}
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	t.ID = r.s.id("transactions")
	t.CreatedAt = time.Now().UTC()
	r.s.transactions[t.ID] = *t
	return nil
}

func (r *memTransactionRepo) ByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	defer r.s.lock(ctx)()
	for _, t := range r.s.transactions {
		if t.TransactionID == transactionID {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memTransactionRepo) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	t, err := r.ByTransactionID(ctx, transactionID)
	return t != nil, err
}

func transactionMatches(t models.Transaction, f models.TransactionFilter) bool {
	switch {
	case f.TransactionID != nil && t.TransactionID != *f.TransactionID:
		return false
	case f.Type != nil && t.Type != *f.Type:
		return false
	case f.Status != nil && t.Status != *f.Status:
		return false
	case f.CampaignID != nil && t.CampaignID != *f.CampaignID:
		return false
	case f.DonorID != nil && (t.DonorID == nil || *t.DonorID != *f.DonorID):
		return false
	case f.DonationID != nil && (t.DonationID == nil || *t.DonationID != *f.DonationID):
		return false
	case f.DisbursedBy != nil && (t.DisbursedBy == nil || *t.DisbursedBy != *f.DisbursedBy):
		return false
	case f.CreatedAfter != nil && !t.CreatedAt.After(*f.CreatedAfter):
		return false
	case f.CreatedBefore != nil && !t.CreatedAt.Before(*f.CreatedBefore):
		return false
	}
	return true
}

func (r *memTransactionRepo) ByFilter(ctx context.Context, filter models.TransactionFilter, orderBy string, limit, offset int) ([]*models.Transaction, error) {
	defer r.s.lock(ctx)()
	var out []*models.Transaction
	for _, t := range r.s.transactions {
		if transactionMatches(t, filter) {
			t := t
			out = append(out, &t)
		}
	}
	sortByID(out, func(t *models.Transaction) uint { return t.ID }, orderBy)
	return page(out, limit, offset), nil
}

func (r *memTransactionRepo) Count(ctx context.Context, filter models.TransactionFilter) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for _, t := range r.s.transactions {
		if transactionMatches(t, filter) {
			n++
		}
	}
	return n, nil
}

func (r *memTransactionRepo) SumByCampaign(ctx context.Context, campaignID uint, txType models.TransactionType, status models.TransactionStatus) (decimal.Decimal, error) {
	defer r.s.lock(ctx)()
	total := decimal.Zero
	for _, t := range r.s.transactions {
		if t.CampaignID == campaignID && t.Type == txType && t.Status == status {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

// audit logs

type memAuditLogRepo struct{ s *MemoryStore }

func (r *memAuditLogRepo) Save(ctx context.Context, a *models.AuditLog) error {
	defer r.s.lock(ctx)()
	a.ID = r.s.id("audit_log")
	a.CreatedAt = time.Now().UTC()
	r.s.audits = append(r.s.audits, *a)
	return nil
}

func (r *memAuditLogRepo) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	defer r.s.lock(ctx)()
	var out []*models.AuditLog
	for _, a := range r.s.audits {
		if filter.Action != nil && a.Action != *filter.Action {
			continue
		}
		if filter.CampaignID != nil && (a.CampaignID == nil || *a.CampaignID != *filter.CampaignID) {
			continue
		}
		if filter.DonationID != nil && (a.DonationID == nil || *a.DonationID != *filter.DonationID) {
			continue
		}
		if filter.ActorType != nil && a.ActorType != *filter.ActorType {
			continue
		}
		if filter.Success != nil && (a.Success == nil || *a.Success != *filter.Success) {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sortByID(out, func(a *models.AuditLog) uint { return a.ID }, orderBy)
	return page(out, limit, offset), nil
}

// admins

type memAdminRepo struct{ s *MemoryStore }

func (r *memAdminRepo) ByID(ctx context.Context, id uint) (*models.Admin, error) {
	defer r.s.lock(ctx)()
	a, ok := r.s.admins[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memAdminRepo) ByUsername(ctx context.Context, username string) (*models.Admin, error) {
	defer r.s.lock(ctx)()
	for _, a := range r.s.admins {
		if a.Username == username {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memAdminRepo) Save(ctx context.Context, a *models.Admin) error {
	defer r.s.lock(ctx)()
	for _, other := range r.s.admins {
		if other.Username == a.Username && other.ID != a.ID {
			return duplicate("uk_admins_username")
		}
	}
	if a.ID == 0 {
		a.ID = r.s.id("admins")
	}
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.s.admins[a.ID] = *a
	return nil
}

func (r *memAdminRepo) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	defer r.s.lock(ctx)()
	a, ok := r.s.admins[id]
	if !ok {
		return fmt.Errorf("admin %d not found", id)
	}
	a.LastLoginAt = &at
	r.s.admins[id] = a
	return nil
}
