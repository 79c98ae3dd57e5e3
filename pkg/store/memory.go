package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mvillegas/fincore/pkg/models"
)

// MemoryStore is an in-memory Store used by tests and local runs. A single
// mutex serializes transactions, which makes every transaction trivially
// snapshot-consistent; writes are still buffered so a failed callback leaves
// no trace.
type MemoryStore struct {
	mu sync.Mutex

	loans       map[string]*models.Loan
	payments    map[string]*models.Payment
	wallets     map[string]*models.Wallet
	entries     []*models.LedgerEntry
	lots        map[string]*models.CurrencyLot
	trades      map[string]*models.CurrencyTrade
	currency    *models.CurrencySummary
	profits     map[string]*models.MonthlyProfit
	treasury    *models.TreasurySummary
	byCollector map[string]*models.TreasuryUser
	movements   []*models.Movement
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:       make(map[string]*models.Loan),
		payments:    make(map[string]*models.Payment),
		wallets:     make(map[string]*models.Wallet),
		lots:        make(map[string]*models.CurrencyLot),
		trades:      make(map[string]*models.CurrencyTrade),
		profits:     make(map[string]*models.MonthlyProfit),
		byCollector: make(map[string]*models.TreasuryUser),
	}
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newMemoryTx(m)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *MemoryStore) Loan(ctx context.Context, id string) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLoan(l), nil
}

func (m *MemoryStore) Loans(ctx context.Context) ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		out = append(out, cloneLoan(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Payment(ctx context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayment(p), nil
}

func (m *MemoryStore) Payments(ctx context.Context) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) PaymentsByLoan(ctx context.Context, loanID string) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return paymentsByLoanLocked(m, loanID), nil
}

func paymentsByLoanLocked(m *MemoryStore, loanID string) []*models.Payment {
	var out []*models.Payment
	for _, p := range m.payments {
		if p.LoanID == loanID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) Wallet(ctx context.Context, uid string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) Wallets(ctx context.Context) ([]*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Wallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (m *MemoryStore) LedgerEntriesByWallet(ctx context.Context, uid string) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.FromUID == uid || e.ToUID == uid {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Lots(ctx context.Context) ([]*models.CurrencyLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedLots(m.lots), nil
}

func (m *MemoryStore) Trades(ctx context.Context) ([]*models.CurrencyTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.CurrencyTrade, 0, len(m.trades))
	for _, t := range m.trades {
		out = append(out, cloneTrade(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CurrencySummary(ctx context.Context) (*models.CurrencySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currency == nil {
		return nil, ErrNotFound
	}
	cp := *m.currency
	return &cp, nil
}

func (m *MemoryStore) MonthlyProfits(ctx context.Context, year int) ([]*models.MonthlyProfit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := fmt.Sprintf("%04d-", year)
	var out []*models.MonthlyProfit
	for month, p := range m.profits {
		if strings.HasPrefix(month, prefix) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (m *MemoryStore) TreasurySummary(ctx context.Context) (*models.TreasurySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.treasury == nil {
		return nil, ErrNotFound
	}
	cp := *m.treasury
	return &cp, nil
}

func (m *MemoryStore) TreasuryUsers(ctx context.Context) ([]*models.TreasuryUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.TreasuryUser, 0, len(m.byCollector))
	for _, u := range m.byCollector {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (m *MemoryStore) Movements(ctx context.Context, limit int) ([]*models.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Movement, 0, len(m.movements))
	for i := len(m.movements) - 1; i >= 0; i-- {
		cp := *m.movements[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

// memoryTx buffers writes against the store it was opened on. The store
// mutex is held for the whole transaction, so reads can go straight to the
// live maps (shadowed by the buffer).
type memoryTx struct {
	store *MemoryStore

	loans       map[string]*models.Loan
	payments    map[string]*models.Payment
	wallets     map[string]*models.Wallet
	entries     []*models.LedgerEntry
	lots        map[string]*models.CurrencyLot
	lotDeletes  map[string]bool
	trades      map[string]*models.CurrencyTrade
	currency    *models.CurrencySummary
	profits     map[string]*models.MonthlyProfit
	treasury    *models.TreasurySummary
	byCollector map[string]*models.TreasuryUser
	movements   []*models.Movement
}

func newMemoryTx(m *MemoryStore) *memoryTx {
	return &memoryTx{
		store:       m,
		loans:       make(map[string]*models.Loan),
		payments:    make(map[string]*models.Payment),
		wallets:     make(map[string]*models.Wallet),
		lots:        make(map[string]*models.CurrencyLot),
		lotDeletes:  make(map[string]bool),
		trades:      make(map[string]*models.CurrencyTrade),
		profits:     make(map[string]*models.MonthlyProfit),
		byCollector: make(map[string]*models.TreasuryUser),
	}
}

func (tx *memoryTx) commit() {
	m := tx.store
	for id, l := range tx.loans {
		m.loans[id] = l
	}
	for id, p := range tx.payments {
		m.payments[id] = p
	}
	for uid, w := range tx.wallets {
		m.wallets[uid] = w
	}
	m.entries = append(m.entries, tx.entries...)
	for id := range tx.lotDeletes {
		delete(m.lots, id)
	}
	for id, lot := range tx.lots {
		m.lots[id] = lot
	}
	for id, t := range tx.trades {
		m.trades[id] = t
	}
	if tx.currency != nil {
		m.currency = tx.currency
	}
	for month, p := range tx.profits {
		m.profits[month] = p
	}
	if tx.treasury != nil {
		m.treasury = tx.treasury
	}
	for uid, u := range tx.byCollector {
		m.byCollector[uid] = u
	}
	m.movements = append(m.movements, tx.movements...)
}

func (tx *memoryTx) Loan(id string) (*models.Loan, error) {
	if l, ok := tx.loans[id]; ok {
		return cloneLoan(l), nil
	}
	if l, ok := tx.store.loans[id]; ok {
		return cloneLoan(l), nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutLoan(loan *models.Loan) error {
	tx.loans[loan.ID] = cloneLoan(loan)
	return nil
}

func (tx *memoryTx) Payment(id string) (*models.Payment, error) {
	if p, ok := tx.payments[id]; ok {
		return clonePayment(p), nil
	}
	if p, ok := tx.store.payments[id]; ok {
		return clonePayment(p), nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutPayment(p *models.Payment) error {
	tx.payments[p.ID] = clonePayment(p)
	return nil
}

func (tx *memoryTx) PaymentsByLoan(loanID string) ([]*models.Payment, error) {
	seen := make(map[string]bool)
	var out []*models.Payment
	for id, p := range tx.payments {
		if p.LoanID == loanID {
			out = append(out, clonePayment(p))
			seen[id] = true
		}
	}
	for id, p := range tx.store.payments {
		if p.LoanID == loanID && !seen[id] {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tx *memoryTx) Wallet(uid string) (*models.Wallet, error) {
	if w, ok := tx.wallets[uid]; ok {
		cp := *w
		return &cp, nil
	}
	if w, ok := tx.store.wallets[uid]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutWallet(w *models.Wallet) error {
	cp := *w
	tx.wallets[w.UID] = &cp
	return nil
}

func (tx *memoryTx) PutLedgerEntry(e *models.LedgerEntry) error {
	cp := *e
	tx.entries = append(tx.entries, &cp)
	return nil
}

func (tx *memoryTx) Lot(id string) (*models.CurrencyLot, error) {
	if tx.lotDeletes[id] {
		return nil, ErrNotFound
	}
	if l, ok := tx.lots[id]; ok {
		cp := *l
		return &cp, nil
	}
	if l, ok := tx.store.lots[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutLot(lot *models.CurrencyLot) error {
	cp := *lot
	delete(tx.lotDeletes, lot.ID)
	tx.lots[lot.ID] = &cp
	return nil
}

func (tx *memoryTx) DeleteLot(id string) error {
	delete(tx.lots, id)
	tx.lotDeletes[id] = true
	return nil
}

func (tx *memoryTx) LotPage(afterID string, limit int, onlyAvailable bool) ([]*models.CurrencyLot, error) {
	merged := make(map[string]*models.CurrencyLot, len(tx.store.lots))
	for id, l := range tx.store.lots {
		merged[id] = l
	}
	for id := range tx.lotDeletes {
		delete(merged, id)
	}
	for id, l := range tx.lots {
		merged[id] = l
	}

	all := sortedLots(merged)
	start := 0
	if afterID != "" {
		for i, l := range all {
			if l.ID == afterID {
				start = i + 1
				break
			}
		}
	}

	var out []*models.CurrencyLot
	for _, l := range all[start:] {
		if onlyAvailable && !l.RemainingUSD.IsPositive() {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func sortedLots(lots map[string]*models.CurrencyLot) []*models.CurrencyLot {
	out := make([]*models.CurrencyLot, 0, len(lots))
	for _, l := range lots {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (tx *memoryTx) Trade(id string) (*models.CurrencyTrade, error) {
	if t, ok := tx.trades[id]; ok {
		return cloneTrade(t), nil
	}
	if t, ok := tx.store.trades[id]; ok {
		return cloneTrade(t), nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutTrade(t *models.CurrencyTrade) error {
	tx.trades[t.ID] = cloneTrade(t)
	return nil
}

func (tx *memoryTx) CurrencySummary() (*models.CurrencySummary, error) {
	if tx.currency != nil {
		cp := *tx.currency
		return &cp, nil
	}
	if tx.store.currency != nil {
		cp := *tx.store.currency
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutCurrencySummary(s *models.CurrencySummary) error {
	cp := *s
	tx.currency = &cp
	return nil
}

func (tx *memoryTx) MonthlyProfit(month string) (*models.MonthlyProfit, error) {
	if p, ok := tx.profits[month]; ok {
		cp := *p
		return &cp, nil
	}
	if p, ok := tx.store.profits[month]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutMonthlyProfit(p *models.MonthlyProfit) error {
	cp := *p
	tx.profits[p.Month] = &cp
	return nil
}

func (tx *memoryTx) TreasurySummary() (*models.TreasurySummary, error) {
	if tx.treasury != nil {
		cp := *tx.treasury
		return &cp, nil
	}
	if tx.store.treasury != nil {
		cp := *tx.store.treasury
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutTreasurySummary(s *models.TreasurySummary) error {
	cp := *s
	tx.treasury = &cp
	return nil
}

func (tx *memoryTx) TreasuryUser(uid string) (*models.TreasuryUser, error) {
	if u, ok := tx.byCollector[uid]; ok {
		cp := *u
		return &cp, nil
	}
	if u, ok := tx.store.byCollector[uid]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) PutTreasuryUser(u *models.TreasuryUser) error {
	cp := *u
	tx.byCollector[u.UID] = &cp
	return nil
}

func (tx *memoryTx) PutMovement(mv *models.Movement) error {
	cp := *mv
	tx.movements = append(tx.movements, &cp)
	return nil
}

func cloneLoan(l *models.Loan) *models.Loan {
	cp := *l
	if l.Installments != nil {
		cp.Installments = make([]models.Installment, len(l.Installments))
		copy(cp.Installments, l.Installments)
	}
	cp.NextDueDate = cloneTime(l.NextDueDate)
	cp.EndDate = cloneTime(l.EndDate)
	cp.VoidedAt = cloneTime(l.VoidedAt)
	cp.Funding.DecidedAt = cloneTime(l.Funding.DecidedAt)
	return &cp
}

func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	cp.VoidedAt = cloneTime(p.VoidedAt)
	return &cp
}

func cloneTrade(t *models.CurrencyTrade) *models.CurrencyTrade {
	cp := *t
	if t.FIFOBreakdown != nil {
		cp.FIFOBreakdown = make([]models.FIFOSlice, len(t.FIFOBreakdown))
		copy(cp.FIFOBreakdown, t.FIFOBreakdown)
	}
	cp.OccurredAt = cloneTime(t.OccurredAt)
	cp.VoidedAt = cloneTime(t.VoidedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
