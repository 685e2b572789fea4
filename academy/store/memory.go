// Package store provides in-memory implementations of the academy stores.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efusa/academy/academy"
)

// =============================================================================
// MEMORY STORE - In-memory LedgerStore (for testing/dev)
// =============================================================================

// Memory implements academy.TxLedgerStore and academy.FeeProvider.
type Memory struct {
	mu sync.RWMutex
	st state

	// Fee is the monthly fee returned by MonthlyFee.
	Fee int64

	// Fault, when set, is consulted before every write. A non-nil return
	// fails the write with that error.
	Fault func(op string) error
}

type state struct {
	players     map[academy.PlayerID]bool
	payments    map[academy.PaymentID]academy.Payment
	allocations []academy.Allocation
	nextPayment academy.PaymentID
	nextAlloc   int64
}

type allocKey struct {
	Payment academy.PaymentID
	Month   academy.Month
}

var (
	_ academy.TxLedgerStore = (*Memory)(nil)
	_ academy.FeeProvider   = (*Memory)(nil)
)

func NewMemory(fee int64) *Memory {
	return &Memory{
		Fee: fee,
		st: state{
			players:  make(map[academy.PlayerID]bool),
			payments: make(map[academy.PaymentID]academy.Payment),
		},
	}
}

// AddPlayer registers a player id so payments can reference it.
func (m *Memory) AddPlayer(id academy.PlayerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.players[id] = true
}

// SetFee changes the monthly fee.
func (m *Memory) SetFee(fee int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fee = fee
}

func (m *Memory) MonthlyFee(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Fee, nil
}

// Allocations returns a copy of every allocation row in insertion order.
func (m *Memory) Allocations() []academy.Allocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]academy.Allocation(nil), m.st.allocations...)
}

// Payments returns a copy of every payment ordered by ID.
func (m *Memory) Payments() []academy.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]academy.Payment, 0, len(m.st.payments))
	for _, p := range m.st.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) fault(op string) error {
	if m.Fault == nil {
		return nil
	}
	return m.Fault(op)
}

// =============================================================================
// LEDGER STORE (locked entry points)
// =============================================================================

func (m *Memory) PlayerExists(ctx context.Context, id academy.PlayerID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.players[id], nil
}

func (m *Memory) CreatePayment(ctx context.Context, p *academy.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).CreatePayment(ctx, p)
}

func (m *Memory) GetPayment(ctx context.Context, id academy.PaymentID) (*academy.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{m}).GetPayment(ctx, id)
}

func (m *Memory) PaymentByIdempotencyKey(ctx context.Context, key string) (*academy.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{m}).PaymentByIdempotencyKey(ctx, key)
}

func (m *Memory) DeletePayment(ctx context.Context, id academy.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).DeletePayment(ctx, id)
}

func (m *Memory) CreateAllocation(ctx context.Context, a *academy.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).CreateAllocation(ctx, a)
}

func (m *Memory) SumAllocated(ctx context.Context, player academy.PlayerID, month academy.Month) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{m}).SumAllocated(ctx, player, month)
}

func (m *Memory) AllocatedByMonth(ctx context.Context, player academy.PlayerID, from academy.Month, months int) (map[academy.Month]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{m}).AllocatedByMonth(ctx, player, from, months)
}

func (m *Memory) AllocatedForPayment(ctx context.Context, id academy.PaymentID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{m}).AllocatedForPayment(ctx, id)
}

func (m *Memory) LastPaymentDate(ctx context.Context, player academy.PlayerID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&view{m}).LastPaymentDate(ctx, player)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn within a transaction.
// Simulated with a snapshot taken under the write lock and restored on error.
func (m *Memory) WithTx(ctx context.Context, fn func(academy.LedgerStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&view{m}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (s state) clone() state {
	c := state{
		players:     make(map[academy.PlayerID]bool, len(s.players)),
		payments:    make(map[academy.PaymentID]academy.Payment, len(s.payments)),
		allocations: append([]academy.Allocation(nil), s.allocations...),
		nextPayment: s.nextPayment,
		nextAlloc:   s.nextAlloc,
	}
	for k, v := range s.players {
		c.players[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// view operates on the state without locking. The caller holds m.mu.
type view struct {
	m *Memory
}

func (v *view) PlayerExists(_ context.Context, id academy.PlayerID) (bool, error) {
	return v.m.st.players[id], nil
}

func (v *view) CreatePayment(_ context.Context, p *academy.Payment) error {
	if err := v.m.fault("create_payment"); err != nil {
		return err
	}
	if p.IdempotencyKey != "" {
		for _, existing := range v.m.st.payments {
			if existing.IdempotencyKey == p.IdempotencyKey {
				return academy.ErrDuplicateIdempotencyKey
			}
		}
	}
	v.m.st.nextPayment++
	p.ID = v.m.st.nextPayment
	p.CreatedAt = time.Now().UTC()
	v.m.st.payments[p.ID] = *p
	return nil
}

func (v *view) GetPayment(_ context.Context, id academy.PaymentID) (*academy.Payment, error) {
	p, ok := v.m.st.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *view) PaymentByIdempotencyKey(_ context.Context, key string) (*academy.Payment, error) {
	for _, p := range v.m.st.payments {
		if key != "" && p.IdempotencyKey == key {
			return &p, nil
		}
	}
	return nil, nil
}

func (v *view) DeletePayment(_ context.Context, id academy.PaymentID) error {
	if err := v.m.fault("delete_payment"); err != nil {
		return err
	}
	if _, ok := v.m.st.payments[id]; !ok {
		return academy.ErrNotFound
	}
	delete(v.m.st.payments, id)
	return nil
}

func (v *view) CreateAllocation(_ context.Context, a *academy.Allocation) error {
	if err := v.m.fault("create_allocation"); err != nil {
		return err
	}
	k := allocKey{Payment: a.PaymentID, Month: a.Month}
	for _, existing := range v.m.st.allocations {
		if (allocKey{Payment: existing.PaymentID, Month: existing.Month}) == k {
			return academy.ErrDuplicateAllocation
		}
	}
	v.m.st.nextAlloc++
	a.ID = v.m.st.nextAlloc
	a.CreatedAt = time.Now().UTC()
	v.m.st.allocations = append(v.m.st.allocations, *a)
	return nil
}

// playerOf resolves the owner of an allocation through its payment.
// Allocations of deleted payments have no owner.
func (v *view) playerOf(a academy.Allocation) (academy.PlayerID, bool) {
	p, ok := v.m.st.payments[a.PaymentID]
	return p.PlayerID, ok
}

func (v *view) SumAllocated(_ context.Context, player academy.PlayerID, month academy.Month) (int64, error) {
	var sum int64
	for _, a := range v.m.st.allocations {
		if owner, ok := v.playerOf(a); ok && owner == player && a.Month.Equal(month) {
			sum += a.Amount
		}
	}
	return sum, nil
}

func (v *view) AllocatedByMonth(_ context.Context, player academy.PlayerID, from academy.Month, months int) (map[academy.Month]int64, error) {
	to := from.Add(months)
	out := make(map[academy.Month]int64)
	for _, a := range v.m.st.allocations {
		owner, ok := v.playerOf(a)
		if !ok || owner != player {
			continue
		}
		if a.Month.Before(from) || !a.Month.Before(to) {
			continue
		}
		out[a.Month] += a.Amount
	}
	return out, nil
}

func (v *view) AllocatedForPayment(_ context.Context, id academy.PaymentID) (int64, error) {
	var sum int64
	for _, a := range v.m.st.allocations {
		if a.PaymentID == id {
			sum += a.Amount
		}
	}
	return sum, nil
}

func (v *view) LastPaymentDate(_ context.Context, player academy.PlayerID) (*time.Time, error) {
	var last *time.Time
	for _, p := range v.m.st.payments {
		if p.PlayerID != player {
			continue
		}
		if last == nil || p.Date.After(*last) {
			d := p.Date
			last = &d
		}
	}
	return last, nil
}
