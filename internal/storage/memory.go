package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"attestry/internal/domain"
	id "attestry/pkg/domain"
)

// MemoryLedger keeps the whole ledger in process memory behind a single
// mutex. One lock for all collections is deliberate: register-with-payment
// and the balance sweeps are check-then-write steps spanning more than one
// collection, and a single writer boundary makes each exposed operation
// atomic without optimistic-concurrency machinery.
type MemoryLedger struct {
	mu           sync.RWMutex
	state        *domain.ModuleState
	payments     map[id.Address]domain.PaymentRecord
	authorities  map[id.Address]domain.RegisteredAuthorityData
	fees         map[id.Address]int64
	levies       map[id.Address]int64
	pool         int64
	attestations map[id.AttestationUID]domain.StoredAttestation
}

// NewMemoryLedger constructs an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		payments:     make(map[id.Address]domain.PaymentRecord),
		authorities:  make(map[id.Address]domain.RegisteredAuthorityData),
		fees:         make(map[id.Address]int64),
		levies:       make(map[id.Address]int64),
		attestations: make(map[id.AttestationUID]domain.StoredAttestation),
	}
}

func (l *MemoryLedger) CreateState(_ context.Context, state domain.ModuleState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != nil {
		return ErrConflict
	}
	l.state = &state
	return nil
}

func (l *MemoryLedger) GetState(_ context.Context) (domain.ModuleState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state == nil {
		return domain.ModuleState{}, ErrNotFound
	}
	return *l.state, nil
}

func (l *MemoryLedger) SwapAdmin(_ context.Context, expect id.Address, next *id.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return ErrNotFound
	}
	if l.state.Renounced {
		return ErrInvalidState
	}
	if l.state.Admin == nil || *l.state.Admin != expect {
		return ErrConflict
	}
	if next == nil {
		l.state.Admin = nil
		l.state.Renounced = true
		return nil
	}
	n := *next
	l.state.Admin = &n
	return nil
}

func (l *MemoryLedger) CreatePaymentRecord(_ context.Context, rec domain.PaymentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.payments[rec.Payer]; exists {
		return ErrConflict
	}
	l.payments[rec.Payer] = rec
	return nil
}

func (l *MemoryLedger) DeletePaymentRecord(_ context.Context, payer id.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.payments[payer]; !exists {
		return ErrNotFound
	}
	delete(l.payments, payer)
	return nil
}

func (l *MemoryLedger) GetPaymentRecord(_ context.Context, payer id.Address) (domain.PaymentRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, exists := l.payments[payer]
	if !exists {
		return domain.PaymentRecord{}, ErrNotFound
	}
	return rec, nil
}

// ConsumePaymentRecord removes and returns the payer's record in one step,
// mirroring the redis ledger so the split authority store can run against
// either backend.
func (l *MemoryLedger) ConsumePaymentRecord(_ context.Context, payer id.Address) (domain.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, exists := l.payments[payer]
	if !exists {
		return domain.PaymentRecord{}, ErrNotFound
	}
	delete(l.payments, payer)
	return rec, nil
}

func credit(balances map[id.Address]int64, authority id.Address, amount int64) error {
	cur := balances[authority]
	if amount > math.MaxInt64-cur {
		return ErrOverflow
	}
	balances[authority] = cur + amount
	return nil
}

func (l *MemoryLedger) CreditFees(_ context.Context, authority id.Address, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return credit(l.fees, authority, amount)
}

func (l *MemoryLedger) CreditLevies(_ context.Context, authority id.Address, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return credit(l.levies, authority, amount)
}

func (l *MemoryLedger) SweepFees(_ context.Context, authority id.Address) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount := l.fees[authority]
	l.fees[authority] = 0
	return amount, nil
}

func (l *MemoryLedger) SweepLevies(_ context.Context, authority id.Address) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount := l.levies[authority]
	l.levies[authority] = 0
	return amount, nil
}

func (l *MemoryLedger) GetCollectedFees(_ context.Context, authority id.Address) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fees[authority], nil
}

func (l *MemoryLedger) GetCollectedLevies(_ context.Context, authority id.Address) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.levies[authority], nil
}

func (l *MemoryLedger) CreditPool(_ context.Context, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount > math.MaxInt64-l.pool {
		return ErrOverflow
	}
	l.pool += amount
	return nil
}

func (l *MemoryLedger) DebitPool(_ context.Context, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount > l.pool {
		return ErrInsufficient
	}
	l.pool -= amount
	return nil
}

func (l *MemoryLedger) PoolBalance(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pool, nil
}

func (l *MemoryLedger) CreateAuthority(_ context.Context, rec domain.RegisteredAuthorityData) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.authorities[rec.Address]; exists {
		return ErrConflict
	}
	l.authorities[rec.Address] = rec
	return nil
}

func (l *MemoryLedger) GetAuthority(_ context.Context, authority id.Address) (domain.RegisteredAuthorityData, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, exists := l.authorities[authority]
	if !exists {
		return domain.RegisteredAuthorityData{}, ErrNotFound
	}
	return rec, nil
}

func (l *MemoryLedger) RegisterWithPayment(_ context.Context, rec domain.RegisteredAuthorityData, payer id.Address, validate func(domain.PaymentRecord) error) (domain.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.authorities[rec.Address]; exists {
		return domain.PaymentRecord{}, ErrConflict
	}
	payment, exists := l.payments[payer]
	if !exists {
		return domain.PaymentRecord{}, ErrNotFound
	}
	if validate != nil {
		if err := validate(payment); err != nil {
			return domain.PaymentRecord{}, err
		}
	}
	delete(l.payments, payer)
	l.authorities[rec.Address] = rec
	return payment, nil
}

func (l *MemoryLedger) ClaimActive(_ context.Context, att domain.Attestation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.attestations[att.UID]; exists {
		return ErrConflict
	}
	l.attestations[att.UID] = domain.StoredAttestation{
		Attestation: att,
		State:       domain.AttestationActive,
	}
	return nil
}

func (l *MemoryLedger) MarkRevoked(_ context.Context, uid id.AttestationUID) (domain.StoredAttestation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, exists := l.attestations[uid]
	if !exists {
		return domain.StoredAttestation{}, ErrNotFound
	}
	if stored.State != domain.AttestationActive {
		return domain.StoredAttestation{}, ErrInvalidState
	}
	now := time.Now().UTC()
	stored.State = domain.AttestationRevoked
	stored.RevokedAt = &now
	l.attestations[uid] = stored
	return stored, nil
}

func (l *MemoryLedger) GetAttestation(_ context.Context, uid id.AttestationUID) (domain.StoredAttestation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stored, exists := l.attestations[uid]
	if !exists {
		return domain.StoredAttestation{}, ErrNotFound
	}
	return stored, nil
}
