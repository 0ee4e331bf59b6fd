package usecase

import (
	"context"
	"sync"

	"portfolioprojector/internal/position"
	"portfolioprojector/internal/repository"

	"github.com/google/uuid"
)

// fakeRepository is an in-memory PositionRepository used by the
// use-case tests, enforcing the same unique-constraint semantics the
// real Postgres adapter enforces (unique ticker, globally unique
// transaction id).
type fakeRepository struct {
	mu        *sync.Mutex
	byTicker  map[string]*position.Position
	byID      map[uuid.UUID]*position.Position
	txOwner   map[uuid.UUID]uuid.UUID // transaction id -> owning position id

	failNextSaveWithPersistence bool
	hideNextFindForUpdate       bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		mu:       &sync.Mutex{},
		byTicker: make(map[string]*position.Position),
		byID:     make(map[uuid.UUID]*position.Position),
		txOwner:  make(map[uuid.UUID]uuid.UUID),
	}
}

func clonePosition(p *position.Position) *position.Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Transactions = make(map[uuid.UUID]struct{}, len(p.Transactions))
	for id := range p.Transactions {
		cp.Transactions[id] = struct{}{}
	}
	if p.LastEventAppliedAt != nil {
		t := *p.LastEventAppliedAt
		cp.LastEventAppliedAt = &t
	}
	return &cp
}

func (f *fakeRepository) FindByTicker(ctx context.Context, ticker string) (*position.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clonePosition(f.byTicker[ticker]), nil
}

func (f *fakeRepository) FindByTickerForUpdate(ctx context.Context, ticker string) (*position.Position, error) {
	f.mu.Lock()
	hide := f.hideNextFindForUpdate
	f.hideNextFindForUpdate = false
	f.mu.Unlock()
	if hide {
		return nil, nil
	}
	return f.FindByTicker(ctx, ticker)
}

func (f *fakeRepository) Save(ctx context.Context, p *position.Position) (*position.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNextSaveWithPersistence {
		f.failNextSaveWithPersistence = false
		return nil, position.ErrPersistence(errString("simulated fault"))
	}
	if _, exists := f.byTicker[p.Ticker]; exists {
		return nil, position.ErrDuplicatedPosition(p.Ticker)
	}
	for txID := range p.Transactions {
		if _, taken := f.txOwner[txID]; taken {
			return nil, position.ErrAlreadyProcessed(txID.String())
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stored := clonePosition(p)
	f.byTicker[p.Ticker] = stored
	f.byID[p.ID] = stored
	for txID := range p.Transactions {
		f.txOwner[txID] = p.ID
	}
	return clonePosition(stored), nil
}

func (f *fakeRepository) UpdatePositionWithTransactions(ctx context.Context, p *position.Position) (*position.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.byID[p.ID]
	if !ok {
		return nil, position.ErrPersistence(errString("position not found"))
	}

	for txID := range p.Transactions {
		if owner, taken := f.txOwner[txID]; taken && owner != p.ID {
			return nil, position.ErrAlreadyProcessed(txID.String())
		}
	}
	for txID := range existing.Transactions {
		if _, stillPresent := p.Transactions[txID]; !stillPresent {
			delete(f.txOwner, txID)
		}
	}
	for txID := range p.Transactions {
		f.txOwner[txID] = p.ID
	}

	stored := clonePosition(p)
	f.byTicker[p.Ticker] = stored
	f.byID[p.ID] = stored
	return clonePosition(stored), nil
}

func (f *fakeRepository) IsTransactionProcessed(ctx context.Context, positionID uuid.UUID, txID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.txOwner[txID]
	return ok && owner == positionID, nil
}

// fakeTxRunner runs fn directly against the shared fakeRepository,
// simulating "single transaction" semantics without a real database.
type fakeTxRunner struct {
	repo *fakeRepository
}

func newFakeTxRunner() *fakeTxRunner {
	return &fakeTxRunner{repo: newFakeRepository()}
}

func (r *fakeTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, repo repository.PositionRepository) error) error {
	return fn(ctx, r.repo)
}
