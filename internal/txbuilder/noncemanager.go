package txbuilder

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceProvider hands out the next nonce for an account.
type NonceProvider interface {
	Next(ctx context.Context, addr common.Address) (uint64, error)
	Reset(addr common.Address)
}

// NonceSource seeds a provider with the node's view of an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

var errNilNonceSource = errors.New("nonce manager has no source")

// accountNonce serializes one account. Seeding holds only this lock, so a
// slow node read for one sender does not block the others.
type accountNonce struct {
	mu     sync.Mutex
	seeded bool
	next   uint64
}

// NonceManager is an in-process monotonic counter per account, seeded from
// the pending nonce on first use and after Reset.
type NonceManager struct {
	source NonceSource

	mu       sync.Mutex
	accounts map[common.Address]*accountNonce
}

func NewNonceManager(source NonceSource) *NonceManager {
	return &NonceManager{source: source, accounts: make(map[common.Address]*accountNonce)}
}

func (m *NonceManager) account(addr common.Address) *accountNonce {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[addr]
	if !ok {
		a = &accountNonce{}
		m.accounts[addr] = a
	}
	return a
}

func (m *NonceManager) Next(ctx context.Context, addr common.Address) (uint64, error) {
	if m.source == nil {
		return 0, errNilNonceSource
	}
	a := m.account(addr)
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.seeded {
		n, err := m.source.PendingNonceAt(ctx, addr)
		if err != nil {
			return 0, err
		}
		a.next, a.seeded = n, true
	}
	n := a.next
	a.next++
	return n, nil
}

// Reset forgets the counter; the next call reseeds from the node.
func (m *NonceManager) Reset(addr common.Address) {
	a := m.account(addr)
	a.mu.Lock()
	a.seeded = false
	a.mu.Unlock()
}
