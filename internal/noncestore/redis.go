// Package noncestore keeps per-account nonce counters in Redis so that
// several processes sending from one account do not reuse a nonce.
package noncestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"web3client/internal/txbuilder"
)

const DefaultPrefix = "web3client:nonce:"

// SET the seed when the counter is missing, otherwise INCR. Returns the
// nonce to use.
var nextScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1] + 1, "NX") then
	return tonumber(ARGV[1])
end
return redis.call("INCR", KEYS[1]) - 1
`)

type Store struct {
	rdb    redis.UniversalClient
	source txbuilder.NonceSource
	prefix string
	logger *zap.Logger
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Store seeding missing counters from source.
func New(rdb redis.UniversalClient, source txbuilder.NonceSource, opts ...Option) *Store {
	s := &Store{rdb: rdb, source: source, prefix: DefaultPrefix, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *Store) Key(addr common.Address) string {
	return s.prefix + strings.ToLower(addr.Hex())
}

// Next returns the next nonce for addr. The node is only asked when the
// counter does not exist yet.
func (s *Store) Next(ctx context.Context, addr common.Address) (uint64, error) {
	if s.source == nil {
		return 0, errors.New("nonce store source is nil")
	}
	key := s.Key(addr)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists %s: %w", key, err)
	}
	var seed uint64
	if n == 0 {
		seed, err = s.source.PendingNonceAt(ctx, addr)
		if err != nil {
			return 0, err
		}
	}
	nonce, err := nextScript.Run(ctx, s.rdb, []string{key}, seed).Uint64()
	if err != nil {
		return 0, fmt.Errorf("redis nonce %s: %w", key, err)
	}
	return nonce, nil
}

// Reset deletes the counter; the next call reseeds from the node.
func (s *Store) Reset(addr common.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rdb.Del(ctx, s.Key(addr)).Err(); err != nil {
		s.logger.Warn("nonce reset failed", zap.String("address", addr.Hex()), zap.Error(err))
	}
}

var _ txbuilder.NonceProvider = (*Store)(nil)
