package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendnet/native/lending"
)

// Key prefixes for the persisted record families. One Market record exists
// per listed asset, one Position record per (user, asset) pair ever
// touched; balances and memberships hang off the same namespace.
var (
	marketPrefix     = []byte("lend/market/")
	positionPrefix   = []byte("lend/pos/")
	membershipPrefix = []byte("lend/member/")
	balancePrefix    = []byte("lend/bal/")
	versionKey       = []byte("lend/meta/version")
	accessKey        = []byte("lend/meta/access")
)

// schemaVersion is bumped when the persisted layout changes; the store
// refuses databases written by an unknown schema instead of guessing.
const schemaVersion = "1"

// StateStore persists the engine's ledger records as JSON documents in a
// Database. It implements the engine's state interface and the vault's
// balance interface.
type StateStore struct {
	db Database
}

// NewStateStore wraps the database, stamping or verifying the schema
// version.
func NewStateStore(db Database) (*StateStore, error) {
	version, err := db.Get(versionKey)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		if err := db.Put(versionKey, []byte(schemaVersion)); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case string(version) != schemaVersion:
		return nil, fmt.Errorf("storage: unsupported schema version %q", version)
	}
	return &StateStore{db: db}, nil
}

func marketKey(asset common.Address) []byte {
	return append(append([]byte(nil), marketPrefix...), asset.Hex()...)
}

func positionKey(user, asset common.Address) []byte {
	key := append([]byte(nil), positionPrefix...)
	key = append(key, user.Hex()...)
	key = append(key, '/')
	return append(key, asset.Hex()...)
}

func membershipKey(user common.Address) []byte {
	return append(append([]byte(nil), membershipPrefix...), user.Hex()...)
}

func balanceKey(asset, holder common.Address) []byte {
	key := append([]byte(nil), balancePrefix...)
	key = append(key, asset.Hex()...)
	key = append(key, '/')
	return append(key, holder.Hex()...)
}

// GetMarket loads the market record for the asset, or nil when absent.
func (s *StateStore) GetMarket(asset common.Address) (*lending.Market, error) {
	raw, err := s.db.Get(marketKey(asset))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	market := &lending.Market{}
	if err := json.Unmarshal(raw, market); err != nil {
		return nil, fmt.Errorf("storage: decode market %s: %w", asset.Hex(), err)
	}
	market.EnsureDefaults()
	return market, nil
}

// PutMarket stores the market record.
func (s *StateStore) PutMarket(market *lending.Market) error {
	if market == nil {
		return nil
	}
	raw, err := json.Marshal(market)
	if err != nil {
		return err
	}
	return s.db.Put(marketKey(market.Asset), raw)
}

// ListMarkets loads every stored market record.
func (s *StateStore) ListMarkets() ([]*lending.Market, error) {
	var markets []*lending.Market
	err := s.db.Iterate(marketPrefix, func(_, value []byte) error {
		market := &lending.Market{}
		if err := json.Unmarshal(value, market); err != nil {
			return fmt.Errorf("storage: decode market: %w", err)
		}
		market.EnsureDefaults()
		markets = append(markets, market)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return markets, nil
}

// GetPosition loads the position record for (user, asset), or nil.
func (s *StateStore) GetPosition(user, asset common.Address) (*lending.Position, error) {
	raw, err := s.db.Get(positionKey(user, asset))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	position := &lending.Position{}
	if err := json.Unmarshal(raw, position); err != nil {
		return nil, fmt.Errorf("storage: decode position: %w", err)
	}
	position.EnsureDefaults()
	return position, nil
}

// PutPosition stores the position record.
func (s *StateStore) PutPosition(position *lending.Position) error {
	if position == nil {
		return nil
	}
	raw, err := json.Marshal(position)
	if err != nil {
		return err
	}
	return s.db.Put(positionKey(position.User, position.Asset), raw)
}

// GetMembership loads the user's asset membership lists, or nil.
func (s *StateStore) GetMembership(user common.Address) (*lending.Membership, error) {
	raw, err := s.db.Get(membershipKey(user))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	membership := &lending.Membership{}
	if err := json.Unmarshal(raw, membership); err != nil {
		return nil, fmt.Errorf("storage: decode membership: %w", err)
	}
	return membership, nil
}

// PutMembership stores the user's membership lists.
func (s *StateStore) PutMembership(user common.Address, membership *lending.Membership) error {
	if membership == nil {
		return nil
	}
	raw, err := json.Marshal(membership)
	if err != nil {
		return err
	}
	return s.db.Put(membershipKey(user), raw)
}

// AccessRecord snapshots the role grants and pause flags so restarts keep
// runtime-granted capabilities.
type AccessRecord struct {
	Admins      []common.Address `json:"admins"`
	Liquidators []common.Address `json:"liquidators"`
	Paused      []string         `json:"paused"`
}

// GetAccess loads the persisted access snapshot, or nil when absent.
func (s *StateStore) GetAccess() (*AccessRecord, error) {
	raw, err := s.db.Get(accessKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := &AccessRecord{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, fmt.Errorf("storage: decode access record: %w", err)
	}
	return record, nil
}

// PutAccess stores the access snapshot.
func (s *StateStore) PutAccess(record *AccessRecord) error {
	if record == nil {
		return nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Put(accessKey, raw)
}

// GetBalance loads the holder's token-ledger balance for the asset.
func (s *StateStore) GetBalance(asset, holder common.Address) (*big.Int, error) {
	raw, err := s.db.Get(balanceKey(asset, holder))
	if errors.Is(err, ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("storage: corrupt balance record for %s/%s", asset.Hex(), holder.Hex())
	}
	return balance, nil
}

// PutBalance stores the holder's token-ledger balance for the asset.
func (s *StateStore) PutBalance(asset, holder common.Address, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return s.db.Put(balanceKey(asset, holder), []byte(amount.String()))
}
