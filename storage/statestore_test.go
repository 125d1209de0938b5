package storage

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lendnet/native/lending"
)

func testAsset(b byte) common.Address {
	var raw [20]byte
	raw[19] = b
	return common.BytesToAddress(raw[:])
}

func TestStateStoreMarketRoundTrip(t *testing.T) {
	store, err := NewStateStore(NewMemDB())
	require.NoError(t, err)

	asset := testAsset(0x01)
	market := &lending.Market{
		Asset:            asset,
		Listed:           true,
		CollateralFactor: lending.FixedFromBps(7500),
		ReserveFactor:    lending.FixedFromBps(1000),
		BorrowCap:        big.NewInt(500_000),
		TotalSupply:      big.NewInt(1234),
		TotalBorrows:     big.NewInt(567),
		TotalReserves:    big.NewInt(8),
		SupplyIndex:      lending.FixedFromFrac(101, 100),
		BorrowIndex:      lending.FixedFromFrac(102, 100),
		LastUpdateTime:   99,
	}
	require.NoError(t, store.PutMarket(market))

	loaded, err := store.GetMarket(asset)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.True(t, loaded.Listed)
	require.Zero(t, loaded.CollateralFactor.Cmp(market.CollateralFactor))
	require.Zero(t, loaded.BorrowCap.Cmp(market.BorrowCap))
	require.Nil(t, loaded.SupplyCap)
	require.Zero(t, loaded.TotalSupply.Cmp(market.TotalSupply))
	require.Zero(t, loaded.SupplyIndex.Cmp(market.SupplyIndex))
	require.Equal(t, uint64(99), loaded.LastUpdateTime)
}

func TestStateStoreMissingRecordsAreNil(t *testing.T) {
	store, err := NewStateStore(NewMemDB())
	require.NoError(t, err)

	market, err := store.GetMarket(testAsset(0x01))
	require.NoError(t, err)
	require.Nil(t, market)

	position, err := store.GetPosition(testAsset(0x10), testAsset(0x01))
	require.NoError(t, err)
	require.Nil(t, position)

	membership, err := store.GetMembership(testAsset(0x10))
	require.NoError(t, err)
	require.Nil(t, membership)
}

func TestStateStorePositionAndMembershipRoundTrip(t *testing.T) {
	store, err := NewStateStore(NewMemDB())
	require.NoError(t, err)

	user := testAsset(0x10)
	asset := testAsset(0x01)
	position := &lending.Position{
		User:                user,
		Asset:               asset,
		Supplied:            big.NewInt(1000),
		Borrowed:            big.NewInt(40),
		SupplyIndexSnapshot: lending.FixedFromFrac(103, 100),
		BorrowIndexSnapshot: lending.FixedFromFrac(104, 100),
	}
	require.NoError(t, store.PutPosition(position))

	loaded, err := store.GetPosition(user, asset)
	require.NoError(t, err)
	require.Zero(t, loaded.Supplied.Cmp(position.Supplied))
	require.Zero(t, loaded.BorrowIndexSnapshot.Cmp(position.BorrowIndexSnapshot))

	membership := &lending.Membership{
		Supplied: []common.Address{asset},
		Borrowed: []common.Address{asset, testAsset(0x02)},
	}
	require.NoError(t, store.PutMembership(user, membership))
	got, err := store.GetMembership(user)
	require.NoError(t, err)
	require.Equal(t, membership.Supplied, got.Supplied)
	require.Equal(t, membership.Borrowed, got.Borrowed)
}

func TestStateStoreListMarkets(t *testing.T) {
	store, err := NewStateStore(NewMemDB())
	require.NoError(t, err)

	for b := byte(1); b <= 3; b++ {
		require.NoError(t, store.PutMarket(&lending.Market{Asset: testAsset(b), Listed: true}))
	}
	markets, err := store.ListMarkets()
	require.NoError(t, err)
	require.Len(t, markets, 3)
	for _, m := range markets {
		// EnsureDefaults ran on decode.
		require.NotNil(t, m.TotalSupply)
		require.Zero(t, m.SupplyIndex.Cmp(lending.FixedOne))
	}
}

func TestStateStoreBalancesDefaultToZero(t *testing.T) {
	store, err := NewStateStore(NewMemDB())
	require.NoError(t, err)

	asset := testAsset(0x01)
	holder := testAsset(0x10)
	balance, err := store.GetBalance(asset, holder)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, store.PutBalance(asset, holder, big.NewInt(123_456)))
	balance, err = store.GetBalance(asset, holder)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(123_456)))
}

func TestStateStoreAccessSnapshotRoundTrip(t *testing.T) {
	store, err := NewStateStore(NewMemDB())
	require.NoError(t, err)

	missing, err := store.GetAccess()
	require.NoError(t, err)
	require.Nil(t, missing)

	record := &AccessRecord{
		Admins:      []common.Address{testAsset(0xaa)},
		Liquidators: []common.Address{testAsset(0xbb), testAsset(0xcc)},
		Paused:      []string{"lending"},
	}
	require.NoError(t, store.PutAccess(record))

	loaded, err := store.GetAccess()
	require.NoError(t, err)
	require.Equal(t, record.Admins, loaded.Admins)
	require.Equal(t, record.Liquidators, loaded.Liquidators)
	require.Equal(t, record.Paused, loaded.Paused)
}

func TestStateStoreRejectsUnknownSchema(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put(versionKey, []byte("99")))

	_, err := NewStateStore(db)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported schema version")
}

func TestStateStoreStampsFreshDatabase(t *testing.T) {
	db := NewMemDB()
	_, err := NewStateStore(db)
	require.NoError(t, err)

	version, err := db.Get(versionKey)
	require.NoError(t, err)
	require.Equal(t, schemaVersion, string(version))

	// Reopening against the stamped database succeeds.
	_, err = NewStateStore(db)
	require.NoError(t, err)
}

func TestBoltDBBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.bolt")
	db, err := NewBoltDB(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("lend/x/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("lend/x/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("lend/y/a"), []byte("3")))

	value, err := db.Get([]byte("lend/x/b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)

	var keys []string
	require.NoError(t, db.Iterate([]byte("lend/x/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	require.Equal(t, []string{"lend/x/a", "lend/x/b"}, keys)

	require.NoError(t, db.Delete([]byte("lend/x/a")))
	_, err = db.Get([]byte("lend/x/a"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLevelDBBackendRoundTrip(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger.leveldb"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("k1"), []byte("v1")))
	value, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	_, err = db.Get([]byte("absent"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}
