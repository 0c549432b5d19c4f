package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stele/core/events"
	"stele/core/state"
	"stele/native/oracle"
	"stele/storage"
)

var (
	adminAddr = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	baseAsset = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	assetX    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	assetY    = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	carol     = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	dave      = common.HexToAddress("0x0000000000000000000000000000000000000a04")
)

type fakeTreasury struct {
	mu          sync.Mutex
	vault       *big.Int
	collected   map[common.Address]*big.Int
	paid        map[common.Address]*big.Int
	collectErr  error
	disburseErr error
}

func newFakeTreasury() *fakeTreasury {
	return &fakeTreasury{
		vault:     big.NewInt(0),
		collected: make(map[common.Address]*big.Int),
		paid:      make(map[common.Address]*big.Int),
	}
}

func (f *fakeTreasury) Collect(_ context.Context, from common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collectErr != nil {
		return f.collectErr
	}
	f.vault.Add(f.vault, amount)
	f.collected[from] = new(big.Int).Add(cloneBig(f.collected[from]), amount)
	return nil
}

func (f *fakeTreasury) Disburse(_ context.Context, to common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disburseErr != nil {
		return f.disburseErr
	}
	if f.vault.Cmp(amount) < 0 {
		return fmt.Errorf("vault short")
	}
	f.vault.Sub(f.vault, amount)
	f.paid[to] = new(big.Int).Add(cloneBig(f.paid[to]), amount)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.EventType()
	}
	return out
}

type fixture struct {
	engine   *Engine
	manager  *state.Manager
	sheet    *oracle.PriceSheet
	treasury *fakeTreasury
	events   *recorder
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, storage.NewMemDB())
}

func newFixtureOn(t *testing.T, db storage.Database) *fixture {
	t.Helper()
	f := &fixture{
		manager:  state.NewManager(db),
		sheet:    oracle.NewPriceSheet(),
		treasury: newFakeTreasury(),
		events:   &recorder{},
		now:      time.Unix(1_700_000_000, 0),
	}
	f.engine = NewEngine(f.manager, oracle.NewConverter(baseAsset, f.sheet))
	f.engine.SetTreasury(f.treasury)
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() time.Time { return f.now })
	params := DefaultParams(adminAddr, baseAsset)
	params.EntryFee = big.NewInt(10)
	params.SeedAmount = big.NewInt(1000)
	require.NoError(t, f.engine.Bootstrap(params))
	return f
}

func (f *fixture) setPrice(t *testing.T, asset common.Address, rate string) {
	t.Helper()
	require.NoError(t, f.sheet.SetDecimal(asset, rate, f.now))
}

func (f *fixture) list(t *testing.T, assets ...common.Address) {
	t.Helper()
	for _, asset := range assets {
		require.NoError(t, f.engine.SetInvestableAsset(context.Background(), Authority{Caller: adminAddr}, asset))
	}
}

func (f *fixture) create(t *testing.T, class DurationClass) uint64 {
	t.Helper()
	id, err := f.engine.CreateChallenge(context.Background(), alice, class)
	require.NoError(t, err)
	return id
}

func (f *fixture) join(t *testing.T, id uint64, who ...common.Address) {
	t.Helper()
	for _, addr := range who {
		require.NoError(t, f.engine.Join(context.Background(), addr, id))
	}
}

func (f *fixture) balance(t *testing.T, id uint64, who, asset common.Address) *big.Int {
	t.Helper()
	holdings, err := f.engine.GetUserPortfolio(id, who)
	require.NoError(t, err)
	for _, h := range holdings {
		if h.Asset == asset {
			return h.Amount
		}
	}
	return big.NewInt(0)
}

func requireCode(t *testing.T, err error, sentinel *Error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, sentinel), "expected %v, got %v", sentinel, err)
	require.Equal(t, sentinel.Code, CodeOf(err))
}

func TestCreateChallengeOneWeek(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, OneWeek)
	require.Equal(t, uint64(1), id)

	info, err := f.engine.ChallengeInfo(id)
	require.NoError(t, err)
	require.Equal(t, uint64(7*24*60*60), info.EndTime-info.StartTime)
	require.Equal(t, StateOpen, info.State)
	require.Equal(t, 7*24*time.Hour, info.Remaining)
	require.Zero(t, info.TotalParticipants)
	require.Zero(t, info.TotalRewards.Sign())

	latest, err := f.engine.LatestChallenge(OneWeek)
	require.NoError(t, err)
	require.Equal(t, id, latest)
	latest, err = f.engine.LatestChallenge(OneYear)
	require.NoError(t, err)
	require.Zero(t, latest)

	second := f.create(t, OneYear)
	require.Equal(t, uint64(2), second)
	info, err = f.engine.ChallengeInfo(second)
	require.NoError(t, err)
	require.Equal(t, uint64(365*24*60*60), info.EndTime-info.StartTime)

	_, err = f.engine.CreateChallenge(context.Background(), alice, DurationClass(9))
	requireCode(t, err, ErrInvalidArgument)
	_, err = f.engine.ChallengeInfo(99)
	requireCode(t, err, ErrChallengeNotFound)
}

func TestJoinAccumulatesPool(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, OneMonth)
	f.join(t, id, alice, bob, carol)

	info, err := f.engine.ChallengeInfo(id)
	require.NoError(t, err)
	require.Equal(t, uint64(3), info.TotalParticipants)
	require.Equal(t, int64(30), info.TotalRewards.Int64())
	require.Equal(t, int64(30), f.treasury.vault.Int64())
	require.Equal(t, int64(1000), f.balance(t, id, bob, baseAsset).Int64())

	members, total, err := f.engine.GetParticipants(id, 1, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(3), total)
	require.Len(t, members, 2)
	require.Equal(t, bob, members[0].Address)
	require.Equal(t, StatusJoined, members[0].Status)
	require.Equal(t, carol, members[1].Address)
}

func TestJoinTwiceFails(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, OneWeek)
	f.join(t, id, alice)

	err := f.engine.Join(context.Background(), alice, id)
	requireCode(t, err, ErrAlreadyJoined)

	info, err := f.engine.ChallengeInfo(id)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.TotalParticipants)
	require.Equal(t, int64(10), info.TotalRewards.Int64())
	require.Equal(t, int64(10), f.treasury.vault.Int64())
}

func TestJoinRequiresOpenChallenge(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, OneWeek)
	f.now = f.now.Add(7 * 24 * time.Hour)
	requireCode(t, f.engine.Join(context.Background(), alice, id), ErrChallengeNotOpen)
	requireCode(t, f.engine.Join(context.Background(), alice, 42), ErrChallengeNotFound)
}

func TestJoinFundsFailureLeavesNoState(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, OneWeek)
	before := len(f.events.types())
	f.treasury.collectErr = errors.New("allowance too low")

	err := f.engine.Join(context.Background(), alice, id)
	requireCode(t, err, ErrFundsTransfer)
	require.ErrorContains(t, err, "allowance too low")

	member, err := f.engine.GetParticipant(id, alice)
	require.NoError(t, err)
	require.Equal(t, StatusNone, member.Status)
	holdings, err := f.engine.GetUserPortfolio(id, alice)
	require.NoError(t, err)
	require.Empty(t, holdings)
	require.Len(t, f.events.types(), before)

	f.treasury.collectErr = nil
	require.NoError(t, f.engine.Join(context.Background(), alice, id))
}

func TestSwapFloorsAtQuotedPrice(t *testing.T) {
	f := newFixture(t)
	f.list(t, assetX)
	f.setPrice(t, assetX, "3")
	id := f.create(t, OneWeek)
	f.join(t, id, alice)

	in, out, err := f.engine.Swap(context.Background(), alice, id, baseAsset, assetX, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, int64(100), in.Int64())
	require.Equal(t, int64(33), out.Int64())
	require.Equal(t, int64(900), f.balance(t, id, alice, baseAsset).Int64())
	require.Equal(t, int64(33), f.balance(t, id, alice, assetX).Int64())

	types := f.events.types()
	require.Equal(t, events.TypeChallengeRanked, types[len(types)-1])
	swapEvt := f.events.events[len(types)-2].Event()
	require.Equal(t, events.TypeChallengeSwap, swapEvt.Type)
	require.Equal(t, "100", swapEvt.Attr("fromPrice"))
	require.Equal(t, "99", swapEvt.Attr("toPrice"))

	ranking, err := f.engine.GetRanking(id)
	require.NoError(t, err)
	require.Equal(t, alice, ranking.Participants[0])
	require.Equal(t, int64(999), ranking.Scores[0].Int64())
	require.Equal(t, common.Address{}, ranking.Participants[1])
	require.Zero(t, ranking.Scores[4].Sign())
}

func TestSwapValidationLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.list(t, assetX)
	f.setPrice(t, assetX, "2")
	id := f.create(t, OneWeek)
	f.join(t, id, alice)
	ctx := context.Background()

	_, _, err := f.engine.Swap(ctx, alice, id, baseAsset, assetX, big.NewInt(1001))
	requireCode(t, err, ErrInsufficientFunds)

	_, _, err = f.engine.Swap(ctx, alice, id, baseAsset, assetY, big.NewInt(10))
	requireCode(t, err, ErrAssetNotInvestable)

	f.list(t, assetY)
	_, _, err = f.engine.Swap(ctx, alice, id, baseAsset, assetY, big.NewInt(10))
	requireCode(t, err, ErrOraclePriceUnavailable)
	require.ErrorIs(t, err, oracle.ErrNoQuote)

	_, _, err = f.engine.Swap(ctx, alice, id, baseAsset, assetX, big.NewInt(1))
	requireCode(t, err, ErrOraclePriceUnavailable)

	_, _, err = f.engine.Swap(ctx, alice, id, baseAsset, assetX, big.NewInt(0))
	requireCode(t, err, ErrInvalidArgument)

	_, _, err = f.engine.Swap(ctx, bob, id, baseAsset, assetX, big.NewInt(10))
	requireCode(t, err, ErrNotJoined)

	holdings, err := f.engine.GetUserPortfolio(id, alice)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	require.Equal(t, int64(1000), holdings[0].Amount.Int64())

	f.now = f.now.Add(8 * 24 * time.Hour)
	_, _, err = f.engine.Swap(ctx, alice, id, baseAsset, assetX, big.NewInt(10))
	requireCode(t, err, ErrChallengeNotOpen)
}

func TestSwapEntireBalancePrunesPosition(t *testing.T) {
	f := newFixture(t)
	f.list(t, assetX)
	f.setPrice(t, assetX, "4")
	id := f.create(t, OneWeek)
	f.join(t, id, alice)

	_, _, err := f.engine.Swap(context.Background(), alice, id, baseAsset, assetX, big.NewInt(1000))
	require.NoError(t, err)
	holdings, err := f.engine.GetUserPortfolio(id, alice)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	require.Equal(t, assetX, holdings[0].Asset)
	require.Equal(t, int64(250), holdings[0].Amount.Int64())

	_, _, err = f.engine.Swap(context.Background(), alice, id, assetX, baseAsset, big.NewInt(250))
	require.NoError(t, err)
	holdings, err = f.engine.GetUserPortfolio(id, alice)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	require.Equal(t, baseAsset, holdings[0].Asset)
	require.Equal(t, int64(1000), holdings[0].Amount.Int64())
}

func TestSwapEleventhAssetRejected(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, OneWeek)
	f.join(t, id, alice)
	assets := make([]common.Address, MaxAssets)
	for i := range assets {
		assets[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		f.list(t, assets[i])
		f.setPrice(t, assets[i], "1")
	}
	ctx := context.Background()
	for i := 0; i < MaxAssets-1; i++ {
		_, _, err := f.engine.Swap(ctx, alice, id, baseAsset, assets[i], big.NewInt(10))
		require.NoError(t, err)
	}
	before, err := f.engine.GetUserPortfolio(id, alice)
	require.NoError(t, err)
	require.Len(t, before, MaxAssets)

	_, _, err = f.engine.Swap(ctx, alice, id, baseAsset, assets[MaxAssets-1], big.NewInt(10))
	requireCode(t, err, ErrAssetCapExceeded)

	after, err := f.engine.GetUserPortfolio(id, alice)
	require.NoError(t, err)
	require.Equal(t, before, after)

	// Emptying a position frees its slot for the new asset.
	_, _, err = f.engine.Swap(ctx, alice, id, assets[0], assets[MaxAssets-1], big.NewInt(10))
	require.NoError(t, err)
	after, err = f.engine.GetUserPortfolio(id, alice)
	require.NoError(t, err)
	require.Len(t, after, MaxAssets)
}

// rankedChallenge drives four participants to distinct final positions:
// alice 1500, bob 1000, carol 1000 (entered after bob), dave unranked.
func rankedChallenge(t *testing.T, f *fixture) uint64 {
	t.Helper()
	ctx := context.Background()
	f.list(t, assetX)
	f.setPrice(t, assetX, "1")
	id := f.create(t, OneWeek)
	f.join(t, id, alice, bob, carol, dave)

	_, _, err := f.engine.Swap(ctx, alice, id, baseAsset, assetX, big.NewInt(500))
	require.NoError(t, err)
	f.setPrice(t, assetX, "2")
	rank, score, err := f.engine.Register(ctx, bob, id)
	require.NoError(t, err)
	require.Equal(t, 2, rank)
	require.Equal(t, int64(1000), score.Int64())
	_, _, err = f.engine.Register(ctx, alice, id)
	require.NoError(t, err)
	_, _, err = f.engine.Swap(ctx, carol, id, baseAsset, assetX, big.NewInt(100))
	require.NoError(t, err)
	return id
}

func TestRankingOrderAndTieBreak(t *testing.T) {
	f := newFixture(t)
	id := rankedChallenge(t, f)
	ranking, err := f.engine.GetRanking(id)
	require.NoError(t, err)
	require.Equal(t, [RankingSize]common.Address{alice, bob, carol}, ranking.Participants)
	require.Equal(t, int64(1500), ranking.Scores[0].Int64())
	require.Equal(t, int64(1000), ranking.Scores[1].Int64())
	require.Equal(t, int64(1000), ranking.Scores[2].Int64())
}

func TestClaimPaysTiersOnce(t *testing.T) {
	f := newFixture(t)
	id := rankedChallenge(t, f)
	ctx := context.Background()

	_, err := f.engine.Claim(ctx, alice, id)
	requireCode(t, err, ErrNotEnded)

	f.now = f.now.Add(7 * 24 * time.Hour)
	info, err := f.engine.ChallengeInfo(id)
	require.NoError(t, err)
	require.Equal(t, StateEnded, info.State)

	// Prices after the end still move the leaderboard until the first claim.
	f.setPrice(t, assetX, "1")
	_, _, err = f.engine.Register(ctx, carol, id)
	require.NoError(t, err)
	ranking, err := f.engine.GetRanking(id)
	require.NoError(t, err)
	require.Equal(t, [RankingSize]common.Address{alice, bob, carol}, ranking.Participants)
	require.Equal(t, int64(950), ranking.Scores[2].Int64())

	payout, err := f.engine.Claim(ctx, bob, id)
	require.NoError(t, err)
	require.Equal(t, int64(10), payout.Int64()) // floor(40 * 26 / 100)

	info, err = f.engine.ChallengeInfo(id)
	require.NoError(t, err)
	require.Equal(t, StateDistributing, info.State)

	_, _, err = f.engine.Register(ctx, alice, id)
	requireCode(t, err, ErrAlreadyDistributed)

	_, err = f.engine.Claim(ctx, bob, id)
	requireCode(t, err, ErrAlreadyDistributed)

	payout, err = f.engine.Claim(ctx, dave, id)
	require.NoError(t, err)
	require.Zero(t, payout.Sign())

	payout, err = f.engine.Claim(ctx, alice, id)
	require.NoError(t, err)
	require.Equal(t, int64(20), payout.Int64())
	payout, err = f.engine.Claim(ctx, carol, id)
	require.NoError(t, err)
	require.Equal(t, int64(5), payout.Int64())

	info, err = f.engine.ChallengeInfo(id)
	require.NoError(t, err)
	require.Equal(t, StateDistributed, info.State)
	require.Equal(t, int64(40), info.TotalRewards.Int64())
	require.Equal(t, int64(35), info.TotalPaid.Int64())
	require.Equal(t, int64(5), f.treasury.vault.Int64())

	member, err := f.engine.GetParticipant(id, carol)
	require.NoError(t, err)
	require.Equal(t, StatusClaimed, member.Status)
	require.Equal(t, uint8(3), member.Rank)

	_, err = f.engine.Claim(ctx, common.HexToAddress("0xbeef"), id)
	requireCode(t, err, ErrNotJoined)
}

func TestClaimTransferFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	id := rankedChallenge(t, f)
	f.now = f.now.Add(7 * 24 * time.Hour)
	f.treasury.disburseErr = errors.New("vault locked")

	_, err := f.engine.Claim(context.Background(), alice, id)
	requireCode(t, err, ErrFundsTransfer)

	info, err := f.engine.ChallengeInfo(id)
	require.NoError(t, err)
	require.Equal(t, StateEnded, info.State)
	member, err := f.engine.GetParticipant(id, alice)
	require.NoError(t, err)
	require.Equal(t, StatusJoined, member.Status)

	f.treasury.disburseErr = nil
	payout, err := f.engine.Claim(context.Background(), alice, id)
	require.NoError(t, err)
	require.Equal(t, int64(20), payout.Int64())
}

func TestRequestBadge(t *testing.T) {
	f := newFixture(t)
	var issued []BadgeAuthorization
	f.engine.SetBadgeIssuer(BadgeIssuerFunc(func(_ context.Context, auth BadgeAuthorization) error {
		issued = append(issued, auth)
		return nil
	}))
	id := rankedChallenge(t, f)
	ctx := context.Background()

	_, err := f.engine.RequestBadge(ctx, alice, id)
	requireCode(t, err, ErrRewardsNotClaimed)

	f.now = f.now.Add(7 * 24 * time.Hour)
	_, err = f.engine.Claim(ctx, alice, id)
	require.NoError(t, err)
	_, err = f.engine.Claim(ctx, dave, id)
	require.NoError(t, err)

	auth, err := f.engine.RequestBadge(ctx, alice, id)
	require.NoError(t, err)
	require.Equal(t, BadgeID(id, alice), auth.ID)
	require.Equal(t, 1, auth.Rank)
	require.Equal(t, int64(1500), auth.Score.Int64())
	require.Equal(t, int64(5000), auth.ReturnRateBps)
	require.Equal(t, OneWeek, auth.Class)
	require.Len(t, issued, 1)

	_, err = f.engine.RequestBadge(ctx, alice, id)
	requireCode(t, err, ErrAlreadyMinted)
	require.Len(t, issued, 1)

	_, err = f.engine.RequestBadge(ctx, dave, id)
	requireCode(t, err, ErrNotTopTier)

	_, err = f.engine.RequestBadge(ctx, bob, id)
	requireCode(t, err, ErrRewardsNotClaimed)
}

func TestBadgeIssuerFailureKeepsClaimable(t *testing.T) {
	f := newFixture(t)
	fail := true
	f.engine.SetBadgeIssuer(BadgeIssuerFunc(func(context.Context, BadgeAuthorization) error {
		if fail {
			return errors.New("issuer offline")
		}
		return nil
	}))
	id := rankedChallenge(t, f)
	f.now = f.now.Add(7 * 24 * time.Hour)
	_, err := f.engine.Claim(context.Background(), bob, id)
	require.NoError(t, err)

	_, err = f.engine.RequestBadge(context.Background(), bob, id)
	requireCode(t, err, ErrBadgeIssuer)
	fail = false
	auth, err := f.engine.RequestBadge(context.Background(), bob, id)
	require.NoError(t, err)
	require.Equal(t, 2, auth.Rank)
	require.Zero(t, auth.ReturnRateBps)
}

func TestAdministrativeOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	intruder := Authority{Caller: alice}
	admin := Authority{Caller: adminAddr}

	requireCode(t, f.engine.SetInvestableAsset(ctx, intruder, assetX), ErrUnauthorized)
	requireCode(t, f.engine.SetEntryFee(ctx, intruder, big.NewInt(5)), ErrUnauthorized)

	require.NoError(t, f.engine.SetInvestableAsset(ctx, admin, assetX))
	require.NoError(t, f.engine.SetInvestableAsset(ctx, admin, assetX))
	require.NoError(t, f.engine.SetInvestableAsset(ctx, admin, assetY))
	set, err := f.engine.InvestableAssets()
	require.NoError(t, err)
	require.Equal(t, uint64(2), set.Version)
	require.Equal(t, []common.Address{assetX, assetY}, set.Assets)

	ok, err := f.engine.IsInvestable(baseAsset)
	require.NoError(t, err)
	require.True(t, ok)
	requireCode(t, f.engine.RemoveInvestableAsset(ctx, admin, baseAsset), ErrInvalidArgument)

	require.NoError(t, f.engine.RemoveInvestableAsset(ctx, admin, assetX))
	ok, err = f.engine.IsInvestable(assetX)
	require.NoError(t, err)
	require.False(t, ok)
	set, err = f.engine.InvestableAssets()
	require.NoError(t, err)
	require.Equal(t, uint64(3), set.Version)

	first := f.create(t, OneWeek)
	require.NoError(t, f.engine.SetEntryFee(ctx, admin, big.NewInt(25)))
	require.NoError(t, f.engine.SetSeedAmount(ctx, admin, big.NewInt(5000)))
	requireCode(t, f.engine.SetEntryFee(ctx, admin, big.NewInt(0)), ErrInvalidArgument)
	second := f.create(t, OneWeek)
	f.join(t, first, bob)
	f.join(t, second, bob)

	info, err := f.engine.ChallengeInfo(first)
	require.NoError(t, err)
	require.Equal(t, int64(10), info.TotalRewards.Int64())
	info, err = f.engine.ChallengeInfo(second)
	require.NoError(t, err)
	require.Equal(t, int64(25), info.TotalRewards.Int64())
	require.Equal(t, int64(5000), f.balance(t, second, bob, baseAsset).Int64())

	next := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	require.NoError(t, f.engine.TransferAdmin(ctx, admin, next))
	requireCode(t, f.engine.SetInvestableAsset(ctx, admin, assetX), ErrUnauthorized)
	require.NoError(t, f.engine.SetInvestableAsset(ctx, Authority{Caller: next}, assetX))
	params, err := f.engine.Params()
	require.NoError(t, err)
	require.Equal(t, next, params.Admin)
}

func TestBootstrapKeepsExistingParams(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetEntryFee(context.Background(), Authority{Caller: adminAddr}, big.NewInt(77)))
	require.NoError(t, f.engine.Bootstrap(DefaultParams(adminAddr, baseAsset)))
	params, err := f.engine.Params()
	require.NoError(t, err)
	require.Equal(t, int64(77), params.EntryFee.Int64())

	err = NewEngine(f.manager, nil).Bootstrap(Params{})
	requireCode(t, err, ErrInvalidArgument)
}

func TestParseDurationClass(t *testing.T) {
	cases := map[string]DurationClass{"1w": OneWeek, "month": OneMonth, "3MO": ThreeMonths, "six_months": SixMonths, "1y": OneYear}
	for input, want := range cases {
		got, err := ParseDurationClass(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got)
	}
	_, err := ParseDurationClass("fortnight")
	requireCode(t, err, ErrInvalidArgument)
}

// failingDB fails batch writes while failWrites is set.
type failingDB struct {
	*storage.MemDB
	mu         sync.Mutex
	failWrites bool
}

func (db *failingDB) setFail(v bool) {
	db.mu.Lock()
	db.failWrites = v
	db.mu.Unlock()
}

func (db *failingDB) NewBatch() storage.Batch {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &failingBatch{Batch: db.MemDB.NewBatch(), fail: db.failWrites}
}

type failingBatch struct {
	storage.Batch
	fail bool
}

func (b *failingBatch) Write() error {
	if b.fail {
		return errors.New("disk full")
	}
	return b.Batch.Write()
}

type revokingIssuer struct {
	authorized []common.Hash
	revoked    []common.Hash
}

func (r *revokingIssuer) AuthorizeMint(_ context.Context, auth BadgeAuthorization) error {
	r.authorized = append(r.authorized, auth.ID)
	return nil
}

func (r *revokingIssuer) RevokeMint(_ context.Context, id common.Hash) error {
	r.revoked = append(r.revoked, id)
	return nil
}

func TestBadgeRevokedWhenCommitFails(t *testing.T) {
	db := &failingDB{MemDB: storage.NewMemDB()}
	f := newFixtureOn(t, db)
	issuer := &revokingIssuer{}
	f.engine.SetBadgeIssuer(issuer)
	id := rankedChallenge(t, f)
	f.now = f.now.Add(7 * 24 * time.Hour)
	_, err := f.engine.Claim(context.Background(), alice, id)
	require.NoError(t, err)

	db.setFail(true)
	_, err = f.engine.RequestBadge(context.Background(), alice, id)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, []common.Hash{BadgeID(id, alice)}, issuer.revoked)
	member, err := f.engine.GetParticipant(id, alice)
	require.NoError(t, err)
	require.Equal(t, StatusClaimed, member.Status)

	db.setFail(false)
	auth, err := f.engine.RequestBadge(context.Background(), alice, id)
	require.NoError(t, err)
	require.Equal(t, issuer.authorized[0], auth.ID)
	require.Len(t, issuer.authorized, 2)
	require.Len(t, issuer.revoked, 1)
}

// gatedEmitter blocks inside Emit for the first join until released.
type gatedEmitter struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	totals  []uint64
}

func (g *gatedEmitter) Emit(evt events.Event) {
	joined, ok := evt.(events.ChallengeJoined)
	if !ok {
		return
	}
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	g.totals = append(g.totals, joined.TotalParticipants)
	g.mu.Unlock()
}

func TestEventsFollowCommitOrder(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, OneWeek)
	gate := &gatedEmitter{entered: make(chan struct{}), release: make(chan struct{})}
	f.engine.SetEmitter(gate)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- f.engine.Join(context.Background(), alice, id)
	}()
	<-gate.entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- f.engine.Join(context.Background(), bob, id)
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	gate.mu.Lock()
	defer gate.mu.Unlock()
	require.Equal(t, []uint64{1, 2}, gate.totals)
}
