package trading

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pumpfun-engine/internal/codec"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/portfolio"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/solana"
	"pumpfun-engine/internal/solana/stub"
)

const (
	testMint = "5PRZ3c8ynzY9Z7pbcWk2eWSrWUm1X7DWkFWgUaKSCkyP"
	baseTime = int64(1700000000)
)

// fakeSubmitter returns a fixed signature or delegates to fn.
type fakeSubmitter struct {
	mu     sync.Mutex
	orders []Order
	sig    string
	err    error
	fn     func(ctx context.Context, order Order) (string, error)
}

func (s *fakeSubmitter) Submit(ctx context.Context, order Order, op *domain.TradingOperation) (string, error) {
	s.mu.Lock()
	s.orders = append(s.orders, order)
	fn := s.fn
	s.mu.Unlock()

	op.Attempt++
	if fn != nil {
		return fn(ctx, order)
	}
	return s.sig, s.err
}

func (s *fakeSubmitter) submitted() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Order(nil), s.orders...)
}

func testPool(t *testing.T, client solana.RPCClient) *rpcpool.Pool {
	t.Helper()
	p, err := rpcpool.NewWithEndpoints(rpcpool.Config{
		MaxRetries: 1,
		Timeout:    time.Second,
		RetryDelay: time.Millisecond,
	}, []*rpcpool.Endpoint{rpcpool.NewEndpoint("stub", client)}, rpcpool.WithLogger(logging.Discard()))
	require.NoError(t, err)
	return p
}

func testWallet(t *testing.T) *Wallet {
	t.Helper()
	w, err := NewRandomWallet()
	require.NoError(t, err)
	return w
}

// setCurve stores a bonding curve account for testMint.
func setCurve(t *testing.T, client *stub.RPCClient, state domain.ReserveState) {
	t.Helper()
	addr, err := pumpfun.BondingCurveAddress(testMint)
	require.NoError(t, err)
	w := codec.NewWriter().
		Discriminator(codec.BondingCurveDiscriminator).
		U64(state.VirtualToken).
		U64(state.VirtualSol).
		U64(state.RealToken).
		U64(state.RealSol).
		U64(state.TotalSupply).
		Bool(state.Complete)
	require.NoError(t, w.Err())
	client.SetAccount(addr, &solana.AccountInfo{
		Owner: pumpfun.ProgramID,
		Data:  base64.StdEncoding.EncodeToString(w.Bytes()),
	})
}

func initialCurve() domain.ReserveState {
	return domain.ReserveState{
		VirtualSol:   pumpfun.InitialVirtualSolReserves,
		VirtualToken: pumpfun.InitialVirtualTokenReserves,
		RealToken:    pumpfun.InitialRealTokenReserves,
		TotalSupply:  pumpfun.TokenTotalSupply,
	}
}

func tradeLine(t *testing.T, user string, isBuy bool) string {
	t.Helper()
	w := codec.NewWriter().
		Discriminator(codec.TradeEventDiscriminator).
		PubKey(testMint).
		U64(990_099_009).
		U64(34_612_903_225_806).
		Bool(isBuy).
		PubKey(user).
		I64(baseTime).
		U64(31_000_000_004).
		U64(1_038_387_096_774_194).
		U64(1_000_000_004).
		U64(758_487_096_774_194)
	require.NoError(t, w.Err())
	return codec.ProgramDataPrefix + base64.StdEncoding.EncodeToString(w.Bytes())
}

// confirmedBuy is the confirmed transaction of a 1 SOL buy by owner.
func confirmedBuy(t *testing.T, sig, owner string) *solana.Transaction {
	t.Helper()
	curveAddr, err := pumpfun.BondingCurveAddress(testMint)
	require.NoError(t, err)
	return &solana.Transaction{
		Slot:      100,
		Signature: sig,
		BlockTime: baseTime,
		Meta: &solana.TransactionMeta{
			Fee: 5000,
			LogMessages: []string{
				"Program " + pumpfun.ProgramID + " invoke [1]",
				pumpfun.InstructionPrefix + pumpfun.InstructionBuy,
				tradeLine(t, owner, true),
				"Program " + pumpfun.ProgramID + " success",
			},
			PreBalances:  []uint64{10_000_000_000, 0, 1_000_000_000},
			PostBalances: []uint64{8_999_995_000, 0, 2_000_000_000},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 3, Mint: testMint, Owner: owner, Amount: "34612903225806", Decimals: 6},
			},
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []string{owner, testMint, curveAddr},
			Signatures:  []string{sig},
		},
	}
}

// opaqueTx is a confirmed transaction without pump.fun logs.
func opaqueTx(sig, owner string) *solana.Transaction {
	return &solana.Transaction{
		Slot:      100,
		Signature: sig,
		BlockTime: baseTime,
		Meta:      &solana.TransactionMeta{Fee: 5000},
		Message:   &solana.TransactionMessage{AccountKeys: []string{owner}, Signatures: []string{sig}},
	}
}

type fixture struct {
	client    *stub.RPCClient
	submitter *fakeSubmitter
	portfolio *portfolio.Memory
	owner     string
	exec      *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := stub.NewRPCClient()
	setCurve(t, client, initialCurve())
	f := &fixture{
		client:    client,
		submitter: &fakeSubmitter{sig: "sig-1"},
		portfolio: portfolio.NewMemory(portfolio.Limits{}, logging.Discard()),
		owner:     testWallet(t).PublicKey(),
	}
	f.exec = NewExecutor(ExecutorOptions{
		Config: Config{
			ConfirmInterval: 5 * time.Millisecond,
			ConfirmTimeout:  100 * time.Millisecond,
		},
		Pool:      testPool(t, client),
		Submitter: f.submitter,
		Portfolio: f.portfolio,
		Owner:     f.owner,
		Logger:    logging.Discard(),
	})
	return f
}

// setHolding makes the chain report tokens base units in owner's token account.
func (f *fixture) setHolding(t *testing.T, tokens string) {
	t.Helper()
	ata, err := pumpfun.AssociatedTokenAddress(f.owner, testMint)
	require.NoError(t, err)
	f.client.SetTokenBalance(ata, &solana.TokenAmount{Amount: tokens, Decimals: 6})
}
