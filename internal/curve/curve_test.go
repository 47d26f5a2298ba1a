package curve

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpfun-engine/internal/domain"
)

func initialState() domain.ReserveState {
	return domain.ReserveState{
		VirtualSol:   30_000_000_000,
		VirtualToken: 1_073_000_000_000_000,
		RealSol:      0,
		RealToken:    793_100_000_000_000,
		TotalSupply:  1_000_000_000_000_000,
	}
}

func TestBuyTokensForSol(t *testing.T) {
	st := initialState()

	// 1 SOL on a fresh curve: 1073e12 - floor(30e9*1073e12/31e9) - 1
	out, err := BuyTokensForSol(st, 1_000_000_000)
	require.NoError(t, err)
	k := new(big.Int).Mul(big.NewInt(30_000_000_000), big.NewInt(1_073_000_000_000_000))
	q := new(big.Int).Quo(k, big.NewInt(31_000_000_000))
	want := new(big.Int).Sub(big.NewInt(1_073_000_000_000_000), q)
	want.Sub(want, big.NewInt(1))
	assert.Equal(t, want.Uint64(), out)
}

func TestBuyTokensForSol_ClampsToRealReserve(t *testing.T) {
	st := initialState()
	st.RealToken = 1_000

	out, err := BuyTokensForSol(st, 50_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), out)
}

func TestBuyTokensForSol_Errors(t *testing.T) {
	st := initialState()

	_, err := BuyTokensForSol(st, 0)
	assert.ErrorIs(t, err, ErrZeroAmount)

	st.Complete = true
	_, err = BuyTokensForSol(st, 1)
	assert.ErrorIs(t, err, ErrCurveComplete)
}

func TestBuyTokensForSol_ConstantProduct(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		st := domain.ReserveState{
			VirtualSol:   uint64(rng.Int63n(1_000_000_000_000)) + 1,
			VirtualToken: uint64(rng.Int63n(2_000_000_000_000_000)) + 1,
			RealToken:    uint64(rng.Int63n(1_000_000_000_000_000)),
		}
		solIn := uint64(rng.Int63n(100_000_000_000)) + 1

		out, err := BuyTokensForSol(st, solIn)
		require.NoError(t, err)
		require.LessOrEqual(t, out, st.RealToken)

		before := new(big.Int).Mul(new(big.Int).SetUint64(st.VirtualSol), new(big.Int).SetUint64(st.VirtualToken))
		after := new(big.Int).Mul(
			new(big.Int).SetUint64(st.VirtualSol+solIn),
			new(big.Int).SetUint64(st.VirtualToken-out),
		)
		require.True(t, after.Cmp(before) >= 0, "invariant broken for %+v solIn=%d out=%d", st, solIn, out)
	}
}

func TestSolForSellTokens(t *testing.T) {
	st := initialState()

	gross, err := SolForSellTokens(st, 10_000_000_000_000, 0)
	require.NoError(t, err)
	// floor(1e13*30e9/(1073e12+1e13))
	want := new(big.Int).Mul(big.NewInt(10_000_000_000_000), big.NewInt(30_000_000_000))
	want.Quo(want, big.NewInt(1_083_000_000_000_000))
	assert.Equal(t, want.Uint64(), gross)

	net, err := SolForSellTokens(st, 10_000_000_000_000, 100)
	require.NoError(t, err)
	assert.Equal(t, gross-gross*100/10_000, net)
}

func TestSolForSellTokens_Errors(t *testing.T) {
	st := initialState()

	_, err := SolForSellTokens(st, 1, 10_001)
	assert.ErrorIs(t, err, ErrInvalidFee)

	_, err = SolForSellTokens(st, 0, 100)
	assert.ErrorIs(t, err, ErrZeroAmount)

	st.Complete = true
	_, err = SolForSellTokens(st, 1, 100)
	assert.ErrorIs(t, err, ErrCurveComplete)
}

func TestSolForBuyTokens_InvertsBuy(t *testing.T) {
	st := initialState()

	cost, err := SolForBuyTokens(st, 35_000_000_000_000)
	require.NoError(t, err)

	out, err := BuyTokensForSol(st, cost)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out+1, uint64(35_000_000_000_000))

	_, err = SolForBuyTokens(st, st.RealToken+1)
	assert.ErrorIs(t, err, ErrInsufficientSupply)
}

func TestMarketCapSol(t *testing.T) {
	st := initialState()

	mc, err := MarketCapSol(st)
	require.NoError(t, err)
	want := new(big.Int).Mul(big.NewInt(1_000_000_000_000_000), big.NewInt(30_000_000_000))
	want.Quo(want, big.NewInt(1_073_000_000_000_000))
	assert.Equal(t, want.Uint64(), mc)

	st.VirtualToken = 0
	mc, err = MarketCapSol(st)
	require.NoError(t, err)
	assert.Zero(t, mc)

	st.Complete = true
	_, err = MarketCapSol(st)
	assert.ErrorIs(t, err, ErrCurveComplete)
}

func TestPriceString(t *testing.T) {
	tests := []struct {
		name     string
		vs, vt   uint64
		decimals uint8
		want     string
	}{
		{"initial curve", 30_000_000_000, 1_073_000_000_000_000, 6, "0.0000000280"},
		{"one to one", 1_000_000_000, 1_000_000, 6, "1.0000000000"},
		{"rounds half up", 5, 100, 0, "0.0000000001"},
		{"below precision", 4, 100, 0, "0.0000000000"},
		{"raw units", 2, 3, 9, "0.6666666667"},
		{"zero token", 1, 0, 6, "0.0000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriceString(tt.vs, tt.vt, tt.decimals))
		})
	}
}

// reference formats (vs/1e9)/(vt/10^d) to 10 places, rounding half away from zero.
func reference(vs, vt uint64, d uint8) string {
	num := new(big.Int).SetUint64(vs)
	num.Mul(num, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d)+PriceDecimals), nil))
	den := new(big.Int).SetUint64(vt)
	den.Mul(den, big.NewInt(domain.LamportsPerSol))
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if new(big.Int).Mul(r, big.NewInt(2)).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	s := q.String()
	for len(s) <= PriceDecimals {
		s = "0" + s
	}
	return s[:len(s)-PriceDecimals] + "." + s[len(s)-PriceDecimals:]
}

func TestPriceString_MatchesExactDivision(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		vs := uint64(rng.Int63()) + 1
		vt := uint64(rng.Int63n(1<<50)) + 1
		require.Equal(t, reference(vs, vt, 6), PriceString(vs, vt, 6), "vs=%d vt=%d", vs, vt)
	}
}

func TestWithSlippage(t *testing.T) {
	assert.Equal(t, uint64(1_010_000), WithSlippage(1_000_000, 100, true))
	assert.Equal(t, uint64(990_000), WithSlippage(1_000_000, 100, false))
	assert.Equal(t, uint64(0), WithSlippage(1_000_000, 10_000, false))
}

func TestNetOfFee(t *testing.T) {
	assert.Equal(t, uint64(990_099_009), NetOfFee(1_000_000_000, 100))
	assert.Equal(t, uint64(1_000_000_000), NetOfFee(1_000_000_000, 0))
	assert.Zero(t, NetOfFee(0, 100))

	// The product exceeds uint64 and must not wrap.
	top := ^uint64(0)
	assert.Equal(t, top/10_100*10_000+(top%10_100)*10_000/10_100, NetOfFee(top, 100))
	assert.Greater(t, NetOfFee(top, 100), top/2)
}
