package codec

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMint = "So11111111111111111111111111111111111111112"
	testUser = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func tradePayload(t *testing.T) []byte {
	t.Helper()
	w := NewWriter().
		Discriminator(TradeEventDiscriminator).
		PubKey(testMint).
		U64(1_500_000_000).
		U64(52_000_000_000).
		Bool(true).
		PubKey(testUser).
		I64(1_717_000_000).
		U64(31_500_000_000).
		U64(1_021_000_000_000_000).
		U64(1_500_000_000).
		U64(741_100_000_000_000)
	require.NoError(t, w.Err())
	return w.Bytes()
}

func TestDecodeTradeEvent_RoundTrip(t *testing.T) {
	line := ProgramDataPrefix + base64.StdEncoding.EncodeToString(tradePayload(t))

	payload, ok := ProgramData(line)
	require.True(t, ok)

	ev, ok := DecodeTradeEvent(payload)
	require.True(t, ok)
	assert.Equal(t, testMint, ev.Mint)
	assert.Equal(t, uint64(1_500_000_000), ev.SolAmount)
	assert.Equal(t, uint64(52_000_000_000), ev.TokenAmount)
	assert.True(t, ev.IsBuy)
	assert.Equal(t, testUser, ev.User)
	assert.Equal(t, int64(1_717_000_000), ev.Timestamp)
	assert.Equal(t, uint64(31_500_000_000), ev.VirtualSolReserves)
	assert.Equal(t, uint64(1_021_000_000_000_000), ev.VirtualTokenReserves)
	assert.Equal(t, uint64(1_500_000_000), ev.RealSolReserves)
	assert.Equal(t, uint64(741_100_000_000_000), ev.RealTokenReserves)
	assert.Equal(t, "1.5", ev.SolAmountDecimal().String())
}

func TestDecodeTradeEvent_Truncated(t *testing.T) {
	payload := tradePayload(t)
	for _, n := range []int{0, 7, 8, 40, 48, len(payload) - 1} {
		_, ok := DecodeTradeEvent(payload[:n])
		assert.False(t, ok, "length %d", n)
	}
}

func TestDecodeTradeEvent_TrailingBytesAllowed(t *testing.T) {
	payload := append(tradePayload(t), 0xde, 0xad, 0xbe, 0xef)
	_, ok := DecodeTradeEvent(payload)
	assert.True(t, ok)
}

func TestDecodeTradeEvent_WrongDiscriminator(t *testing.T) {
	payload := tradePayload(t)
	payload[0] ^= 0xff
	_, ok := DecodeTradeEvent(payload)
	assert.False(t, ok)
}

func TestDecodeTradeEvent_InvalidBool(t *testing.T) {
	payload := tradePayload(t)
	payload[8+32+8+8] = 2
	_, ok := DecodeTradeEvent(payload)
	assert.False(t, ok)
}

func TestDecodeCreateEvent(t *testing.T) {
	payload := NewWriter().
		Discriminator(CreateEventDiscriminator).
		String("Moon Cat").
		String("MCAT").
		String("https://ipfs.io/ipfs/abc").
		PubKey(testMint).
		Bytes()

	ev, ok := DecodeCreateEvent(payload)
	require.True(t, ok)
	assert.Equal(t, "Moon Cat", ev.Name)
	assert.Equal(t, "MCAT", ev.Symbol)
	assert.Equal(t, "https://ipfs.io/ipfs/abc", ev.URI)
}

func TestDecodeCreateEvent_LengthBounds(t *testing.T) {
	long := make([]byte, MaxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	payload := NewWriter().
		Discriminator(CreateEventDiscriminator).
		String(string(long)).
		String("X").
		String("u").
		Bytes()
	_, ok := DecodeCreateEvent(payload)
	assert.False(t, ok)

	// declared length larger than the buffer
	payload = NewWriter().Discriminator(CreateEventDiscriminator).Bytes()
	payload = append(payload, 50, 0, 0, 0, 'a', 'b')
	_, ok = DecodeCreateEvent(payload)
	assert.False(t, ok)
}

func TestProgramData(t *testing.T) {
	_, ok := ProgramData("Program log: Instruction: Buy")
	assert.False(t, ok)

	_, ok = ProgramData("Program data: !!!not-base64!!!")
	assert.False(t, ok)

	b, ok := ProgramData("Program data: AQID")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)

	b, ok = ProgramData("Program data: AQIDBA")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
}

func TestDiscriminators(t *testing.T) {
	// Anchor discriminators published in the pump.fun IDL.
	assert.Equal(t, [8]byte{0xbd, 0xdb, 0x7f, 0xd3, 0x4e, 0xe6, 0x61, 0xee}, TradeEventDiscriminator)
	assert.Equal(t, [8]byte{0x1b, 0x72, 0xa9, 0x4d, 0xde, 0xeb, 0x63, 0x76}, CreateEventDiscriminator)
	assert.Equal(t, [8]byte{0x17, 0xb7, 0xf8, 0x37, 0x60, 0xd8, 0xac, 0x60}, BondingCurveDiscriminator)
}

func TestDecodeBondingCurve(t *testing.T) {
	blob := NewWriter().
		Discriminator(BondingCurveDiscriminator).
		U64(1_073_000_000_000_000).
		U64(30_000_000_000).
		U64(793_100_000_000_000).
		U64(0).
		U64(1_000_000_000_000_000).
		Bool(false).
		Bytes()

	st, ok := DecodeBondingCurve(blob)
	require.True(t, ok)
	assert.Equal(t, uint64(1_073_000_000_000_000), st.VirtualToken)
	assert.Equal(t, uint64(30_000_000_000), st.VirtualSol)
	assert.Equal(t, uint64(793_100_000_000_000), st.RealToken)
	assert.Equal(t, uint64(0), st.RealSol)
	assert.Equal(t, uint64(1_000_000_000_000_000), st.TotalSupply)
	assert.False(t, st.Complete)

	blob[len(blob)-1] = 1
	st, ok = DecodeBondingCurve(blob)
	require.True(t, ok)
	assert.True(t, st.Complete)

	_, ok = DecodeBondingCurve(blob[:BondingCurveSize-1])
	assert.False(t, ok)

	blob[0] ^= 0xff
	_, ok = DecodeBondingCurve(blob)
	assert.False(t, ok)
}

func TestWriter_InvalidKey(t *testing.T) {
	w := NewWriter().PubKey("not-a-key")
	assert.Error(t, w.Err())
	assert.Len(t, w.Bytes(), PubKeySize)
}
