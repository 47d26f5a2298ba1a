package codec

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/shopspring/decimal"

	"pumpfun-engine/internal/domain"
)

// ProgramDataPrefix marks an Anchor event payload in transaction logs.
const ProgramDataPrefix = "Program data: "

// String bounds for create-event metadata.
const (
	MaxNameLen   = 100
	MaxSymbolLen = 32
	MaxURILen    = 200
)

// EventDiscriminator derives the Anchor event discriminator for name:
// the first 8 bytes of sha256("event:<name>").
func EventDiscriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// AccountDiscriminator derives the Anchor account discriminator for name:
// the first 8 bytes of sha256("account:<name>").
func AccountDiscriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var (
	TradeEventDiscriminator   = EventDiscriminator("TradeEvent")
	CreateEventDiscriminator  = EventDiscriminator("CreateEvent")
	BondingCurveDiscriminator = AccountDiscriminator("BondingCurve")
)

// ProgramData strips the "Program data: " marker from a log line and decodes
// the base64 payload. Lines without the marker or with bad base64 report false.
func ProgramData(line string) ([]byte, bool) {
	rest, found := strings.CutPrefix(line, ProgramDataPrefix)
	if !found {
		return nil, false
	}
	rest = strings.TrimSpace(rest)
	b, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		// some nodes strip padding
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(rest, "="))
		if err != nil {
			return nil, false
		}
	}
	return b, true
}

// PeekDiscriminator returns the first 8 bytes of payload.
func PeekDiscriminator(payload []byte) ([DiscriminatorSize]byte, bool) {
	return NewReader(payload).Discriminator()
}

// TradeEventData is the decoded body of a TradeEvent payload.
type TradeEventData struct {
	Mint                 string
	SolAmount            uint64
	TokenAmount          uint64
	IsBuy                bool
	User                 string
	Timestamp            int64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	RealSolReserves      uint64
	RealTokenReserves    uint64
}

// Reserves returns the post-trade curve snapshot embedded in the event.
// The event does not carry the completion flag or supply.
func (t TradeEventData) Reserves(totalSupply uint64) domain.ReserveState {
	return domain.ReserveState{
		VirtualSol:   t.VirtualSolReserves,
		VirtualToken: t.VirtualTokenReserves,
		RealSol:      t.RealSolReserves,
		RealToken:    t.RealTokenReserves,
		TotalSupply:  totalSupply,
	}
}

// SolAmountDecimal renders SolAmount in SOL.
func (t TradeEventData) SolAmountDecimal() decimal.Decimal {
	return domain.Lamports(t.SolAmount)
}

// DecodeTradeEvent decodes a TradeEvent payload. Trailing bytes are allowed so
// newer program versions that append fields still decode.
func DecodeTradeEvent(payload []byte) (TradeEventData, bool) {
	var ev TradeEventData
	r := NewReader(payload)
	disc, ok := r.Discriminator()
	if !ok || disc != TradeEventDiscriminator {
		return ev, false
	}
	ev.Mint, _ = r.PubKey()
	ev.SolAmount, _ = r.U64()
	ev.TokenAmount, _ = r.U64()
	ev.IsBuy, _ = r.Bool()
	ev.User, _ = r.PubKey()
	ev.Timestamp, _ = r.I64()
	ev.VirtualSolReserves, _ = r.U64()
	ev.VirtualTokenReserves, _ = r.U64()
	ev.RealSolReserves, _ = r.U64()
	ev.RealTokenReserves, _ = r.U64()
	if r.Failed() {
		return TradeEventData{}, false
	}
	return ev, true
}

// CreateEventData is the metadata prefix of a CreateEvent payload.
type CreateEventData struct {
	Name   string
	Symbol string
	URI    string
}

// DecodeCreateEvent decodes name, symbol and uri from a CreateEvent payload.
func DecodeCreateEvent(payload []byte) (CreateEventData, bool) {
	var ev CreateEventData
	r := NewReader(payload)
	disc, ok := r.Discriminator()
	if !ok || disc != CreateEventDiscriminator {
		return ev, false
	}
	ev.Name, _ = r.String(MaxNameLen)
	ev.Symbol, _ = r.String(MaxSymbolLen)
	ev.URI, _ = r.String(MaxURILen)
	if r.Failed() {
		return CreateEventData{}, false
	}
	ev.Name = strings.TrimRight(ev.Name, "\x00")
	ev.Symbol = strings.TrimRight(ev.Symbol, "\x00")
	ev.URI = strings.TrimRight(ev.URI, "\x00")
	return ev, true
}
