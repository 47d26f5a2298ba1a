// Package decoder turns confirmed pump.fun transactions into typed mint and
// trade events.
package decoder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/codec"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/observability"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/solana"
)

// ErrUnknownEventLayout is returned when an instruction ran but its event is
// missing while the program emitted data with an unrecognized discriminator.
var ErrUnknownEventLayout = errors.New("unrecognized event layout")

// Kind is the instruction a decoded transaction represents.
type Kind string

const (
	KindCreate Kind = "create"
	KindBuy    Kind = "buy"
	KindSell   Kind = "sell"
)

// Fallback names a default the decoder substituted for missing data.
type Fallback string

const (
	FallbackInitialReserves    Fallback = "initial-reserves"
	FallbackMetadataAbsent     Fallback = "metadata-absent"
	FallbackTokenBalanceAbsent Fallback = "token-balance-absent"
	FallbackSolBalanceAbsent   Fallback = "sol-balance-absent"
	FallbackEventAmounts       Fallback = "event-amounts"
	FallbackBlockTime          Fallback = "block-time"
)

// Decoded is the result of decoding one transaction. A create sets Mint,
// with its initial buy on Mint.InitialBuy, and Trades holds every other
// trade instruction in instruction order.
type Decoded struct {
	Kind      Kind
	Mint      *domain.MintEvent
	Trades    []*domain.TradeEvent
	Fallbacks []Fallback
}

// Used reports whether fallback f was applied.
func (d *Decoded) Used(f Fallback) bool {
	for _, got := range d.Fallbacks {
		if got == f {
			return true
		}
	}
	return false
}

// Options configures a Decoder.
type Options struct {
	// ProgramID defaults to the pump.fun program.
	ProgramID string
	Logger    *logrus.Entry
	// Now supplies the timestamp when neither the event nor the block has one.
	Now func() time.Time
}

// Decoder decodes transactions. It holds no per-transaction state and is
// safe for concurrent use.
type Decoder struct {
	programID string
	logger    *logrus.Entry
	now       func() time.Time
}

// New creates a Decoder.
func New(opts Options) *Decoder {
	if opts.ProgramID == "" {
		opts.ProgramID = pumpfun.ProgramID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Decoder{
		programID: opts.ProgramID,
		logger:    logging.OrDefault(opts.Logger, "decoder"),
		now:       opts.Now,
	}
}

// Decode classifies tx and decodes its create instruction, or else every buy
// and sell instruction it carries. It returns nil, nil for transactions that carry none of them
// and did not fail. A failed transaction yields a *SendError.
func (d *Decoder) Decode(tx *solana.Transaction) (*Decoded, error) {
	if tx == nil {
		return nil, nil
	}

	s := scanLogs(tx.Logs(), d.programID)
	res, err := d.decode(tx, s)
	switch {
	case errors.Is(err, ErrUnknownEventLayout):
		observability.RecordDecoded("unknown_layout")
		d.logger.WithFields(logrus.Fields{"signature": tx.Signature}).WithError(err).Warn("event layout drift")
	case err != nil:
		observability.RecordDecoded("send_error")
	case res == nil:
		observability.RecordDecoded("ignored")
	default:
		observability.RecordDecoded(string(res.Kind))
		for _, f := range res.Fallbacks {
			observability.RecordFallback(string(f))
		}
	}
	return res, err
}

func (d *Decoder) decode(tx *solana.Transaction, s *logScan) (*Decoded, error) {
	if m, ok := s.first(pumpfun.InstructionCreate); ok {
		return d.decodeCreate(tx, s, m)
	}
	if markers := s.trades(); len(markers) > 0 {
		res := &Decoded{}
		trades, err := d.decodeTrades(tx, s, markers, &res.Fallbacks)
		if err != nil {
			return nil, err
		}
		res.Kind = KindSell
		if trades[0].IsBuy() {
			res.Kind = KindBuy
		}
		res.Trades = trades
		return res, nil
	}
	if s.failed || tx.Failed() {
		return nil, sendError(tx)
	}
	return nil, nil
}

// decodeTrades decodes each marker in order. Markers without a matching event
// are skipped while at least one trade decodes; layout drift fails the whole
// transaction.
func (d *Decoder) decodeTrades(tx *solana.Transaction, s *logScan, markers []marker, fallbacks *[]Fallback) ([]*domain.TradeEvent, error) {
	shared := len(s.trades()) > 1
	var (
		out      []*domain.TradeEvent
		firstErr error
	)
	for _, m := range markers {
		trade, err := d.decodeTrade(tx, s, m, shared, fallbacks)
		if errors.Is(err, ErrUnknownEventLayout) {
			return nil, err
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, trade)
	}
	if len(out) == 0 {
		return nil, firstErr
	}
	if firstErr != nil {
		d.logger.WithFields(logrus.Fields{"signature": tx.Signature}).Warn("trade marker without a trade event")
	}
	return out, nil
}

func sendError(tx *solana.Transaction) *SendError {
	var txErr interface{}
	if tx.Meta != nil {
		txErr = tx.Meta.Err
	}
	e := ParseSendError(tx.Logs(), txErr)
	e.Signature = tx.Signature
	return e
}

// missingEvent reports the absence of an expected event, flagging layout
// drift when the program emitted data nobody recognizes.
func missingEvent(tx *solana.Transaction, s *logScan) error {
	if disc, ok := s.unknownDiscriminator(); ok {
		return fmt.Errorf("%w: discriminator %x in %s", ErrUnknownEventLayout, disc, tx.Signature)
	}
	return sendError(tx)
}

// eventTime picks the event timestamp, then the block time, then the clock.
func (d *Decoder) eventTime(eventUnix, blockUnix int64, fallbacks *[]Fallback) time.Time {
	if eventUnix > 0 {
		return time.Unix(eventUnix, 0).UTC()
	}
	*fallbacks = append(*fallbacks, FallbackBlockTime)
	if blockUnix > 0 {
		return time.Unix(blockUnix, 0).UTC()
	}
	return d.now().UTC()
}

type marker struct {
	name    string
	ordinal int // position among all instruction markers
}

// logScan is the structure recovered from a log message list.
type logScan struct {
	markers []marker
	// payloads holds the decoded program-data lines emitted by the program.
	payloads [][]byte
	failed   bool
}

// scanLogs walks the invoke stack so only markers and data emitted while the
// program is executing are attributed to it. Logs without invoke lines are
// treated as the program's own.
func scanLogs(logs []string, programID string) *logScan {
	s := &logScan{}
	var stack []string
	inProgram := func() bool {
		return len(stack) == 0 || stack[len(stack)-1] == programID
	}

	for _, line := range logs {
		switch {
		case strings.HasPrefix(line, pumpfun.InstructionPrefix):
			if inProgram() {
				name := strings.TrimSpace(strings.TrimPrefix(line, pumpfun.InstructionPrefix))
				s.markers = append(s.markers, marker{name: name, ordinal: len(s.markers)})
			} else {
				s.markers = append(s.markers, marker{ordinal: len(s.markers)})
			}
		case strings.HasPrefix(line, codec.ProgramDataPrefix):
			if payload, ok := codec.ProgramData(line); ok && inProgram() {
				s.payloads = append(s.payloads, payload)
			}
		case strings.HasPrefix(line, "Program log:"), strings.HasPrefix(line, "Program return:"):
		case strings.HasPrefix(line, "Program "):
			rest := strings.TrimPrefix(line, "Program ")
			id, tail, _ := strings.Cut(rest, " ")
			switch {
			case strings.HasPrefix(tail, "invoke ["):
				stack = append(stack, id)
			case tail == "success", strings.HasPrefix(tail, "failed"):
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			}
		}

		if strings.Contains(line, "failed") || strings.Contains(line, "Error") {
			s.failed = true
		}
	}
	return s
}

// first returns the first program marker with the given name.
func (s *logScan) first(name string) (marker, bool) {
	for _, m := range s.markers {
		if m.name == name {
			return m, true
		}
	}
	return marker{}, false
}

// trades returns the Buy and Sell markers in order.
func (s *logScan) trades() []marker {
	var out []marker
	for _, m := range s.markers {
		if m.name == pumpfun.InstructionBuy || m.name == pumpfun.InstructionSell {
			out = append(out, m)
		}
	}
	return out
}

// rank is the position of m among markers with the same name.
func (s *logScan) rank(m marker) int {
	n := 0
	for _, other := range s.markers {
		if other.ordinal == m.ordinal {
			return n
		}
		if other.name == m.name {
			n++
		}
	}
	return n
}

// tradeEvent returns the n-th trade event with the given direction.
func (s *logScan) tradeEvent(isBuy bool, n int) (codec.TradeEventData, bool) {
	for _, p := range s.payloads {
		ev, ok := codec.DecodeTradeEvent(p)
		if !ok || ev.IsBuy != isBuy {
			continue
		}
		if n == 0 {
			return ev, true
		}
		n--
	}
	return codec.TradeEventData{}, false
}

// createEvent returns the first decodable create event.
func (s *logScan) createEvent() (codec.CreateEventData, bool) {
	for _, p := range s.payloads {
		if ev, ok := codec.DecodeCreateEvent(p); ok {
			return ev, true
		}
	}
	return codec.CreateEventData{}, false
}

// unknownDiscriminator returns the first payload discriminator that matches
// no known event.
func (s *logScan) unknownDiscriminator() ([codec.DiscriminatorSize]byte, bool) {
	for _, p := range s.payloads {
		disc, ok := codec.PeekDiscriminator(p)
		if !ok {
			continue
		}
		if disc != codec.TradeEventDiscriminator && disc != codec.CreateEventDiscriminator {
			return disc, true
		}
	}
	return [codec.DiscriminatorSize]byte{}, false
}
