package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/solana"
)

const (
	defaultPageSize = 1000
	sourceBackfill  = "backfill"
)

// Backfiller replays historical program activity through the decoder.
type Backfiller struct {
	pool      *rpcpool.Pool
	decoder   *decoder.Decoder
	publisher Publisher
	address   string
	pageSize  int
	maxPages  int
	logger    *logrus.Entry
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Pool      *rpcpool.Pool
	Decoder   *decoder.Decoder
	Publisher Publisher
	// Address whose signature history is walked. Defaults to the program;
	// a bonding-curve address narrows the walk to one token.
	Address  string
	PageSize int
	MaxPages int // zero walks until the range is exhausted
	Logger   *logrus.Entry
}

// NewBackfiller creates a new historical data backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	address := opts.Address
	if address == "" {
		address = pumpfun.ProgramID
	}
	dec := opts.Decoder
	if dec == nil {
		dec = decoder.New(decoder.Options{Logger: opts.Logger})
	}

	return &Backfiller{
		pool:      opts.Pool,
		decoder:   dec,
		publisher: opts.Publisher,
		address:   address,
		pageSize:  pageSize,
		maxPages:  opts.MaxPages,
		logger:    logging.OrDefault(opts.Logger, "ingestion.backfill"),
	}
}

// BackfillResult contains statistics from a backfill operation.
type BackfillResult struct {
	SignaturesScanned int
	MintsPublished    int
	TradesPublished   int
	FailedSkipped     int
	Unrecognized      int
	Errors            int
	Duration          time.Duration
}

// BackfillSince backfills from a given timestamp until now.
func (b *Backfiller) BackfillSince(ctx context.Context, since time.Time) (*BackfillResult, error) {
	return b.BackfillRange(ctx, since, time.Now())
}

// BackfillRange publishes every decodable transaction whose block time lies
// in [from, to], oldest first.
func (b *Backfiller) BackfillRange(ctx context.Context, from, to time.Time) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	b.logger.WithFields(logrus.Fields{
		"address": b.address,
		"from":    from.Format(time.RFC3339),
		"to":      to.Format(time.RFC3339),
	}).Info("starting backfill")

	sigs, err := b.collect(ctx, from, to)
	if err != nil {
		return result, err
	}
	result.SignaturesScanned = len(sigs)

	for _, sig := range sigs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if sig.Err != nil {
			result.FailedSkipped++
			continue
		}
		b.replay(ctx, sig, result)
	}

	result.Duration = time.Since(start)
	b.logger.WithFields(logrus.Fields{
		"signatures":   result.SignaturesScanned,
		"mints":        result.MintsPublished,
		"trades":       result.TradesPublished,
		"failed":       result.FailedSkipped,
		"unrecognized": result.Unrecognized,
		"errors":       result.Errors,
		"duration":     result.Duration,
	}).Info("backfill complete")

	return result, nil
}

// collect pages newest to oldest and returns the window in chronological
// order. Within one slot the node's order is kept reversed as well.
func (b *Backfiller) collect(ctx context.Context, from, to time.Time) ([]solana.SignatureInfo, error) {
	var (
		window []solana.SignatureInfo
		before string
	)
	for page := 0; b.maxPages == 0 || page < b.maxPages; page++ {
		items, err := rpcpool.Signatures(ctx, b.pool, b.address, &solana.SignaturesOpts{
			Before: before,
			Limit:  b.pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch signatures before %q: %w", before, err)
		}
		if len(items) == 0 {
			break
		}

		reachedStart := false
		for _, s := range items {
			if s.BlockTime == nil {
				continue
			}
			t := time.Unix(*s.BlockTime, 0)
			if t.After(to) {
				continue
			}
			if t.Before(from) {
				reachedStart = true
				break
			}
			window = append(window, s)
		}
		if reachedStart || len(items) < b.pageSize {
			break
		}
		before = items[len(items)-1].Signature
	}

	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	sort.SliceStable(window, func(i, j int) bool { return window[i].Slot < window[j].Slot })
	return window, nil
}

func (b *Backfiller) replay(ctx context.Context, sig solana.SignatureInfo, result *BackfillResult) {
	log := b.logger.WithField("signature", sig.Signature)

	tx, err := rpcpool.Transaction(ctx, b.pool, sig.Signature)
	if err != nil {
		result.Errors++
		log.WithError(err).Warn("transaction fetch failed")
		return
	}

	res, err := b.decoder.Decode(tx)
	if err != nil {
		var sendErr *decoder.SendError
		if errors.As(err, &sendErr) {
			result.FailedSkipped++
			return
		}
		result.Errors++
		log.WithError(err).Warn("decode failed")
		return
	}
	if res == nil {
		result.Unrecognized++
		return
	}

	if err := publishDecoded(ctx, b.publisher, res); err != nil {
		result.Errors++
		log.WithError(err).WithField("source", sourceBackfill).Warn("publish failed")
		return
	}
	if res.Mint != nil {
		result.MintsPublished++
		if res.Mint.InitialBuy != nil {
			result.TradesPublished++
		}
	}
	result.TradesPublished += len(res.Trades)
}
