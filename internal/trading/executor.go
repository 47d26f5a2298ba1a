// Package trading executes buys and sells against the bonding curve and
// tracks each attempt through a small state machine.
package trading

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/codec"
	"pumpfun-engine/internal/curve"
	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/observability"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/solana"
)

// Defaults for Config.
const (
	DefaultSlippageBps     = 500
	DefaultConfirmInterval = 2 * time.Second
	DefaultConfirmTimeout  = 60 * time.Second
)

// sellClampPercent is how far a sell request may exceed the on-chain balance
// and still be clamped to it.
const sellClampPercent = 10

// Portfolio gates spending and records holdings.
type Portfolio interface {
	CanBuy(ctx context.Context, token string, lamports uint64) error
	RecordBuy(ctx context.Context, token string, tokens, lamports uint64)
	RecordSell(ctx context.Context, token string, tokens, lamports uint64)
	Holding(ctx context.Context, token string) uint64
	SyncHolding(ctx context.Context, token string, tokens uint64)
}

// Config tunes an Executor.
type Config struct {
	SlippageBps     uint16        `yaml:"slippage_bps"`
	ConfirmInterval time.Duration `yaml:"confirm_interval"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout"`
}

func (c Config) withDefaults() Config {
	if c.SlippageBps == 0 {
		c.SlippageBps = DefaultSlippageBps
	}
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = DefaultConfirmInterval
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	return c
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Config    Config
	Pool      *rpcpool.Pool
	Submitter Submitter
	Portfolio Portfolio
	Decoder   *decoder.Decoder
	Owner     string // wallet public key
	Logger    *logrus.Entry
	Now       func() time.Time
}

// Executor runs buy and sell operations. At most one buy and one sell are in
// flight at any time; concurrent calls fail fast.
type Executor struct {
	cfg       Config
	pool      *rpcpool.Pool
	submitter Submitter
	portfolio Portfolio
	decoder   *decoder.Decoder
	owner     string
	logger    *logrus.Entry
	now       func() time.Time

	buys  *permit
	sells *permit
}

// NewExecutor creates an Executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	logger := logging.OrDefault(opts.Logger, "trading")
	dec := opts.Decoder
	if dec == nil {
		dec = decoder.New(decoder.Options{Logger: logger})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		cfg:       opts.Config.withDefaults(),
		pool:      opts.Pool,
		submitter: opts.Submitter,
		portfolio: opts.Portfolio,
		decoder:   dec,
		owner:     opts.Owner,
		logger:    logger,
		now:       now,
		buys:      newPermit(),
		sells:     newPermit(),
	}
}

// BuysInFlight returns the number of running buys.
func (e *Executor) BuysInFlight() int { return e.buys.InFlight() }

// SellsInFlight returns the number of running sells.
func (e *Executor) SellsInFlight() int { return e.sells.InFlight() }

// Buy spends solAmount SOL on token.
func (e *Executor) Buy(ctx context.Context, token string, solAmount decimal.Decimal) domain.TradeResult {
	lamports := domain.BaseUnits(solAmount, domain.SolDecimals)
	op := newOperation(domain.OperationBuy, token, lamports, e.cfg.SlippageBps, e.now(), e.logger)

	if !solAmount.IsPositive() || lamports == 0 {
		return e.finish(op, domain.TradeResult{}, ErrInvalidAmount)
	}
	if !e.buys.tryAcquire() {
		return e.finish(op, domain.TradeResult{}, ErrBuyInFlight)
	}
	defer e.buys.release()
	observability.SetInFlight(string(domain.OperationBuy), int64(e.buys.InFlight()))
	defer observability.SetInFlight(string(domain.OperationBuy), 0)

	if err := e.portfolio.CanBuy(ctx, token, lamports); err != nil {
		return e.finish(op, domain.TradeResult{}, err)
	}

	curveAddr, state, err := e.curveState(ctx, token)
	if err != nil {
		return e.finish(op, domain.TradeResult{}, err)
	}

	// The program charges its fee on top of the curve cost.
	net := curve.NetOfFee(lamports, pumpfun.FeeBasisPoints)
	tokens, err := curve.BuyTokensForSol(state, net)
	if err != nil {
		return e.finish(op, domain.TradeResult{}, err)
	}

	order := Order{
		Kind:         domain.OperationBuy,
		Mint:         token,
		BondingCurve: curveAddr,
		Owner:        e.owner,
		SolAmount:    lamports,
		TokenAmount:  tokens,
		SolLimit:     curve.WithSlippage(lamports, uint64(e.cfg.SlippageBps), true),
		SlippageBps:  e.cfg.SlippageBps,
	}
	estimate := domain.TradeResult{
		SolAmount:   domain.Lamports(lamports),
		TokenAmount: domain.Scaled(tokens, domain.PumpTokenDecimals),
	}

	res, trade, err := e.execute(ctx, op, order, estimate)
	if err != nil {
		return e.finish(op, res, err)
	}

	bought := domain.BaseUnits(res.TokenAmount, domain.PumpTokenDecimals)
	spent := domain.BaseUnits(res.SolAmount, domain.SolDecimals)
	if trade != nil {
		spent = domain.BaseUnits(trade.SolAmount.Add(trade.FeeAmount), domain.SolDecimals)
	}
	e.portfolio.RecordBuy(ctx, token, bought, spent)
	return e.finish(op, res, nil)
}

// Sell sells tokenAmount display tokens of token. The holding is first
// re-synced with the chain; a request at most 10% above the balance is
// clamped to it, anything larger fails without submitting.
func (e *Executor) Sell(ctx context.Context, token string, tokenAmount decimal.Decimal) domain.TradeResult {
	tokens := domain.BaseUnits(tokenAmount, domain.PumpTokenDecimals)
	op := newOperation(domain.OperationSell, token, tokens, e.cfg.SlippageBps, e.now(), e.logger)

	if !tokenAmount.IsPositive() || tokens == 0 {
		return e.finish(op, domain.TradeResult{}, ErrInvalidAmount)
	}
	if !e.sells.tryAcquire() {
		return e.finish(op, domain.TradeResult{}, ErrSellInFlight)
	}
	defer e.sells.release()
	observability.SetInFlight(string(domain.OperationSell), int64(e.sells.InFlight()))
	defer observability.SetInFlight(string(domain.OperationSell), 0)

	held, err := e.syncHolding(ctx, token)
	if err != nil {
		return e.finish(op, domain.TradeResult{}, err)
	}
	amount, err := clampSell(tokens, held)
	if err != nil {
		return e.finish(op, domain.TradeResult{}, err)
	}
	if amount != tokens {
		op.logger.WithFields(logrus.Fields{"requested": tokens, "held": held}).Warn("sell clamped to balance")
		op.AmountRequested = amount
	}

	curveAddr, state, err := e.curveState(ctx, token)
	if err != nil {
		return e.finish(op, domain.TradeResult{}, err)
	}
	sol, err := curve.SolForSellTokens(state, amount, pumpfun.FeeBasisPoints)
	if err != nil {
		return e.finish(op, domain.TradeResult{}, err)
	}

	order := Order{
		Kind:         domain.OperationSell,
		Mint:         token,
		BondingCurve: curveAddr,
		Owner:        e.owner,
		TokenAmount:  amount,
		SolLimit:     curve.WithSlippage(sol, uint64(e.cfg.SlippageBps), false),
		SlippageBps:  e.cfg.SlippageBps,
	}
	estimate := domain.TradeResult{
		SolAmount:   domain.Lamports(sol),
		TokenAmount: domain.Scaled(amount, domain.PumpTokenDecimals),
	}

	res, _, err := e.execute(ctx, op, order, estimate)
	if err != nil {
		return e.finish(op, res, err)
	}
	e.portfolio.RecordSell(ctx, token,
		domain.BaseUnits(res.TokenAmount, domain.PumpTokenDecimals),
		domain.BaseUnits(res.SolAmount, domain.SolDecimals))
	return e.finish(op, res, nil)
}

// clampSell applies the sell tolerance to a request against the balance.
func clampSell(requested, held uint64) (uint64, error) {
	if requested <= held {
		return requested, nil
	}
	if held > 0 && requested*100 < held*(100+sellClampPercent) {
		return held, nil
	}
	return 0, fmt.Errorf("%w: requested %d, held %d", ErrInsufficientBalance, requested, held)
}

// execute submits the order, waits for confirmation and decodes the result.
// A confirmed transaction that cannot be decoded keeps the estimate and
// sets a warning.
func (e *Executor) execute(ctx context.Context, op *operation, order Order, estimate domain.TradeResult) (domain.TradeResult, *domain.TradeEvent, error) {
	res := estimate

	if !op.transition(domain.StateSubmitting) {
		return res, nil, errors.New(op.Outcome)
	}
	sig, err := e.submitter.Submit(ctx, order, &op.TradingOperation)
	if err != nil {
		return res, nil, err
	}
	op.Signature = sig
	res.Signature = sig

	if !op.transition(domain.StateAwaitingConfirmation) {
		return res, nil, errors.New(op.Outcome)
	}
	tx, err := e.awaitTransaction(ctx, sig)
	if err != nil {
		return res, nil, err
	}

	if !op.transition(domain.StateDecoding) {
		return res, nil, errors.New(op.Outcome)
	}
	decoded, err := e.decoder.Decode(tx)
	var sendErr *decoder.SendError
	if errors.As(err, &sendErr) {
		return res, nil, classify(err)
	}

	trade := ownTrade(decoded, order.Kind, e.owner)
	switch {
	case err != nil:
		res.Warning = "decode failed, using estimated amounts: " + err.Error()
	case trade == nil:
		res.Warning = "no trade found in confirmed transaction, using estimated amounts"
	default:
		res.SolAmount = trade.SolAmount
		res.TokenAmount = trade.TokenAmount
	}
	if res.Warning != "" {
		op.logger.WithField("signature", sig).Warn(res.Warning)
	}

	op.transition(domain.StateDone)
	return res, trade, nil
}

// ownTrade returns the first trade in d made by owner in the direction of
// kind.
func ownTrade(d *decoder.Decoded, kind domain.OperationKind, owner string) *domain.TradeEvent {
	if d == nil {
		return nil
	}
	candidates := d.Trades
	if d.Mint != nil && d.Mint.InitialBuy != nil {
		candidates = append([]*domain.TradeEvent{d.Mint.InitialBuy}, candidates...)
	}
	for _, trade := range candidates {
		if trade.IsBuy() == (kind == domain.OperationBuy) && (owner == "" || trade.TraderAddress == owner) {
			return trade
		}
	}
	return nil
}

// awaitTransaction polls for the confirmed transaction at a fixed interval
// until ConfirmTimeout elapses.
func (e *Executor) awaitTransaction(ctx context.Context, sig string) (*solana.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	poll := e.pool.With(func(c *rpcpool.Config) {
		c.MaxRetries = 1
		if c.Timeout > e.cfg.ConfirmInterval {
			c.Timeout = e.cfg.ConfirmInterval
		}
	})
	ticker := time.NewTicker(e.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		tx, err := rpcpool.Transaction(ctx, poll, sig)
		if err == nil {
			return tx, nil
		}
		if !rpcpool.AllEmpty(err) {
			e.logger.WithField("signature", sig).WithError(err).Debug("confirmation poll failed")
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s after %s", ErrNotConfirmed, sig, e.cfg.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}

// curveState fetches and decodes the token's bonding curve.
func (e *Executor) curveState(ctx context.Context, token string) (string, domain.ReserveState, error) {
	addr, err := pumpfun.BondingCurveAddress(token)
	if err != nil {
		return "", domain.ReserveState{}, err
	}
	info, err := rpcpool.AccountInfo(ctx, e.pool, addr)
	if err != nil {
		if rpcpool.AllEmpty(err) {
			return "", domain.ReserveState{}, fmt.Errorf("%w: %s", ErrCurveNotFound, addr)
		}
		return "", domain.ReserveState{}, wrap(ErrTransient, err)
	}
	blob, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return "", domain.ReserveState{}, fmt.Errorf("decode curve account %s: %w", addr, err)
	}
	state, ok := codec.DecodeBondingCurve(blob)
	if !ok {
		return "", domain.ReserveState{}, fmt.Errorf("trading: malformed bonding curve account %s", addr)
	}
	if state.Complete {
		return "", domain.ReserveState{}, ErrCurveComplete
	}
	return addr, state, nil
}

// syncHolding reads the wallet's token account and updates the portfolio.
func (e *Executor) syncHolding(ctx context.Context, token string) (uint64, error) {
	ata, err := pumpfun.AssociatedTokenAddress(e.owner, token)
	if err != nil {
		return 0, err
	}
	bal, err := rpcpool.TokenBalance(ctx, e.pool, ata)
	if err != nil {
		return 0, wrap(ErrTransient, err)
	}
	held, err := strconv.ParseUint(bal.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token balance %q: %w", bal.Amount, err)
	}
	e.portfolio.SyncHolding(ctx, token, held)
	return held, nil
}

// finish turns the operation outcome into a TradeResult and records it.
func (e *Executor) finish(op *operation, res domain.TradeResult, err error) domain.TradeResult {
	outcome := "success"
	if err != nil {
		op.fail(err)
		res.Error = err
		outcome = outcomeLabel(err)
	}
	res.Success = err == nil
	if res.Signature == "" {
		res.Signature = op.Signature
	}
	res.Operation = op.TradingOperation
	if op.Outcome == "" {
		op.Outcome = outcome
		res.Operation.Outcome = outcome
	}

	dur := e.now().Sub(op.StartedAt)
	observability.RecordTrade(string(op.Kind), outcome, dur.Seconds())

	log := op.logger.WithFields(logrus.Fields{
		"state":     op.State,
		"signature": res.Signature,
		"attempts":  op.Attempt,
		"duration":  dur,
	})
	if err != nil {
		log.WithError(err).Warn("trade failed")
	} else {
		log.WithFields(logrus.Fields{"sol": res.SolAmount.String(), "tokens": res.TokenAmount.String()}).Info("trade done")
	}
	return res
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrBuyInFlight), errors.Is(err, ErrSellInFlight):
		return "in_flight"
	case errors.Is(err, ErrCurveComplete):
		return "curve_complete"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
