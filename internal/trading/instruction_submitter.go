package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/observability"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/solana"
)

const (
	defaultMaxAttempts  = 3
	defaultAttemptDelay = 300 * time.Millisecond
)

// createIdempotent is the associated token program's CreateIdempotent tag.
const createIdempotent = 1

// InstructionSubmitterOptions configures an InstructionSubmitter.
type InstructionSubmitterOptions struct {
	Pool         *rpcpool.Pool
	Wallet       *Wallet
	MaxAttempts  int
	AttemptDelay time.Duration
	// Simulate runs simulateTransaction before each send.
	Simulate bool
	// Compute budget; zero leaves the runtime defaults.
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64 // micro-lamports per unit
	Logger           *logrus.Entry
}

// InstructionSubmitter assembles pump.fun buy/sell instructions into a v0
// transaction and sends it, refetching the blockhash on every attempt.
type InstructionSubmitter struct {
	pool         *rpcpool.Pool
	wallet       *Wallet
	maxAttempts  int
	attemptDelay time.Duration
	simulate     bool
	unitLimit    uint32
	unitPrice    uint64
	logger       *logrus.Entry
}

// NewInstructionSubmitter creates an InstructionSubmitter.
func NewInstructionSubmitter(opts InstructionSubmitterOptions) *InstructionSubmitter {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.AttemptDelay < 0 {
		opts.AttemptDelay = 0
	} else if opts.AttemptDelay == 0 {
		opts.AttemptDelay = defaultAttemptDelay
	}
	return &InstructionSubmitter{
		pool:         opts.Pool,
		wallet:       opts.Wallet,
		maxAttempts:  opts.MaxAttempts,
		attemptDelay: opts.AttemptDelay,
		simulate:     opts.Simulate,
		unitLimit:    opts.ComputeUnitLimit,
		unitPrice:    opts.ComputeUnitPrice,
		logger:       logging.OrDefault(opts.Logger, "trading.instruction"),
	}
}

// Submit implements Submitter. Fatal errors abort at once; transient ones
// are retried with a fresh blockhash until the attempts run out.
func (s *InstructionSubmitter) Submit(ctx context.Context, order Order, op *domain.TradingOperation) (string, error) {
	ixs, err := s.instructions(order)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			observability.RecordBlockhashRetry()
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			case <-time.After(s.attemptDelay):
			}
		}
		op.Attempt = attempt

		sig, err := s.attempt(ctx, ixs, op)
		if err == nil {
			return sig, nil
		}
		lastErr = classify(err)
		log := s.logger.WithFields(logrus.Fields{"op": op.ID, "attempt": attempt, "blockhash": op.LastBlockhash})
		if !errors.Is(lastErr, ErrTransient) {
			log.WithError(lastErr).Warn("send failed, not retrying")
			return "", lastErr
		}
		log.WithError(lastErr).Info("send failed, retrying with fresh blockhash")
	}
	return "", fmt.Errorf("after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *InstructionSubmitter) attempt(ctx context.Context, ixs []solanago.Instruction, op *domain.TradingOperation) (string, error) {
	bh, err := rpcpool.LatestBlockhash(ctx, s.pool)
	if err != nil {
		return "", err
	}
	op.LastBlockhash = bh.Blockhash

	tx, err := s.build(ixs, bh.Blockhash)
	if err != nil {
		return "", err
	}
	signed, err := s.wallet.sign(tx)
	if err != nil {
		return "", err
	}

	if s.simulate {
		sim, err := rpcpool.Simulate(ctx, s.pool, signed)
		if err != nil {
			return "", err
		}
		if sim.Err != nil {
			return "", decoder.ParseSendError(sim.Logs, sim.Err)
		}
	}

	return rpcpool.Send(ctx, s.pool, signed, solana.SendOptions{PreflightCommitment: solana.CommitmentConfirmed})
}

// build assembles a v0 message paid by the wallet.
func (s *InstructionSubmitter) build(ixs []solanago.Instruction, blockhash string) (*solanago.Transaction, error) {
	hash, err := solanago.HashFromBase58(blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}
	tx, err := solanago.NewTransaction(ixs, hash, solanago.TransactionPayer(s.wallet.publicKey()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	tx.Message.SetVersion(solanago.MessageVersionV0)
	return tx, nil
}

func (s *InstructionSubmitter) instructions(order Order) ([]solanago.Instruction, error) {
	var ixs []solanago.Instruction
	if s.unitLimit > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitLimitInstruction(s.unitLimit).Build())
	}
	if s.unitPrice > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitPriceInstruction(s.unitPrice).Build())
	}

	accts, err := tradeAccounts(s.wallet.PublicKey(), order.Mint)
	if err != nil {
		return nil, err
	}

	switch order.Kind {
	case domain.OperationBuy:
		ixs = append(ixs, createATAIdempotent(accts), &solanago.GenericInstruction{
			ProgID:    accts.program,
			DataBytes: pumpfun.BuyInstructionData(order.TokenAmount, order.SolLimit),
			AccountValues: solanago.AccountMetaSlice{
				solanago.Meta(accts.global),
				solanago.Meta(accts.feeRecipient).WRITE(),
				solanago.Meta(accts.mint),
				solanago.Meta(accts.curve).WRITE(),
				solanago.Meta(accts.curveATA).WRITE(),
				solanago.Meta(accts.userATA).WRITE(),
				solanago.Meta(accts.user).WRITE().SIGNER(),
				solanago.Meta(solanago.SystemProgramID),
				solanago.Meta(solanago.TokenProgramID),
				solanago.Meta(solanago.SysVarRentPubkey),
				solanago.Meta(accts.eventAuthority),
				solanago.Meta(accts.program),
			},
		})
	case domain.OperationSell:
		ixs = append(ixs, &solanago.GenericInstruction{
			ProgID:    accts.program,
			DataBytes: pumpfun.SellInstructionData(order.TokenAmount, order.SolLimit),
			AccountValues: solanago.AccountMetaSlice{
				solanago.Meta(accts.global),
				solanago.Meta(accts.feeRecipient).WRITE(),
				solanago.Meta(accts.mint),
				solanago.Meta(accts.curve).WRITE(),
				solanago.Meta(accts.curveATA).WRITE(),
				solanago.Meta(accts.userATA).WRITE(),
				solanago.Meta(accts.user).WRITE().SIGNER(),
				solanago.Meta(solanago.SystemProgramID),
				solanago.Meta(solanago.SPLAssociatedTokenAccountProgramID),
				solanago.Meta(solanago.TokenProgramID),
				solanago.Meta(accts.eventAuthority),
				solanago.Meta(accts.program),
			},
		})
	default:
		return nil, fmt.Errorf("trading: unknown order kind %q", order.Kind)
	}
	return ixs, nil
}

type accounts struct {
	program        solanago.PublicKey
	global         solanago.PublicKey
	feeRecipient   solanago.PublicKey
	eventAuthority solanago.PublicKey
	mint           solanago.PublicKey
	curve          solanago.PublicKey
	curveATA       solanago.PublicKey
	user           solanago.PublicKey
	userATA        solanago.PublicKey
}

func tradeAccounts(owner, mint string) (accounts, error) {
	curveAddr, err := pumpfun.BondingCurveAddress(mint)
	if err != nil {
		return accounts{}, err
	}
	curveATA, err := pumpfun.AssociatedTokenAddress(curveAddr, mint)
	if err != nil {
		return accounts{}, err
	}
	userATA, err := pumpfun.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return accounts{}, err
	}

	keys := []string{
		pumpfun.ProgramID, pumpfun.GlobalAccount, pumpfun.FeeRecipient, pumpfun.EventAuthority,
		mint, curveAddr, curveATA, owner, userATA,
	}
	parsed := make([]solanago.PublicKey, len(keys))
	for i, k := range keys {
		pk, err := solanago.PublicKeyFromBase58(k)
		if err != nil {
			return accounts{}, fmt.Errorf("parse key %q: %w", k, err)
		}
		parsed[i] = pk
	}
	return accounts{
		program:        parsed[0],
		global:         parsed[1],
		feeRecipient:   parsed[2],
		eventAuthority: parsed[3],
		mint:           parsed[4],
		curve:          parsed[5],
		curveATA:       parsed[6],
		user:           parsed[7],
		userATA:        parsed[8],
	}, nil
}

// createATAIdempotent creates the user's token account unless it exists.
func createATAIdempotent(a accounts) solanago.Instruction {
	return &solanago.GenericInstruction{
		ProgID:    solanago.SPLAssociatedTokenAccountProgramID,
		DataBytes: []byte{createIdempotent},
		AccountValues: solanago.AccountMetaSlice{
			solanago.Meta(a.user).WRITE().SIGNER(),
			solanago.Meta(a.userATA).WRITE(),
			solanago.Meta(a.user),
			solanago.Meta(a.mint),
			solanago.Meta(solanago.SystemProgramID),
			solanago.Meta(solanago.TokenProgramID),
		},
	}
}
