package ingestion

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/observability"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/solana"
)

// NodeMode selects the node subscription.
type NodeMode string

const (
	// NodeModeLogs subscribes to program logs and fetches each transaction.
	NodeModeLogs NodeMode = "logs"
	// NodeModeBlocks subscribes to full blocks mentioning the program.
	NodeModeBlocks NodeMode = "blocks"
)

// Metric source labels.
const (
	sourceNodeLogs   = "node_logs"
	sourceNodeBlocks = "node_blocks"
)

// NodeListenerOptions configures a NodeListener.
type NodeListenerOptions struct {
	WS        solana.WSClient
	Pool      *rpcpool.Pool // required in logs mode
	Decoder   *decoder.Decoder
	Publisher Publisher
	Mode      NodeMode
	ProgramID string
	Logger    *logrus.Entry
}

// NodeListener streams program activity from a node and publishes decoded
// events. Notifications are handled one at a time in arrival order.
type NodeListener struct {
	ws        solana.WSClient
	pool      *rpcpool.Pool
	decoder   *decoder.Decoder
	publisher Publisher
	mode      NodeMode
	programID string
	logger    *logrus.Entry
}

// NewNodeListener creates a NodeListener.
func NewNodeListener(opts NodeListenerOptions) *NodeListener {
	if opts.Mode == "" {
		opts.Mode = NodeModeLogs
	}
	if opts.ProgramID == "" {
		opts.ProgramID = pumpfun.ProgramID
	}
	dec := opts.Decoder
	if dec == nil {
		dec = decoder.New(decoder.Options{ProgramID: opts.ProgramID, Logger: opts.Logger})
	}
	return &NodeListener{
		ws:        opts.WS,
		pool:      opts.Pool,
		decoder:   dec,
		publisher: opts.Publisher,
		mode:      opts.Mode,
		programID: opts.ProgramID,
		logger:    logging.OrDefault(opts.Logger, "ingestion.node"),
	}
}

// Run blocks until ctx is done or the subscription ends.
func (l *NodeListener) Run(ctx context.Context) error {
	if l.mode == NodeModeBlocks {
		return l.runBlocks(ctx)
	}
	return l.runLogs(ctx)
}

func (l *NodeListener) runLogs(ctx context.Context) error {
	if l.pool == nil {
		return errors.New("ingestion: logs mode needs an RPC pool")
	}
	ch, err := l.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{l.programID}})
	if err != nil {
		return err
	}
	l.logger.WithField("program", l.programID).Info("subscribed to program logs")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return errors.New("ingestion: logs subscription closed")
			}
			l.handleLogs(ctx, n)
		}
	}
}

func (l *NodeListener) handleLogs(ctx context.Context, n solana.LogNotification) {
	observability.RecordNotification(sourceNodeLogs)
	observability.UpdateHighestSlot(n.Slot)

	if n.Err != nil || !hasTradeOrCreate(n.Logs) {
		return
	}

	tx, err := rpcpool.Transaction(ctx, l.pool, n.Signature)
	if err != nil {
		observability.RecordEventError(sourceNodeLogs, "fetch")
		l.logger.WithFields(logrus.Fields{
			"signature": n.Signature,
			"slot":      n.Slot,
			"not_found": rpcpool.AllEmpty(err),
		}).WithError(err).Warn("transaction fetch failed, dropping")
		return
	}
	l.process(ctx, sourceNodeLogs, tx)
}

func (l *NodeListener) runBlocks(ctx context.Context) error {
	ch, err := l.ws.SubscribeBlocks(ctx, solana.BlockFilter{MentionsAccountOrProgram: l.programID})
	if err != nil {
		return err
	}
	l.logger.WithField("program", l.programID).Info("subscribed to blocks")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return errors.New("ingestion: block subscription closed")
			}
			l.handleBlock(ctx, n)
		}
	}
}

func (l *NodeListener) handleBlock(ctx context.Context, n solana.BlockNotification) {
	observability.RecordNotification(sourceNodeBlocks)
	observability.UpdateHighestSlot(n.Slot)

	if n.Err != nil || n.Block == nil {
		return
	}
	for i := range n.Block.Transactions {
		tx := &n.Block.Transactions[i]
		if tx.Failed() || !hasTradeOrCreate(tx.Logs()) {
			continue
		}
		l.process(ctx, sourceNodeBlocks, tx)
	}
}

// process decodes tx and publishes the result. Send errors are expected for
// other wallets' failed trades and are only counted.
func (l *NodeListener) process(ctx context.Context, source string, tx *solana.Transaction) {
	res, err := l.decoder.Decode(tx)
	if err != nil {
		var sendErr *decoder.SendError
		if errors.As(err, &sendErr) {
			observability.RecordEventError(source, "send_error")
			l.logger.WithField("signature", tx.Signature).WithError(err).Debug("failed transaction")
			return
		}
		observability.RecordEventError(source, "decode")
		l.logger.WithField("signature", tx.Signature).WithError(err).Error("decode failed")
		return
	}
	if err := publishDecoded(ctx, l.publisher, res); err != nil {
		observability.RecordEventError(source, "publish")
		l.logger.WithField("signature", tx.Signature).WithError(err).Warn("publish failed")
	}
}

// hasTradeOrCreate is a cheap pre-filter before fetching a transaction.
func hasTradeOrCreate(logs []string) bool {
	for _, line := range logs {
		if !strings.HasPrefix(line, pumpfun.InstructionPrefix) {
			continue
		}
		switch strings.TrimPrefix(line, pumpfun.InstructionPrefix) {
		case pumpfun.InstructionCreate, pumpfun.InstructionBuy, pumpfun.InstructionSell:
			return true
		}
	}
	return false
}
