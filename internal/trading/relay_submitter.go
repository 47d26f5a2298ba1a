package trading

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sugawarayuuta/sonnet"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/solana"
)

// DefaultTradeLocalURL is pumpportal's unsigned-transaction endpoint.
const DefaultTradeLocalURL = "https://pumpportal.fun/api/trade-local"

// RelaySubmitterOptions configures a RelaySubmitter.
type RelaySubmitterOptions struct {
	URL            string
	Pool           *rpcpool.Pool
	Wallet         *Wallet
	PriorityFeeSol decimal.Decimal
	HTTPClient     *http.Client
	Logger         *logrus.Entry
}

// RelaySubmitter has the relay build the transaction, signs it locally and
// broadcasts it through the pool.
type RelaySubmitter struct {
	url         string
	pool        *rpcpool.Pool
	wallet      *Wallet
	priorityFee decimal.Decimal
	httpClient  *http.Client
	logger      *logrus.Entry
}

// NewRelaySubmitter creates a RelaySubmitter.
func NewRelaySubmitter(opts RelaySubmitterOptions) *RelaySubmitter {
	if opts.URL == "" {
		opts.URL = DefaultTradeLocalURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RelaySubmitter{
		url:         opts.URL,
		pool:        opts.Pool,
		wallet:      opts.Wallet,
		priorityFee: opts.PriorityFeeSol,
		httpClient:  opts.HTTPClient,
		logger:      logging.OrDefault(opts.Logger, "trading.relay"),
	}
}

type tradeLocalRequest struct {
	PublicKey        string          `json:"publicKey"`
	Action           string          `json:"action"`
	Mint             string          `json:"mint"`
	Amount           decimal.Decimal `json:"amount"`
	DenominatedInSol string          `json:"denominatedInSol"`
	Slippage         decimal.Decimal `json:"slippage"` // percent
	PriorityFee      decimal.Decimal `json:"priorityFee"`
	Pool             string          `json:"pool"`
}

// Submit implements Submitter.
func (s *RelaySubmitter) Submit(ctx context.Context, order Order, op *domain.TradingOperation) (string, error) {
	op.Attempt++

	req := tradeLocalRequest{
		PublicKey:   s.wallet.PublicKey(),
		Action:      string(order.Kind),
		Mint:        order.Mint,
		Slippage:    decimal.New(int64(order.SlippageBps), -2),
		PriorityFee: s.priorityFee,
		Pool:        "pump",
	}
	if order.Kind == domain.OperationBuy {
		req.Amount = domain.Lamports(order.SolAmount)
		req.DenominatedInSol = "true"
	} else {
		req.Amount = domain.Scaled(order.TokenAmount, domain.PumpTokenDecimals)
		req.DenominatedInSol = "false"
	}

	raw, err := s.build(ctx, req)
	if err != nil {
		return "", classify(err)
	}

	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("decode relay transaction: %w", err)
	}
	op.LastBlockhash = tx.Message.RecentBlockhash.String()

	signed, err := s.wallet.sign(tx)
	if err != nil {
		return "", err
	}

	sig, err := rpcpool.Send(ctx, s.pool, signed, solana.SendOptions{PreflightCommitment: solana.CommitmentConfirmed})
	if err != nil {
		return "", classify(err)
	}
	s.logger.WithFields(logrus.Fields{
		"op":        op.ID,
		"signature": sig,
		"blockhash": op.LastBlockhash,
	}).Info("relay transaction sent")
	return sig, nil
}

// build asks the relay for the unsigned transaction bytes.
func (s *RelaySubmitter) build(ctx context.Context, req tradeLocalRequest) ([]byte, error) {
	body, err := sonnet.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("trade-local request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trade-local response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trade-local HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}
