package anchor

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

type ReceiptStatus string

const StatusConfirmed ReceiptStatus = "CONFIRMED"

// Receipt is the result of a confirmed anchor transaction.
type Receipt struct {
	TxID          string        `json:"txId"`
	SignerAddress string        `json:"signerAddress"`
	NetworkName   string        `json:"networkName"`
	Status        ReceiptStatus `json:"status"`
}

// SleepFunc waits for d or until the context is canceled. Tests inject an
// instant implementation so retries never touch wall-clock timers.
type SleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Options struct {
	NetworkName     string
	ConfirmTimeout  time.Duration // total budget waiting for one confirmation
	ConfirmInterval time.Duration // receipt poll spacing
	VerifyAttempts  int           // fixed lookup budget, transient not-found only
	VerifyDelay     time.Duration // fixed delay between lookups
	Sleep           SleepFunc
	Logger          *slog.Logger
}

// Client is the boundary to the external chain. Submit and Call broadcast
// exactly once and block until one confirmation; only Verify retries, and
// only on transient not-found.
type Client struct {
	rpc     RPC
	secrets SecretsProvider
	opts    Options
}

func NewClient(rpc RPC, secrets SecretsProvider, opts Options) *Client {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 90 * time.Second
	}
	if opts.ConfirmInterval <= 0 {
		opts.ConfirmInterval = 2 * time.Second
	}
	if opts.VerifyAttempts <= 0 {
		opts.VerifyAttempts = 5
	}
	if opts.VerifyDelay <= 0 {
		opts.VerifyDelay = 2 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = realSleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{rpc: rpc, secrets: secrets, opts: opts}
}

// Submit anchors a payload as the data of a zero-value self-addressed
// transaction signed by the payments-role custodial key. Single attempt.
func (c *Client) Submit(ctx context.Context, payload []byte) (*Receipt, error) {
	return c.SubmitAs(ctx, RolePayments, payload)
}

// SubmitAs is Submit under an explicit signer role; contract anchoring uses
// the contract role.
func (c *Client) SubmitAs(ctx context.Context, role SignerRole, payload []byte) (*Receipt, error) {
	cred, err := c.secrets.Resolve(role)
	if err != nil {
		return nil, err
	}

	tx := map[string]interface{}{
		"from":  cred.Address,
		"to":    cred.Address,
		"value": "0x0",
		"data":  "0x" + hex.EncodeToString(payload),
	}

	return c.sendAndConfirm(ctx, cred, tx)
}

// Call invokes a state-mutating contract function under the given role. The
// nonce is set explicitly from the pending-inclusive transaction count so
// calls issued before prior ones confirm do not collide.
func (c *Client) Call(ctx context.Context, contractAddress, signature string, args []interface{}, role SignerRole) (*Receipt, error) {
	cred, err := c.secrets.Resolve(role)
	if err != nil {
		return nil, err
	}

	data, err := EncodeCall(signature, args...)
	if err != nil {
		return nil, &SubmissionError{Message: "failed to encode call data", Cause: err}
	}

	var pendingCount string
	if err := c.rpc.Call(ctx, "eth_getTransactionCount", []interface{}{cred.Address, "pending"}, &pendingCount); err != nil {
		return nil, &SubmissionError{Message: "failed to fetch pending transaction count", Cause: err}
	}
	nonce, err := parseHexUint(pendingCount)
	if err != nil {
		return nil, &SubmissionError{Message: "malformed pending transaction count", Cause: err}
	}

	tx := map[string]interface{}{
		"from":  cred.Address,
		"to":    contractAddress,
		"value": "0x0",
		"data":  "0x" + hex.EncodeToString(data),
		"nonce": fmt.Sprintf("0x%x", nonce),
	}

	return c.sendAndConfirm(ctx, cred, tx)
}

func (c *Client) sendAndConfirm(ctx context.Context, cred Credential, tx map[string]interface{}) (*Receipt, error) {
	var txID string
	if err := c.rpc.Call(ctx, "personal_sendTransaction", []interface{}{tx, cred.Passphrase}, &txID); err != nil {
		return nil, &SubmissionError{Message: "broadcast rejected", Cause: err}
	}

	c.opts.Logger.Info("anchor transaction broadcast",
		"tx", txID, "signer", cred.Address, "network", c.opts.NetworkName)

	if err := c.waitConfirmed(ctx, txID); err != nil {
		return nil, err
	}

	return &Receipt{
		TxID:          txID,
		SignerAddress: cred.Address,
		NetworkName:   c.opts.NetworkName,
		Status:        StatusConfirmed,
	}, nil
}

type txReceipt struct {
	BlockNumber string `json:"blockNumber"`
	Status      string `json:"status"`
}

func (c *Client) waitConfirmed(ctx context.Context, txID string) error {
	attempts := int(c.opts.ConfirmTimeout / c.opts.ConfirmInterval)
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		var receipt *txReceipt
		if err := c.rpc.Call(ctx, "eth_getTransactionReceipt", []interface{}{txID}, &receipt); err != nil {
			// The broadcast already happened, so a failed lookup leaves the
			// outcome unknown, never "not anchored".
			return &ConfirmationTimeoutError{
				TxID:   txID,
				Waited: time.Duration(i) * c.opts.ConfirmInterval,
				Cause:  err,
			}
		}

		if receipt != nil && receipt.BlockNumber != "" {
			if receipt.Status == "0x0" {
				return &SubmissionError{Message: fmt.Sprintf("transaction %s reverted on chain", txID)}
			}
			c.opts.Logger.Info("anchor transaction confirmed", "tx", txID, "block", receipt.BlockNumber)
			return nil
		}

		if err := c.opts.Sleep(ctx, c.opts.ConfirmInterval); err != nil {
			return &ConfirmationTimeoutError{TxID: txID, Waited: time.Duration(i+1) * c.opts.ConfirmInterval}
		}
	}

	return &ConfirmationTimeoutError{TxID: txID, Waited: c.opts.ConfirmTimeout}
}

type chainTx struct {
	Hash  string `json:"hash"`
	Input string `json:"input"`
}

// Verify fetches a previously submitted transaction and returns its decoded
// payload. Transient not-found is retried on a fixed delay; malformed data
// and chain rejections surface immediately. Exhausting the budget means
// "status unknown", not "does not exist".
func (c *Client) Verify(ctx context.Context, txID string) ([]byte, error) {
	for attempt := 1; attempt <= c.opts.VerifyAttempts; attempt++ {
		var tx *chainTx
		if err := c.rpc.Call(ctx, "eth_getTransactionByHash", []interface{}{txID}, &tx); err != nil {
			return nil, fmt.Errorf("transaction lookup failed for %s: %w", txID, err)
		}

		if tx == nil {
			c.opts.Logger.Debug("anchor transaction not yet visible",
				"tx", txID, "attempt", attempt, "max_attempts", c.opts.VerifyAttempts)
			if attempt < c.opts.VerifyAttempts {
				if err := c.opts.Sleep(ctx, c.opts.VerifyDelay); err != nil {
					return nil, &VerificationTimeoutError{TxID: txID, Attempts: attempt}
				}
			}
			continue
		}

		payload, err := hex.DecodeString(strings.TrimPrefix(tx.Input, "0x"))
		if err != nil {
			return nil, fmt.Errorf("malformed payload in tx %s: %w", txID, err)
		}
		return payload, nil
	}

	return nil, &VerificationTimeoutError{TxID: txID, Attempts: c.opts.VerifyAttempts}
}

func parseHexUint(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return 0, fmt.Errorf("empty hex quantity %q", s)
	}
	return strconv.ParseUint(trimmed, 16, 64)
}
