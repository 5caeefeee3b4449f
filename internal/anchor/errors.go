package anchor

import (
	"fmt"
	"time"
)

// ConfigurationError means a required signing credential is missing. Fatal,
// never retried.
type ConfigurationError struct {
	Role    SignerRole
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("anchor configuration error for signer %q: %s", e.Role, e.Message)
}

// SubmissionError means the network rejected the broadcast. No internal
// retry: broadcasting is a side effect and blind retries risk
// double-submission and sequence conflicts.
type SubmissionError struct {
	Message string
	Cause   error
}

func (e *SubmissionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("anchor submission rejected: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("anchor submission rejected: %s", e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// ConfirmationTimeoutError means the broadcast succeeded but no confirmation
// was observed: either the wait budget ran out or the confirmation lookup
// itself failed. The outcome is ambiguous: the transaction may still land.
// TxID lets callers verify before ever resubmitting.
type ConfirmationTimeoutError struct {
	TxID   string
	Waited time.Duration
	Cause  error
}

func (e *ConfirmationTimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("confirmation status unknown for tx %s after %s: %v (may still confirm)", e.TxID, e.Waited, e.Cause)
	}
	return fmt.Sprintf("no confirmation for tx %s after %s (status unknown, may still confirm)", e.TxID, e.Waited)
}

func (e *ConfirmationTimeoutError) Unwrap() error {
	return e.Cause
}

// VerificationTimeoutError means the transaction was not visible after the
// fixed retry budget. It means "status unknown", not "does not exist".
type VerificationTimeoutError struct {
	TxID     string
	Attempts int
}

func (e *VerificationTimeoutError) Error() string {
	return fmt.Sprintf("tx %s not visible after %d lookup attempts (status unknown)", e.TxID, e.Attempts)
}

// RPCError is a structured error returned by the chain's JSON-RPC endpoint.
// Chain rejections are permanent and are not retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain rpc error %d: %s", e.Code, e.Message)
}
