package anchor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeRPC struct {
	methods []string
	handle  func(method string, params []interface{}, result interface{}) error
}

func (f *fakeRPC) Call(_ context.Context, method string, params []interface{}, result interface{}) error {
	f.methods = append(f.methods, method)
	return f.handle(method, params, result)
}

func (f *fakeRPC) count(method string) int {
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

// respond copies a fake result value into the rpc result destination the
// same way the real client decodes JSON. A nil value models a null result.
func respond(t *testing.T, result interface{}, value interface{}) error {
	t.Helper()
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("failed to marshal fake result: %v", err)
	}
	return json.Unmarshal(raw, result)
}

func testSecrets() StaticSecrets {
	return StaticSecrets{
		RolePayments: {Address: "0x1111111111111111111111111111111111111111", Passphrase: "p"},
		RoleContract: {Address: "0x2222222222222222222222222222222222222222", Passphrase: "c"},
	}
}

func instantSleep(sleeps *int) SleepFunc {
	return func(context.Context, time.Duration) error {
		*sleeps++
		return nil
	}
}

func newTestClient(rpc RPC, secrets SecretsProvider, sleeps *int) *Client {
	return NewClient(rpc, secrets, Options{
		NetworkName:     "testnet",
		ConfirmTimeout:  10 * time.Second,
		ConfirmInterval: 2 * time.Second,
		VerifyAttempts:  5,
		VerifyDelay:     2 * time.Second,
		Sleep:           instantSleep(sleeps),
	})
}

func TestSubmitConfirmed(t *testing.T) {
	payload := []byte(`{"root":"abc"}`)
	receipts := 0

	rpc := &fakeRPC{}
	rpc.handle = func(method string, params []interface{}, result interface{}) error {
		switch method {
		case "personal_sendTransaction":
			tx := params[0].(map[string]interface{})
			if tx["from"] != tx["to"] {
				t.Errorf("Expected self-addressed tx, got from=%v to=%v", tx["from"], tx["to"])
			}
			if tx["value"] != "0x0" {
				t.Errorf("Expected zero-value tx, got %v", tx["value"])
			}
			if tx["data"] != "0x"+hex.EncodeToString(payload) {
				t.Errorf("Payload not carried in tx data")
			}
			return respond(t, result, "0xtx1")
		case "eth_getTransactionReceipt":
			receipts++
			if receipts == 1 {
				return respond(t, result, nil) // not yet mined
			}
			return respond(t, result, txReceipt{BlockNumber: "0x10", Status: "0x1"})
		default:
			t.Fatalf("Unexpected rpc method %s", method)
			return nil
		}
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	receipt, err := client.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if receipt.TxID != "0xtx1" {
		t.Errorf("Expected tx id 0xtx1, got %s", receipt.TxID)
	}
	if receipt.Status != StatusConfirmed {
		t.Errorf("Expected status %s, got %s", StatusConfirmed, receipt.Status)
	}
	if receipt.SignerAddress != "0x1111111111111111111111111111111111111111" {
		t.Errorf("Expected payments signer, got %s", receipt.SignerAddress)
	}
	if receipt.NetworkName != "testnet" {
		t.Errorf("Expected network testnet, got %s", receipt.NetworkName)
	}
	if rpc.count("personal_sendTransaction") != 1 {
		t.Errorf("Submit must broadcast exactly once, got %d", rpc.count("personal_sendTransaction"))
	}
}

func TestSubmitMissingCredential(t *testing.T) {
	var sleeps int
	client := newTestClient(&fakeRPC{handle: func(string, []interface{}, interface{}) error {
		t.Fatal("No rpc call expected without a credential")
		return nil
	}}, StaticSecrets{}, &sleeps)

	_, err := client.Submit(context.Background(), []byte("x"))

	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("Expected *ConfigurationError, got %v", err)
	}
	if confErr.Role != RolePayments {
		t.Errorf("Expected payments role in error, got %s", confErr.Role)
	}
}

func TestSubmitBroadcastRejected(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.handle = func(method string, _ []interface{}, _ interface{}) error {
		return &RPCError{Code: -32000, Message: "insufficient funds"}
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	_, err := client.Submit(context.Background(), []byte("x"))

	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Expected *SubmissionError, got %v", err)
	}
	if rpc.count("personal_sendTransaction") != 1 {
		t.Errorf("Rejected broadcast must not be retried, got %d attempts", rpc.count("personal_sendTransaction"))
	}
}

func TestSubmitConfirmationTimeout(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.handle = func(method string, _ []interface{}, result interface{}) error {
		switch method {
		case "personal_sendTransaction":
			return respond(t, result, "0xpending")
		case "eth_getTransactionReceipt":
			return respond(t, result, nil)
		}
		return nil
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	_, err := client.Submit(context.Background(), []byte("x"))

	var timeoutErr *ConfirmationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected *ConfirmationTimeoutError, got %v", err)
	}
	if timeoutErr.TxID != "0xpending" {
		t.Errorf("Timeout must carry the broadcast tx id, got %q", timeoutErr.TxID)
	}
}

func TestSubmitReceiptLookupFailureIsAmbiguous(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.handle = func(method string, _ []interface{}, result interface{}) error {
		switch method {
		case "personal_sendTransaction":
			return respond(t, result, "0xbroadcasted")
		case "eth_getTransactionReceipt":
			return errors.New("connection reset by peer")
		}
		return nil
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	_, err := client.Submit(context.Background(), []byte("x"))

	// After a successful broadcast the outcome is unknown, so a lookup
	// failure must not read as "definitely not anchored".
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		t.Fatalf("Post-broadcast lookup failure misclassified as broadcast rejection: %v", err)
	}

	var timeoutErr *ConfirmationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected *ConfirmationTimeoutError, got %v", err)
	}
	if timeoutErr.TxID != "0xbroadcasted" {
		t.Errorf("Ambiguous outcome must carry the broadcast tx id, got %q", timeoutErr.TxID)
	}
	if timeoutErr.Unwrap() == nil {
		t.Error("Lookup failure should be preserved as the cause")
	}
	if rpc.count("personal_sendTransaction") != 1 {
		t.Errorf("Ambiguous outcome must not trigger a rebroadcast, got %d", rpc.count("personal_sendTransaction"))
	}
}

func TestSubmitRevertedTransaction(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.handle = func(method string, _ []interface{}, result interface{}) error {
		switch method {
		case "personal_sendTransaction":
			return respond(t, result, "0xrev")
		case "eth_getTransactionReceipt":
			return respond(t, result, txReceipt{BlockNumber: "0x5", Status: "0x0"})
		}
		return nil
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	_, err := client.Submit(context.Background(), []byte("x"))

	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("Expected *SubmissionError for reverted tx, got %v", err)
	}
}

func TestVerifyRetriesTransientNotFound(t *testing.T) {
	payload := []byte("anchored payload")
	lookups := 0

	rpc := &fakeRPC{}
	rpc.handle = func(method string, _ []interface{}, result interface{}) error {
		if method != "eth_getTransactionByHash" {
			t.Fatalf("Unexpected rpc method %s", method)
		}
		lookups++
		if lookups <= 2 {
			return respond(t, result, nil)
		}
		return respond(t, result, chainTx{Hash: "0xtx", Input: "0x" + hex.EncodeToString(payload)})
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	got, err := client.Verify(context.Background(), "0xtx")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Expected payload %q, got %q", payload, got)
	}
	if lookups != 3 {
		t.Errorf("Expected exactly 3 lookups, got %d", lookups)
	}
	if sleeps != 2 {
		t.Errorf("Expected 2 retry delays, got %d", sleeps)
	}
}

func TestVerifyExhaustsAttempts(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.handle = func(method string, _ []interface{}, result interface{}) error {
		return respond(t, result, nil)
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	_, err := client.Verify(context.Background(), "0xghost")

	var verErr *VerificationTimeoutError
	if !errors.As(err, &verErr) {
		t.Fatalf("Expected *VerificationTimeoutError, got %v", err)
	}
	if verErr.Attempts != 5 {
		t.Errorf("Expected 5 attempts recorded, got %d", verErr.Attempts)
	}
	if rpc.count("eth_getTransactionByHash") != 5 {
		t.Errorf("Expected exactly 5 lookups, got %d", rpc.count("eth_getTransactionByHash"))
	}
}

func TestVerifyDoesNotRetryChainErrors(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.handle = func(string, []interface{}, interface{}) error {
		return &RPCError{Code: -32602, Message: "invalid argument"}
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	_, err := client.Verify(context.Background(), "0xbad")
	if err == nil {
		t.Fatal("Expected error")
	}
	var verErr *VerificationTimeoutError
	if errors.As(err, &verErr) {
		t.Error("Chain rejection must not be reported as a verification timeout")
	}
	if rpc.count("eth_getTransactionByHash") != 1 {
		t.Errorf("Chain rejection must not be retried, got %d lookups", rpc.count("eth_getTransactionByHash"))
	}
}

func TestVerifyRejectsMalformedPayload(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.handle = func(method string, _ []interface{}, result interface{}) error {
		return respond(t, result, chainTx{Hash: "0xtx", Input: "0xZZ"})
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	if _, err := client.Verify(context.Background(), "0xtx"); err == nil {
		t.Fatal("Expected error for malformed payload")
	}
	if rpc.count("eth_getTransactionByHash") != 1 {
		t.Errorf("Malformed payload must not be retried, got %d lookups", rpc.count("eth_getTransactionByHash"))
	}
}

func TestCallSetsExplicitNonce(t *testing.T) {
	rpc := &fakeRPC{}
	rpc.handle = func(method string, params []interface{}, result interface{}) error {
		switch method {
		case "eth_getTransactionCount":
			if params[1] != "pending" {
				t.Errorf("Nonce must come from the pending-inclusive count, got %v", params[1])
			}
			return respond(t, result, "0x7")
		case "personal_sendTransaction":
			tx := params[0].(map[string]interface{})
			if tx["nonce"] != "0x7" {
				t.Errorf("Expected nonce 0x7, got %v", tx["nonce"])
			}
			if tx["from"] != "0x2222222222222222222222222222222222222222" {
				t.Errorf("Contract call must sign with the contract role, got %v", tx["from"])
			}
			return respond(t, result, "0xcall")
		case "eth_getTransactionReceipt":
			return respond(t, result, txReceipt{BlockNumber: "0x20", Status: "0x1"})
		}
		return nil
	}

	var sleeps int
	client := newTestClient(rpc, testSecrets(), &sleeps)

	root := "0xab" + strings.Repeat("00", 31)
	receipt, err := client.Call(context.Background(),
		"0x3333333333333333333333333333333333333333",
		"anchorRoot(bytes32)",
		[]interface{}{root},
		RoleContract)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if receipt.TxID != "0xcall" {
		t.Errorf("Expected tx id 0xcall, got %s", receipt.TxID)
	}
}
