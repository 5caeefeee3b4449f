package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Manager struct {
	enabled      bool
	slackWebhook string
	httpClient   HTTPClient
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewManager(enabled bool, slackWebhook string) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func NewManagerWithClient(enabled bool, slackWebhook string, client HTTPClient) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   client,
	}
}

// SendRootMismatchAlert fires when the root recomputed from the store does
// not match the root read back from the anchored transaction.
func (m *Manager) SendRootMismatchAlert(contractID, txID, anchoredRoot, computedRoot string) error {
	if !m.enabled || m.slackWebhook == "" {
		return nil
	}

	msg := slackMessage{
		Text: "🚨 *LEDGER TAMPERING DETECTED*",
		Attachments: []slackAttachment{
			{
				Color: "danger",
				Title: "Anchored Root Mismatch",
				Fields: []slackField{
					{Title: "Contract", Value: contractID, Short: true},
					{Title: "Transaction", Value: txID, Short: true},
					{Title: "Anchored Root", Value: anchoredRoot, Short: false},
					{Title: "Recomputed Root", Value: computedRoot, Short: false},
				},
				Footer: "PayAnchor Ledger Verification",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

// SendAnchorFailureAlert fires when a submission fails in a way an operator
// should look at, in particular ambiguous confirmation timeouts.
func (m *Manager) SendAnchorFailureAlert(contractID, stage, detail string) error {
	if !m.enabled || m.slackWebhook == "" {
		return nil
	}

	msg := slackMessage{
		Text: "⚠️ *ANCHOR SUBMISSION FAILURE*",
		Attachments: []slackAttachment{
			{
				Color: "warning",
				Title: "Ledger Anchoring Failed",
				Fields: []slackField{
					{Title: "Contract", Value: contractID, Short: true},
					{Title: "Stage", Value: stage, Short: true},
					{Title: "Detail", Value: detail, Short: false},
				},
				Footer: "PayAnchor Ledger Anchoring",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

func (m *Manager) sendSlackMessage(msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.slackWebhook, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-200 status: %d", resp.StatusCode)
	}

	return nil
}
