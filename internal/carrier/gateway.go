package carrier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig captures the subset of SMS gateway behaviour we need.
type GatewayConfig struct {
	BaseURL       string
	APIToken      string
	SigningSecret string
	SenderID      string
	Timeout       time.Duration
	Client        *http.Client
}

// GatewaySender posts messages to an HTTP SMS gateway. Requests carry a
// bearer token plus an HMAC-SHA256 signature over the timestamp and body so
// the gateway can reject replayed or tampered requests.
type GatewaySender struct {
	baseURL       string
	apiToken      string
	signingSecret []byte
	senderID      string
	client        *http.Client
	now           func() time.Time
}

// NewGatewaySender builds a gateway client. Callers should pass a validated config.
func NewGatewaySender(cfg GatewayConfig) (*GatewaySender, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("gateway api token is required")
	}
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return nil, errors.New("gateway signing secret is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &GatewaySender{
		baseURL:       baseURL,
		apiToken:      cfg.APIToken,
		signingSecret: []byte(cfg.SigningSecret),
		senderID:      strings.TrimSpace(cfg.SenderID),
		client:        hc,
		now:           time.Now,
	}, nil
}

type gatewayRequest struct {
	To     string `json:"to"`
	Body   string `json:"body"`
	Sender string `json:"sender,omitempty"`
}

func (s *GatewaySender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(gatewayRequest{
		To:     msg.PhoneE164,
		Body:   msg.Body,
		Sender: s.senderID,
	})
	if err != nil {
		return fmt.Errorf("encode gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create gateway request: %w", err)
	}

	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiToken)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", s.sign(timestamp, body))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gatewayError(resp)
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}

func (s *GatewaySender) Name() string { return KindGateway }

// sign computes hex(HMAC-SHA256(secret, timestamp + "." + body)).
func (s *GatewaySender) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, s.signingSecret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func gatewayError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(snippet))
	if text == "" {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, text)
}
