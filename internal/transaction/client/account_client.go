package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Account is the account service's view of an account, as consumed by the
// orchestrator.
type Account struct {
	ID              string           `json:"id"`
	OwnerID         string           `json:"owner_id"`
	AccountType     string           `json:"account_type"`
	Balance         decimal.Decimal  `json:"balance"`
	AvailableCredit *decimal.Decimal `json:"available_credit,omitempty"`
	Active          bool             `json:"active"`
	Currency        string           `json:"currency"`
}

// BalanceOp is one idempotent signed balance delta. OperationID is the
// deterministic key that makes retries observationally pure.
type BalanceOp struct {
	OperationID   string          `json:"operation_id"`
	TransactionID string          `json:"transaction_id"`
	Delta         decimal.Decimal `json:"delta"`
	Reason        string          `json:"reason"`
	AllowNegative bool            `json:"allow_negative"`
}

// Balance operation outcome statuses, mirrored from the account service.
const (
	OpStatusApplied  = "APPLIED"
	OpStatusRejected = "REJECTED"
	OpStatusReplayed = "REPLAYED"
)

// BalanceOpResult is the account side's answer. On a replay, OriginalStatus
// carries the outcome recorded by the first submission.
type BalanceOpResult struct {
	Applied          bool            `json:"applied"`
	Status           string          `json:"status"`
	OriginalStatus   string          `json:"original_status,omitempty"`
	ResultingBalance decimal.Decimal `json:"resulting_balance"`
}

// Succeeded reports whether the delta is applied on the account side, either
// by this call or by the earlier call this one replayed.
func (r *BalanceOpResult) Succeeded() bool {
	if r.Applied {
		return true
	}
	return r.Status == OpStatusReplayed && r.OriginalStatus == OpStatusApplied
}

// Rejected reports a business rejection (insufficient funds), directly or
// recorded by a replayed earlier attempt.
func (r *BalanceOpResult) Rejected() bool {
	if r.Status == OpStatusRejected {
		return true
	}
	return r.Status == OpStatusReplayed && r.OriginalStatus == OpStatusRejected
}

// Failure categories for account service calls.
type Category string

const (
	CategoryNetwork   Category = "NETWORK"
	CategoryTimeout   Category = "TIMEOUT"
	CategoryRemote4xx Category = "REMOTE_4XX"
	CategoryRemote5xx Category = "REMOTE_5XX"
	CategoryThrottled Category = "THROTTLED"
)

// CallError is a categorized account service failure. The category decides
// retryability in the resilience wrapper.
type CallError struct {
	Category   Category
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("account service call failed (%s, status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("account service call failed (%s): %v", e.Category, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt can change the outcome. Remote
// 4xx answers are authoritative and never retried.
func (e *CallError) Retryable() bool {
	switch e.Category {
	case CategoryNetwork, CategoryTimeout, CategoryRemote5xx, CategoryThrottled:
		return true
	}
	return false
}

// AccountClient speaks the narrow balance contract to the account service.
// The caller's bearer token is forwarded verbatim on every call.
type AccountClient interface {
	GetAccount(ctx context.Context, accountID, bearer string) (*Account, error)
	ApplyBalanceOp(ctx context.Context, accountID string, op *BalanceOp, bearer string) (*BalanceOpResult, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type accountClient struct {
	config     *Config
	httpClient *http.Client
}

func NewAccountClient(cfg *Config) AccountClient {
	if cfg.Timeout == 0 {
		// Per-attempt timeout. Must stay below the resilience executor's
		// total deadline, or a single timing-out call eats the whole retry
		// budget.
		cfg.Timeout = 2 * time.Second
	}
	return &accountClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *accountClient) GetAccount(ctx context.Context, accountID, bearer string) (*Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/accounts/"+accountID, nil, bearer)
	if err != nil {
		return nil, err
	}

	var account Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("failed to parse account response: %w", err)
	}
	return &account, nil
}

func (c *accountClient) ApplyBalanceOp(ctx context.Context, accountID string, op *BalanceOp, bearer string) (*BalanceOpResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/accounts/"+accountID+"/balance-ops", op, bearer)
	if err != nil {
		return nil, err
	}

	var result BalanceOpResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse balance op response: %w", err)
	}
	return &result, nil
}

func (c *accountClient) doRequest(ctx context.Context, method, endpoint string, payload interface{}, bearer string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, categorizeTransportError(err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Category: CategoryNetwork, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, categorizeStatus(resp.StatusCode, responseBody)
	}

	return responseBody, nil
}

func categorizeTransportError(err error) *CallError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &CallError{Category: CategoryTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{Category: CategoryTimeout, Err: err}
	}
	return &CallError{Category: CategoryNetwork, Err: err}
}

func categorizeStatus(status int, body []byte) *CallError {
	err := fmt.Errorf("%s", truncate(body, 256))

	switch {
	case status == http.StatusTooManyRequests:
		return &CallError{Category: CategoryThrottled, StatusCode: status, Err: err}
	case status >= 500:
		return &CallError{Category: CategoryRemote5xx, StatusCode: status, Err: err}
	default:
		return &CallError{Category: CategoryRemote4xx, StatusCode: status, Err: err}
	}
}

func truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
