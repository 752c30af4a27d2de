package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
)

// Executor is the resilience policy the decorated client runs calls through.
type Executor interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// resilientAccountClient decorates an AccountClient with the retry, breaker
// and deadline policy of an Executor, and maps terminal transport failures
// onto the stable upstream error codes.
type resilientAccountClient struct {
	inner AccountClient
	exec  Executor
}

func NewResilientAccountClient(inner AccountClient, exec Executor) AccountClient {
	return &resilientAccountClient{
		inner: inner,
		exec:  exec,
	}
}

func (c *resilientAccountClient) GetAccount(ctx context.Context, accountID, bearer string) (*Account, error) {
	var account *Account
	err := c.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		account, err = c.inner.GetAccount(ctx, accountID, bearer)
		return err
	})
	if err != nil {
		return nil, mapAccountError(err)
	}
	return account, nil
}

func (c *resilientAccountClient) ApplyBalanceOp(ctx context.Context, accountID string, op *BalanceOp, bearer string) (*BalanceOpResult, error) {
	var result *BalanceOpResult
	err := c.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.inner.ApplyBalanceOp(ctx, accountID, op, bearer)
		return err
	})
	if err != nil {
		return nil, mapAccountError(err)
	}
	return result, nil
}

// mapAccountError translates residual call errors into the error taxonomy.
// 404 means the account does not exist; other 4xx answers are authoritative
// upstream rejections.
func mapAccountError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		switch {
		case callErr.StatusCode == http.StatusNotFound:
			return apperrors.ErrAccountNotFound
		case callErr.Category == CategoryRemote4xx:
			return apperrors.ErrUpstreamRejected.WithDetails(callErr.Error())
		default:
			return apperrors.ErrUpstreamUnavailable.WithDetails(callErr.Error())
		}
	}

	return err
}
