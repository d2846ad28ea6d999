package apperr

import (
	"context"
	"errors"
	"fmt"
)

// User-facing messages. Every error that reaches a command or HTTP handler is
// converted to exactly one of these.
const (
	MsgConfigUnavailable = "Configuration unavailable, wallet actions are disabled."
	MsgConnection        = "Unable to connect to the network, please check your wallet or RPC endpoint."
	MsgContractCall      = "Failed to open $JOINT Pack, please contact support."
	MsgQuery             = "Error fetching rewards, please check later."
	MsgTimeout           = "Reward not found yet, check back later."
	MsgCancelled         = "Request cancelled."
	MsgUnknown           = "Something went wrong, please try again."
)

// ConfigLoadError indicates the contract configuration could not be fetched or parsed.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("load config %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}

// ConnectionError indicates the provider or signer is unavailable.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("connection: %v", e.Err)
	}
	return fmt.Sprintf("connection %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ContractCallError indicates a state-changing contract call failed or reverted.
type ContractCallError struct {
	Method string
	TxHash string
	Err    error
}

func (e *ContractCallError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("contract call %s (tx %s): %v", e.Method, e.TxHash, e.Err)
	}
	return fmt.Sprintf("contract call %s: %v", e.Method, e.Err)
}

func (e *ContractCallError) Unwrap() error {
	return e.Err
}

// QueryError indicates a read query (event fetch, receipt lookup, aggregation) failed.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates a reward did not show up within the polling budget.
type TimeoutError struct {
	TokenID string
	Polls   int
	Budget  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no reward for token %s after %d polls (%s)", e.TokenID, e.Polls, e.Budget)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	var (
		cfgErr  *ConfigLoadError
		connErr *ConnectionError
		callErr *ContractCallError
		qErr    *QueryError
		toErr   *TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &callErr):
		return "contract_call"
	case errors.As(err, &toErr):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &qErr):
		return "query"
	default:
		return "unknown"
	}
}

// UserMessage converts err into the fixed string shown to the user.
func UserMessage(err error) string {
	switch Kind(err) {
	case "":
		return ""
	case "config":
		return MsgConfigUnavailable
	case "connection":
		return MsgConnection
	case "contract_call":
		return MsgContractCall
	case "timeout":
		return MsgTimeout
	case "cancelled":
		return MsgCancelled
	case "query":
		return MsgQuery
	default:
		return MsgUnknown
	}
}
