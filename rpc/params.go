package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stele/native/challenge"
	"stele/rpc/middleware"
)

func requireParams(params []json.RawMessage, min int) *RPCError {
	if len(params) < min {
		return invalidParams("expected at least %d params, got %d", min, len(params))
	}
	return nil
}

// parseUint accepts a JSON number or a decimal string.
func parseUint(raw json.RawMessage, name string) (uint64, *RPCError) {
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		value, err := strconv.ParseUint(num.String(), 10, 64)
		if err != nil {
			return 0, invalidParams("%s must be an unsigned integer", name)
		}
		return value, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, invalidParams("%s must be an unsigned integer", name)
	}
	value, err := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, invalidParams("%s must be an unsigned integer", name)
	}
	return value, nil
}

func parseString(raw json.RawMessage, name string) (string, *RPCError) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", invalidParams("%s must be a string", name)
	}
	return strings.TrimSpace(text), nil
}

func parseAddress(raw json.RawMessage, name string) (common.Address, *RPCError) {
	text, rpcErr := parseString(raw, name)
	if rpcErr != nil {
		return common.Address{}, rpcErr
	}
	if !common.IsHexAddress(text) {
		return common.Address{}, invalidParams("%s must be a hex address", name)
	}
	return common.HexToAddress(text), nil
}

// parseAmount accepts a base-10 string so amounts above 2^53 survive JSON.
func parseAmount(raw json.RawMessage, name string) (*big.Int, *RPCError) {
	text, rpcErr := parseString(raw, name)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, invalidParams("%s must be a decimal string", name)
	}
	return value, nil
}

func parseClass(raw json.RawMessage) (challenge.DurationClass, *RPCError) {
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		value, err := strconv.ParseUint(num.String(), 10, 8)
		if err != nil || !challenge.DurationClass(value).Valid() {
			return 0, invalidParams("unknown duration class %s", num.String())
		}
		return challenge.DurationClass(value), nil
	}
	text, rpcErr := parseString(raw, "durationClass")
	if rpcErr != nil {
		return 0, rpcErr
	}
	class, err := challenge.ParseDurationClass(text)
	if err != nil {
		return 0, invalidParams("unknown duration class %q", text)
	}
	return class, nil
}

func requireCaller(ctx context.Context) (common.Address, *RPCError) {
	caller, ok := middleware.CallerFromContext(ctx)
	if !ok {
		return common.Address{}, &RPCError{Code: codeUnauthorized, Message: "authentication required"}
	}
	return caller, nil
}

func requireAdmin(ctx context.Context) (challenge.Authority, *RPCError) {
	caller, rpcErr := requireCaller(ctx)
	if rpcErr != nil {
		return challenge.Authority{}, rpcErr
	}
	if !middleware.HasScopes(ctx, middleware.ScopeAdmin) {
		return challenge.Authority{}, &RPCError{Code: codeUnauthorized, Message: "insufficient scope", Data: middleware.ScopeAdmin}
	}
	return challenge.Authority{Caller: caller}, nil
}
