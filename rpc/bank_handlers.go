package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"stele/indexer"
	"stele/native/bank"
)

func (s *Server) handleBalance(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if s.ledger == nil {
		return nil, &RPCError{Code: codeServerError, Message: "bank ledger not configured"}
	}
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(params[0], "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.ledger.BalanceOf(addr)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	return BalanceResult{Address: addr.Hex(), Balance: amountString(balance)}, nil
}

// handleDeposit credits an account from outside the system. The caller must
// hold the admin scope and be the engine's current admin.
func (s *Server) handleDeposit(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if s.ledger == nil {
		return nil, &RPCError{Code: codeServerError, Message: "bank ledger not configured"}
	}
	auth, rpcErr := requireAdmin(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	current, err := s.engine.Params()
	if err != nil {
		return nil, engineError(err)
	}
	if auth.Caller != current.Admin {
		return nil, &RPCError{Code: codeUnauthorized, Message: "caller is not the admin"}
	}
	if rpcErr := requireParams(params, 2); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(params[0], "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params[1], "amount")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Deposit(ctx, addr, amount); err != nil {
		if errors.Is(err, bank.ErrInvalidAmount) {
			return nil, invalidParams("%v", err)
		}
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	balance, err := s.ledger.BalanceOf(addr)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	return BalanceResult{Address: addr.Hex(), Balance: amountString(balance)}, nil
}

// EventsFilter is the object accepted by events_query.
type EventsFilter struct {
	Type        string `json:"type"`
	ChallengeID uint64 `json:"challengeId"`
	Participant string `json:"participant"`
	AfterSeq    uint64 `json:"afterSequence"`
	Limit       int    `json:"limit"`
}

func (s *Server) handleEventsQuery(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if s.events == nil {
		return nil, &RPCError{Code: codeServerError, Message: "event index not configured"}
	}
	var filter EventsFilter
	if len(params) > 0 {
		if err := json.Unmarshal(params[0], &filter); err != nil {
			return nil, invalidParams("invalid filter: %v", err)
		}
	}
	records, err := s.events.Query(ctx, indexer.Filter{
		Type:        filter.Type,
		ChallengeID: filter.ChallengeID,
		Participant: filter.Participant,
		AfterSeq:    filter.AfterSeq,
		Limit:       filter.Limit,
	})
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	out := make([]EventResult, 0, len(records))
	for _, rec := range records {
		result, err := eventResult(rec)
		if err != nil {
			return nil, &RPCError{Code: codeServerError, Message: err.Error()}
		}
		out = append(out, result)
	}
	return out, nil
}
