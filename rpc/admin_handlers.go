package rpc

import (
	"context"
	"encoding/json"
)

func (s *Server) handleSetInvestableAsset(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	auth, rpcErr := requireAdmin(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseAddress(params[0], "asset")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.SetInvestableAsset(ctx, auth, asset); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}

func (s *Server) handleRemoveInvestableAsset(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	auth, rpcErr := requireAdmin(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseAddress(params[0], "asset")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.RemoveInvestableAsset(ctx, auth, asset); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}

func (s *Server) handleSetEntryFee(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	auth, rpcErr := requireAdmin(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	fee, rpcErr := parseAmount(params[0], "entryFee")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.SetEntryFee(ctx, auth, fee); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}

func (s *Server) handleSetSeedAmount(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	auth, rpcErr := requireAdmin(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	seed, rpcErr := parseAmount(params[0], "seedAmount")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.SetSeedAmount(ctx, auth, seed); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}

func (s *Server) handleTransferAdmin(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	auth, rpcErr := requireAdmin(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	next, rpcErr := parseAddress(params[0], "admin")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.TransferAdmin(ctx, auth, next); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}
