package rpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

func (s *Server) handleCreate(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := requireCaller(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	class, rpcErr := parseClass(params[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, err := s.engine.CreateChallenge(ctx, caller, class)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]uint64{"id": id}, nil
}

func (s *Server) handleJoin(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	caller, id, rpcErr := callerAndID(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Join(ctx, caller, id); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}

func (s *Server) handleSwap(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if rpcErr := requireParams(params, 4); rpcErr != nil {
		return nil, rpcErr
	}
	caller, id, rpcErr := callerAndID(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress(params[1], "from")
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress(params[2], "to")
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params[3], "amount")
	if rpcErr != nil {
		return nil, rpcErr
	}
	in, out, err := s.engine.Swap(ctx, caller, id, from, to, amount)
	if err != nil {
		return nil, engineError(err)
	}
	return SwapResult{AmountIn: amountString(in), AmountOut: amountString(out)}, nil
}

func (s *Server) handleRegister(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	caller, id, rpcErr := callerAndID(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rank, score, err := s.engine.Register(ctx, caller, id)
	if err != nil {
		return nil, engineError(err)
	}
	return RegisterResult{Rank: rank, Score: amountString(score)}, nil
}

func (s *Server) handleClaim(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	caller, id, rpcErr := callerAndID(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.engine.Claim(ctx, caller, id)
	if err != nil {
		return nil, engineError(err)
	}
	return ClaimResult{Amount: amountString(amount)}, nil
}

func (s *Server) handleRequestBadge(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	caller, id, rpcErr := callerAndID(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	auth, err := s.engine.RequestBadge(ctx, caller, id)
	if err != nil {
		return nil, engineError(err)
	}
	return badgeResult(auth), nil
}

func (s *Server) handleGetInfo(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	id, rpcErr := challengeID(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info, err := s.engine.ChallengeInfo(id)
	if err != nil {
		return nil, engineError(err)
	}
	return challengeResult(info), nil
}

func (s *Server) handleLatest(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	class, rpcErr := parseClass(params[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, err := s.engine.LatestChallenge(class)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]uint64{"id": id}, nil
}

func (s *Server) handleGetParticipant(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if rpcErr := requireParams(params, 2); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseUint(params[0], "challengeId")
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(params[1], "participant")
	if rpcErr != nil {
		return nil, rpcErr
	}
	participant, err := s.engine.GetParticipant(id, addr)
	if err != nil {
		return nil, engineError(err)
	}
	return participantResult(participant), nil
}

func (s *Server) handleGetParticipants(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	id, rpcErr := challengeID(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var offset, limit uint64
	if len(params) > 1 {
		if offset, rpcErr = parseUint(params[1], "offset"); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if len(params) > 2 {
		if limit, rpcErr = parseUint(params[2], "limit"); rpcErr != nil {
			return nil, rpcErr
		}
	}
	members, total, err := s.engine.GetParticipants(id, offset, limit)
	if err != nil {
		return nil, engineError(err)
	}
	result := ParticipantsResult{Total: total, Participants: make([]ParticipantResult, 0, len(members))}
	for _, member := range members {
		result.Participants = append(result.Participants, participantResult(member))
	}
	return result, nil
}

func (s *Server) handleGetPortfolio(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if rpcErr := requireParams(params, 2); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseUint(params[0], "challengeId")
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(params[1], "participant")
	if rpcErr != nil {
		return nil, rpcErr
	}
	holdings, err := s.engine.GetUserPortfolio(id, addr)
	if err != nil {
		return nil, engineError(err)
	}
	out := make([]HoldingResult, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, HoldingResult{Asset: h.Asset.Hex(), Amount: amountString(h.Amount)})
	}
	return out, nil
}

func (s *Server) handleGetRanking(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	id, rpcErr := challengeID(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	ranking, err := s.engine.GetRanking(id)
	if err != nil {
		return nil, engineError(err)
	}
	return rankingResult(ranking), nil
}

func (s *Server) handleIsInvestable(_ context.Context, params []json.RawMessage) (interface{}, *RPCError) {
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return nil, rpcErr
	}
	asset, rpcErr := parseAddress(params[0], "asset")
	if rpcErr != nil {
		return nil, rpcErr
	}
	ok, err := s.engine.IsInvestable(asset)
	if err != nil {
		return nil, engineError(err)
	}
	return ok, nil
}

func (s *Server) handleInvestableAssets(_ context.Context, _ []json.RawMessage) (interface{}, *RPCError) {
	set, err := s.engine.InvestableAssets()
	if err != nil {
		return nil, engineError(err)
	}
	result := InvestableResult{Version: set.Version, Assets: make([]string, 0, len(set.Assets))}
	for _, asset := range set.Assets {
		result.Assets = append(result.Assets, asset.Hex())
	}
	return result, nil
}

func (s *Server) handleParams(_ context.Context, _ []json.RawMessage) (interface{}, *RPCError) {
	params, err := s.engine.Params()
	if err != nil {
		return nil, engineError(err)
	}
	return ParamsResult{
		Admin:      params.Admin.Hex(),
		BaseAsset:  params.BaseAsset.Hex(),
		EntryFee:   amountString(params.EntryFee),
		SeedAmount: amountString(params.SeedAmount),
		NextID:     params.NextID,
	}, nil
}

func challengeID(params []json.RawMessage) (uint64, *RPCError) {
	if rpcErr := requireParams(params, 1); rpcErr != nil {
		return 0, rpcErr
	}
	return parseUint(params[0], "challengeId")
}

func callerAndID(ctx context.Context, params []json.RawMessage) (common.Address, uint64, *RPCError) {
	id, rpcErr := challengeID(params)
	if rpcErr != nil {
		return common.Address{}, 0, rpcErr
	}
	caller, rpcErr := requireCaller(ctx)
	if rpcErr != nil {
		return common.Address{}, 0, rpcErr
	}
	return caller, id, nil
}
