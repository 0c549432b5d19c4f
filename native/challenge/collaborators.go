package challenge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceOracle converts an amount of one asset into another. Implementations
// must floor the result and return an error when the pair cannot be priced.
type PriceOracle interface {
	Quote(from, to common.Address, amount *big.Int) (*big.Int, error)
}

// Treasury moves base-asset funds between participants and the prize vault.
type Treasury interface {
	// Collect pulls amount from the participant into the vault.
	Collect(ctx context.Context, from common.Address, amount *big.Int) error
	// Disburse pays amount from the vault to the participant.
	Disburse(ctx context.Context, to common.Address, amount *big.Int) error
}

// BadgeIssuer receives one-time mint authorizations for top finishers. The
// authorization ID is deterministic per (challenge, participant), so an
// authorization delivered again after a failed commit must be treated as the
// same grant.
type BadgeIssuer interface {
	AuthorizeMint(ctx context.Context, auth BadgeAuthorization) error
}

// BadgeRevoker is implemented by issuers that can withdraw an authorization
// when the engine fails to record it.
type BadgeRevoker interface {
	RevokeMint(ctx context.Context, id common.Hash) error
}

// BadgeIssuerFunc adapts a function into a BadgeIssuer.
type BadgeIssuerFunc func(ctx context.Context, auth BadgeAuthorization) error

func (f BadgeIssuerFunc) AuthorizeMint(ctx context.Context, auth BadgeAuthorization) error {
	return f(ctx, auth)
}

// Authority is the capability presented to administrative operations. It is
// honoured only when Caller matches the configured admin.
type Authority struct {
	Caller common.Address
}
