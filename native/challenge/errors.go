package challenge

import "errors"

// Code is the short, stable taxonomy code carried by every engine failure.
type Code string

// Error is a classified engine failure. Sentinels are compared by identity so
// callers can use errors.Is, or CodeOf to branch on the code alone.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

var (
	ErrAlreadyJoined          = newError("AJ", "challenge: already joined")
	ErrChallengeNotOpen       = newError("NO", "challenge: not open")
	ErrInsufficientFunds      = newError("FTM", "challenge: insufficient funds")
	ErrAssetNotInvestable     = newError("IA", "challenge: asset not investable")
	ErrAssetCapExceeded       = newError("MA", "challenge: asset cap exceeded")
	ErrOraclePriceUnavailable = newError("OP", "challenge: oracle price unavailable")
	ErrNotEnded               = newError("NE", "challenge: not ended")
	ErrAlreadyDistributed     = newError("AD", "challenge: already distributed")
	ErrNotTopTier             = newError("NT", "challenge: not a top tier finisher")
	ErrRewardsNotClaimed      = newError("RC", "challenge: rewards not claimed")
	ErrAlreadyMinted          = newError("AM", "challenge: badge already minted")
	ErrUnauthorized           = newError("UA", "challenge: unauthorized")
	ErrNotJoined              = newError("NJ", "challenge: not joined")
	ErrChallengeNotFound      = newError("NF", "challenge: not found")
	ErrInvalidArgument        = newError("IV", "challenge: invalid argument")
	ErrFundsTransfer          = newError("FT", "challenge: funds transfer failed")
	ErrBadgeIssuer            = newError("BI", "challenge: badge issuance failed")
)

// CodeOf returns the taxonomy code of the first classified error in err's
// chain, or "" when err carries none.
func CodeOf(err error) Code {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
