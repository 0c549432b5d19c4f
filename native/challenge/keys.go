package challenge

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	paramsKey         = []byte("challenge/params")
	investableKey     = []byte("challenge/investable")
	challengePrefix   = []byte("challenge/meta/")
	participantPrefix = []byte("challenge/participant/")
	memberPrefix      = []byte("challenge/member/")
	portfolioPrefix   = []byte("challenge/portfolio/")
	rankingPrefix     = []byte("challenge/ranking/")
	latestPrefix      = []byte("challenge/latest/")
)

func challengeKey(id uint64) []byte {
	buf := make([]byte, len(challengePrefix)+8)
	copy(buf, challengePrefix)
	binary.BigEndian.PutUint64(buf[len(challengePrefix):], id)
	return buf
}

func participantKey(id uint64, addr common.Address) []byte {
	return scopedAddrKey(participantPrefix, id, addr)
}

func portfolioKey(id uint64, addr common.Address) []byte {
	return scopedAddrKey(portfolioPrefix, id, addr)
}

func memberKey(id, index uint64) []byte {
	buf := make([]byte, len(memberPrefix)+16)
	copy(buf, memberPrefix)
	binary.BigEndian.PutUint64(buf[len(memberPrefix):], id)
	binary.BigEndian.PutUint64(buf[len(memberPrefix)+8:], index)
	return buf
}

func rankingKey(id uint64) []byte {
	buf := make([]byte, len(rankingPrefix)+8)
	copy(buf, rankingPrefix)
	binary.BigEndian.PutUint64(buf[len(rankingPrefix):], id)
	return buf
}

func latestKey(class DurationClass) []byte {
	buf := make([]byte, len(latestPrefix)+1)
	copy(buf, latestPrefix)
	buf[len(latestPrefix)] = byte(class)
	return buf
}

func scopedAddrKey(prefix []byte, id uint64, addr common.Address) []byte {
	buf := make([]byte, len(prefix)+8+common.AddressLength)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	copy(buf[len(prefix)+8:], addr.Bytes())
	return buf
}
