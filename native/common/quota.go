package common

import (
	"errors"
	"math"
	"math/big"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaValueCapExceeded = errors.New("quota value cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount  uint32
	ValueUsed *big.Int
	EpochID   uint64
}

// Quota defines the limits enforced for a module interaction per address.
// Zero limits are not enforced.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxValuePerEpoch    *big.Int
	EpochSeconds        uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 || (q.MaxValuePerEpoch != nil && q.MaxValuePerEpoch.Sign() > 0)
}

// EpochFor maps a unix timestamp to the quota epoch.
func (q Quota) EpochFor(unix uint64) uint64 {
	if q.EpochSeconds == 0 {
		return 0
	}
	return unix / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and value fit within the
// configured quota. The returned QuotaNow reflects the updated counters when the
// quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addValue *big.Int) (QuotaNow, error) {
	next := QuotaNow{ReqCount: prev.ReqCount, EpochID: prev.EpochID, ValueUsed: new(big.Int)}
	if prev.ValueUsed != nil {
		next.ValueUsed.Set(prev.ValueUsed)
	}
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch, ValueUsed: new(big.Int)}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addValue != nil && addValue.Sign() > 0 {
		next.ValueUsed.Add(next.ValueUsed, addValue)
	}
	if q.MaxValuePerEpoch != nil && q.MaxValuePerEpoch.Sign() > 0 && next.ValueUsed.Cmp(q.MaxValuePerEpoch) > 0 {
		return prev, ErrQuotaValueCapExceeded
	}

	return next, nil
}
