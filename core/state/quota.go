package state

import (
	"fmt"
	"math/big"

	nativecommon "trustflow/native/common"
)

type storedQuota struct {
	ReqCount  uint32
	ValueUsed *big.Int
	EpochID   uint64
}

func quotaKey(module string, addr [20]byte) []byte {
	return append([]byte(fmt.Sprintf("quota/%s/", module)), addr[:]...)
}

// QuotaCounters returns the usage counters of addr for module.
func (m *Manager) QuotaCounters(module string, addr [20]byte) (nativecommon.QuotaNow, error) {
	var stored storedQuota
	ok, err := m.KVGet(quotaKey(module, addr), &stored)
	if err != nil {
		return nativecommon.QuotaNow{}, err
	}
	if !ok {
		return nativecommon.QuotaNow{ValueUsed: big.NewInt(0)}, nil
	}
	if stored.ValueUsed == nil {
		stored.ValueUsed = big.NewInt(0)
	}
	return nativecommon.QuotaNow{ReqCount: stored.ReqCount, ValueUsed: stored.ValueUsed, EpochID: stored.EpochID}, nil
}

// PutQuotaCounters stores the usage counters of addr for module.
func (m *Manager) PutQuotaCounters(module string, addr [20]byte, now nativecommon.QuotaNow) error {
	stored := storedQuota{ReqCount: now.ReqCount, ValueUsed: cloneAmount(now.ValueUsed), EpochID: now.EpochID}
	return m.KVPut(quotaKey(module, addr), stored)
}
