package common

import (
	"errors"
	"math/big"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, nil)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied.ReqCount != next.ReqCount || denied.EpochID != next.EpochID {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaValue(t *testing.T) {
	q := Quota{MaxValuePerEpoch: big.NewInt(1000)}
	prev := QuotaNow{EpochID: 5}

	next, err := CheckQuota(q, 5, prev, 0, big.NewInt(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ValueUsed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected value used: %s", next.ValueUsed)
	}

	_, err = CheckQuota(q, 5, next, 0, big.NewInt(1))
	if !errors.Is(err, ErrQuotaValueCapExceeded) {
		t.Fatalf("expected ErrQuotaValueCapExceeded, got %v", err)
	}
	if next.ValueUsed.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("denied check must not mutate previous counters")
	}

	rollover, err := CheckQuota(q, 6, next, 0, big.NewInt(500))
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.ValueUsed.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected value used after rollover: %s", rollover.ValueUsed)
	}
}

func TestQuotaEnabledAndEpoch(t *testing.T) {
	if (Quota{}).Enabled() {
		t.Fatalf("zero quota must be disabled")
	}
	q := Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 60}
	if !q.Enabled() {
		t.Fatalf("expected quota enabled")
	}
	if got := q.EpochFor(125); got != 2 {
		t.Fatalf("unexpected epoch %d", got)
	}
}

func TestPausesGuard(t *testing.T) {
	pauses := NewPauses(map[string]bool{"Lending": true})
	if err := Guard(pauses, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.Set("lending", false)
	if err := Guard(pauses, "lending"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}
