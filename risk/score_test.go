package risk

import (
	"math"
	"strings"
	"testing"
)

func strongProfile() Input {
	return Input{
		WalletAgeDays:         730,
		TxCount:               200,
		TxFrequencyPerMonth:   15,
		PortfolioValue:        5000,
		DefiProtocolsUsed:     5,
		TokenCount:            10,
		KYCVerified:           true,
		EmailVerified:         true,
		PhoneVerified:         true,
		AddressVerified:       true,
		TwitterFollowers:      1000,
		TwitterAccountAgeDays: 2000,
		TwitterVerified:       true,
		LinkedinConnections:   500,
		LinkedinEndorsements:  10,
		ReferencesCount:       2,
		EmploymentStatus:      EmploymentEmployed,
		IncomeRange:           "Over $100,000",
		CollateralPercentage:  40,
		PreviousLoansCount:    5,
		PreviousLoansRepaid:   5,
		PlatformTenureDays:    365,
	}
}

func TestScoreStrongProfileMaxesEveryCategory(t *testing.T) {
	res := Score(strongProfile())
	if res.Score != MaxScore {
		t.Fatalf("expected score %d, got %d (%+v)", MaxScore, res.Score, res.Breakdown)
	}
	b := res.Breakdown
	if b.OnChain.Total != 250 || b.Identity.Total != 200 || b.Social.Total != 150 ||
		b.Financial.Total != 200 || b.CollateralHistory.Total != 200 {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	if res.Tier != TierExcellent {
		t.Fatalf("expected excellent tier, got %s", res.Tier)
	}
	if res.APR != 6 {
		t.Fatalf("expected APR clamped to 6, got %v", res.APR)
	}
	if res.MaxLoanAmount != 5000 {
		t.Fatalf("expected max loan 5000, got %d", res.MaxLoanAmount)
	}
	if len(res.Suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %v", res.Suggestions)
	}
}

func TestScoreEmptyProfile(t *testing.T) {
	res := Score(Input{})
	// Only the no-debt bonus applies.
	if res.Score != 60 {
		t.Fatalf("expected score 60, got %d", res.Score)
	}
	if res.Tier != TierVeryPoor {
		t.Fatalf("expected very_poor, got %s", res.Tier)
	}
	if res.APR != 26.5 {
		t.Fatalf("expected APR 26.5, got %v", res.APR)
	}
	if res.MaxLoanAmount != 500 {
		t.Fatalf("expected max loan 500, got %d", res.MaxLoanAmount)
	}
	if len(res.Suggestions) != 5 {
		t.Fatalf("expected suggestions capped at 5, got %d", len(res.Suggestions))
	}
	if !strings.Contains(res.Suggestions[0], "KYC") {
		t.Fatalf("expected KYC suggestion first, got %q", res.Suggestions[0])
	}
}

func TestTierThresholds(t *testing.T) {
	cases := []struct {
		score   int
		tier    Tier
		maxLoan int
	}{
		{1000, TierExcellent, 5000},
		{750, TierExcellent, 5000},
		{749, TierGood, 3500},
		{600, TierGood, 3500},
		{599, TierFair, 2000},
		{450, TierFair, 2000},
		{449, TierPoor, 1000},
		{300, TierPoor, 1000},
		{299, TierVeryPoor, 500},
		{0, TierVeryPoor, 500},
	}
	for _, tc := range cases {
		if got := TierFor(tc.score); got != tc.tier {
			t.Fatalf("score %d: expected tier %s, got %s", tc.score, tc.tier, got)
		}
		if got := MaxLoanAmount(tc.score); got != tc.maxLoan {
			t.Fatalf("score %d: expected max loan %d, got %d", tc.score, tc.maxLoan, got)
		}
	}
}

func TestInterestRateBps(t *testing.T) {
	cases := []struct {
		name       string
		score      int
		term       uint64
		collateral float64
		want       uint64
	}{
		{"excellent short term", 800, 3, 0, 800},
		{"excellent long term", 900, 24, 0, 1850},
		{"very poor clamps to ceiling", 100, 24, 0, 3500},
		{"one month discount", 100, 1, 0, 2400},
		{"collateral clamps to floor", 750, 6, 100, 600},
		{"fractional collateral", 600, 12, 3.3, 1617},
		{"fair", 450, 6, 10, 1850},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := InterestRateBps(tc.score, tc.term, tc.collateral); got != tc.want {
				t.Fatalf("expected %d bps, got %d", tc.want, got)
			}
		})
	}
	if got := APR(600, 12, 3.3); math.Abs(got-16.17) > 1e-9 {
		t.Fatalf("expected APR 16.17, got %v", got)
	}
}

func TestFinancialDebtRatio(t *testing.T) {
	in := Input{ExistingDebt: true, DebtAmount: 3000, MonthlyIncome: 1000}
	if got := scoreFinancial(in).DebtRatio; got != 30 {
		t.Fatalf("expected debt ratio 30, got %d", got)
	}
	in.DebtAmount = 12000
	if got := scoreFinancial(in).DebtRatio; got != 0 {
		t.Fatalf("expected debt ratio clamped to 0, got %d", got)
	}
	in.MonthlyIncome = 0
	if got := scoreFinancial(in).DebtRatio; got != 60 {
		t.Fatalf("expected unknown income to keep full points, got %d", got)
	}
}

func TestPreviousLoansWeightedByRepayment(t *testing.T) {
	got := scoreCollateralHistory(Input{PreviousLoansCount: 4, PreviousLoansRepaid: 2})
	if got.PreviousLoans != 20 {
		t.Fatalf("expected 20 points, got %d", got.PreviousLoans)
	}
}

func TestOnChainTotalRoundsUnroundedSum(t *testing.T) {
	got := scoreOnChain(Input{WalletAgeDays: 10, TxCount: 3})
	if got.WalletAge != 1 || got.TxCount != 1 {
		t.Fatalf("unexpected parts %+v", got)
	}
	if got.Total != 3 {
		t.Fatalf("expected total 3, got %d", got.Total)
	}
}

func TestSuggestionsCollateralPoints(t *testing.T) {
	in := strongProfile()
	in.CollateralPercentage = 10
	res := Score(in)
	if len(res.Suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %v", res.Suggestions)
	}
	if !strings.Contains(res.Suggestions[0], "add 25 points") {
		t.Fatalf("unexpected suggestion %q", res.Suggestions[0])
	}
}
