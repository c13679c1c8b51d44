// Package risk scores borrower profiles. The ledger never calls into this
// package; its outputs are supplied by the borrower at loan creation.
package risk

import (
	"math"
	"strings"
)

const (
	// MaxScore is the ceiling of the combined score.
	MaxScore = 1000
	// SuggestedTerm is the term, in months, used when quoting a rate for a
	// profile without a requested term.
	SuggestedTerm = 6

	minAPR = 6.0
	maxAPR = 35.0
)

// Tier buckets a score.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
	TierVeryPoor  Tier = "very_poor"
)

// Employment status values understood by the financial category.
const (
	EmploymentEmployed     = "employed"
	EmploymentSelfEmployed = "self_employed"
	EmploymentStudent      = "student"
	EmploymentUnemployed   = "unemployed"
)

// Input is the borrower profile. Monetary fields are whole currency units.
type Input struct {
	WalletAgeDays       float64 `json:"walletAgeDays"`
	TxCount             float64 `json:"txCount"`
	TxFrequencyPerMonth float64 `json:"txFrequencyPerMonth"`
	PortfolioValue      float64 `json:"portfolioValue"`
	DefiProtocolsUsed   float64 `json:"defiProtocolsUsed"`
	TokenCount          float64 `json:"tokenCount"`

	KYCVerified     bool `json:"kycVerified"`
	EmailVerified   bool `json:"emailVerified"`
	PhoneVerified   bool `json:"phoneVerified"`
	AddressVerified bool `json:"addressVerified"`

	TwitterFollowers      float64 `json:"twitterFollowers"`
	TwitterAccountAgeDays float64 `json:"twitterAccountAgeDays"`
	TwitterVerified       bool    `json:"twitterVerified"`
	LinkedinConnections   float64 `json:"linkedinConnections"`
	LinkedinEndorsements  float64 `json:"linkedinEndorsements"`
	ReferencesCount       float64 `json:"referencesCount"`

	EmploymentStatus string  `json:"employmentStatus"`
	IncomeRange      string  `json:"incomeRange"`
	ExistingDebt     bool    `json:"existingDebt"`
	DebtAmount       float64 `json:"debtAmount"`
	MonthlyIncome    float64 `json:"monthlyIncome"`

	CollateralPercentage float64 `json:"collateralPercentage"`
	PreviousLoansCount   float64 `json:"previousLoansCount"`
	PreviousLoansRepaid  float64 `json:"previousLoansRepaid"`
	PlatformTenureDays   float64 `json:"platformTenureDays"`
}

// OnChain is the wallet activity category, worth up to 250 points.
type OnChain struct {
	Total           int `json:"total"`
	WalletAge       int `json:"walletAge"`
	TxCount         int `json:"txCount"`
	TxConsistency   int `json:"txConsistency"`
	PortfolioValue  int `json:"portfolioValue"`
	DefiInteraction int `json:"defiInteraction"`
	TokenDiversity  int `json:"tokenDiversity"`
}

// Identity is worth up to 200 points.
type Identity struct {
	Total   int `json:"total"`
	KYC     int `json:"kyc"`
	Email   int `json:"email"`
	Phone   int `json:"phone"`
	Address int `json:"address"`
}

// Social is worth up to 150 points.
type Social struct {
	Total      int `json:"total"`
	Twitter    int `json:"twitter"`
	Linkedin   int `json:"linkedin"`
	References int `json:"references"`
}

// Financial is worth up to 200 points.
type Financial struct {
	Total      int `json:"total"`
	Employment int `json:"employment"`
	Income     int `json:"income"`
	DebtRatio  int `json:"debtRatio"`
}

// CollateralHistory is worth up to 200 points.
type CollateralHistory struct {
	Total          int `json:"total"`
	Collateral     int `json:"collateral"`
	PreviousLoans  int `json:"previousLoans"`
	PlatformTenure int `json:"platformTenure"`
}

// Breakdown lists the per-category subtotals behind a score.
type Breakdown struct {
	OnChain           OnChain           `json:"onChain"`
	Identity          Identity          `json:"identity"`
	Social            Social            `json:"social"`
	Financial         Financial         `json:"financial"`
	CollateralHistory CollateralHistory `json:"collateralHistory"`
}

// Result is the full quote for a profile.
type Result struct {
	Score         int       `json:"score"`
	Breakdown     Breakdown `json:"breakdown"`
	Tier          Tier      `json:"riskTier"`
	APR           float64   `json:"interestRate"`
	MaxLoanAmount int       `json:"maxLoanAmount"`
	Suggestions   []string  `json:"suggestions"`
}

var employmentPoints = map[string]int{
	EmploymentEmployed:     60,
	EmploymentSelfEmployed: 40,
	EmploymentStudent:      20,
	EmploymentUnemployed:   0,
}

// IncomeRanges lists the accepted income brackets in ascending order.
var IncomeRanges = []string{
	"Under $20,000",
	"$20,000 - $35,000",
	"$35,000 - $50,000",
	"$50,000 - $75,000",
	"$75,000 - $100,000",
	"Over $100,000",
}

var incomePoints = map[string]int{
	IncomeRanges[0]: 10,
	IncomeRanges[1]: 25,
	IncomeRanges[2]: 40,
	IncomeRanges[3]: 55,
	IncomeRanges[4]: 70,
	IncomeRanges[5]: 80,
}

// Score computes the score, tier, APR at SuggestedTerm, max loan amount and
// up to five improvement suggestions.
func Score(in Input) Result {
	breakdown := Breakdown{
		OnChain:           scoreOnChain(in),
		Identity:          scoreIdentity(in),
		Social:            scoreSocial(in),
		Financial:         scoreFinancial(in),
		CollateralHistory: scoreCollateralHistory(in),
	}
	total := breakdown.OnChain.Total +
		breakdown.Identity.Total +
		breakdown.Social.Total +
		breakdown.Financial.Total +
		breakdown.CollateralHistory.Total
	if total < 0 {
		total = 0
	}
	if total > MaxScore {
		total = MaxScore
	}
	return Result{
		Score:         total,
		Breakdown:     breakdown,
		Tier:          TierFor(total),
		APR:           APR(total, SuggestedTerm, in.CollateralPercentage),
		MaxLoanAmount: MaxLoanAmount(total),
		Suggestions:   suggestions(in, breakdown),
	}
}

// TierFor buckets a score.
func TierFor(score int) Tier {
	switch {
	case score >= 750:
		return TierExcellent
	case score >= 600:
		return TierGood
	case score >= 450:
		return TierFair
	case score >= 300:
		return TierPoor
	default:
		return TierVeryPoor
	}
}

// APR returns the annual percentage rate, rounded to two decimals and
// clamped to [6, 35].
func APR(score int, termMonths uint64, collateralPercentage float64) float64 {
	var base float64
	switch {
	case score >= 750:
		base = 8
	case score >= 600:
		base = 12
	case score >= 450:
		base = 18
	default:
		base = 25
	}
	termPremium := (float64(termMonths) - 3) * 0.5
	collateralDiscount := collateralPercentage / 10
	apr := clamp(base+termPremium-collateralDiscount, minAPR, maxAPR)
	return roundHalfUp(apr*100) / 100
}

// InterestRateBps converts APR to the basis points CreateLoan expects.
func InterestRateBps(score int, termMonths uint64, collateralPercentage float64) uint64 {
	return uint64(roundHalfUp(APR(score, termMonths, collateralPercentage) * 100))
}

// MaxLoanAmount is the advisory ceiling, in whole units, for a score.
func MaxLoanAmount(score int) int {
	switch {
	case score >= 750:
		return 5000
	case score >= 600:
		return 3500
	case score >= 450:
		return 2000
	case score >= 300:
		return 1000
	default:
		return 500
	}
}

func scoreOnChain(in Input) OnChain {
	walletAge := clamp(in.WalletAgeDays/7.3, 0, 50)
	txCount := clamp(in.TxCount/2.5, 0, 40)
	consistency := clamp(in.TxFrequencyPerMonth*4, 0, 40)
	portfolio := clamp(in.PortfolioValue/20, 0, 50)
	defi := clamp(in.DefiProtocolsUsed*13.3, 0, 40)
	tokens := clamp(in.TokenCount*6, 0, 30)
	return OnChain{
		WalletAge:       round(walletAge),
		TxCount:         round(txCount),
		TxConsistency:   round(consistency),
		PortfolioValue:  round(portfolio),
		DefiInteraction: round(defi),
		TokenDiversity:  round(tokens),
		// The total rounds the unrounded sum, so it can differ from the sum
		// of the parts by one.
		Total: round(walletAge + txCount + consistency + portfolio + defi + tokens),
	}
}

func scoreIdentity(in Input) Identity {
	id := Identity{
		KYC:     points(in.KYCVerified, 100),
		Email:   points(in.EmailVerified, 30),
		Phone:   points(in.PhoneVerified, 30),
		Address: points(in.AddressVerified, 40),
	}
	id.Total = id.KYC + id.Email + id.Phone + id.Address
	return id
}

func scoreSocial(in Input) Social {
	var twitter float64
	if in.TwitterFollowers > 0 {
		twitter += clamp(in.TwitterFollowers/20, 0, 15)
		twitter += clamp(in.TwitterAccountAgeDays/73, 0, 15)
		if in.TwitterVerified {
			twitter += 20
		}
	}
	var linkedin float64
	if in.LinkedinConnections > 0 {
		linkedin += clamp(in.LinkedinConnections/10, 0, 25)
		linkedin += clamp(in.LinkedinEndorsements*5, 0, 25)
	}
	references := clamp(in.ReferencesCount*25, 0, 50)
	return Social{
		Twitter:    round(twitter),
		Linkedin:   round(linkedin),
		References: round(references),
		Total:      round(twitter + linkedin + references),
	}
}

func scoreFinancial(in Input) Financial {
	f := Financial{
		Employment: employmentPoints[strings.TrimSpace(in.EmploymentStatus)],
		Income:     incomePoints[strings.TrimSpace(in.IncomeRange)],
		DebtRatio:  60,
	}
	if in.ExistingDebt && in.MonthlyIncome > 0 {
		ratio := in.DebtAmount / (in.MonthlyIncome * 12)
		f.DebtRatio = round(clamp(60-ratio*120, 0, 60))
	}
	f.Total = f.Employment + f.Income + f.DebtRatio
	return f
}

func scoreCollateralHistory(in Input) CollateralHistory {
	c := CollateralHistory{
		Collateral:     round(clamp(in.CollateralPercentage*2.5, 0, 100)),
		PlatformTenure: round(clamp(in.PlatformTenureDays/7.3, 0, 50)),
	}
	if in.PreviousLoansCount > 0 {
		repaymentRate := in.PreviousLoansRepaid / in.PreviousLoansCount
		c.PreviousLoans = round(clamp(in.PreviousLoansCount*10, 0, 50) * repaymentRate)
	}
	c.Total = c.Collateral + c.PreviousLoans + c.PlatformTenure
	return c
}

func points(ok bool, value int) int {
	if ok {
		return value
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

func round(v float64) int {
	return int(roundHalfUp(v))
}
