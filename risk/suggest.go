package risk

import "fmt"

const maxSuggestions = 5

// suggestions lists the cheapest improvements first, capped at five.
func suggestions(in Input, b Breakdown) []string {
	out := make([]string, 0, maxSuggestions)
	add := func(s string) {
		if len(out) < maxSuggestions {
			out = append(out, s)
		}
	}
	if !in.KYCVerified {
		add("Complete KYC verification to earn up to 100 points and unlock better loan terms.")
	}
	if !in.EmailVerified {
		add("Verify your email address to earn 30 points.")
	}
	if !in.PhoneVerified {
		add("Add and verify your phone number for 30 points.")
	}
	if b.Social.Twitter < 30 {
		add("Connect your Twitter account to boost your social verification score by up to 50 points.")
	}
	if b.Social.Linkedin < 30 {
		add("Link your LinkedIn profile to add up to 50 points to your social score.")
	}
	if in.CollateralPercentage < 20 {
		add(fmt.Sprintf("Increase your collateral to 20%% to improve your rate by ~2%% and add %d points.",
			round((20-in.CollateralPercentage)*2.5)))
	}
	if b.OnChain.Total < 150 {
		add("Increase on-chain activity: make more DeFi transactions and diversify your token holdings.")
	}
	if in.ReferencesCount < 2 {
		add("Add 2 references to earn up to 50 points in social verification.")
	}
	return out
}
