package lending

const (
	// ModuleName identifies the ledger for pause guards, metrics and the
	// custody address.
	ModuleName = "lending"

	// DefaultPlatformFeeBps is applied when genesis does not set a fee.
	DefaultPlatformFeeBps uint64 = 150
	// MaxPlatformFeeBps is the hard ceiling on the platform fee (5%).
	MaxPlatformFeeBps uint64 = 500

	MinTermMonths uint64 = 1
	MaxTermMonths uint64 = 24
)
