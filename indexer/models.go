package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRow mirrors one committed ledger event.
type EventRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex"`
	TxHash     string    `gorm:"size:66;index"`
	Type       string    `gorm:"size:64;index"`
	LoanID     *uint64   `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	Timestamp  uint64
	CreatedAt  time.Time
}

// LoanRow is the off-chain projection of a loan, rebuilt from events.
// Amounts are decimal strings of base units.
type LoanRow struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	LoanID          uint64    `gorm:"uniqueIndex"`
	Borrower        string    `gorm:"size:64;index"`
	Amount          string    `gorm:"size:80"`
	InterestRateBps uint64
	TermMonths      uint64
	RiskScore       uint64
	Purpose         string
	Status          string `gorm:"size:16;index"`
	TotalFunded     string `gorm:"size:80"`
	TotalRepaid     string `gorm:"size:80"`
	MonthlyPayment  string `gorm:"size:80"`
	PlatformFee     string `gorm:"size:80"`
	Investments     int
	OpenedAt        uint64
	FundedAt        uint64
	ClosedAt        uint64
	UpdatedAt       time.Time
}

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRow{}, &LoanRow{})
}
