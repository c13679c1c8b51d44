package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trustflow/core/state"
	"trustflow/native/lending"
)

const catchUpBatch = 512

// Source is the committed event feed the indexer follows. *core.Node
// satisfies it.
type Source interface {
	Events(cursor uint64, limit int, eventType string) ([]*state.EventRecord, error)
	SubscribeEvents(ctx context.Context, cursor uint64) (<-chan *state.EventRecord, func(), []*state.EventRecord, error)
}

// Indexer projects ledger events into SQL tables for reporting.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger.With("component", "indexer")}, nil
}

// DB exposes the underlying handle for ad-hoc queries.
func (ix *Indexer) DB() *gorm.DB {
	return ix.db
}

// NextSequence returns the first event sequence not yet indexed.
func (ix *Indexer) NextSequence(ctx context.Context) (uint64, error) {
	var row EventRow
	res := ix.db.WithContext(ctx).Order("sequence desc").Limit(1).Find(&row)
	if res.Error != nil {
		return 0, fmt.Errorf("indexer: read cursor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}
	return row.Sequence + 1, nil
}

// Run follows src until ctx is cancelled. It resumes from the last indexed
// sequence, catches up from the log and then consumes the live feed. A gap
// in the live feed, which happens when the subscriber falls behind, causes
// a fresh catch-up from the log.
func (ix *Indexer) Run(ctx context.Context, src Source) error {
	if src == nil {
		return fmt.Errorf("indexer: source required")
	}
	for {
		next, err := ix.catchUp(ctx, src)
		if err != nil {
			return err
		}
		updates, cancel, backlog, err := src.SubscribeEvents(ctx, next)
		if err != nil {
			return fmt.Errorf("indexer: subscribe: %w", err)
		}
		resync, err := ix.follow(ctx, updates, backlog, next)
		cancel()
		if err != nil {
			return err
		}
		if !resync {
			return ctx.Err()
		}
		ix.logger.Warn("indexer fell behind the live feed, resyncing")
	}
}

// Sync indexes every committed event not yet stored and returns the next
// sequence.
func (ix *Indexer) Sync(ctx context.Context, src Source) (uint64, error) {
	return ix.catchUp(ctx, src)
}

func (ix *Indexer) catchUp(ctx context.Context, src Source) (uint64, error) {
	next, err := ix.NextSequence(ctx)
	if err != nil {
		return 0, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return next, err
		}
		records, err := src.Events(next, catchUpBatch, "")
		if err != nil {
			return next, fmt.Errorf("indexer: read events from %d: %w", next, err)
		}
		if len(records) == 0 {
			return next, nil
		}
		for _, record := range records {
			if err := ix.Apply(ctx, record); err != nil {
				return next, err
			}
			next = record.Sequence + 1
		}
	}
}

func (ix *Indexer) follow(ctx context.Context, updates <-chan *state.EventRecord, backlog []*state.EventRecord, next uint64) (bool, error) {
	consume := func(record *state.EventRecord) (bool, error) {
		if record == nil || record.Sequence < next {
			return false, nil
		}
		if record.Sequence > next {
			return true, nil
		}
		if err := ix.Apply(ctx, record); err != nil {
			return false, err
		}
		next++
		return false, nil
	}
	for _, record := range backlog {
		if gap, err := consume(record); gap || err != nil {
			return gap, err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case record, ok := <-updates:
			if !ok {
				return ctx.Err() == nil, nil
			}
			if gap, err := consume(record); gap || err != nil {
				return gap, err
			}
		}
	}
}

// Apply stores one event and folds it into the loan book. Re-applying an
// indexed sequence is a no-op.
func (ix *Indexer) Apply(ctx context.Context, record *state.EventRecord) error {
	if record == nil {
		return nil
	}
	attrs, err := json.Marshal(record.Event().Attributes)
	if err != nil {
		return fmt.Errorf("indexer: encode attributes: %w", err)
	}
	row := EventRow{
		ID:         uuid.New(),
		Sequence:   record.Sequence,
		TxHash:     "0x" + hex.EncodeToString(record.TxHash[:]),
		Type:       record.Type,
		Attributes: string(attrs),
		Timestamp:  record.Timestamp,
	}
	loanID, hasLoan, err := loanIDOf(record)
	if err != nil {
		return err
	}
	if hasLoan {
		row.LoanID = &loanID
	}
	err = ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sequence"}}, DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || !hasLoan {
			return nil
		}
		return projectLoan(tx, record, loanID)
	})
	if err != nil {
		return fmt.Errorf("indexer: apply event %d: %w", record.Sequence, err)
	}
	ix.logger.Debug("indexed event", "sequence", record.Sequence, "type", record.Type)
	return nil
}

func loanIDOf(record *state.EventRecord) (uint64, bool, error) {
	raw := record.Attribute("loanId")
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("indexer: event %d has malformed loanId %q", record.Sequence, raw)
	}
	return id, true, nil
}

func projectLoan(tx *gorm.DB, record *state.EventRecord, loanID uint64) error {
	attr := record.Attribute
	if record.Type == lending.EventTypeLoanCreated {
		loan := LoanRow{
			ID:              uuid.New(),
			LoanID:          loanID,
			Borrower:        attr("borrower"),
			Amount:          orZero(attr("amount")),
			InterestRateBps: parseUint(attr("interestRateBps")),
			TermMonths:      parseUint(attr("termMonths")),
			RiskScore:       parseUint(attr("riskScore")),
			Purpose:         attr("purpose"),
			Status:          lending.LoanStatusPending.String(),
			TotalFunded:     "0",
			TotalRepaid:     "0",
			MonthlyPayment:  "0",
			PlatformFee:     "0",
			OpenedAt:        record.Timestamp,
		}
		return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "loan_id"}}, DoNothing: true}).Create(&loan).Error
	}

	updates := map[string]interface{}{}
	switch record.Type {
	case lending.EventTypeLoanApproved:
		updates["status"] = lending.LoanStatusApproved.String()
		updates["monthly_payment"] = orZero(attr("monthlyPayment"))
	case lending.EventTypeLoanRejected:
		updates["status"] = lending.LoanStatusRejected.String()
		updates["closed_at"] = record.Timestamp
	case lending.EventTypeLoanFunded:
		updates["status"] = lending.LoanStatusFunding.String()
		updates["total_funded"] = orZero(attr("totalFunded"))
		updates["investments"] = gorm.Expr("investments + ?", 1)
	case lending.EventTypeLoanActivated:
		updates["status"] = lending.LoanStatusActive.String()
		updates["total_funded"] = orZero(attr("totalFunded"))
		updates["platform_fee"] = orZero(attr("platformFee"))
		updates["funded_at"] = parseUint(attr("fundedAt"))
	case lending.EventTypeLoanRepayment:
		updates["total_repaid"] = orZero(attr("totalRepaid"))
	case lending.EventTypeLoanFullyRepaid:
		updates["status"] = lending.LoanStatusRepaid.String()
		updates["total_repaid"] = orZero(attr("totalRepaid"))
		updates["closed_at"] = record.Timestamp
	case lending.EventTypeLoanDefaulted:
		updates["status"] = lending.LoanStatusDefaulted.String()
		updates["closed_at"] = record.Timestamp
	default:
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := tx.Model(&LoanRow{}).Where("loan_id = ?", loanID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event %d references unknown loan %d", record.Sequence, loanID)
	}
	return nil
}

// Loans returns the projected loan book in id order, optionally filtered by
// status name.
func (ix *Indexer) Loans(ctx context.Context, status string) ([]LoanRow, error) {
	query := ix.db.WithContext(ctx).Order("loan_id asc")
	if status != "" {
		parsed, err := lending.ParseLoanStatus(status)
		if err != nil {
			return nil, err
		}
		query = query.Where("status = ?", parsed.String())
	}
	var rows []LoanRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("indexer: list loans: %w", err)
	}
	return rows, nil
}

// LoanEvents returns the indexed history of one loan in sequence order.
func (ix *Indexer) LoanEvents(ctx context.Context, loanID uint64) ([]EventRow, error) {
	var rows []EventRow
	err := ix.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("sequence asc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: loan %d events: %w", loanID, err)
	}
	return rows, nil
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func parseUint(v string) uint64 {
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
