package indexer

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

const (
	LoanBookCSV      = "loans.csv"
	LoanBookParquet  = "loans.parquet"
	ManifestFileName = "manifest.json"
)

var loanBookHeader = []string{
	"loan_id", "borrower", "amount", "interest_rate_bps", "term_months", "risk_score", "purpose", "status",
	"total_funded", "total_repaid", "monthly_payment", "platform_fee", "investments", "opened_at", "funded_at", "closed_at",
}

// ReportFile describes one artefact of a report run.
type ReportFile struct {
	Name   string `json:"name"`
	Bytes  int64  `json:"bytes"`
	Blake3 string `json:"blake3"`
}

// Manifest lists the files of a report and their digests.
type Manifest struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	Rows        int          `json:"rows"`
	Files       []ReportFile `json:"files"`
}

// ExportLoanBook writes the projected loan book into dir as CSV and Parquet
// together with a manifest.
func (ix *Indexer) ExportLoanBook(ctx context.Context, dir string, generatedAt time.Time) (*Manifest, error) {
	rows, err := ix.Loans(ctx, "")
	if err != nil {
		return nil, err
	}
	manifest, err := WriteReport(dir, rows, generatedAt)
	if err != nil {
		return nil, err
	}
	ix.logger.Info("loan book exported", "dir", dir, "rows", manifest.Rows)
	return manifest, nil
}

// WriteReport renders rows into dir and records a blake3 manifest over the
// written files.
func WriteReport(dir string, rows []LoanRow, generatedAt time.Time) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create dir: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, LoanBookCSV), rows); err != nil {
		return nil, err
	}
	if err := writeParquet(filepath.Join(dir, LoanBookParquet), rows); err != nil {
		return nil, err
	}
	manifest := &Manifest{GeneratedAt: generatedAt.UTC(), Rows: len(rows)}
	for _, name := range []string{LoanBookCSV, LoanBookParquet} {
		file, err := digestFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		manifest.Files = append(manifest.Files, file)
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), encoded, 0o644); err != nil {
		return nil, fmt.Errorf("report: write manifest: %w", err)
	}
	return manifest, nil
}

// VerifyReport recomputes the digests listed in dir's manifest.
func VerifyReport(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("report: read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("report: decode manifest: %w", err)
	}
	for _, want := range manifest.Files {
		got, err := digestFile(filepath.Join(dir, filepath.Base(want.Name)))
		if err != nil {
			return nil, err
		}
		if got.Blake3 != want.Blake3 || got.Bytes != want.Bytes {
			return nil, fmt.Errorf("report: %s does not match manifest", want.Name)
		}
	}
	return &manifest, nil
}

func digestFile(path string) (ReportFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return ReportFile{}, fmt.Errorf("report: open %s: %w", path, err)
	}
	defer file.Close()
	hasher := blake3.New(32, nil)
	n, err := io.Copy(hasher, file)
	if err != nil {
		return ReportFile{}, fmt.Errorf("report: hash %s: %w", path, err)
	}
	return ReportFile{
		Name:   filepath.Base(path),
		Bytes:  n,
		Blake3: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func writeCSV(path string, rows []LoanRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(loanBookHeader); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatUint(row.LoanID, 10),
			row.Borrower,
			row.Amount,
			strconv.FormatUint(row.InterestRateBps, 10),
			strconv.FormatUint(row.TermMonths, 10),
			strconv.FormatUint(row.RiskScore, 10),
			row.Purpose,
			row.Status,
			row.TotalFunded,
			row.TotalRepaid,
			row.MonthlyPayment,
			row.PlatformFee,
			strconv.Itoa(row.Investments),
			formatUnix(row.OpenedAt),
			formatUnix(row.FundedAt),
			formatUnix(row.ClosedAt),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

type parquetLoanRow struct {
	LoanID          int64  `parquet:"name=loan_id, type=INT64"`
	Borrower        string `parquet:"name=borrower, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount          string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	InterestRateBps int64  `parquet:"name=interest_rate_bps, type=INT64"`
	TermMonths      int32  `parquet:"name=term_months, type=INT32"`
	RiskScore       int64  `parquet:"name=risk_score, type=INT64"`
	Purpose         string `parquet:"name=purpose, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status          string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalFunded     string `parquet:"name=total_funded, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalRepaid     string `parquet:"name=total_repaid, type=BYTE_ARRAY, convertedtype=UTF8"`
	MonthlyPayment  string `parquet:"name=monthly_payment, type=BYTE_ARRAY, convertedtype=UTF8"`
	PlatformFee     string `parquet:"name=platform_fee, type=BYTE_ARRAY, convertedtype=UTF8"`
	Investments     int32  `parquet:"name=investments, type=INT32"`
	OpenedAt        int64  `parquet:"name=opened_at, type=INT64"`
	FundedAt        int64  `parquet:"name=funded_at, type=INT64"`
	ClosedAt        int64  `parquet:"name=closed_at, type=INT64"`
}

func writeParquet(path string, rows []LoanRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetLoanRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("report: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetLoanRow{
			LoanID:          int64(row.LoanID),
			Borrower:        row.Borrower,
			Amount:          row.Amount,
			InterestRateBps: int64(row.InterestRateBps),
			TermMonths:      int32(row.TermMonths),
			RiskScore:       int64(row.RiskScore),
			Purpose:         row.Purpose,
			Status:          row.Status,
			TotalFunded:     row.TotalFunded,
			TotalRepaid:     row.TotalRepaid,
			MonthlyPayment:  row.MonthlyPayment,
			PlatformFee:     row.PlatformFee,
			Investments:     int32(row.Investments),
			OpenedAt:        int64(row.OpenedAt),
			FundedAt:        int64(row.FundedAt),
			ClosedAt:        int64(row.ClosedAt),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("report: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("report: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("report: close parquet file: %w", err)
	}
	return nil
}

func formatUnix(ts uint64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}
