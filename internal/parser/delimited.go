package parser

import (
	"bytes"
	"encoding/csv"
	"io"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/fakturo/fakturo/internal/errors"
	"github.com/fakturo/fakturo/internal/types"
)

// Delimited-text format: two parallel semicolon-delimited files with no
// header row and fixed zero-based column positions. The upstream exporter
// writes Latin-1, so both files are decoded through the ISO 8859-1 charmap
// before parsing.

// Debtor file columns. The last row of the file is the practitioner record
// and uses the prac* layout instead.
const (
	debColInvoiceNumber   = 0 // doubles as the join key
	debColPatientName     = 1
	debColPatientInitials = 2
	debColBirthDate       = 3
	debColStreet          = 4
	debColPostalCode      = 5
	debColCity            = 6
	debColInsurer         = 7
	debColPeriodStart     = 8
	debColPeriodEnd       = 9
	debColDocumentType    = 10
	debColTotalAmount     = 11
	debColVATAmount       = 12
	debColImageRef        = 13
)

// Practitioner row columns.
const (
	pracColName         = 1
	pracColOfficialCode = 2
	pracColPracticeCode = 3
	pracColPhone        = 4
	pracColStreet       = 5
	pracColPostalCode   = 6
	pracColCity         = 7
	pracColLogoRef      = 8
)

// Specification file columns, grouped by the join key in the first column.
const (
	specColJoinKey     = 0
	specColDate        = 1
	specColDescription = 2
	specColProviderRef = 3
	specColCode        = 4
	specColAmount      = 5
	specColVATCode     = 6
)

// parseDelimited builds a bundle from the debtor/specification text pair.
func parseDelimited(archiveName string, debtorData, specData []byte) (*types.Bundle, error) {
	bundle := types.NewBundle()

	debtorRows, err := readDelimitedRows(debtorData)
	if err != nil {
		return nil, errors.NewParseError(errors.ErrCodeArchiveCorrupt,
			"reading debtor file", err).WithArchive(archiveName, "")
	}

	specRows, err := readDelimitedRows(specData)
	if err != nil {
		return nil, errors.NewParseError(errors.ErrCodeArchiveCorrupt,
			"reading specification file", err).WithArchive(archiveName, "")
	}

	for i, row := range debtorRows {
		if i == len(debtorRows)-1 {
			// The debtor file's last row is the practitioner record.
			bundle.Practitioner = practitionerFromRow(row)
			break
		}

		debtor := debtorFromRow(row)
		if debtor.JoinKey == "" {
			// Blank join key drops the row, not the rest of the file.
			continue
		}
		bundle.Debtors.Put(debtor)
	}

	for _, row := range specRows {
		joinKey := column(row, specColJoinKey)
		if joinKey == "" {
			continue
		}
		bundle.Treatments[joinKey] = append(bundle.Treatments[joinKey], treatmentFromRow(joinKey, row))
	}

	return bundle, nil
}

func readDelimitedRows(data []byte) ([][]string, error) {
	decoded := transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder())

	reader := csv.NewReader(decoded)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func debtorFromRow(row []string) *types.Debtor {
	invoiceNumber := column(row, debColInvoiceNumber)

	debtor := &types.Debtor{
		InvoiceNumber:   invoiceNumber,
		JoinKey:         invoiceNumber,
		PatientName:     column(row, debColPatientName),
		PatientInitials: column(row, debColPatientInitials),
		BirthDate:       parseDate(column(row, debColBirthDate)),
		Street:          column(row, debColStreet),
		PostalCode:      column(row, debColPostalCode),
		City:            column(row, debColCity),
		Insurer:         column(row, debColInsurer),
		PeriodStart:     parseDate(column(row, debColPeriodStart)),
		PeriodEnd:       parseDate(column(row, debColPeriodEnd)),
		DocumentType:    column(row, debColDocumentType),
		ImageRef:        column(row, debColImageRef),
	}

	if cents, ok := parseCents(column(row, debColTotalAmount)); ok {
		debtor.TotalCents = cents
	}
	if cents, ok := parseCents(column(row, debColVATAmount)); ok {
		debtor.VATCents = cents
	}

	return debtor
}

func practitionerFromRow(row []string) *types.Practitioner {
	p := &types.Practitioner{
		Name:         column(row, pracColName),
		OfficialCode: column(row, pracColOfficialCode),
		PracticeCode: column(row, pracColPracticeCode),
		Phone:        column(row, pracColPhone),
		Street:       column(row, pracColStreet),
		PostalCode:   column(row, pracColPostalCode),
		City:         column(row, pracColCity),
		LogoRef:      column(row, pracColLogoRef),
	}
	p.Normalize()
	return p
}

func treatmentFromRow(joinKey string, row []string) *types.TreatmentLine {
	line := &types.TreatmentLine{
		JoinKey:     joinKey,
		Date:        parseDate(column(row, specColDate)),
		Description: column(row, specColDescription),
		ProviderRef: column(row, specColProviderRef),
		Code:        column(row, specColCode),
		VATCode:     column(row, specColVATCode),
	}

	if cents, ok := parseCents(column(row, specColAmount)); ok {
		line.AmountCents = cents
	}

	return line
}
