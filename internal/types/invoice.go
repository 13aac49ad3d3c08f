// Package types provides the canonical invoice data model shared by the
// parser, template engine, and processor. This package contains shared types
// to avoid circular dependencies between packages.
package types

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the day-month-year pattern used by both source encodings.
const DateLayout = "02-01-2006"

// FieldResolver is implemented by record types that expose their fields to
// the template engine by name. Resolution returns false when the field is
// unknown, which renders as an empty string rather than an error.
type FieldResolver interface {
	Field(name string) (interface{}, bool)
}

// MetaInfo describes the meta descriptor shipped with every archive: the
// document-type code selected for the bundle, the declared record count for
// that type, and the declared total amount in minor currency units.
type MetaInfo struct {
	// DocumentType is the code of the first type line with a count > 0
	DocumentType string
	// RecordCount is the declared number of records for DocumentType
	RecordCount int
	// TotalCents is the declared total amount in minor currency units
	TotalCents int64
}

// Field implements FieldResolver.
func (m MetaInfo) Field(name string) (interface{}, bool) {
	switch name {
	case "documentType":
		return m.DocumentType, true
	case "recordCount":
		return strconv.Itoa(m.RecordCount), true
	case "totalAmount":
		return FormatCents(m.TotalCents), true
	default:
		return nil, false
	}
}

// Debtor is one invoice recipient. Monetary amounts are integer minor
// currency units; dates use the zero value for "absent".
type Debtor struct {
	// InvoiceNumber is the human-facing invoice identifier
	InvoiceNumber string
	// JoinKey correlates the debtor with its treatment lines
	JoinKey string
	// PatientName is the full patient name
	PatientName string
	// PatientInitials holds the patient's initials, if known
	PatientInitials string
	// BirthDate is the patient's date of birth (zero when absent)
	BirthDate time.Time
	// Street, PostalCode, and City form the postal address
	Street     string
	PostalCode string
	City       string
	// Insurer names the health insurer, if any
	Insurer string
	// PeriodStart and PeriodEnd bound the billing period
	PeriodStart time.Time
	PeriodEnd   time.Time
	// DocumentType is the per-record document-type code
	DocumentType string
	// TotalCents is the invoice total in minor currency units
	TotalCents int64
	// VATCents is the VAT portion in minor currency units
	VATCents int64
	// ImageRef is an optional image or tracking reference
	ImageRef string
}

// Field implements FieldResolver.
func (d *Debtor) Field(name string) (interface{}, bool) {
	switch name {
	case "invoiceNumber":
		return d.InvoiceNumber, true
	case "joinKey":
		return d.JoinKey, true
	case "patientName":
		return d.PatientName, true
	case "patientInitials":
		return d.PatientInitials, true
	case "birthDate":
		return FormatDate(d.BirthDate), true
	case "street":
		return d.Street, true
	case "postalCode":
		return d.PostalCode, true
	case "city":
		return d.City, true
	case "insurer":
		return d.Insurer, true
	case "periodStart":
		return FormatDate(d.PeriodStart), true
	case "periodEnd":
		return FormatDate(d.PeriodEnd), true
	case "documentType":
		return d.DocumentType, true
	case "totalAmount":
		return FormatCents(d.TotalCents), true
	case "vatAmount":
		return FormatCents(d.VATCents), true
	case "imageRef":
		return d.ImageRef, true
	default:
		return nil, false
	}
}

// TreatmentLine is one billable item on an invoice.
type TreatmentLine struct {
	// JoinKey correlates the line with its debtor
	JoinKey string
	// Date is the treatment date (zero when absent)
	Date time.Time
	// Code is the billing code for the treatment
	Code string
	// Description is the human-readable treatment description
	Description string
	// AmountCents is the line amount in minor currency units
	AmountCents int64
	// ProviderRef identifies the treating provider
	ProviderRef string
	// VATCode carries the tax indicator for the line
	VATCode string
}

// Field implements FieldResolver.
func (t *TreatmentLine) Field(name string) (interface{}, bool) {
	switch name {
	case "joinKey":
		return t.JoinKey, true
	case "date":
		return FormatDate(t.Date), true
	case "code":
		return t.Code, true
	case "description":
		return t.Description, true
	case "amount":
		return FormatCents(t.AmountCents), true
	case "providerRef":
		return t.ProviderRef, true
	case "vatCode":
		return t.VATCode, true
	default:
		return nil, false
	}
}

// Practitioner is the issuer identity shared by every invoice in a bundle.
type Practitioner struct {
	// Name is the practitioner or practice name
	Name string
	// OfficialCode is the registered practitioner code
	OfficialCode string
	// PracticeCode identifies the practice location
	PracticeCode string
	// Phone is the practice phone number
	Phone string
	// Street, PostalCode, and City form the postal address
	Street     string
	PostalCode string
	City       string
	// LogoRef references the practice logo asset
	LogoRef string
}

// Normalize replaces absent string fields with empty strings so template
// resolution never leaks placeholder literals for missing issuer data.
func (p *Practitioner) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.OfficialCode = strings.TrimSpace(p.OfficialCode)
	p.PracticeCode = strings.TrimSpace(p.PracticeCode)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Street = strings.TrimSpace(p.Street)
	p.PostalCode = strings.TrimSpace(p.PostalCode)
	p.City = strings.TrimSpace(p.City)
	p.LogoRef = strings.TrimSpace(p.LogoRef)
}

// Field implements FieldResolver.
func (p *Practitioner) Field(name string) (interface{}, bool) {
	switch name {
	case "name":
		return p.Name, true
	case "officialCode":
		return p.OfficialCode, true
	case "practiceCode":
		return p.PracticeCode, true
	case "phone":
		return p.Phone, true
	case "street":
		return p.Street, true
	case "postalCode":
		return p.PostalCode, true
	case "city":
		return p.City, true
	case "logoRef":
		return p.LogoRef, true
	default:
		return nil, false
	}
}

// Bundle is the canonical in-memory form of one archive: the meta descriptor,
// the debtor records in insertion order, the treatment lines grouped by join
// key, and the shared practitioner record (nil when the source omits it).
//
// Treatment lines without a matching debtor are retained in Treatments but
// never rendered.
type Bundle struct {
	Meta         MetaInfo
	Debtors      *DebtorSet
	Treatments   map[string][]*TreatmentLine
	Practitioner *Practitioner
}

// NewBundle returns an empty bundle ready for population.
func NewBundle() *Bundle {
	return &Bundle{
		Debtors:    NewDebtorSet(),
		Treatments: make(map[string][]*TreatmentLine),
	}
}

// Lines returns the treatment lines joined to the given debtor, in source
// order.
func (b *Bundle) Lines(d *Debtor) []*TreatmentLine {
	return b.Treatments[d.JoinKey]
}

// DebtorSet is a join-key-addressed collection of debtors that preserves
// insertion order. Every join key is unique within a set; re-adding a key
// overwrites the record in place without changing its position.
type DebtorSet struct {
	order []string
	byKey map[string]*Debtor
}

// NewDebtorSet returns an empty debtor set.
func NewDebtorSet() *DebtorSet {
	return &DebtorSet{byKey: make(map[string]*Debtor)}
}

// Put inserts or replaces the debtor under its join key.
func (s *DebtorSet) Put(d *Debtor) {
	if _, exists := s.byKey[d.JoinKey]; !exists {
		s.order = append(s.order, d.JoinKey)
	}
	s.byKey[d.JoinKey] = d
}

// Get returns the debtor for the given join key.
func (s *DebtorSet) Get(joinKey string) (*Debtor, bool) {
	d, ok := s.byKey[joinKey]
	return d, ok
}

// Len returns the number of debtors in the set.
func (s *DebtorSet) Len() int {
	return len(s.order)
}

// All returns the debtors in insertion order.
func (s *DebtorSet) All() []*Debtor {
	out := make([]*Debtor, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byKey[key])
	}
	return out
}

// FormatCents renders minor currency units as a comma-decimal amount, the
// notation used by the upstream systems (e.g. 15000 -> "150,00").
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + strconv.FormatInt(cents/100, 10) + "," + pad2(cents%100)
}

// FormatDate renders a date in the fixed day-month-year pattern, or an empty
// string for the zero value.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
