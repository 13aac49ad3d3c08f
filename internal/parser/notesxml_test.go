package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fakturo/fakturo/internal/errors"
)

const notesDoc = `<?xml version="1.0"?>
<notas>
  <praktijk naam="Praktijk Jansen" agb="01234567" praktijkcode="PRK01" telefoon="030-1234567" logo="logo.png"/>
  <adres straat="Dorpsstraat 1" postcode="3500 AA" plaats="Utrecht"/>
  <nota nummer="F2024-001" debiteur="INV123" type="20" bedrag="150,00" btw="0,00" periodevan="01-01-2024" periodetm="31-01-2024">
    <patient naam="J. Jansen" voorletters="J." geboortedatum="01-02-1980" verzekeraar="VGZ"/>
    <adres straat="Kerkstraat 2" postcode="3511 AB" plaats="Utrecht"/>
    <regel datum="15-01-2024" code="4250" omschrijving="Behandeling" bedrag="42,50" behandelaar="T01"/>
    <regel datum="16-01-2024" code="4251" omschrijving="Nabehandeling" bedrag="21,25" behandelaar="T01"/>
  </nota>
  <nota nummer="F2024-002" debiteur="INV124" type="20" bedrag="80,00">
    <patient naam="P. de Vries"/>
  </nota>
</notas>`

func TestParseNotesXML(t *testing.T) {
	bundle, err := parseNotesXML("a.zip", []byte(notesDoc))
	require.NoError(t, err)

	require.NotNil(t, bundle.Practitioner)
	assert.Equal(t, "Praktijk Jansen", bundle.Practitioner.Name)
	assert.Equal(t, "Dorpsstraat 1", bundle.Practitioner.Street)

	require.Equal(t, 2, bundle.Debtors.Len())

	first, ok := bundle.Debtors.Get("INV123")
	require.True(t, ok)
	assert.Equal(t, "F2024-001", first.InvoiceNumber)
	assert.Equal(t, "J. Jansen", first.PatientName)
	assert.Equal(t, "Kerkstraat 2", first.Street)
	assert.Equal(t, int64(15000), first.TotalCents)
	assert.Equal(t, "VGZ", first.Insurer)

	lines := bundle.Lines(first)
	require.Len(t, lines, 2)
	assert.Equal(t, "4250", lines[0].Code)
	assert.Equal(t, int64(4250), lines[0].AmountCents)
	assert.Equal(t, "Nabehandeling", lines[1].Description)

	second, ok := bundle.Debtors.Get("INV124")
	require.True(t, ok)
	assert.Equal(t, "P. de Vries", second.PatientName)
	// Missing attributes degrade to absent fields.
	assert.Equal(t, "", second.Street)
	assert.True(t, second.PeriodStart.IsZero())
}

// An address before any invoice section belongs to the practitioner; inside
// a section it belongs to that debtor. Order of appearance is semantically
// significant.
func TestAddressAttributionByOrder(t *testing.T) {
	doc := `<notas>
  <adres straat="Praktijkstraat 9" postcode="1000 AA" plaats="Amsterdam"/>
  <nota nummer="F1" debiteur="K1">
    <patient naam="X"/>
    <adres straat="Klantweg 3" postcode="2000 BB" plaats="Rotterdam"/>
  </nota>
</notas>`

	bundle, err := parseNotesXML("a.zip", []byte(doc))
	require.NoError(t, err)

	require.NotNil(t, bundle.Practitioner)
	assert.Equal(t, "Praktijkstraat 9", bundle.Practitioner.Street)

	debtor, _ := bundle.Debtors.Get("K1")
	assert.Equal(t, "Klantweg 3", debtor.Street)
}

func TestPatientOverwritesDebtorRecord(t *testing.T) {
	doc := `<notas>
  <nota nummer="F1" debiteur="K1">
    <patient naam="First"/>
    <patient naam="Second"/>
  </nota>
</notas>`

	bundle, err := parseNotesXML("a.zip", []byte(doc))
	require.NoError(t, err)

	debtor, ok := bundle.Debtors.Get("K1")
	require.True(t, ok)
	assert.Equal(t, "Second", debtor.PatientName)
}

func TestJoinKeyFallsBackToInvoiceNumber(t *testing.T) {
	doc := `<notas>
  <nota nummer="F9">
    <patient naam="X"/>
    <regel code="1" bedrag="5,00"/>
  </nota>
</notas>`

	bundle, err := parseNotesXML("a.zip", []byte(doc))
	require.NoError(t, err)

	debtor, ok := bundle.Debtors.Get("F9")
	require.True(t, ok)
	assert.Len(t, bundle.Lines(debtor), 1)
}

func TestMalformedMoneyAttributeDegrades(t *testing.T) {
	doc := `<notas>
  <nota nummer="F1" debiteur="K1" bedrag="not-money">
    <patient naam="X"/>
  </nota>
</notas>`

	bundle, err := parseNotesXML("a.zip", []byte(doc))
	require.NoError(t, err)

	debtor, _ := bundle.Debtors.Get("K1")
	assert.Equal(t, int64(0), debtor.TotalCents)
}

func TestSyntaxErrorAborts(t *testing.T) {
	_, err := parseNotesXML("a.zip", []byte("<notas><nota></notas>"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsParseError(err))
}
