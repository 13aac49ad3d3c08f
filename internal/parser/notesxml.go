package parser

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/fakturo/fakturo/internal/errors"
	"github.com/fakturo/fakturo/internal/types"
)

// XML format: one attribute-driven notes document, parsed as a token stream
// over a shallow element hierarchy. Element order is semantically
// significant: an address element encountered before any invoice section
// belongs to the practitioner; inside a section it belongs to that section's
// debtor.
//
// Elements:
//
//	<notas>                 document root
//	  <praktijk .../>       practitioner identity attributes
//	  <adres .../>          address; attribution depends on position
//	  <nota .../>           one invoice section; attributes are the header
//	    <patient .../>      creates or overwrites the section's debtor
//	    <adres .../>        the debtor's address
//	    <regel .../>        appends one treatment line
//	  </nota>
//	</notas>
//
// Malformed or missing attributes degrade to absent fields; only XML syntax
// errors abort the document.
func parseNotesXML(archiveName string, data []byte) (*types.Bundle, error) {
	bundle := types.NewBundle()

	decoder := xml.NewDecoder(bytes.NewReader(data))

	var current *types.Debtor

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewParseError(errors.ErrCodeArchiveCorrupt,
				"decoding notes document", err).WithArchive(archiveName, "")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "praktijk":
				bundle.Practitioner = practitionerFromAttrs(t.Attr, bundle.Practitioner)

			case "adres":
				if current != nil {
					attachDebtorAddress(current, t.Attr)
				} else {
					if bundle.Practitioner == nil {
						bundle.Practitioner = &types.Practitioner{}
					}
					attachPractitionerAddress(bundle.Practitioner, t.Attr)
				}

			case "nota":
				current = debtorFromHeaderAttrs(t.Attr)

			case "patient":
				if current != nil {
					attachPatient(current, t.Attr)
				}

			case "regel":
				if current != nil && current.JoinKey != "" {
					bundle.Treatments[current.JoinKey] = append(
						bundle.Treatments[current.JoinKey],
						treatmentFromAttrs(current.JoinKey, t.Attr),
					)
				}
			}

		case xml.EndElement:
			if t.Name.Local == "nota" && current != nil {
				if current.JoinKey != "" {
					bundle.Debtors.Put(current)
				}
				current = nil
			}
		}
	}

	return bundle, nil
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func practitionerFromAttrs(attrs []xml.Attr, existing *types.Practitioner) *types.Practitioner {
	p := existing
	if p == nil {
		p = &types.Practitioner{}
	}

	p.Name = attrValue(attrs, "naam")
	p.OfficialCode = attrValue(attrs, "agb")
	p.PracticeCode = attrValue(attrs, "praktijkcode")
	p.Phone = attrValue(attrs, "telefoon")
	p.LogoRef = attrValue(attrs, "logo")

	return p
}

func attachPractitionerAddress(p *types.Practitioner, attrs []xml.Attr) {
	p.Street = attrValue(attrs, "straat")
	p.PostalCode = attrValue(attrs, "postcode")
	p.City = attrValue(attrs, "plaats")
}

func debtorFromHeaderAttrs(attrs []xml.Attr) *types.Debtor {
	debtor := &types.Debtor{
		InvoiceNumber: attrValue(attrs, "nummer"),
		JoinKey:       attrValue(attrs, "debiteur"),
		DocumentType:  attrValue(attrs, "type"),
		PeriodStart:   parseDate(attrValue(attrs, "periodevan")),
		PeriodEnd:     parseDate(attrValue(attrs, "periodetm")),
		ImageRef:      attrValue(attrs, "kenmerk"),
	}

	// Delimited sources use the invoice number as the join key; an XML
	// header missing the explicit key falls back the same way.
	if debtor.JoinKey == "" {
		debtor.JoinKey = debtor.InvoiceNumber
	}

	if cents, ok := parseCents(attrValue(attrs, "bedrag")); ok {
		debtor.TotalCents = cents
	}
	if cents, ok := parseCents(attrValue(attrs, "btw")); ok {
		debtor.VATCents = cents
	}

	return debtor
}

func attachPatient(debtor *types.Debtor, attrs []xml.Attr) {
	debtor.PatientName = attrValue(attrs, "naam")
	debtor.PatientInitials = attrValue(attrs, "voorletters")
	debtor.BirthDate = parseDate(attrValue(attrs, "geboortedatum"))
	debtor.Insurer = attrValue(attrs, "verzekeraar")
}

func attachDebtorAddress(debtor *types.Debtor, attrs []xml.Attr) {
	debtor.Street = attrValue(attrs, "straat")
	debtor.PostalCode = attrValue(attrs, "postcode")
	debtor.City = attrValue(attrs, "plaats")
}

func treatmentFromAttrs(joinKey string, attrs []xml.Attr) *types.TreatmentLine {
	line := &types.TreatmentLine{
		JoinKey:     joinKey,
		Date:        parseDate(attrValue(attrs, "datum")),
		Code:        attrValue(attrs, "code"),
		Description: attrValue(attrs, "omschrijving"),
		ProviderRef: attrValue(attrs, "behandelaar"),
		VATCode:     attrValue(attrs, "btwcode"),
	}

	if cents, ok := parseCents(attrValue(attrs, "bedrag")); ok {
		line.AmountCents = cents
	}

	return line
}
