// Package parser turns one archive's classified contents into the canonical
// bundle of meta info, debtor records, per-debtor treatment lines, and the
// shared practitioner record. Two source encodings are supported
// transparently: a positional delimited-text pair and an attribute-driven
// XML document.
package parser

import (
	"github.com/fakturo/fakturo/internal/archive"
	"github.com/fakturo/fakturo/internal/errors"
	"github.com/fakturo/fakturo/internal/types"
)

// Parse builds a bundle from an archive's contents. The meta descriptor is
// required. When both data formats are present the XML document wins.
// Field-level coercion failures degrade to absent fields; only structural
// problems (missing entries, corrupt containers) return an error.
func Parse(archiveName string, contents *archive.Contents) (*types.Bundle, error) {
	if contents.Meta == nil {
		return nil, errors.ErrMetaMissing(archiveName)
	}

	meta, err := parseMeta(archiveName, contents.Meta)
	if err != nil {
		return nil, err
	}

	var bundle *types.Bundle
	switch {
	case contents.HasNotes():
		bundle, err = parseNotesXML(archiveName, contents.NotesXML)
	case contents.HasDelimited():
		bundle, err = parseDelimited(archiveName, contents.DebtorText, contents.SpecText)
	default:
		return nil, errors.ErrNoDataFormat(archiveName)
	}
	if err != nil {
		return nil, err
	}

	bundle.Meta = meta

	if bundle.Practitioner != nil {
		bundle.Practitioner.Normalize()
	}

	// Records without their own document-type code inherit the bundle's.
	for _, debtor := range bundle.Debtors.All() {
		if debtor.DocumentType == "" {
			debtor.DocumentType = meta.DocumentType
		}
	}

	return bundle, nil
}
