// Package archive handles the input containers: extracting and classifying
// their entries, and moving processed archives to the archive or error
// directory.
package archive

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/fakturo/fakturo/internal/errors"
)

// Entry suffixes fixed by the input contract.
const (
	MetaSuffix   = "meta.txt"
	DebtorSuffix = "debtors.txt"
	SpecSuffix   = "specifications.txt"
	NotesSuffix  = "notes.xml"
)

// maxEntryBytes caps a single decompressed entry to keep a hostile or
// corrupt archive from exhausting memory.
const maxEntryBytes = 64 * 1024 * 1024

// Contents holds the classified entries of one archive. Absent entries are
// nil; presence decisions belong to the parser.
type Contents struct {
	// Meta is the meta descriptor entry
	Meta []byte
	// DebtorText and SpecText form the delimited-text pair
	DebtorText []byte
	SpecText   []byte
	// NotesXML is the attribute-driven XML document
	NotesXML []byte
}

// HasDelimited reports whether the delimited-text pair is complete.
func (c *Contents) HasDelimited() bool {
	return c.DebtorText != nil && c.SpecText != nil
}

// HasNotes reports whether the XML document is present.
func (c *Contents) HasNotes() bool {
	return c.NotesXML != nil
}

// Extract opens the archive and classifies its entries by suffix. Unknown
// entries are ignored; a corrupt container or oversized entry is an
// ErrCodeArchiveCorrupt parse error.
func Extract(path string) (*Contents, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.NewParseError(errors.ErrCodeArchiveCorrupt,
			"opening archive", err).WithArchive(path, "")
	}
	defer reader.Close()

	contents := &Contents{}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		name := strings.ToLower(file.Name)
		var target *[]byte
		switch {
		case strings.HasSuffix(name, MetaSuffix):
			target = &contents.Meta
		case strings.HasSuffix(name, DebtorSuffix):
			target = &contents.DebtorText
		case strings.HasSuffix(name, SpecSuffix):
			target = &contents.SpecText
		case strings.HasSuffix(name, NotesSuffix):
			target = &contents.NotesXML
		default:
			continue
		}

		data, err := readEntry(file)
		if err != nil {
			return nil, errors.NewParseError(errors.ErrCodeArchiveCorrupt,
				"reading archive entry "+file.Name, err).WithArchive(path, "")
		}
		*target = data
	}

	return contents, nil
}

func readEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntryBytes {
		return nil, errors.NewParseError(errors.ErrCodeArchiveCorrupt,
			"archive entry exceeds size cap", nil)
	}

	return data, nil
}
