package parser

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/fakturo/fakturo/internal/errors"
	"github.com/fakturo/fakturo/internal/types"
)

// Meta descriptor grammar: repeated lines of the form
//
//	# type <N> : <count>
//
// and exactly one total-amount line
//
//	# bedrag : <amount>
//
// with a comma decimal separator. The first type line whose count is greater
// than zero determines the bundle's document-type code; all other type lines
// are informational.
func parseMeta(archiveName string, data []byte) (types.MetaInfo, error) {
	var meta types.MetaInfo
	typeSelected := false
	amountSeen := false

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "#"))

		switch {
		case strings.HasPrefix(line, "type"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "type"))
			code, countText, found := strings.Cut(rest, ":")
			if !found {
				continue
			}
			count, err := strconv.Atoi(strings.TrimSpace(countText))
			if err != nil {
				continue
			}
			if !typeSelected && count > 0 {
				meta.DocumentType = strings.TrimSpace(code)
				meta.RecordCount = count
				typeSelected = true
			}

		case strings.HasPrefix(line, "bedrag"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "bedrag"))
			rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			if cents, ok := parseCents(rest); ok {
				meta.TotalCents = cents
				amountSeen = true
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return meta, errors.NewParseError(errors.ErrCodeArchiveCorrupt,
			"reading meta descriptor", err).WithArchive(archiveName, "")
	}

	if !typeSelected {
		return meta, errors.NewParseError(errors.ErrCodeMetaMissing,
			"meta descriptor has no type line with a count above zero", nil).
			WithArchive(archiveName, "")
	}
	if !amountSeen {
		return meta, errors.NewParseError(errors.ErrCodeMetaMissing,
			"meta descriptor has no total amount line", nil).
			WithArchive(archiveName, "")
	}

	return meta, nil
}
