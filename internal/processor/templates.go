package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fakturo/fakturo/internal/config"
	"github.com/fakturo/fakturo/internal/logging"
)

// builtinTemplate is the minimal invoice layout used when neither the
// requested document-type nor the default type has a template on disk.
const builtinTemplate = `<html>
<head><title>Factuur ${debtor.invoiceNumber}</title></head>
<body>
<h1>Factuur ${debtor.invoiceNumber}</h1>
<p>${practitioner.name} ${practitioner.officialCode}</p>
<p>${debtor.patientName}<br/>${debtor.street}<br/>${debtor.postalCode} ${debtor.city}</p>
<table>
<tbody data-repeat-over="lines" data-repeat-var="line">
<tr><td>${line.date}</td><td>${line.code}</td><td>${line.description}</td><td>${line.amount}</td></tr>
</tbody>
</table>
<p>Totaal: ${debtor.totalAmount}</p>
</body>
</html>
`

// templateExtensions are tried in order when looking up a document-type's
// template file.
var templateExtensions = []string{".html", ".xhtml", ".xml", ".tmpl"}

// TemplateStore maps document-type codes to template text. Templates are
// loaded lazily from the configured directory and cached for the process
// lifetime; the template set is small and fixed per deployment.
type TemplateStore struct {
	dir         string
	defaultType string
	logger      logging.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewTemplateStore creates a store over the configured template directory.
func NewTemplateStore(cfg *config.TemplatesConfig, logger logging.Logger) *TemplateStore {
	return &TemplateStore{
		dir:         cfg.Dir,
		defaultType: cfg.DefaultType,
		logger:      logger.WithComponent("templates"),
		cache:       make(map[string]string),
	}
}

// Lookup returns the template text for the given document-type code. A type
// without its own template falls back to the default type's template, and
// finally to the built-in minimal layout.
func (s *TemplateStore) Lookup(ctx context.Context, documentType string) string {
	if text, ok := s.load(documentType); ok {
		return text
	}

	if s.defaultType != "" && s.defaultType != documentType {
		if text, ok := s.load(s.defaultType); ok {
			s.logger.Debug(ctx, "Falling back to default template",
				"document_type", documentType, "default_type", s.defaultType)
			return text
		}
	}

	s.logger.Warn(ctx, nil, "No template on disk, using built-in layout",
		"document_type", documentType)
	return builtinTemplate
}

func (s *TemplateStore) load(documentType string) (string, bool) {
	if documentType == "" || s.dir == "" {
		return "", false
	}
	// Type codes come from archive contents; keep lookups inside the dir.
	if strings.ContainsAny(documentType, `/\`) || strings.Contains(documentType, "..") {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if text, ok := s.cache[documentType]; ok {
		return text, text != ""
	}

	for _, ext := range templateExtensions {
		data, err := os.ReadFile(filepath.Join(s.dir, documentType+ext))
		if err != nil {
			continue
		}
		text := string(data)
		s.cache[documentType] = text
		return text, true
	}

	// Negative result cached so each miss hits the disk once.
	s.cache[documentType] = ""
	return "", false
}
