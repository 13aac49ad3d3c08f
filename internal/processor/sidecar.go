package processor

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fakturo/fakturo/internal/types"
)

// Sidecar is the structured side-channel record written next to a rendered
// document for downstream consumers.
type Sidecar struct {
	ProcessingID  string    `json:"processing_id"`
	Archive       string    `json:"archive"`
	InvoiceNumber string    `json:"invoice_number"`
	JoinKey       string    `json:"join_key"`
	DocumentType  string    `json:"document_type"`
	PatientName   string    `json:"patient_name"`
	TotalCents    int64     `json:"total_cents"`
	LineCount     int       `json:"line_count"`
	Document      string    `json:"document"`
	RenderedAt    time.Time `json:"rendered_at"`
}

func newSidecar(processingID, archiveName, documentPath string, debtor *types.Debtor, lineCount int) *Sidecar {
	return &Sidecar{
		ProcessingID:  processingID,
		Archive:       archiveName,
		InvoiceNumber: debtor.InvoiceNumber,
		JoinKey:       debtor.JoinKey,
		DocumentType:  debtor.DocumentType,
		PatientName:   debtor.PatientName,
		TotalCents:    debtor.TotalCents,
		LineCount:     lineCount,
		Document:      documentPath,
		RenderedAt:    time.Now().UTC(),
	}
}

// write stores the sidecar as pretty-printed JSON next to the document.
func (s *Sidecar) write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
