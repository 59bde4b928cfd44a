package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCertificateKinds(t *testing.T) {
	exporter := NewPDFExporter("")
	kinds := []CertificateKind{
		CertificateAttestation,
		CertificateRejection,
		CertificateAcknowledge,
		CertificateAuthorization,
		CertificateConvocation,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			out, err := exporter.RenderCertificate(Certificate{
				Kind:      kind,
				Recipient: "Amina Benali",
				Reference: "dossier-1",
				Year:      2026,
				Comment:   "pièces manquantes",
				Date:      "2026-06-12",
				Time:      "10:00",
				Location:  "Amphi A",
			})
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
		})
	}
}

func TestRenderCertificateValidation(t *testing.T) {
	exporter := NewPDFExporter("CEDoc")
	_, err := exporter.RenderCertificate(Certificate{Kind: CertificateAttestation})
	require.Error(t, err)

	_, err = exporter.RenderCertificate(Certificate{Kind: "UNKNOWN", Recipient: "x"})
	require.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	out, err := NewPDFExporter("CEDoc").Render(Dataset{
		Headers: []string{"id", "status"},
		Rows:    []map[string]string{{"id": "d-1", "status": "VALIDE"}},
	}, "dossiers")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestCSVExporterOrdersColumns(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"id", "status"},
		Rows:    []map[string]string{{"status": "VALIDE", "id": "d-1"}},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,status", lines[0])
	assert.Equal(t, "d-1,VALIDE", lines[1])
}

func TestCSVExporterDelimiter(t *testing.T) {
	out, err := NewCSVExporter(WithDelimiter(';')).Render(Dataset{
		Headers: []string{"id", "status"},
		Rows:    []map[string]string{{"id": "d-1", "status": "VALIDE"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "d-1;VALIDE")
}
