package export

import (
	"fmt"
	"strings"
)

// CertificateKind selects the document layout produced for a notification.
type CertificateKind string

const (
	CertificateAttestation   CertificateKind = "ATTESTATION_INSCRIPTION"
	CertificateRejection     CertificateKind = "AVIS_REJET"
	CertificateAcknowledge   CertificateKind = "ACCUSE_RECEPTION"
	CertificateAuthorization CertificateKind = "AUTORISATION_SOUTENANCE"
	CertificateConvocation   CertificateKind = "CONVOCATION_SOUTENANCE"
)

// Certificate carries the variable parts of a generated document.
type Certificate struct {
	Kind      CertificateKind
	Recipient string
	Reference string
	Year      int
	Comment   string
	Date      string
	Time      string
	Location  string
}

// RenderCertificate lays out a single-page certificate for the given kind.
func (e *PDFExporter) RenderCertificate(c Certificate) ([]byte, error) {
	if strings.TrimSpace(c.Recipient) == "" {
		return nil, fmt.Errorf("certificate recipient required")
	}
	title, body, err := certificateText(c)
	if err != nil {
		return nil, err
	}

	pdf := e.newDocument("P")
	pdf.Ln(20)
	e.header(pdf, title)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	for _, paragraph := range body {
		pdf.MultiCell(0, 7, tr(paragraph), "", "J", false)
		pdf.Ln(4)
	}
	if c.Reference != "" {
		pdf.Ln(10)
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, tr("Référence : "+c.Reference), "", 1, "L", false, 0, "")
	}
	return e.output(pdf)
}

func certificateText(c Certificate) (string, []string, error) {
	switch c.Kind {
	case CertificateAttestation:
		return "Attestation d'inscription", []string{
			fmt.Sprintf("Nous attestons que %s est régulièrement inscrit(e) en doctorat au titre de l'année universitaire %d.", c.Recipient, c.Year),
			"La présente attestation est délivrée pour servir et valoir ce que de droit.",
		}, nil
	case CertificateRejection:
		comment := c.Comment
		if comment == "" {
			comment = "non précisé"
		}
		return "Avis de rejet", []string{
			fmt.Sprintf("Bonjour %s, votre dossier d'inscription n'a pas été retenu.", c.Recipient),
			"Motif : " + comment,
		}, nil
	case CertificateAcknowledge:
		return "Accusé de réception", []string{
			fmt.Sprintf("Bonjour %s, votre demande de soutenance a bien été reçue.", c.Recipient),
			"Elle est en cours de vérification des prérequis.",
		}, nil
	case CertificateAuthorization:
		return "Autorisation de soutenance", []string{
			fmt.Sprintf("Au vu des rapports favorables du jury, %s est autorisé(e) à soutenir sa thèse de doctorat.", c.Recipient),
		}, nil
	case CertificateConvocation:
		return "Convocation à la soutenance", []string{
			fmt.Sprintf("%s est convoqué(e) à la soutenance de sa thèse de doctorat.", c.Recipient),
			fmt.Sprintf("Date : %s", orNA(c.Date)),
			fmt.Sprintf("Heure : %s", orNA(c.Time)),
			fmt.Sprintf("Lieu : %s", orNA(c.Location)),
		}, nil
	default:
		return "", nil, fmt.Errorf("unknown certificate kind %q", c.Kind)
	}
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return "N/A"
	}
	return v
}
