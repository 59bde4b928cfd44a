package models

import "time"

// DocumentType classifies files attached to a workflow instance.
type DocumentType string

const (
	DocumentDiplome           DocumentType = "DIPLOME"
	DocumentCV                DocumentType = "CV"
	DocumentLettreMotivation  DocumentType = "LETTRE_MOTIVATION"
	DocumentAttestation       DocumentType = "ATTESTATION"
	DocumentAutre             DocumentType = "AUTRE"
	DocumentManuscrit         DocumentType = "MANUSCRIT"
	DocumentRapport           DocumentType = "RAPPORT"
	DocumentMembresJury       DocumentType = "MEMBRES_JURY"
	DocumentJustificatifPubli DocumentType = "JUSTIFICATIF_PUBLICATION"
)

// DossierDocumentTypes are accepted on enrollment dossiers.
var DossierDocumentTypes = map[DocumentType]struct{}{
	DocumentDiplome:          {},
	DocumentCV:               {},
	DocumentLettreMotivation: {},
	DocumentAttestation:      {},
	DocumentAutre:            {},
}

// Document is a file owned by a dossier.
type Document struct {
	ID          string       `db:"id" json:"id"`
	DossierID   string       `db:"dossier_id" json:"dossierId"`
	NomOriginal string       `db:"nom_original" json:"nomOriginal"`
	Chemin      string       `db:"chemin" json:"-"`
	Type        DocumentType `db:"type" json:"type"`
	MimeType    string       `db:"mime_type" json:"mimeType"`
	Taille      int64        `db:"taille" json:"taille"`
	DateUpload  time.Time    `db:"date_upload" json:"dateUpload"`
}

// DocumentSoutenance is a file owned by a defense request.
type DocumentSoutenance struct {
	ID          string       `db:"id" json:"id"`
	DemandeID   string       `db:"demande_id" json:"demandeId"`
	NomOriginal string       `db:"nom_original" json:"nomOriginal"`
	Chemin      string       `db:"chemin" json:"-"`
	Type        DocumentType `db:"type" json:"type"`
	MimeType    string       `db:"mime_type" json:"mimeType"`
	Taille      int64        `db:"taille" json:"taille"`
	DateUpload  time.Time    `db:"date_upload" json:"dateUpload"`
}

// StoredFile is the result of persisting one upload.
type StoredFile struct {
	NomOriginal string
	Chemin      string
	MimeType    string
	Taille      int64
}
