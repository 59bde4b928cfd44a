package workflow

import "github.com/noah-isme/doctorat-api/internal/models"

// Enrollment actions.
const (
	ActionApproveDirecteur Action = "approve_directeur"
	ActionRejectDirecteur  Action = "reject_directeur"
	ActionApproveAdmin     Action = "approve_admin"
	ActionRejectAdmin      Action = "reject_admin"
)

// Defense actions.
const (
	ActionValiderPrerequis Action = "valider_prerequis"
	ActionProposerJury     Action = "proposer_jury"
	ActionRapportsOK       Action = "rapports_ok"
	ActionAutoriser        Action = "autoriser"
	ActionPlanifier        Action = "planifier"
)

// Dossier is the enrollment approval pipeline.
var Dossier = NewMachine("dossier", map[Action]Edge[models.DossierStatus]{
	ActionApproveDirecteur: {From: []models.DossierStatus{models.DossierEnAttenteDirecteur}, To: models.DossierEnAttenteAdmin},
	ActionRejectDirecteur:  {From: []models.DossierStatus{models.DossierEnAttenteDirecteur}, To: models.DossierRejete},
	ActionApproveAdmin:     {From: []models.DossierStatus{models.DossierEnAttenteAdmin}, To: models.DossierValide},
	ActionRejectAdmin:      {From: []models.DossierStatus{models.DossierEnAttenteAdmin}, To: models.DossierRejete},
})

// Demande is the defense authorization pipeline. Autoriser may be re-asserted once authorized.
// A jury may be proposed before the prerequisites are validated; the only jury guard is that none exists yet.
var Demande = NewMachine("demande", map[Action]Edge[models.DemandeStatus]{
	ActionValiderPrerequis: {From: []models.DemandeStatus{models.DemandeEnAttentePrerequis}, To: models.DemandeEnAttenteJury},
	ActionProposerJury:     {From: []models.DemandeStatus{models.DemandeEnAttentePrerequis, models.DemandeEnAttenteJury}, To: models.DemandeEnAttenteRapports},
	ActionRapportsOK:       {From: []models.DemandeStatus{models.DemandeEnAttenteRapports}, To: models.DemandeAutorisee},
	ActionAutoriser:        {From: []models.DemandeStatus{models.DemandeEnAttenteRapports, models.DemandeAutorisee}, To: models.DemandeAutorisee},
	ActionPlanifier:        {From: []models.DemandeStatus{models.DemandeAutorisee}, To: models.DemandePlanifiee},
})

// DirecteurDecision maps a director verdict to its action.
func DirecteurDecision(approve bool) Action {
	if approve {
		return ActionApproveDirecteur
	}
	return ActionRejectDirecteur
}

// AdminDecision maps an administration verdict to its action.
func AdminDecision(approve bool) Action {
	if approve {
		return ActionApproveAdmin
	}
	return ActionRejectAdmin
}
