package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/dto"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/repository"
	"github.com/noah-isme/doctorat-api/internal/workflow"
	appErrors "github.com/noah-isme/doctorat-api/pkg/errors"
)

// ValidateByDirecteur records the assigned director's verdict.
func (s *DossierService) ValidateByDirecteur(ctx context.Context, id, directeurID string, req dto.DirecteurValidationRequest) (*models.Dossier, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
	}
	dossier, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if dossier.DirecteurID != directeurID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned director may validate this dossier")
	}

	now := s.now().UTC()
	comment := optionalString(req.Commentaire)
	err = s.transition(ctx, dossier, workflow.DirecteurDecision(*req.Approve), models.EventValidationDirecteur, req.Commentaire,
		map[string]interface{}{
			"commentaire_directeur":     comment,
			"date_validation_directeur": now,
		})
	if err != nil {
		return nil, err
	}
	dossier.CommentaireDirecteur = comment
	dossier.DateValidationDirecteur = &now
	return dossier, nil
}

// ValidateByAdmin records the administration's verdict, optionally granting a derogation.
func (s *DossierService) ValidateByAdmin(ctx context.Context, id string, req dto.AdminValidationRequest) (*models.Dossier, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
	}
	dossier, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	comment := optionalString(req.Commentaire)
	fields := map[string]interface{}{
		"commentaire_admin":     comment,
		"date_validation_admin": now,
	}
	grant := *req.Approve && req.GrantDerogation
	if grant {
		fields["derogation"] = true
	}
	if err := s.transition(ctx, dossier, workflow.AdminDecision(*req.Approve), models.EventValidationAdmin, req.Commentaire, fields); err != nil {
		return nil, err
	}
	dossier.CommentaireAdmin = comment
	dossier.DateValidationAdmin = &now
	if grant {
		dossier.Derogation = true
	}
	return dossier, nil
}

// transition fires action on the dossier, persists it with a compare-and-set on the current status
// and records the event in the same transaction.
func (s *DossierService) transition(ctx context.Context, dossier *models.Dossier, action workflow.Action, eventType models.DossierEventType, comment string, fields map[string]interface{}) error {
	from := dossier.Status
	to, err := workflow.Dossier.Fire(action, from)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		err := s.dossiers.Transition(ctx, repository.StatusTransition{
			ID:     dossier.ID,
			From:   string(from),
			To:     string(to),
			Fields: fields,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "dossier status changed concurrently")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update dossier")
		}
		dossier.Status = to
		if err := s.events.DossierChanged(ctx, dossier, from, eventType, comment); err != nil {
			dossier.Status = from
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record dossier event")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordTransition(models.AggregateDossier, string(from), string(to))
	s.logger.Info("dossier transition",
		zap.String("dossier_id", dossier.ID),
		zap.String("action", string(action)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}
