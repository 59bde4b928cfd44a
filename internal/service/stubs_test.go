package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/doctorat-api/internal/client"
	"github.com/noah-isme/doctorat-api/internal/models"
	"github.com/noah-isme/doctorat-api/internal/repository"
	"github.com/noah-isme/doctorat-api/pkg/storage"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func pdfUpload(kind models.DocumentType, name string) DocumentUpload {
	return DocumentUpload{Type: kind, Filename: name, Size: int64(len(pdfBytes)), Content: bytes.NewReader(pdfBytes)}
}

type stubTx struct {
	calls int
}

func (s *stubTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.calls++
	return fn(ctx)
}

type stubCampaignRepo struct {
	campaigns   map[string]*models.Campaign
	dossiers    map[string]int
	seq         int
	activeCalls int
	countErr    error
}

func newStubCampaignRepo(campaigns ...models.Campaign) *stubCampaignRepo {
	repo := &stubCampaignRepo{campaigns: map[string]*models.Campaign{}, dossiers: map[string]int{}}
	for i := range campaigns {
		c := campaigns[i]
		repo.campaigns[c.ID] = &c
	}
	return repo
}

func (r *stubCampaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	r.seq++
	c.ID = fmt.Sprintf("camp-%d", r.seq)
	copied := *c
	r.campaigns[c.ID] = &copied
	return nil
}

func (r *stubCampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	copied := *c
	r.campaigns[c.ID] = &copied
	return nil
}

func (r *stubCampaignRepo) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (r *stubCampaignRepo) List(ctx context.Context) ([]models.Campaign, error) {
	out := make([]models.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubCampaignRepo) ListActive(ctx context.Context) ([]models.Campaign, error) {
	r.activeCalls++
	all, _ := r.List(ctx)
	out := all[:0]
	for _, c := range all {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *stubCampaignRepo) NameTaken(ctx context.Context, nom, excludeID string) (bool, error) {
	for id, c := range r.campaigns {
		if id != excludeID && c.Nom == nom {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubCampaignRepo) CountDossiers(ctx context.Context, id string) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return r.dossiers[id], nil
}

func (r *stubCampaignRepo) Delete(ctx context.Context, id string) (bool, error) {
	if r.dossiers[id] > 0 {
		return false, nil
	}
	delete(r.campaigns, id)
	return true, nil
}

type stubDossierRepo struct {
	dossiers    map[string]*models.Dossier
	seq         int
	transitions []repository.StatusTransition
}

func newStubDossierRepo(dossiers ...models.Dossier) *stubDossierRepo {
	repo := &stubDossierRepo{dossiers: map[string]*models.Dossier{}}
	for i := range dossiers {
		d := dossiers[i]
		repo.dossiers[d.ID] = &d
	}
	return repo
}

func (r *stubDossierRepo) Create(ctx context.Context, d *models.Dossier) error {
	for _, existing := range r.dossiers {
		if existing.DoctorantID == d.DoctorantID && existing.CampaignID == d.CampaignID {
			return &pq.Error{Code: "23505", Constraint: repository.DossierUniqueConstraint}
		}
	}
	r.seq++
	d.ID = fmt.Sprintf("dossier-%d", r.seq)
	copied := *d
	copied.Documents = nil
	r.dossiers[d.ID] = &copied
	return nil
}

func (r *stubDossierRepo) GetByID(ctx context.Context, id string) (*models.Dossier, error) {
	d, ok := r.dossiers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *d
	return &copied, nil
}

func (r *stubDossierRepo) ExistsForCampaign(ctx context.Context, doctorantID, campaignID string) (bool, error) {
	for _, d := range r.dossiers {
		if d.DoctorantID == doctorantID && d.CampaignID == campaignID {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubDossierRepo) List(ctx context.Context, filter models.DossierFilter) ([]models.Dossier, error) {
	var out []models.Dossier
	for _, d := range r.dossiers {
		if filter.DoctorantID != "" && d.DoctorantID != filter.DoctorantID {
			continue
		}
		if filter.DirecteurID != "" && d.DirecteurID != filter.DirecteurID {
			continue
		}
		if filter.CampaignID != "" && d.CampaignID != filter.CampaignID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, d.Status) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateSoumission.After(out[j].DateSoumission) })
	return out, nil
}

func containsStatus(list []models.DossierStatus, s models.DossierStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *stubDossierRepo) Latest(ctx context.Context, doctorantID string) (*models.Dossier, error) {
	list, _ := r.List(ctx, models.DossierFilter{DoctorantID: doctorantID})
	if len(list) == 0 {
		return nil, sql.ErrNoRows
	}
	return &list[0], nil
}

func (r *stubDossierRepo) InitialInscription(ctx context.Context, doctorantID string) (*models.InitialInscription, error) {
	var initial *models.InitialInscription
	for _, d := range r.dossiers {
		if d.DoctorantID != doctorantID {
			continue
		}
		if initial == nil {
			initial = &models.InitialInscription{DoctorantID: doctorantID, Date: d.DateInscriptionInitiale}
		}
		if d.DateInscriptionInitiale.Before(initial.Date) {
			initial.Date = d.DateInscriptionInitiale
		}
		initial.Derogation = initial.Derogation || d.Derogation
	}
	return initial, nil
}

func (r *stubDossierRepo) Transition(ctx context.Context, t repository.StatusTransition) error {
	d, ok := r.dossiers[t.ID]
	if !ok || string(d.Status) != t.From {
		return sql.ErrNoRows
	}
	d.Status = models.DossierStatus(t.To)
	if v, ok := t.Fields["derogation"].(bool); ok {
		d.Derogation = v
	}
	if v, ok := t.Fields["commentaire_directeur"].(*string); ok {
		d.CommentaireDirecteur = v
	}
	if v, ok := t.Fields["commentaire_admin"].(*string); ok {
		d.CommentaireAdmin = v
	}
	r.transitions = append(r.transitions, t)
	return nil
}

func (r *stubDossierRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.dossiers[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.dossiers, id)
	return nil
}

type stubDocumentRepo struct {
	docs map[string]*models.Document
	seq  int
}

func newStubDocumentRepo() *stubDocumentRepo {
	return &stubDocumentRepo{docs: map[string]*models.Document{}}
}

func (r *stubDocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	r.seq++
	doc.ID = fmt.Sprintf("doc-%d", r.seq)
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *stubDocumentRepo) GetByID(ctx context.Context, id string) (*models.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *doc
	return &copied, nil
}

func (r *stubDocumentRepo) ListByDossier(ctx context.Context, dossierID string) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range r.docs {
		if doc.DossierID == dossierID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubDocumentRepo) CountByPath(ctx context.Context, chemin, excludeDossierID string) (int, error) {
	n := 0
	for _, doc := range r.docs {
		if doc.Chemin == chemin && doc.DossierID != excludeDossierID {
			n++
		}
	}
	return n, nil
}

type stubUsers struct {
	users map[string]models.User
	err   error
}

func (s *stubUsers) ResolveUser(ctx context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, client.ErrUserNotFound
	}
	return &u, nil
}

func (s *stubUsers) ValidateRole(ctx context.Context, id string, role models.UserRole) (*models.User, error) {
	u, err := s.ResolveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, client.ErrRoleMismatch
	}
	return u, nil
}

type stubOutbox struct {
	messages []models.OutboxMessage
	err      error
}

func (s *stubOutbox) Insert(ctx context.Context, msg *models.OutboxMessage) error {
	if s.err != nil {
		return s.err
	}
	msg.ID = fmt.Sprintf("outbox-%d", len(s.messages)+1)
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *stubOutbox) topics() []string {
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Topic
	}
	return out
}

func newTestDocumentService(t *testing.T, docs documentStore) (*DocumentService, *storage.LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := NewDocumentService(docs, files, signer, DocumentPolicy{MaxSize: 1 << 20, AllowedMIMEs: []string{"application/pdf"}}, zap.NewNop())
	return svc, files, dir
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.IsDir() {
			sub, err := os.ReadDir(dir + "/" + e.Name())
			require.NoError(t, err)
			n += len(sub)
			continue
		}
		n++
	}
	return n
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func bytesReader(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}
