package cases

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/clinic"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/blobstore"
)

type mockRepo struct {
	cases      map[uuid.UUID]*DentalCase
	events     map[uuid.UUID][]*StatusEvent
	files      map[uuid.UUID][]*CaseFile
	comments   map[uuid.UUID][]*CaseComment
	watermarks map[[2]uuid.UUID]time.Time

	// afterGet, when set, runs after GetByID copies the row. Lets a test
	// slip a concurrent write between a service's read and its CAS.
	afterGet func(id uuid.UUID)
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		cases:      make(map[uuid.UUID]*DentalCase),
		events:     make(map[uuid.UUID][]*StatusEvent),
		files:      make(map[uuid.UUID][]*CaseFile),
		comments:   make(map[uuid.UUID][]*CaseComment),
		watermarks: make(map[[2]uuid.UUID]time.Time),
	}
}

func (m *mockRepo) Create(ctx context.Context, c *DentalCase) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Version = 1
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*DentalCase, error) {
	if c, ok := m.cases[id]; ok {
		cp := *c
		if m.afterGet != nil {
			m.afterGet(id)
		}
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*DentalCase, error) {
	var out []*DentalCase
	for _, id := range ids {
		if c, ok := m.cases[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateCAS(ctx context.Context, c *DentalCase, expectedVersion int) (bool, error) {
	stored, ok := m.cases[c.ID]
	if !ok || stored.Version != expectedVersion {
		return false, nil
	}
	cp := *c
	cp.Version = expectedVersion + 1
	cp.UpdatedAt = time.Now().UTC()
	m.cases[c.ID] = &cp
	c.Version = cp.Version
	return true, nil
}

func (m *mockRepo) Search(ctx context.Context, v Visibility, f SearchFilter, limit, offset int) ([]*DentalCase, int, error) {
	var out []*DentalCase
	for _, c := range m.cases {
		if !v.CanSee(c) {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.Stage != nil && c.Stage != *f.Stage {
			continue
		}
		if f.NeedsReview != nil && c.NeedsReview != *f.NeedsReview {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) AppendEvent(ctx context.Context, e *StatusEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	m.events[e.CaseID] = append(m.events[e.CaseID], &cp)
	return nil
}

func (m *mockRepo) ListEvents(ctx context.Context, caseID uuid.UUID) ([]*StatusEvent, error) {
	return m.events[caseID], nil
}

func (m *mockRepo) AddFile(ctx context.Context, f *CaseFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	cp := *f
	m.files[f.CaseID] = append(m.files[f.CaseID], &cp)
	return nil
}

func (m *mockRepo) ListFiles(ctx context.Context, caseID uuid.UUID) ([]*CaseFile, error) {
	return m.files[caseID], nil
}

func (m *mockRepo) AddComment(ctx context.Context, cm *CaseComment) error {
	if cm.ID == uuid.Nil {
		cm.ID = uuid.New()
	}
	cp := *cm
	m.comments[cm.CaseID] = append(m.comments[cm.CaseID], &cp)
	return nil
}

func (m *mockRepo) ListComments(ctx context.Context, caseID uuid.UUID) ([]*CaseComment, error) {
	return m.comments[caseID], nil
}

func (m *mockRepo) MarkRead(ctx context.Context, userID, caseID uuid.UUID, at time.Time) error {
	key := [2]uuid.UUID{userID, caseID}
	if prev, ok := m.watermarks[key]; !ok || at.After(prev) {
		m.watermarks[key] = at
	}
	return nil
}

func (m *mockRepo) Triage(ctx context.Context, v Visibility) (TriageCounts, error) {
	var counts TriageCounts
	for _, c := range m.cases {
		if !v.CanSee(c) {
			continue
		}
		if v.Staff {
			if c.Status == StatusChangesRequested {
				counts.ActionCount++
			}
		} else if c.NeedsReview {
			counts.ActionCount++
		}
		if c.Status == StatusShipped {
			counts.ShippedCount++
		}
		seen, ok := m.watermarks[[2]uuid.UUID{v.ViewerID, c.ID}]
		if !ok || c.UpdatedAt.After(seen) {
			counts.UnreadCount++
		}
	}
	return counts, nil
}

func (m *mockRepo) BillableLines(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]clinic.BillingLine, error) {
	return nil, nil
}

type mockAffils struct {
	secondary map[uuid.UUID][]uuid.UUID
}

func (m *mockAffils) SecondaryClinicIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return m.secondary[userID], nil
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	affils   *mockAffils
	clinicA  uuid.UUID
	clinicB  uuid.UUID
	doctor   auth.Identity
	stranger auth.Identity
	lab      auth.Identity
	admin    auth.Identity
	milling  auth.Identity
}

func newFixture() *fixture {
	repo := newMockRepo()
	affils := &mockAffils{secondary: make(map[uuid.UUID][]uuid.UUID)}
	svc := NewService(repo, affils, blobstore.NewLocalSigner(""), 15*time.Minute, passthroughTx)

	clinicA := uuid.New()
	clinicB := uuid.New()
	return &fixture{
		svc:      svc,
		repo:     repo,
		affils:   affils,
		clinicA:  clinicA,
		clinicB:  clinicB,
		doctor:   auth.Identity{UserID: uuid.New(), Role: auth.RoleCustomer, ClinicID: &clinicA},
		stranger: auth.Identity{UserID: uuid.New(), Role: auth.RoleCustomer, ClinicID: &clinicB},
		lab:      auth.Identity{UserID: uuid.New(), Role: auth.RoleLab},
		admin:    auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin},
		milling:  auth.Identity{UserID: uuid.New(), Role: auth.RoleMilling},
	}
}

func (f *fixture) newCase(t *testing.T) *DentalCase {
	t.Helper()
	c := &DentalCase{
		ClinicID:    f.clinicA,
		PatientRef:  "PT-1042",
		ProductType: "crown",
		Material:    "zirconia HT",
		Units:       3,
	}
	if err := f.svc.Create(context.Background(), f.doctor, c); err != nil {
		t.Fatalf("create case: %v", err)
	}
	return c
}

func TestCreate_AppendsInitialEvent(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	events := f.repo.events[c.ID]
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].From != nil || events[0].To != string(StatusNew) {
		t.Fatalf("unexpected initial event: %+v", events[0])
	}
	if c.Status != StatusNew || c.Stage != StageDesign {
		t.Fatalf("unexpected initial state: %s/%s", c.Status, c.Stage)
	}
}

func TestCreate_CustomerUnaffiliatedClinic(t *testing.T) {
	f := newFixture()
	c := &DentalCase{ClinicID: f.clinicB, ProductType: "crown", Units: 1}
	err := f.svc.Create(context.Background(), f.doctor, c)
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestGet_HiddenFromUnaffiliatedCustomer(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	// Existence must not leak: the answer is NotFound, not Forbidden.
	_, err := f.svc.Get(context.Background(), f.stranger, c.ID)
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Staff and the owner see it.
	if _, err := f.svc.Get(context.Background(), f.lab, c.ID); err != nil {
		t.Fatalf("lab read failed: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), f.doctor, c.ID); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
}

func TestGet_SecondaryAffiliation(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	f.affils.secondary[f.stranger.UserID] = []uuid.UUID{f.clinicA}
	if _, err := f.svc.Get(context.Background(), f.stranger, c.ID); err != nil {
		t.Fatalf("secondary affiliate read failed: %v", err)
	}
}

func TestTransition_AppendsExactlyOneEvent(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	updated, err := f.svc.Transition(context.Background(), f.lab, c.ID, StatusInDesign, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusInDesign {
		t.Fatalf("status not updated: %s", updated.Status)
	}

	events := f.repo.events[c.ID]
	if len(events) != 2 {
		t.Fatalf("expected 2 events (creation + transition), got %d", len(events))
	}
	last := events[len(events)-1]
	if last.From == nil || *last.From != string(StatusNew) || last.To != string(StatusInDesign) {
		t.Fatalf("event does not chain: %+v", last)
	}

	stored := f.repo.cases[c.ID]
	if stored.Status != StatusInDesign {
		t.Fatal("case row not updated alongside event")
	}
}

func TestTransition_Policy(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name     string
		ident    auth.Identity
		to       Status
		wantCode apperr.Code
	}{
		{"customer approves own case", f.doctor, StatusApproved, ""},
		{"customer requests changes", f.doctor, StatusChangesRequested, ""},
		{"customer cannot set ready for review", f.doctor, StatusReadyForReview, apperr.CodeForbidden},
		{"customer cannot cancel", f.doctor, StatusCancelled, apperr.CodeForbidden},
		{"lab sets ready for review", f.lab, StatusReadyForReview, ""},
		{"lab sets in milling", f.lab, StatusInMilling, ""},
		{"lab cannot cancel", f.lab, StatusCancelled, apperr.CodeForbidden},
		{"admin cancels", f.admin, StatusCancelled, ""},
		{"milling cannot change status", f.milling, StatusApproved, apperr.CodeForbidden},
		{"shipped not reachable here", f.admin, StatusShipped, apperr.CodeInvalid},
		{"unknown status", f.admin, Status("LOST"), apperr.CodeInvalid},
		{"new is not a target", f.admin, StatusNew, apperr.CodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.newCase(t)
			_, err := f.svc.Transition(context.Background(), tt.ident, c.ID, tt.to, nil)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !apperr.IsCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestTransition_CustomerDoesNotOwn(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	// Same clinic, different doctor: visible but not theirs to approve.
	colleague := auth.Identity{UserID: uuid.New(), Role: auth.RoleCustomer, ClinicID: &f.clinicA}
	_, err := f.svc.Transition(context.Background(), colleague, c.ID, StatusApproved, nil)
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestTransition_StaleVersionConflicts(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	// Another writer bumps the row between our read and write.
	f.repo.afterGet = func(id uuid.UUID) {
		f.repo.cases[id].Version++
	}

	_, err := f.svc.Transition(context.Background(), f.lab, c.ID, StatusInDesign, nil)
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestChangeStage_StampsTimestamp(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	updated, err := f.svc.ChangeStage(context.Background(), f.lab, c.ID, StageMillingGlazing, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.MilledAt == nil {
		t.Fatal("expected milled_at to be stamped")
	}
	if updated.Status != StatusNew {
		t.Fatal("stage change must not touch status")
	}

	events := f.repo.events[c.ID]
	last := events[len(events)-1]
	if last.Kind != EventKindStage || last.To != string(StageMillingGlazing) {
		t.Fatalf("unexpected stage event: %+v", last)
	}
}

func TestChangeStage_Forbidden(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	for _, ident := range []auth.Identity{f.doctor, f.milling} {
		_, err := f.svc.ChangeStage(context.Background(), ident, c.ID, StageShipping, nil)
		if !apperr.IsCode(err, apperr.CodeForbidden) {
			t.Fatalf("role %s: expected forbidden, got %v", ident.Role, err)
		}
	}
}

func TestSetReview_CustomerCannotSet(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	_, err := f.svc.SetReview(context.Background(), f.doctor, c.ID, true, "does this fit?")
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("expected forbidden even on own case, got %v", err)
	}
	if f.repo.cases[c.ID].NeedsReview {
		t.Fatal("case row must stay unchanged after a forbidden request")
	}
}

func TestSetReview_LabSetsCustomerClears(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	updated, err := f.svc.SetReview(context.Background(), f.lab, c.ID, true, "occlusion check needed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.NeedsReview || updated.ReviewRequestedAt == nil || updated.ReviewQuestion == nil {
		t.Fatalf("review flag not fully set: %+v", updated)
	}

	cleared, err := f.svc.SetReview(context.Background(), f.doctor, c.ID, false, "")
	if err != nil {
		t.Fatalf("owning doctor must be able to clear: %v", err)
	}
	if cleared.NeedsReview || cleared.ReviewQuestion != nil || cleared.ReviewRequestedAt != nil {
		t.Fatalf("review flag not fully cleared: %+v", cleared)
	}
}

func TestSetReview_QuestionTruncated(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	long := strings.Repeat("x", 600)
	updated, err := f.svc.SetReview(context.Background(), f.lab, c.ID, true, long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*updated.ReviewQuestion) != 500 {
		t.Fatalf("expected question truncated to 500 chars, got %d", len(*updated.ReviewQuestion))
	}
}

func TestAssign_AdminOnly(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)
	tech := uuid.New()

	_, err := f.svc.Assign(context.Background(), f.lab, c.ID, &tech)
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("lab must not reassign, got %v", err)
	}

	updated, err := f.svc.Assign(context.Background(), f.admin, c.ID, &tech)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.AssigneeID == nil || *updated.AssigneeID != tech {
		t.Fatal("assignee not set")
	}
}

func TestSetNotes_Roles(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	if _, err := f.svc.SetNotes(context.Background(), f.milling, c.ID, "shade A2"); err != nil {
		t.Fatalf("milling must be able to edit notes: %v", err)
	}
	_, err := f.svc.SetNotes(context.Background(), f.doctor, c.ID, "nope")
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("customer must not edit notes, got %v", err)
	}
}

func TestShip_SetsBothProjections(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	updated, err := f.svc.Ship(context.Background(), f.lab, c.ID, "UPS", "1Z999", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusShipped || updated.Stage != StageShipping {
		t.Fatalf("expected SHIPPED/SHIPPING, got %s/%s", updated.Status, updated.Stage)
	}
	if updated.ShippedAt == nil || updated.TrackingNumber == nil || *updated.TrackingNumber != "1Z999" {
		t.Fatalf("shipment fields incomplete: %+v", updated)
	}

	var statusEv, stageEv bool
	for _, e := range f.repo.events[c.ID] {
		if e.Kind == EventKindStatus && e.To == string(StatusShipped) {
			statusEv = true
		}
		if e.Kind == EventKindStage && e.To == string(StageShipping) {
			stageEv = true
		}
	}
	if !statusEv || !stageEv {
		t.Fatal("shipping must log both the status and the stage transition")
	}
}

func TestShip_Validation(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	_, err := f.svc.Ship(context.Background(), f.lab, c.ID, "UPS", "", nil)
	if !apperr.IsCode(err, apperr.CodeInvalid) {
		t.Fatalf("expected invalid for empty tracking, got %v", err)
	}
	_, err = f.svc.Ship(context.Background(), f.doctor, c.ID, "UPS", "1Z1", nil)
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("expected forbidden for customer, got %v", err)
	}
}

func TestComments_ReadAccessGate(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	if _, err := f.svc.AddComment(context.Background(), f.doctor, c.ID, "please adjust margin"); err != nil {
		t.Fatalf("owner comment failed: %v", err)
	}
	if _, err := f.svc.AddComment(context.Background(), f.milling, c.ID, "on it"); err != nil {
		t.Fatalf("milling comment failed: %v", err)
	}

	_, err := f.svc.AddComment(context.Background(), f.stranger, c.ID, "hi")
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("unaffiliated customer must see not found, got %v", err)
	}

	comments, err := f.svc.ListComments(context.Background(), f.lab, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
}

func TestUpload_CustomerForbiddenEntirely(t *testing.T) {
	f := newFixture()
	c := f.newCase(t)

	_, err := f.svc.CreateUploadURL(context.Background(), f.doctor, c.ID, "scan", "arch.stl", "model/stl")
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	target, err := f.svc.CreateUploadURL(context.Background(), f.lab, c.ID, "scan", "arch.stl", "model/stl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.URL == "" || !strings.Contains(target.Key, c.ID.String()) {
		t.Fatalf("unexpected target: %+v", target)
	}

	if _, err := f.svc.ConfirmFile(context.Background(), f.lab, c.ID, "scan", target.Key, "upper arch"); err != nil {
		t.Fatalf("confirm file failed: %v", err)
	}
	files, err := f.svc.ListFiles(context.Background(), f.doctor, c.ID)
	if err != nil {
		t.Fatalf("owner must be able to list files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
}

func TestTriage_PerRole(t *testing.T) {
	f := newFixture()
	c1 := f.newCase(t)
	c2 := f.newCase(t)
	f.newCase(t)

	if _, err := f.svc.SetReview(context.Background(), f.lab, c1.ID, true, "check shade"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Ship(context.Background(), f.lab, c2.ID, "UPS", "1Z1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counts, err := f.svc.Triage(context.Background(), f.doctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.ActionCount != 1 {
		t.Fatalf("customer action count: want 1, got %d", counts.ActionCount)
	}
	if counts.ShippedCount != 1 {
		t.Fatalf("shipped count: want 1, got %d", counts.ShippedCount)
	}
	if counts.UnreadCount != 3 {
		t.Fatalf("unread count before any reads: want 3, got %d", counts.UnreadCount)
	}

	// Reading a case clears its unread flag.
	if err := f.svc.MarkRead(context.Background(), f.doctor, c1.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	counts, err = f.svc.Triage(context.Background(), f.doctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.UnreadCount != 2 {
		t.Fatalf("unread count after read: want 2, got %d", counts.UnreadCount)
	}

	// Staff action counter tracks change requests, not review flags.
	if _, err := f.svc.Transition(context.Background(), f.doctor, c1.ID, StatusChangesRequested, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	staffCounts, err := f.svc.Triage(context.Background(), f.admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if staffCounts.ActionCount != 1 {
		t.Fatalf("staff action count: want 1, got %d", staffCounts.ActionCount)
	}
}

func TestCreate_InvalidUnits(t *testing.T) {
	f := newFixture()
	c := &DentalCase{ClinicID: f.clinicA, ProductType: "crown", Units: 0}
	err := f.svc.Create(context.Background(), f.doctor, c)
	if !apperr.IsCode(err, apperr.CodeInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}
