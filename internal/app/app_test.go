package app

import (
	"errors"
	"testing"

	"openshare/internal/notify"
	"openshare/internal/store"
	"openshare/pkg/domain"
)

type recordingPublisher struct {
	events []notify.InviteEvent
	fail   bool
}

func (r *recordingPublisher) InviteCreated(ev notify.InviteEvent) error {
	if r.fail {
		return errors.New("broker down")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *recordingPublisher) {
	t.Helper()
	mem := store.NewMemoryStore()
	pub := &recordingPublisher{}
	a, err := New(Config{Store: mem, Notifier: pub})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem, pub
}

func createDraft(t *testing.T, a *App) domain.Resource {
	t.Helper()
	res, err := a.CreateResource(CreateResourceInput{
		Title:       "Cold Chain Management Module",
		Description: "Intro module",
		Content:     "lesson body",
		AuthorName:  "Ada",
		AuthorEmail: "ada@x.com",
		Institution: "UiA",
	})
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	return res
}

func TestCreateResourceStartsAsDraftWithVersionOne(t *testing.T) {
	a, mem, _ := newTestApp(t)
	res := createDraft(t, a)

	if res.Status != domain.StatusDraft {
		t.Fatalf("status = %s, want draft", res.Status)
	}
	if res.License != "CC BY" {
		t.Fatalf("license = %q, want default CC BY", res.License)
	}
	versions, err := mem.ListVersions(res.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 || versions[0].VersionNumber != 1 {
		t.Fatalf("expected exactly one version numbered 1, got %+v", versions)
	}
	if versions[0].Content != "lesson body" {
		t.Fatalf("version content = %q", versions[0].Content)
	}
}

func TestCreateResourceValidation(t *testing.T) {
	a, _, _ := newTestApp(t)
	cases := []struct {
		name string
		in   CreateResourceInput
	}{
		{"missing title", CreateResourceInput{Content: "c", AuthorName: "A", AuthorEmail: "a@x.com"}},
		{"missing content", CreateResourceInput{Title: "t", AuthorName: "A", AuthorEmail: "a@x.com"}},
		{"missing author name", CreateResourceInput{Title: "t", Content: "c", AuthorEmail: "a@x.com"}},
		{"missing author email", CreateResourceInput{Title: "t", Content: "c", AuthorName: "A"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.CreateResource(tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateResourceReusesAuthorByEmail(t *testing.T) {
	a, mem, _ := newTestApp(t)
	first := createDraft(t, a)
	second, err := a.CreateResource(CreateResourceInput{
		Title:       "Second",
		Content:     "c",
		AuthorName:  "Ada",
		AuthorEmail: "ADA@X.COM", // different case, same author
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.CreatedBy != second.CreatedBy {
		t.Fatalf("authors differ: %d vs %d", first.CreatedBy, second.CreatedBy)
	}
	author, ok, _ := mem.GetUserByEmail("ada@x.com")
	if !ok || author.Role != domain.RoleAuthor {
		t.Fatalf("author lookup: ok=%v role=%s", ok, author.Role)
	}
}

func TestCreateResourceWithInvitePublishesEvent(t *testing.T) {
	a, mem, pub := newTestApp(t)
	res, err := a.CreateResource(CreateResourceInput{
		Title:             "T",
		Content:           "C",
		AuthorName:        "Ada",
		AuthorEmail:       "ada@x.com",
		CollaboratorEmail: "  bob@y.com ",
		Message:           "join me",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	invites, _ := mem.ListInvites(res.ID)
	if len(invites) != 1 {
		t.Fatalf("expected one invite, got %d", len(invites))
	}
	if invites[0].Status != domain.InvitePending || invites[0].CollaboratorEmail != "bob@y.com" {
		t.Fatalf("invite = %+v", invites[0])
	}
	if len(pub.events) != 1 || pub.events[0].CollaboratorEmail != "bob@y.com" || pub.events[0].ResourceID != res.ID {
		t.Fatalf("events = %+v", pub.events)
	}
}

func TestNotifierFailureDoesNotFailCreate(t *testing.T) {
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem, Notifier: &recordingPublisher{fail: true}})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	res, err := a.CreateResource(CreateResourceInput{
		Title:             "T",
		Content:           "C",
		AuthorName:        "Ada",
		AuthorEmail:       "ada@x.com",
		CollaboratorEmail: "bob@y.com",
	})
	if err != nil {
		t.Fatalf("create should survive broker failure: %v", err)
	}
	invites, _ := mem.ListInvites(res.ID)
	if len(invites) != 1 {
		t.Fatalf("invite should still be recorded, got %d", len(invites))
	}
}

func TestSubmitForReviewIsIdempotent(t *testing.T) {
	a, _, _ := newTestApp(t)
	res := createDraft(t, a)

	got, err := a.SubmitForReview(res.ID)
	if err != nil || got.Status != domain.StatusInReview {
		t.Fatalf("first submit: status=%s err=%v", got.Status, err)
	}
	got, err = a.SubmitForReview(res.ID)
	if err != nil || got.Status != domain.StatusInReview {
		t.Fatalf("second submit: status=%s err=%v", got.Status, err)
	}

	// Submitting an approved resource is also a no-op.
	approveResource(t, a, res.ID)
	got, err = a.SubmitForReview(res.ID)
	if err != nil || got.Status != domain.StatusApproved {
		t.Fatalf("submit on approved: status=%s err=%v", got.Status, err)
	}
}

func TestSubmitForReviewNotFound(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, err := a.SubmitForReview(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInviteCollaboratorAllowsDuplicatesNewestFirst(t *testing.T) {
	a, _, _ := newTestApp(t)
	res := createDraft(t, a)

	if _, err := a.InviteCollaborator(res.ID, "bob@y.com", "first"); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	if _, err := a.InviteCollaborator(res.ID, "bob@y.com", "second"); err != nil {
		t.Fatalf("duplicate invite should be allowed: %v", err)
	}
	_, invites, err := a.GetResource(res.ID)
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if len(invites) != 2 {
		t.Fatalf("expected 2 invites, got %d", len(invites))
	}
	if invites[0].Message != "second" || invites[1].Message != "first" {
		t.Fatalf("invites not newest-first: %+v", invites)
	}
}

func TestInviteCollaboratorErrors(t *testing.T) {
	a, _, _ := newTestApp(t)
	res := createDraft(t, a)
	if _, err := a.InviteCollaborator(res.ID, "  ", "msg"); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank email: err = %v, want ErrValidation", err)
	}
	if _, err := a.InviteCollaborator(404, "bob@y.com", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing resource: err = %v, want ErrNotFound", err)
	}
}

func TestRecordDecisionApprovedAndChangesRequested(t *testing.T) {
	a, mem, _ := newTestApp(t)
	reviewer := ReviewerIdentity{Name: "Rae", Email: "rae@x.com", Institution: "UiA"}

	approved := createDraft(t, a)
	if _, err := a.SubmitForReview(approved.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	review, err := a.RecordDecision(approved.ID, domain.DecisionApproved, "looks good", reviewer)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if review.Decision != domain.DecisionApproved {
		t.Fatalf("decision = %s", review.Decision)
	}
	res, _, _ := mem.GetResource(approved.ID)
	if res.Status != domain.StatusApproved {
		t.Fatalf("status = %s, want approved", res.Status)
	}

	rejected := createDraft(t, a)
	if _, err := a.SubmitForReview(rejected.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := a.RecordDecision(rejected.ID, domain.DecisionChangesRequested, "fix intro", reviewer); err != nil {
		t.Fatalf("request changes: %v", err)
	}
	res, _, _ = mem.GetResource(rejected.ID)
	if res.Status != domain.StatusDraft {
		t.Fatalf("status = %s, want draft after changes_requested", res.Status)
	}

	reviews, _ := mem.ListReviews(rejected.ID)
	if len(reviews) != 1 {
		t.Fatalf("expected exactly one review row, got %d", len(reviews))
	}
	user, ok, _ := mem.GetUserByEmail("rae@x.com")
	if !ok || user.Role != domain.RoleReviewer {
		t.Fatalf("reviewer upsert: ok=%v role=%s", ok, user.Role)
	}
}

func TestRecordDecisionRejectedOutsideInReview(t *testing.T) {
	a, mem, _ := newTestApp(t)
	reviewer := ReviewerIdentity{Name: "Rae", Email: "rae@x.com"}
	res := createDraft(t, a)

	// Decision on a draft that was never submitted must be rejected and
	// leave the status untouched.
	if _, err := a.RecordDecision(res.ID, domain.DecisionChangesRequested, "fix intro", reviewer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	got, _, _ := mem.GetResource(res.ID)
	if got.Status != domain.StatusDraft {
		t.Fatalf("status changed to %s", got.Status)
	}
	reviews, _ := mem.ListReviews(res.ID)
	if len(reviews) != 0 {
		t.Fatalf("no review row should be written, got %d", len(reviews))
	}

	// Approved is terminal: a second decision is rejected too.
	approveResource(t, a, res.ID)
	if _, err := a.RecordDecision(res.ID, domain.DecisionApproved, "", reviewer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("decision on approved: err = %v, want ErrInvalidState", err)
	}
}

func TestRecordDecisionValidation(t *testing.T) {
	a, _, _ := newTestApp(t)
	res := createDraft(t, a)
	if _, err := a.SubmitForReview(res.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := a.RecordDecision(res.ID, "maybe", "", ReviewerIdentity{Name: "R", Email: "r@x.com"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad decision: err = %v, want ErrValidation", err)
	}
	if _, err := a.RecordDecision(res.ID, domain.DecisionApproved, "", ReviewerIdentity{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("anonymous reviewer: err = %v, want ErrValidation", err)
	}
}

func TestRecordDecisionPromotesExistingAuthor(t *testing.T) {
	a, mem, _ := newTestApp(t)
	res := createDraft(t, a)
	if _, err := a.SubmitForReview(res.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The draft's author records a decision under the same email: the
	// existing row is reused and its role switches to reviewer.
	reviewer := ReviewerIdentity{Name: "Ada", Email: "ada@x.com"}
	if _, err := a.RecordDecision(res.ID, domain.DecisionChangesRequested, "tighten the intro", reviewer); err != nil {
		t.Fatalf("decision: %v", err)
	}
	user, ok, _ := mem.GetUserByEmail("ada@x.com")
	if !ok {
		t.Fatal("author row disappeared")
	}
	if user.ID != res.CreatedBy {
		t.Fatalf("expected reuse of author id %d, got %d", res.CreatedBy, user.ID)
	}
	if user.Role != domain.RoleReviewer {
		t.Fatalf("role = %s, want reviewer after recording a decision", user.Role)
	}
}

func TestListInReview(t *testing.T) {
	a, _, _ := newTestApp(t)
	draft := createDraft(t, a)
	submitted := createDraft(t, a)
	if _, err := a.SubmitForReview(submitted.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	queue, err := a.ListInReview()
	if err != nil {
		t.Fatalf("list in review: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != submitted.ID {
		t.Fatalf("queue = %+v", queue)
	}
	if draft.ID == submitted.ID {
		t.Fatalf("distinct resources expected")
	}
}

func TestGenerateLinkIdempotentAndGated(t *testing.T) {
	a, _, _ := newTestApp(t)
	res := createDraft(t, a)

	if _, err := a.GenerateLink(res.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("link on draft: err = %v, want ErrInvalidState", err)
	}
	if _, err := a.GenerateLink(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("link on missing: err = %v, want ErrNotFound", err)
	}

	approveResource(t, a, res.ID)
	first, err := a.GenerateLink(res.ID)
	if err != nil {
		t.Fatalf("first link: %v", err)
	}
	second, err := a.GenerateLink(res.ID)
	if err != nil {
		t.Fatalf("second link: %v", err)
	}
	if first.ID != second.ID || first.URL != second.URL {
		t.Fatalf("link not idempotent: %+v vs %+v", first, second)
	}
}

func TestResolveLaunchReturnsLatestVersion(t *testing.T) {
	a, _, _ := newTestApp(t)
	res := createDraft(t, a)
	if _, err := a.UpdateContent(res.ID, "revised body", "ada@x.com", nil); err != nil {
		t.Fatalf("update content: %v", err)
	}

	if _, err := a.ResolveLaunch(res.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("launch on draft: err = %v, want ErrInvalidState", err)
	}

	approveResource(t, a, res.ID)
	snap, err := a.ResolveLaunch(res.ID)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if snap.Version.VersionNumber != 2 || snap.Version.Content != "revised body" {
		t.Fatalf("latest version = %+v", snap.Version)
	}
	if snap.Resource.Status != domain.StatusApproved {
		t.Fatalf("resource status = %s", snap.Resource.Status)
	}
}

// versionlessStore simulates an approved resource whose version rows are
// missing, e.g. after a partial restore of the resources table.
type versionlessStore struct {
	*store.MemoryStore
}

func (s versionlessStore) LatestVersion(resourceID uint) (domain.ResourceVersion, bool, error) {
	return domain.ResourceVersion{}, false, nil
}

func TestResolveLaunchWithoutVersions(t *testing.T) {
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: versionlessStore{mem}, Notifier: notify.NoopPublisher{}})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	res := createDraft(t, a)
	approveResource(t, a, res.ID)

	if _, err := a.ResolveLaunch(res.ID); !errors.Is(err, ErrNoVersions) {
		t.Fatalf("err = %v, want ErrNoVersions", err)
	}
}

func TestUpdateContentAppendsAndFreezesApproved(t *testing.T) {
	a, mem, _ := newTestApp(t)
	res := createDraft(t, a)

	v2, err := a.UpdateContent(res.ID, "v2", "ada@x.com", map[string]string{"layout": "multi"})
	if err != nil {
		t.Fatalf("append v2: %v", err)
	}
	if v2.VersionNumber != 2 {
		t.Fatalf("version number = %d, want 2", v2.VersionNumber)
	}
	versions, _ := mem.ListVersions(res.ID)
	if len(versions) != 2 || versions[0].Content != "lesson body" {
		t.Fatalf("version 1 must stay immutable, got %+v", versions)
	}

	if _, err := a.UpdateContent(res.ID, "v3", "nobody@x.com", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown author: err = %v, want ErrValidation", err)
	}

	approveResource(t, a, res.ID)
	if _, err := a.UpdateContent(res.ID, "v3", "ada@x.com", nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("edit on approved: err = %v, want ErrInvalidState", err)
	}
}

func TestDeleteResourceCascades(t *testing.T) {
	a, mem, _ := newTestApp(t)
	res := createDraft(t, a)
	if _, err := a.InviteCollaborator(res.ID, "bob@y.com", ""); err != nil {
		t.Fatalf("invite: %v", err)
	}
	approveResource(t, a, res.ID)
	if _, err := a.GenerateLink(res.ID); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := a.DeleteResource(res.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.DeleteResource(res.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v, want ErrNotFound", err)
	}
	if versions, _ := mem.ListVersions(res.ID); len(versions) != 0 {
		t.Fatalf("versions not cascaded: %+v", versions)
	}
	if invites, _ := mem.ListInvites(res.ID); len(invites) != 0 {
		t.Fatalf("invites not cascaded: %+v", invites)
	}
	if _, ok, _ := mem.GetLink(res.ID); ok {
		t.Fatalf("link not cascaded")
	}
}

func TestLtiHomeListsOnlyApproved(t *testing.T) {
	a, _, _ := newTestApp(t)
	createDraft(t, a)
	approved := createDraft(t, a)
	approveResource(t, a, approved.ID)

	home, err := a.LtiHome()
	if err != nil {
		t.Fatalf("lti home: %v", err)
	}
	if len(home) != 1 || home[0].ID != approved.ID {
		t.Fatalf("home = %+v", home)
	}
}

func TestFullPublicationScenario(t *testing.T) {
	a, _, _ := newTestApp(t)
	res, err := a.CreateResource(CreateResourceInput{
		Title:       "T",
		Content:     "C",
		AuthorName:  "A",
		AuthorEmail: "a@x.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.SubmitForReview(res.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := a.RecordDecision(res.ID, domain.DecisionApproved, "looks good", ReviewerIdentity{Name: "R", Email: "r@x.com"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	link, err := a.GenerateLink(res.ID)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if link.URL == "" {
		t.Fatalf("empty link url")
	}
	snap, err := a.ResolveLaunch(res.ID)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if snap.Resource.Status != domain.StatusApproved || snap.Version.Content != "C" {
		t.Fatalf("launch snapshot = %+v", snap)
	}
}

func approveResource(t *testing.T, a *App, id uint) {
	t.Helper()
	if _, err := a.SubmitForReview(id); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := a.RecordDecision(id, domain.DecisionApproved, "", ReviewerIdentity{Name: "Rae", Email: "rae@x.com"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
}
