package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestInsertEmailDeduplicatesOnMessageID(t *testing.T) {
	db := testDB(t)

	e := &Email{
		MessageID:   "<abc@example.com>",
		UID:         42,
		Folder:      "INBOX",
		FromAddress: "alice@example.com",
		Subject:     "hello",
		DateSent:    1000,
	}
	inserted, err := db.InsertEmail(e)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted=true")
	}

	// Same message-id again, even from a different folder/UID.
	dup := &Email{MessageID: "<abc@example.com>", UID: 99, Folder: "Archive", Subject: "changed"}
	inserted, err = db.InsertEmail(dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate insert should report inserted=false")
	}

	n, err := db.CountEmails()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d emails, want 1", n)
	}

	got, err := db.GetEmail(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Subject != "hello" {
		t.Errorf("existing row was overwritten: %+v", got)
	}
}

func TestGetEmailMissing(t *testing.T) {
	db := testDB(t)

	e, err := db.GetEmail(12345)
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Errorf("expected nil for missing email")
	}
}

func TestEmailAddressRoundTrip(t *testing.T) {
	db := testDB(t)

	e := &Email{
		MessageID:   "<rt@example.com>",
		UID:         1,
		Folder:      "INBOX",
		FromAddress: "bob@example.com",
		ToAddresses: []Address{{Name: "Alice", Address: "alice@example.com"}},
		RawHeaders:  map[string]string{"X-Mailer": "mutt"},
		DateSent:    5000,
	}
	if _, err := db.InsertEmail(e); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetEmail(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ToAddresses) != 1 || got.ToAddresses[0].Address != "alice@example.com" {
		t.Errorf("to_addresses = %+v", got.ToAddresses)
	}
	if got.RawHeaders["X-Mailer"] != "mutt" {
		t.Errorf("raw_headers = %+v", got.RawHeaders)
	}
}

func TestSyncStateCursorIsMonotonic(t *testing.T) {
	db := testDB(t)

	s, err := db.GetOrCreateSyncState("INBOX")
	if err != nil {
		t.Fatal(err)
	}
	if s.LastUID != 0 {
		t.Fatalf("fresh cursor last_uid = %d, want 0", s.LastUID)
	}

	if err := db.AdvanceSyncState("INBOX", 100, 10); err != nil {
		t.Fatal(err)
	}
	// A stale advance must not rewind the cursor.
	if err := db.AdvanceSyncState("INBOX", 50, 5); err != nil {
		t.Fatal(err)
	}

	s, err = db.GetOrCreateSyncState("INBOX")
	if err != nil {
		t.Fatal(err)
	}
	if s.LastUID != 100 {
		t.Errorf("last_uid = %d, want 100 (stale advance rewound cursor)", s.LastUID)
	}
	if s.TotalSynced != 10 {
		t.Errorf("total_synced = %d, want 10", s.TotalSynced)
	}
}

func TestListUnclassified(t *testing.T) {
	db := testDB(t)

	a := &Email{MessageID: "<a@x>", UID: 1, Folder: "INBOX", DateSent: 1000}
	b := &Email{MessageID: "<b@x>", UID: 2, Folder: "INBOX", DateSent: 2000}
	for _, e := range []*Email{a, b} {
		if _, err := db.InsertEmail(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := InsertClassification(db, &Classification{EmailID: a.ID, Category: "noise"}); err != nil {
		t.Fatal(err)
	}

	emails, err := db.ListUnclassified(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(emails) != 1 || emails[0].ID != b.ID {
		t.Errorf("unclassified = %+v, want only %d", emails, b.ID)
	}
}

func TestListEmailsCategoryFilter(t *testing.T) {
	db := testDB(t)

	a := &Email{MessageID: "<a@x>", UID: 1, Folder: "INBOX", DateSent: 1000}
	b := &Email{MessageID: "<b@x>", UID: 2, Folder: "INBOX", DateSent: 2000}
	for _, e := range []*Email{a, b} {
		if _, err := db.InsertEmail(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := InsertClassification(db, &Classification{EmailID: a.ID, Category: "newsletter"}); err != nil {
		t.Fatal(err)
	}
	if err := InsertClassification(db, &Classification{EmailID: b.ID, Category: "actionable"}); err != nil {
		t.Fatal(err)
	}

	emails, err := db.ListEmails(EmailFilter{Category: "newsletter"})
	if err != nil {
		t.Fatal(err)
	}
	if len(emails) != 1 || emails[0].ID != a.ID {
		t.Errorf("newsletter emails = %+v, want only %d", emails, a.ID)
	}
}

func TestLinkPipelineTransitions(t *testing.T) {
	db := testDB(t)

	e := &Email{MessageID: "<l@x>", UID: 1, Folder: "INBOX"}
	if _, err := db.InsertEmail(e); err != nil {
		t.Fatal(err)
	}
	l := &Link{EmailID: e.ID, URL: "https://arxiv.org/abs/1234", Domain: "arxiv.org", RelevanceScore: 0.9}
	if err := InsertLink(db, l); err != nil {
		t.Fatal(err)
	}
	if l.PipelineStatus != LinkPending {
		t.Fatalf("status = %q, want pending", l.PipelineStatus)
	}

	if err := db.MarkLinksQueued([]int64{l.ID}); err != nil {
		t.Fatal(err)
	}
	// A second queue attempt is a no-op: the guard only moves pending links.
	if err := db.MarkLinksQueued([]int64{l.ID}); err != nil {
		t.Fatal(err)
	}

	found, err := db.MarkLinkExtracted(l.ID, map[string]any{"title": "Paper"})
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("MarkLinkExtracted should find the link")
	}

	links, err := db.ListLinksByEmail(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || links[0].PipelineStatus != LinkExtracted {
		t.Errorf("links = %+v, want one extracted", links)
	}
	if links[0].PipelineResult["title"] != "Paper" {
		t.Errorf("pipeline_result = %+v", links[0].PipelineResult)
	}

	found, err = db.MarkLinkExtracted(99999, nil)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("unknown link should report found=false")
	}
}

func TestListPendingLinksThreshold(t *testing.T) {
	db := testDB(t)

	e := &Email{MessageID: "<p@x>", UID: 1, Folder: "INBOX"}
	if _, err := db.InsertEmail(e); err != nil {
		t.Fatal(err)
	}
	for _, l := range []*Link{
		{EmailID: e.ID, URL: "https://a.example/1", RelevanceScore: 0.9},
		{EmailID: e.ID, URL: "https://a.example/2", RelevanceScore: 0.4},
	} {
		if err := InsertLink(db, l); err != nil {
			t.Fatal(err)
		}
	}

	links, err := db.ListPendingLinks(0.6)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 || links[0].URL != "https://a.example/1" {
		t.Errorf("pending above 0.6 = %+v", links)
	}
}

func TestSenderProfileNullRelevance(t *testing.T) {
	db := testDB(t)

	p := &SenderProfile{EmailAddress: "news@letters.io", SenderType: "newsletter", TotalEmails: 1}
	if err := InsertSenderProfile(db, p); err != nil {
		t.Fatal(err)
	}

	got, err := GetSenderProfile(db, "news@letters.io")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("profile not found")
	}
	if got.RelevanceScore != nil {
		t.Errorf("relevance = %v, want nil before first classification", *got.RelevanceScore)
	}

	rel := 0.25
	got.RelevanceScore = &rel
	got.TotalEmails = 5
	if err := UpdateSenderProfile(db, got); err != nil {
		t.Fatal(err)
	}

	got, err = GetSenderProfile(db, "news@letters.io")
	if err != nil {
		t.Fatal(err)
	}
	if got.RelevanceScore == nil || *got.RelevanceScore != 0.25 {
		t.Errorf("relevance = %v, want 0.25", got.RelevanceScore)
	}
}

func TestListLowEngagementSendersIncludesUnscored(t *testing.T) {
	db := testDB(t)

	low := 0.1
	high := 0.8
	profiles := []*SenderProfile{
		{EmailAddress: "a@x", SenderType: "newsletter", TotalEmails: 5, RelevanceScore: &low},
		{EmailAddress: "b@x", SenderType: "newsletter", TotalEmails: 4},            // never scored
		{EmailAddress: "c@x", SenderType: "newsletter", TotalEmails: 9, RelevanceScore: &high},
		{EmailAddress: "d@x", SenderType: "newsletter", TotalEmails: 1, RelevanceScore: &low}, // too few
		{EmailAddress: "e@x", SenderType: "person", TotalEmails: 10, RelevanceScore: &low},    // wrong type
	}
	for _, p := range profiles {
		if err := InsertSenderProfile(db, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ListLowEngagementSenders([]string{"newsletter", "marketing"}, 3, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d senders, want 2", len(got))
	}
	// Busiest first.
	if got[0].EmailAddress != "a@x" || got[1].EmailAddress != "b@x" {
		t.Errorf("order = %s, %s", got[0].EmailAddress, got[1].EmailAddress)
	}
}

func TestProposalStatusTransition(t *testing.T) {
	db := testDB(t)

	p := &Proposal{Type: "unsubscribe", Title: "Unsubscribe from 2 senders", AffectedCount: 2}
	if err := db.InsertProposal(p); err != nil {
		t.Fatal(err)
	}
	if p.Status != ProposalPending {
		t.Fatalf("status = %q, want pending", p.Status)
	}

	ok, err := db.SetProposalStatus(p.ID, ProposalPending, ProposalApproved)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("pending -> approved should succeed")
	}

	// Second review attempt conflicts.
	ok, err = db.SetProposalStatus(p.ID, ProposalPending, ProposalRejected)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("reviewing an already-approved proposal should report false")
	}

	got, err := db.GetProposal(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ProposalApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.ReviewedAt == 0 {
		t.Error("reviewed_at not stamped")
	}
}

func TestArchivableByCategoryFiltersUnreadAndRecent(t *testing.T) {
	db := testDB(t)

	now := time.Now().UnixMilli()
	old := now - 60*24*time.Hour.Milliseconds()

	emails := []*Email{
		{MessageID: "<old-read@x>", UID: 1, Folder: "INBOX", DateSent: old, IsRead: true},
		{MessageID: "<old-unread@x>", UID: 2, Folder: "INBOX", DateSent: old, IsRead: false},
		{MessageID: "<recent-read@x>", UID: 3, Folder: "INBOX", DateSent: now, IsRead: true},
	}
	for _, e := range emails {
		if _, err := db.InsertEmail(e); err != nil {
			t.Fatal(err)
		}
		if err := InsertClassification(db, &Classification{EmailID: e.ID, Category: "noise"}); err != nil {
			t.Fatal(err)
		}
	}

	cutoff := now - 30*24*time.Hour.Milliseconds()
	counts, err := db.ArchivableByCategory(cutoff, []string{"noise", "marketing"})
	if err != nil {
		t.Fatal(err)
	}
	if counts["noise"] != 1 {
		t.Errorf("noise = %d, want 1 (only old+read qualifies)", counts["noise"])
	}
}

func TestProcessingSnapshot(t *testing.T) {
	db := testDB(t)

	e := &Email{MessageID: "<s@x>", UID: 1, Folder: "INBOX"}
	if _, err := db.InsertEmail(e); err != nil {
		t.Fatal(err)
	}
	e2 := &Email{MessageID: "<s2@x>", UID: 2, Folder: "INBOX"}
	if _, err := db.InsertEmail(e2); err != nil {
		t.Fatal(err)
	}
	if err := InsertClassification(db, &Classification{EmailID: e.ID, Category: "actionable"}); err != nil {
		t.Fatal(err)
	}
	if err := InsertLink(db, &Link{EmailID: e.ID, URL: "https://x.example/a"}); err != nil {
		t.Fatal(err)
	}
	if err := InsertSenderProfile(db, &SenderProfile{EmailAddress: "s@x"}); err != nil {
		t.Fatal(err)
	}

	s, err := db.ProcessingSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalEmails != 2 || s.Classified != 1 || s.Unclassified != 1 {
		t.Errorf("emails = %d/%d/%d, want 2/1/1", s.TotalEmails, s.Classified, s.Unclassified)
	}
	if s.Categories["actionable"] != 1 {
		t.Errorf("categories = %+v", s.Categories)
	}
	if s.TotalLinks != 1 || s.PendingLinks != 1 {
		t.Errorf("links = %d/%d, want 1/1", s.TotalLinks, s.PendingLinks)
	}
	if s.KnownSenders != 1 {
		t.Errorf("senders = %d, want 1", s.KnownSenders)
	}
}
