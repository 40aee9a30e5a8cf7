package process

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/bus"
	"github.com/tduarte/mailmind/internal/classify"
	"github.com/tduarte/mailmind/internal/store"
)

// fakeClassifier returns canned verdicts keyed by subject.
type fakeClassifier struct {
	verdicts map[string]classify.Result
	scores   map[string]float64 // url -> relevance
}

func (f *fakeClassifier) ClassifyEmail(_ context.Context, subject, _, _, _, _ string) classify.Result {
	if r, ok := f.verdicts[subject]; ok {
		return r
	}
	return classify.Result{Category: "noise", ModelUsed: "fake"}
}

func (f *fakeClassifier) ScoreLinks(_ context.Context, links []string, _, _, _ string) []classify.LinkScore {
	var out []classify.LinkScore
	for _, url := range links {
		out = append(out, classify.LinkScore{
			URL:            url,
			RelevanceScore: f.scores[url],
			LinkType:       "article",
		})
	}
	return out
}

func testProcessor(t *testing.T, fc *fakeClassifier) (*Processor, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, fc, bus.New(), zap.NewNop()), db
}

func insertEmail(t *testing.T, db *store.DB, e *store.Email) {
	t.Helper()
	if _, err := db.InsertEmail(e); err != nil {
		t.Fatal(err)
	}
}

func TestProcessUnclassifiedStoresVerdictAndLinks(t *testing.T) {
	fc := &fakeClassifier{
		verdicts: map[string]classify.Result{
			"ML digest": {Category: "newsletter", Confidence: 0.9, RelevanceScore: 0.8, Summary: "weekly ML", ModelUsed: "fake"},
		},
		scores: map[string]float64{
			"https://arxiv.org/abs/1":   0.9,
			"https://lowvalue.example/": 0.2,
		},
	}
	p, db := testProcessor(t, fc)

	insertEmail(t, db, &store.Email{
		MessageID:   "<d@x>",
		UID:         1,
		Folder:      "INBOX",
		FromAddress: "ed@ml.io",
		Subject:     "ML digest",
		BodyText:    "See https://arxiv.org/abs/1 and https://lowvalue.example/ now",
		DateSent:    1000,
	})

	r, err := p.ProcessUnclassified(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if r.Processed != 1 || r.Errors != 0 || r.LinksFound != 2 {
		t.Errorf("result = %+v", r)
	}

	counts, err := db.CategoryCounts()
	if err != nil {
		t.Fatal(err)
	}
	if counts["newsletter"] != 1 {
		t.Errorf("categories = %+v", counts)
	}

	// High-relevance link enters the pipeline; low one is stored skipped.
	statuses, err := db.LinkStatusCounts()
	if err != nil {
		t.Fatal(err)
	}
	if statuses[store.LinkPending] != 1 || statuses[store.LinkSkipped] != 1 {
		t.Errorf("link statuses = %+v", statuses)
	}
}

func TestProcessUnclassifiedIsIncremental(t *testing.T) {
	fc := &fakeClassifier{}
	p, db := testProcessor(t, fc)

	insertEmail(t, db, &store.Email{MessageID: "<a@x>", UID: 1, Folder: "INBOX", Subject: "a"})

	if _, err := p.ProcessUnclassified(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	r, err := p.ProcessUnclassified(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if r.Processed != 0 {
		t.Errorf("second run processed = %d, want 0", r.Processed)
	}
}

func TestSenderProfileRollingRelevance(t *testing.T) {
	fc := &fakeClassifier{
		verdicts: map[string]classify.Result{
			"first":  {Category: "newsletter", RelevanceScore: 0.4},
			"second": {Category: "newsletter", RelevanceScore: 0.9},
		},
	}
	p, db := testProcessor(t, fc)

	insertEmail(t, db, &store.Email{MessageID: "<1@x>", UID: 1, Folder: "INBOX", FromAddress: "n@l.io", Subject: "first", IsRead: true, DateSent: 1000})
	insertEmail(t, db, &store.Email{MessageID: "<2@x>", UID: 2, Folder: "INBOX", FromAddress: "n@l.io", Subject: "second", DateSent: 2000})

	if _, err := p.ProcessEmailByID(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	profile, err := store.GetSenderProfile(db, "n@l.io")
	if err != nil {
		t.Fatal(err)
	}
	if profile == nil || profile.RelevanceScore == nil || *profile.RelevanceScore != 0.4 {
		t.Fatalf("first profile = %+v", profile)
	}
	if profile.TotalEmails != 1 || profile.EmailsOpened != 1 {
		t.Errorf("counters = %d/%d", profile.TotalEmails, profile.EmailsOpened)
	}
	if profile.SenderType != "newsletter" {
		t.Errorf("sender_type = %q", profile.SenderType)
	}

	if _, err := p.ProcessEmailByID(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	profile, err = store.GetSenderProfile(db, "n@l.io")
	if err != nil {
		t.Fatal(err)
	}
	// 0.8*0.4 + 0.2*0.9 = 0.50
	if math.Abs(*profile.RelevanceScore-0.5) > 1e-9 {
		t.Errorf("rolled relevance = %v, want 0.50", *profile.RelevanceScore)
	}
	if profile.TotalEmails != 2 || profile.EmailsOpened != 1 {
		t.Errorf("counters = %d/%d, want 2/1", profile.TotalEmails, profile.EmailsOpened)
	}
	if profile.LastSeen != 2000 {
		t.Errorf("last_seen = %d, want 2000", profile.LastSeen)
	}
}

func TestProcessEmailByIDUnknown(t *testing.T) {
	p, _ := testProcessor(t, &fakeClassifier{})

	_, err := p.ProcessEmailByID(context.Background(), 999)
	if !errors.Is(err, ErrEmailNotFound) {
		t.Errorf("err = %v, want ErrEmailNotFound", err)
	}
}

func TestInferSenderType(t *testing.T) {
	cases := map[string]string{
		"newsletter":    "newsletter",
		"transactional": "service",
		"notification":  "service",
		"personal":      "person",
		"actionable":    "person",
		"marketing":     "marketing",
		"noise":         "marketing",
		"unknown":       "service",
	}
	for category, want := range cases {
		if got := inferSenderType(category); got != want {
			t.Errorf("inferSenderType(%q) = %q, want %q", category, got, want)
		}
	}
}
