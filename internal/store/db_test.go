package store

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit", "cardiosim.db"), true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveAndListResolutions(t *testing.T) {
	db := openTestDB(t)
	rows := []struct {
		domain, provenance string
	}{
		{"diagnosis", "fallback"},
		{"diagnosis", "medgemma"},
		{"explain", "fallback"},
		{"video", "veo"},
		{"diagnosis", "fallback"},
	}
	for i, row := range rows {
		r := &Resolution{RequestID: "req-" + string(rune('a'+i)), Domain: row.domain, Capability: "text-completion", Provenance: row.provenance, ElapsedMs: int64(i)}
		r.SetAttempts([]AttemptSummary{{Provider: "medgemma", Outcome: "failure", Error: "status 503"}})
		if err := db.SaveResolution(r); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got, total, err := db.ListResolutions(ResolutionQuery{Domain: "diagnosis", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 diagnosis rows got %d", total)
	}
	if len(got) != 2 {
		t.Fatalf("expected page of 2 got %d", len(got))
	}
	if got[0].RequestID != "req-e" {
		t.Fatalf("expected newest first, got %s", got[0].RequestID)
	}
	attempts := got[0].Attempts()
	if len(attempts) != 1 || attempts[0].Error != "status 503" {
		t.Fatalf("unexpected attempts %+v", attempts)
	}

	fallbacks, total, err := db.ListResolutions(ResolutionQuery{Provenance: "fallback", Offset: 1})
	if err != nil {
		t.Fatalf("list fallback: %v", err)
	}
	if total != 3 || len(fallbacks) != 2 {
		t.Fatalf("expected 3 fallback rows and a page of 2, got %d/%d", total, len(fallbacks))
	}
}

func TestProvenanceCountsAndFallbackRate(t *testing.T) {
	db := openTestDB(t)
	for _, p := range []string{"fallback", "fallback", "fallback", "gemini"} {
		if err := db.SaveResolution(&Resolution{Domain: "explain", Provenance: p}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := db.SaveResolution(&Resolution{Domain: "video", Provenance: "veo"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	counts, err := db.ProvenanceCounts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if len(counts) != 3 {
		t.Fatalf("expected 3 groups got %+v", counts)
	}
	if counts[0].Domain != "explain" || counts[0].Provenance != "fallback" || counts[0].Total != 3 {
		t.Fatalf("unexpected top group %+v", counts[0])
	}

	rate, err := db.FallbackRate("explain")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate != 0.75 {
		t.Fatalf("expected 0.75 got %v", rate)
	}
	rate, err = db.FallbackRate("mentor")
	if err != nil || rate != 0 {
		t.Fatalf("expected zero rate for empty domain, got %v %v", rate, err)
	}
}

func TestSaveArtifactIgnoresDuplicateLocation(t *testing.T) {
	db := openTestDB(t)
	first := &StoredArtifact{Procedure: "CPR", Provider: "veo", Location: "/files/cpr-01.mp4", MIMEType: "video/mp4"}
	if err := db.SaveArtifact(first); err != nil {
		t.Fatalf("save: %v", err)
	}
	dup := &StoredArtifact{Procedure: "CPR", Provider: "replicate", Location: "/files/cpr-01.mp4"}
	if err := db.SaveArtifact(dup); err != nil {
		t.Fatalf("save duplicate: %v", err)
	}
	if err := db.SaveArtifact(&StoredArtifact{Procedure: "STEMI", Location: "/files/stemi-01.mp4"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveArtifact(&StoredArtifact{Procedure: "CPR"}); err == nil {
		t.Fatalf("expected error for empty location")
	}

	rows, err := db.ListArtifacts("CPR", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Provider != "veo" {
		t.Fatalf("expected the first CPR row to survive, got %+v", rows)
	}
	all, err := db.ListArtifacts("", 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 artifacts, got %d %v", len(all), err)
	}
}
