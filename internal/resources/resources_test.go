package resources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/xref"
)

const notesTSV = "Reference\tID\tTags\tSupportReference\tQuote\tOccurrence\tNote\n" +
	"front:intro\tm2jl\t\t\t\t0\tbook introduction\n" +
	"1:1\trtc9\t\trc://*/ta/man/translate/figs-abstractnouns\tδοῦλος\t1\tPaul calls himself a servant\n" +
	"1:1\txyz8\t\t\tΘεοῦ\t1\tThis refers to God\n" +
	"1:2\tabc1\t\t\t\t0\tverse-level note\n"

const wordLinksTSV = "Reference\tID\tTags\tOrigWords\tOccurrence\tTWLink\n" +
	"1:1\tl001\tkeyterm\tΘεοῦ\t1\trc://*/tw/dict/bible/kt/god\n" +
	"1:1\tl002\t\tδοῦλος\t1\trc://*/tw/dict/bible/other/servant\n"

const questionsTSV = "Reference\tID\tTags\tQuote\tOccurrence\tQuestion\tResponse\n" +
	"1:1\tq001\t\t\t0\tWhat was Paul's purpose?\tTo establish faith\n"

func writeResource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestNotesRecordsForVerse(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "tn_TIT.tsv", notesTSV)

	notes := NewNotes(dir)
	if notes.Kind() != xref.KindNote {
		t.Errorf("Kind() = %q, want %q", notes.Kind(), xref.KindNote)
	}

	records, err := notes.RecordsForVerse(context.Background(), ref.MustParse("TIT 1:1"))
	if err != nil {
		t.Fatalf("RecordsForVerse() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first.ID != "rtc9" {
		t.Errorf("records[0].ID = %q, want %q", first.ID, "rtc9")
	}
	if first.Quote != "δοῦλος" {
		t.Errorf("records[0].Quote = %q, want %q", first.Quote, "δοῦλος")
	}
	if first.Occurrence != 1 {
		t.Errorf("records[0].Occurrence = %d, want 1", first.Occurrence)
	}
	if first.Link != "rc://*/ta/man/translate/figs-abstractnouns" {
		t.Errorf("records[0].Link = %q", first.Link)
	}
	if first.Kind != xref.KindNote {
		t.Errorf("records[0].Kind = %q, want %q", first.Kind, xref.KindNote)
	}
}

func TestFrontMatterRowsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "tn_TIT.tsv", notesTSV)

	notes := NewNotes(dir)
	for _, key := range []string{"TIT 1:1", "TIT 1:2"} {
		records, err := notes.RecordsForVerse(context.Background(), ref.MustParse(key))
		if err != nil {
			t.Fatalf("RecordsForVerse(%s) error = %v", key, err)
		}
		for _, rec := range records {
			if rec.Body == "book introduction" {
				t.Error("front:intro row leaked into verse records")
			}
		}
	}
}

func TestWordLinks(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "twl_TIT.tsv", wordLinksTSV)

	links := NewWordLinks(dir)
	records, err := links.RecordsForVerse(context.Background(), ref.MustParse("TIT 1:1"))
	if err != nil {
		t.Fatalf("RecordsForVerse() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Quote != "Θεοῦ" {
		t.Errorf("records[0].Quote = %q, want %q", records[0].Quote, "Θεοῦ")
	}
	if records[0].Body != "god" {
		t.Errorf("records[0].Body = %q, want link title %q", records[0].Body, "god")
	}
	if records[1].Link != "rc://*/tw/dict/bible/other/servant" {
		t.Errorf("records[1].Link = %q", records[1].Link)
	}
}

func TestQuestions(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "tq_TIT.tsv", questionsTSV)

	questions := NewQuestions(dir)
	records, err := questions.RecordsForVerse(context.Background(), ref.MustParse("TIT 1:1"))
	if err != nil {
		t.Fatalf("RecordsForVerse() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Body != "What was Paul's purpose?" {
		t.Errorf("records[0].Body = %q", records[0].Body)
	}
	if records[0].Kind != xref.KindQuestion {
		t.Errorf("records[0].Kind = %q, want %q", records[0].Kind, xref.KindQuestion)
	}
}

func TestRangedReferenceCoversEveryVerse(t *testing.T) {
	dir := t.TempDir()
	ranged := "Reference\tID\tTags\tSupportReference\tQuote\tOccurrence\tNote\n" +
		"1:1-3\trng1\t\t\t\t0\tnote spanning three verses\n" +
		"1:2\tsolo\t\t\t\t0\tsingle-verse note\n"
	writeResource(t, dir, "tn_TIT.tsv", ranged)

	notes := NewNotes(dir)
	tests := []struct {
		verse string
		want  []string
	}{
		{"TIT 1:1", []string{"rng1"}},
		{"TIT 1:2", []string{"rng1", "solo"}},
		{"TIT 1:3", []string{"rng1"}},
		{"TIT 1:4", nil},
	}
	for _, tt := range tests {
		records, err := notes.RecordsForVerse(context.Background(), ref.MustParse(tt.verse))
		if err != nil {
			t.Fatalf("RecordsForVerse(%s) error = %v", tt.verse, err)
		}
		var ids []string
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
		if len(ids) != len(tt.want) {
			t.Errorf("%s: got records %v, want %v", tt.verse, ids, tt.want)
			continue
		}
		for i := range tt.want {
			if ids[i] != tt.want[i] {
				t.Errorf("%s: records[%d] = %q, want %q", tt.verse, i, ids[i], tt.want[i])
			}
		}
	}

	// The registered record keeps its ranged reference; per-verse keys are
	// lookup fan-out, not a rewrite.
	records, err := notes.RecordsForVerse(context.Background(), ref.MustParse("TIT 1:2"))
	if err != nil {
		t.Fatal(err)
	}
	if !records[0].Ref.IsRange() || records[0].Ref.VerseEnd != 3 {
		t.Errorf("records[0].Ref = %v, want ranged 1:1-3", records[0].Ref)
	}
}

func TestMissingBookTable(t *testing.T) {
	notes := NewNotes(t.TempDir())
	_, err := notes.RecordsForVerse(context.Background(), ref.MustParse("GEN 1:1"))
	if err == nil {
		t.Fatal("expected error for missing table, got nil")
	}
}

func TestVerseWithoutRecords(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "tn_TIT.tsv", notesTSV)

	notes := NewNotes(dir)
	records, err := notes.RecordsForVerse(context.Background(), ref.MustParse("TIT 3:15"))
	if err != nil {
		t.Fatalf("RecordsForVerse() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records for unannotated verse, want 0", len(records))
	}
}

func TestCancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "tn_TIT.tsv", notesTSV)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	notes := NewNotes(dir)
	if _, err := notes.RecordsForVerse(ctx, ref.MustParse("TIT 1:1")); err == nil {
		t.Error("expected context error, got nil")
	}
}

func TestTableCached(t *testing.T) {
	dir := t.TempDir()
	writeResource(t, dir, "tn_TIT.tsv", notesTSV)

	notes := NewNotes(dir)
	if _, err := notes.RecordsForVerse(context.Background(), ref.MustParse("TIT 1:1")); err != nil {
		t.Fatalf("first read error = %v", err)
	}

	// Removing the file must not break reads while the cache holds the
	// parsed table.
	if err := os.Remove(filepath.Join(dir, "tn_TIT.tsv")); err != nil {
		t.Fatal(err)
	}
	records, err := notes.RecordsForVerse(context.Background(), ref.MustParse("TIT 1:1"))
	if err != nil {
		t.Fatalf("cached read error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("cached read got %d records, want 2", len(records))
	}
}

func TestMalformedRowsSkipped(t *testing.T) {
	dir := t.TempDir()
	malformed := "Reference\tID\tTags\tSupportReference\tQuote\tOccurrence\tNote\n" +
		"not-a-ref\tbad1\t\t\t\t0\tbroken row\n" +
		"1:1\tok01\t\t\tλόγος\t1\tgood row\n"
	writeResource(t, dir, "tn_TIT.tsv", malformed)

	notes := NewNotes(dir)
	records, err := notes.RecordsForVerse(context.Background(), ref.MustParse("TIT 1:1"))
	if err != nil {
		t.Fatalf("RecordsForVerse() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "ok01" {
		t.Errorf("records = %v, want only ok01", records)
	}
}
