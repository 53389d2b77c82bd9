// Package alignment maintains the in-memory alignment index: per-verse
// attachment lookups plus reverse indexes from Strong's numbers and lemmas
// to every aligned word that carries them.
//
// The index is safe for concurrent readers and writers. Writers prepare a
// complete per-verse record off-lock and publish it atomically, so readers
// never observe a half-replaced verse.
package alignment

import (
	"slices"
	"sync"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/token"
	"github.com/FocuswithJustin/JuniperInterlinear/core/tokenizer"
)

// VerseRecord is the published index entry for one verse. Records are
// immutable once published; re-tokenizing a verse swaps in a new record.
type VerseRecord struct {
	// Ref is the verse reference.
	Ref *ref.Ref

	// Tokens is the verse's ordered token sequence.
	Tokens []*token.Token

	// PlainText is the reconstructed verse text.
	PlainText string

	// Attachments maps token index to that token's alignment attachment.
	// Unaligned positions are absent.
	Attachments map[int]*token.Attachment

	// Groups holds the verse's alignment groups in creation order.
	Groups []*token.Group

	// WordCount is the number of word-kind tokens.
	WordCount int
}

// Group returns the verse's group with the given id, or nil.
func (r *VerseRecord) Group(id string) *token.Group {
	for _, g := range r.Groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// Location is one aligned word as found by a reverse-index lookup.
type Location struct {
	// Ref is the verse the word appears in.
	Ref *ref.Ref `json:"ref"`

	// Position locates the word within its verse.
	Position token.Position `json:"position"`

	// TokenID is the word's deterministic token id.
	TokenID string `json:"token_id"`

	// Text is the word's surface content.
	Text string `json:"text"`

	// Attachment is the word's alignment.
	Attachment *token.Attachment `json:"attachment"`
}

// Index answers alignment lookups by verse position and reverse lookups by
// Strong's number or lemma.
type Index struct {
	mu       sync.RWMutex
	verses   map[string]*VerseRecord
	byStrong map[string][]*Location
	byLemma  map[string][]*Location
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		verses:   make(map[string]*VerseRecord),
		byStrong: make(map[string][]*Location),
		byLemma:  make(map[string][]*Location),
	}
}

// PutVerse indexes one tokenized verse, replacing any previous record for
// the same reference. Putting the same verse twice leaves the index
// identical to a single put.
func (x *Index) PutVerse(v *tokenizer.Verse) error {
	if v == nil || v.Ref == nil {
		return errors.NewValidation("verse", "tokenized verse with reference is required")
	}

	rec := &VerseRecord{
		Ref:         v.Ref,
		Tokens:      v.Tokens,
		PlainText:   v.PlainText,
		Attachments: make(map[int]*token.Attachment),
		Groups:      v.Groups,
	}
	var locs []*Location
	for _, tok := range v.Tokens {
		if tok.IsWord() {
			rec.WordCount++
		}
		if tok.Alignment == nil {
			continue
		}
		rec.Attachments[tok.Position.Index] = tok.Alignment
		locs = append(locs, &Location{
			Ref:        v.Ref,
			Position:   tok.Position,
			TokenID:    tok.ID,
			Text:       tok.Content,
			Attachment: tok.Alignment,
		})
	}

	x.publish(rec, locs)
	return nil
}

// publish atomically swaps in a fully built verse record and its reverse
// entries.
func (x *Index) publish(rec *VerseRecord, locs []*Location) {
	key := rec.Ref.Key()

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.verses[key]; exists {
		x.scrubLocked(key)
	}
	x.verses[key] = rec
	for _, loc := range locs {
		if s := loc.Attachment.Strong; s != "" {
			x.byStrong[s] = insertLocation(x.byStrong[s], loc)
		}
		if l := loc.Attachment.Lemma; l != "" {
			x.byLemma[l] = insertLocation(x.byLemma[l], loc)
		}
	}
}

// scrubLocked removes every reverse-index entry belonging to the verse key.
// Callers hold the write lock.
func (x *Index) scrubLocked(key string) {
	for s, bucket := range x.byStrong {
		if filtered := dropVerse(bucket, key); len(filtered) != len(bucket) {
			if len(filtered) == 0 {
				delete(x.byStrong, s)
			} else {
				x.byStrong[s] = filtered
			}
		}
	}
	for l, bucket := range x.byLemma {
		if filtered := dropVerse(bucket, key); len(filtered) != len(bucket) {
			if len(filtered) == 0 {
				delete(x.byLemma, l)
			} else {
				x.byLemma[l] = filtered
			}
		}
	}
}

func dropVerse(bucket []*Location, key string) []*Location {
	filtered := bucket[:0:0]
	for _, loc := range bucket {
		if loc.Ref.Key() != key {
			filtered = append(filtered, loc)
		}
	}
	return filtered
}

// insertLocation keeps buckets ordered by canonical reference, then token
// index, so lookups return stable document order.
func insertLocation(bucket []*Location, loc *Location) []*Location {
	i, _ := slices.BinarySearchFunc(bucket, loc, compareLocations)
	return slices.Insert(bucket, i, loc)
}

func compareLocations(a, b *Location) int {
	if c := ref.Compare(a.Ref, b.Ref); c != 0 {
		return c
	}
	return a.Position.Index - b.Position.Index
}

// Alignment returns the attachment at a verse position. A missing verse or
// an unaligned position reports false; neither is an error.
func (x *Index) Alignment(vref *ref.Ref, position int) (*token.Attachment, bool) {
	if vref == nil {
		return nil, false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.verses[vref.Key()]
	if !ok {
		return nil, false
	}
	att, ok := rec.Attachments[position]
	return att, ok
}

// Verse returns the published record for a reference, or false when the
// verse has not been indexed.
func (x *Index) Verse(vref *ref.Ref) (*VerseRecord, bool) {
	if vref == nil {
		return nil, false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.verses[vref.Key()]
	return rec, ok
}

// FindByStrong returns every aligned word carrying the Strong's number, in
// canonical book order. The result is a copy the caller may keep.
func (x *Index) FindByStrong(strong string) []*Location {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.byStrong[strong])
}

// FindByLemma returns every aligned word carrying the lemma, in canonical
// book order. The result is a copy the caller may keep.
func (x *Index) FindByLemma(lemma string) []*Location {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.byLemma[lemma])
}

// Merge folds another index into this one. Verses present in both are taken
// from other, matching the replace semantics of PutVerse.
func (x *Index) Merge(other *Index) {
	if other == nil || other == x {
		return
	}
	for _, rec := range other.Records() {
		x.putRecord(rec)
	}
}

func (x *Index) putRecord(rec *VerseRecord) {
	var locs []*Location
	for _, tok := range rec.Tokens {
		if tok.Alignment == nil {
			continue
		}
		locs = append(locs, &Location{
			Ref:        rec.Ref,
			Position:   tok.Position,
			TokenID:    tok.ID,
			Text:       tok.Content,
			Attachment: tok.Alignment,
		})
	}
	x.publish(rec, locs)
}

// Records returns every published verse record in canonical book order.
func (x *Index) Records() []*VerseRecord {
	x.mu.RLock()
	recs := make([]*VerseRecord, 0, len(x.verses))
	for _, rec := range x.verses {
		recs = append(recs, rec)
	}
	x.mu.RUnlock()

	slices.SortFunc(recs, func(a, b *VerseRecord) int {
		return ref.Compare(a.Ref, b.Ref)
	})
	return recs
}

// Stats summarizes the index for logging and health reporting.
type Stats struct {
	// Verses is the number of indexed verses.
	Verses int `json:"verses"`

	// Tokens is the total token count across verses.
	Tokens int `json:"tokens"`

	// Words is the total word-kind token count.
	Words int `json:"words"`

	// Attachments is the total aligned token count.
	Attachments int `json:"attachments"`

	// Groups is the total alignment group count.
	Groups int `json:"groups"`

	// Strongs is the number of distinct Strong's numbers indexed.
	Strongs int `json:"strongs"`

	// Lemmas is the number of distinct lemmas indexed.
	Lemmas int `json:"lemmas"`
}

// Stats reports current index totals.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	st := Stats{
		Verses:  len(x.verses),
		Strongs: len(x.byStrong),
		Lemmas:  len(x.byLemma),
	}
	for _, rec := range x.verses {
		st.Tokens += len(rec.Tokens)
		st.Words += rec.WordCount
		st.Attachments += len(rec.Attachments)
		st.Groups += len(rec.Groups)
	}
	return st
}
