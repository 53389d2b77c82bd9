package alignment

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/JuniperInterlinear/core/errors"
	"github.com/FocuswithJustin/JuniperInterlinear/core/markup"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/tokenizer"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
)

// BuildBook tokenizes and indexes every verse of a parsed book into a fresh
// index. Chapters tokenize in parallel; results publish in chapter order so
// a rebuild always produces the same index.
func BuildBook(ctx context.Context, book *markup.Book) (*Index, error) {
	idx := NewIndex()
	if err := idx.AddBook(ctx, book); err != nil {
		return nil, err
	}
	return idx, nil
}

// AddBook tokenizes and indexes every verse of a parsed book, replacing any
// verses already indexed for the same references.
func (x *Index) AddBook(ctx context.Context, book *markup.Book) error {
	if book == nil {
		return errors.NewValidation("book", "parsed book is required")
	}
	start := time.Now()

	chapters, order := book.Chapters()

	results := make([][]*tokenizer.Verse, len(order))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, ch := range order {
		g.Go(func() error {
			verses := chapters[ch]
			out := make([]*tokenizer.Verse, 0, len(verses))
			for _, v := range verses {
				if err := ctx.Err(); err != nil {
					return err
				}
				tv, err := tokenizer.TokenizeVerse(v.Nodes, v.Ref)
				if err != nil {
					return errors.Wrapf(err, "tokenize %s", v.Ref)
				}
				out = append(out, tv)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, verses := range results {
		for _, tv := range verses {
			if err := x.PutVerse(tv); err != nil {
				return err
			}
		}
	}

	st := x.Stats()
	logging.IndexBuild(book.ID, st.Verses, st.Words, st.Attachments, time.Since(start),
		"chapters", len(order), "groups", st.Groups)
	return nil
}

// AddVerse tokenizes and indexes a single verse. It is the incremental
// counterpart to AddBook for callers patching one verse at a time.
func (x *Index) AddVerse(nodes []markup.Node, vref *ref.Ref) error {
	tv, err := tokenizer.TokenizeVerse(nodes, vref)
	if err != nil {
		return err
	}
	return x.PutVerse(tv)
}
