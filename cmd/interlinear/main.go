// Command interlinear builds, queries, and serves word-alignment indexes
// for interlinear scripture reading.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/JuniperInterlinear/core/alignment"
	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/xref"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/api"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/archive"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/formats/base"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/resources"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/store"

	// Register the bundled source formats.
	_ "github.com/FocuswithJustin/JuniperInterlinear/internal/formats/usfm"
	_ "github.com/FocuswithJustin/JuniperInterlinear/internal/formats/usx"
)

const version = "0.3.0"

// CLI defines the command-line interface for interlinear.
var CLI struct {
	// Global flags
	Verbose bool `short:"v" help:"Enable debug logging"`
	LogJSON bool `name:"log-json" help:"Emit logs as JSON"`

	// Command groups (noun-first organization)
	Index   IndexGroup  `cmd:"" help:"Alignment index operations (build, info, query)"`
	Word    WordGroup   `cmd:"" help:"Aligned word operations (lookup, resolve)"`
	Bundle  BundleGroup `cmd:"" help:"Annotation resource bundle operations"`
	Formats FormatsCmd  `cmd:"" help:"List registered source formats"`
	Serve   ServeCmd    `cmd:"" help:"Start the REST API and WebSocket server"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// IndexGroup contains alignment index operations.
type IndexGroup struct {
	Build IndexBuildCmd `cmd:"" help:"Build the alignment index from a source document"`
	Info  IndexInfoCmd  `cmd:"" help:"Display index database totals"`
	Query IndexQueryCmd `cmd:"" help:"Find aligned words by Strong's number or lemma"`
}

// WordGroup contains per-word operations.
type WordGroup struct {
	Lookup  WordLookupCmd  `cmd:"" help:"Look up one token's alignment"`
	Resolve WordResolveCmd `cmd:"" help:"Resolve a word selection to ranked cross-references"`
}

// IndexBuildCmd builds the alignment index from one source document.
type IndexBuildCmd struct {
	Path   string `arg:"" help:"Source document (USFM or USX)" type:"existingfile"`
	Format string `help:"Force a source format by name instead of detecting"`
	DB     string `help:"Persist the built index into this database" type:"path"`
	JSON   bool   `help:"Print the build summary as JSON"`
}

func (c *IndexBuildCmd) Run() error {
	ctx := context.Background()
	start := time.Now()

	var src base.Source
	var err error
	if c.Format != "" {
		var ok bool
		src, ok = base.Get(c.Format)
		if !ok {
			return fmt.Errorf("unknown format %q (known: %s)", c.Format, strings.Join(base.Names(), ", "))
		}
	} else {
		src, err = base.ForPath(c.Path)
		if err != nil {
			return err
		}
	}

	book, err := base.ParseFileAs(src, c.Path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", c.Path, err)
	}

	idx, err := alignment.BuildBook(ctx, book)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	stats := idx.Stats()

	saved := false
	if c.DB != "" {
		st, err := store.Open(c.DB)
		if err != nil {
			return fmt.Errorf("open index database: %w", err)
		}
		defer st.Close()

		data, err := os.ReadFile(c.Path)
		if err != nil {
			return err
		}
		saved, err = st.SaveBook(ctx, idx, book.ID, book.Title, store.Fingerprint(data))
		if err != nil {
			return fmt.Errorf("save %s: %w", book.ID, err)
		}
	}

	if c.JSON {
		return printJSON(map[string]any{
			"book":     book.ID,
			"title":    book.Title,
			"stats":    stats,
			"saved":    saved,
			"duration": time.Since(start).Round(time.Millisecond).String(),
		})
	}

	fmt.Printf("Indexed %s", book.ID)
	if book.Title != "" {
		fmt.Printf(" (%s)", book.Title)
	}
	fmt.Println()
	fmt.Printf("  Verses:      %d\n", stats.Verses)
	fmt.Printf("  Tokens:      %d\n", stats.Tokens)
	fmt.Printf("  Words:       %d\n", stats.Words)
	fmt.Printf("  Alignments:  %d\n", stats.Attachments)
	fmt.Printf("  Groups:      %d\n", stats.Groups)
	if c.DB != "" {
		if saved {
			fmt.Printf("  Saved to:    %s\n", c.DB)
		} else {
			fmt.Println("  Save:        skipped (book unchanged)")
		}
	}
	return nil
}

// IndexInfoCmd displays index database totals.
type IndexInfoCmd struct {
	DB   string `arg:"" help:"Index database path" type:"existingfile"`
	JSON bool   `help:"Print as JSON"`
}

func (c *IndexInfoCmd) Run() error {
	ctx := context.Background()

	st, err := store.Open(c.DB)
	if err != nil {
		return fmt.Errorf("open index database: %w", err)
	}
	defer st.Close()

	totals, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	books, err := st.Books(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(map[string]any{"totals": totals, "books": books})
	}

	fmt.Printf("Index database: %s (driver %s)\n", c.DB, store.DriverType())
	for _, name := range []string{"books", "verses", "tokens", "groups"} {
		fmt.Printf("  %-8s %d\n", name+":", totals[name])
	}
	if len(books) > 0 {
		fmt.Println()
		fmt.Println("Books")
		fmt.Println("-----")
		for _, b := range books {
			title := b.Title
			if title == "" {
				title = "-"
			}
			fmt.Printf("  %-4s %-24s %4d verses  updated %s\n", b.ID, title, b.Verses, b.UpdatedAt)
		}
	}
	return nil
}

// IndexQueryCmd finds aligned words by Strong's number or lemma.
type IndexQueryCmd struct {
	DB     string `arg:"" help:"Index database path" type:"existingfile"`
	Strong string `help:"Strong's identifier to search for (e.g. G2316)" xor:"query"`
	Lemma  string `help:"Lemma to search for" xor:"query"`
	JSON   bool   `help:"Print as JSON"`
}

func (c *IndexQueryCmd) Run() error {
	if c.Strong == "" && c.Lemma == "" {
		return fmt.Errorf("either --strong or --lemma is required")
	}

	idx, st, err := loadIndex(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	var locs []*alignment.Location
	if c.Strong != "" {
		locs = idx.FindByStrong(c.Strong)
	} else {
		locs = idx.FindByLemma(c.Lemma)
	}

	if c.JSON {
		return printJSON(locs)
	}

	if len(locs) == 0 {
		fmt.Println("No aligned words found.")
		return nil
	}
	for _, loc := range locs {
		fmt.Printf("%-12s %2d  %-16s %s (%s)\n",
			loc.Ref, loc.Position.Index, loc.Text,
			loc.Attachment.Strong, loc.Attachment.Lemma)
	}
	fmt.Printf("%d aligned words\n", len(locs))
	return nil
}

// WordLookupCmd looks up one token's alignment.
type WordLookupCmd struct {
	DB       string `arg:"" help:"Index database path" type:"existingfile"`
	Ref      string `arg:"" help:"Verse reference (e.g. 'TIT 1:1')"`
	Position int    `arg:"" help:"0-based token position within the verse"`
	JSON     bool   `help:"Print as JSON"`
}

func (c *WordLookupCmd) Run() error {
	vref, err := ref.ParseRef(c.Ref)
	if err != nil {
		return err
	}

	idx, st, err := loadIndex(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, found := idx.Verse(vref)
	if !found {
		return fmt.Errorf("verse %s is not indexed", vref)
	}
	if c.Position < 0 || c.Position >= len(rec.Tokens) {
		return fmt.Errorf("verse %s has %d tokens", vref, len(rec.Tokens))
	}
	tok := rec.Tokens[c.Position]

	if c.JSON {
		return printJSON(tok)
	}

	fmt.Printf("%s token %d: %q\n", vref, c.Position, tok.Content)
	if tok.Alignment == nil {
		fmt.Println("  No alignment (untagged token).")
		return nil
	}
	fmt.Printf("  Strong:  %s\n", tok.Alignment.Strong)
	fmt.Printf("  Lemma:   %s\n", tok.Alignment.Lemma)
	if tok.Alignment.Morph != "" {
		fmt.Printf("  Morph:   %s\n", tok.Alignment.Morph)
	}
	fmt.Printf("  Source:  %s (%d of %d)\n",
		tok.Alignment.SourceContent, tok.Alignment.SourceOccurrence, tok.Alignment.SourceOccurrences)
	if g := rec.Group(tok.Alignment.GroupID); g != nil && len(g.Instances) > 1 {
		var words []string
		for _, inst := range g.Instances {
			words = append(words, inst.Text)
		}
		fmt.Printf("  Group:   %s\n", strings.Join(words, " "))
	}
	return nil
}

// WordResolveCmd resolves a selection to ranked cross-references.
type WordResolveCmd struct {
	DB        string        `arg:"" help:"Index database path" type:"existingfile"`
	Ref       string        `arg:"" help:"Verse reference (e.g. 'TIT 1:1')"`
	Position  int           `arg:"" help:"0-based token position within the verse"`
	Notes     string        `help:"Explanatory-notes resource (file, directory, or bundle)" type:"path"`
	WordLinks string        `help:"Glossary-links resource" type:"path"`
	Questions string        `help:"Comprehension-questions resource" type:"path"`
	Limit     int           `help:"Cap the returned cross-references (0 = all)"`
	Timeout   time.Duration `help:"Per-collaborator timeout" default:"5s"`
	JSON      bool          `help:"Print as JSON"`
}

func (c *WordResolveCmd) Run() error {
	vref, err := ref.ParseRef(c.Ref)
	if err != nil {
		return err
	}

	idx, st, err := loadIndex(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	var collaborators []xref.Collaborator
	if c.Notes != "" {
		collaborators = append(collaborators, resources.NewNotes(c.Notes))
	}
	if c.WordLinks != "" {
		collaborators = append(collaborators, resources.NewWordLinks(c.WordLinks))
	}
	if c.Questions != "" {
		collaborators = append(collaborators, resources.NewQuestions(c.Questions))
	}

	resolver := xref.NewResolver(idx,
		xref.WithCollaborators(collaborators...),
		xref.WithTimeout(c.Timeout))

	result, err := resolver.Resolve(context.Background(), xref.Request{
		Ref:      vref,
		Position: c.Position,
		Limit:    c.Limit,
	})
	if err != nil {
		return err
	}

	if c.JSON {
		return printJSON(result)
	}

	fmt.Printf("%s token %d: %q\n", result.Ref, result.Position, result.Text)
	if result.Alignment == nil {
		fmt.Println("  No alignment; nothing to resolve.")
		return nil
	}
	fmt.Printf("  Aligned to %s (%s)\n", result.Alignment.Strong, result.Alignment.Lemma)

	if len(result.CrossReferences) == 0 {
		fmt.Println("  No cross-references found.")
	}
	for i, cr := range result.CrossReferences {
		fmt.Printf("  %2d. [%.1f] %-10s %s", i+1, cr.Score, cr.Kind, cr.RecordID)
		if cr.Excerpt != "" {
			fmt.Printf("  %s", cr.Excerpt)
		}
		fmt.Println()
	}
	for kind, msg := range result.Meta.Failures {
		fmt.Fprintf(os.Stderr, "warning: %s collaborator failed: %s\n", kind, msg)
	}
	return nil
}

// BundleGroup contains annotation resource bundle operations.
type BundleGroup struct {
	Pack BundlePackCmd `cmd:"" help:"Pack a directory of annotation tables into a bundle"`
}

// BundlePackCmd packs a resource directory into a compressed bundle that
// the resolve and serve commands accept in place of a loose directory.
type BundlePackCmd struct {
	Dir string `arg:"" help:"Directory of annotation TSV tables" type:"existingdir"`
	Out string `arg:"" help:"Destination bundle (.tar.xz or .tar.gz)" type:"path"`
}

func (c *BundlePackCmd) Run() error {
	if err := archive.CreateBundle(c.Dir, c.Out); err != nil {
		return err
	}
	fmt.Printf("Packed %s into %s\n", c.Dir, c.Out)
	return nil
}

// FormatsCmd lists registered source formats.
type FormatsCmd struct{}

func (c *FormatsCmd) Run() error {
	for _, name := range base.Names() {
		src, _ := base.Get(name)
		fmt.Printf("%-8s %s\n", name, strings.Join(src.Extensions(), " "))
	}
	return nil
}

// ServeCmd starts the REST API and WebSocket server.
type ServeCmd struct {
	Port           int           `help:"HTTP server port" default:"8081"`
	DB             string        `help:"Index database to serve" type:"path"`
	Sources        string        `help:"Directory index-build jobs may read from" type:"path"`
	Notes          string        `help:"Explanatory-notes resource" type:"path"`
	WordLinks      string        `help:"Glossary-links resource" type:"path"`
	Questions      string        `help:"Comprehension-questions resource" type:"path"`
	ResolveTimeout time.Duration `help:"Per-collaborator timeout during resolution" default:"5s"`
	RateLimit      int           `help:"Requests per minute per client (0 = disabled)"`
	RateBurst      int           `help:"Rate limit burst size"`
	AuthToken      string        `help:"Require this bearer token on every request" env:"INTERLINEAR_AUTH_TOKEN"`
	TLSCert        string        `help:"TLS certificate file" type:"path"`
	TLSKey         string        `help:"TLS private key file" type:"path"`
	AllowedOrigins []string      `help:"CORS and WebSocket allowed origins (empty = allow all)"`
}

func (c *ServeCmd) Run() error {
	api.Version = version

	cfg := api.Config{
		Port:              c.Port,
		DBPath:            c.DB,
		SourcesDir:        c.Sources,
		NotesPath:         c.Notes,
		WordLinksPath:     c.WordLinks,
		QuestionsPath:     c.Questions,
		ResolveTimeout:    c.ResolveTimeout,
		RateLimitRequests: c.RateLimit,
		RateLimitBurst:    c.RateBurst,
		AllowedOrigins:    c.AllowedOrigins,
	}
	if c.AuthToken != "" {
		cfg.Auth = api.AuthConfig{Enabled: true, Token: c.AuthToken}
	}
	if c.TLSCert != "" || c.TLSKey != "" {
		cfg.TLS = api.TLSConfig{Enabled: true, CertFile: c.TLSCert, KeyFile: c.TLSKey}
	}

	s, err := api.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Start()
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("interlinear version %s (index driver %s)\n", version, store.DriverType())
	return nil
}

// loadIndex opens an index database and loads the full persisted index.
func loadIndex(path string) (*alignment.Index, *store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open index database: %w", err)
	}
	idx, err := st.LoadIndex(context.Background())
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("load index: %w", err)
	}
	return idx, st, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("interlinear"),
		kong.Description("Juniper Interlinear - word-alignment indexing and reading tools"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	level := logging.LevelInfo
	if CLI.Verbose {
		level = logging.LevelDebug
	}
	format := logging.FormatText
	if CLI.LogJSON {
		format = logging.FormatJSON
	}
	logging.InitLogger(level, format)

	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
