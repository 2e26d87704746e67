package docstring

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/scaliseraoul/ambrogio/internal/generator"
	"github.com/scaliseraoul/ambrogio/internal/logging"
	"github.com/scaliseraoul/ambrogio/internal/pysrc"
	"github.com/scaliseraoul/ambrogio/internal/tools"
)

// Generator produces the text of one docstring.
type Generator interface {
	GenerateDocstring(ctx context.Context, req generator.DocstringRequest) (string, error)
}

// Recorder receives the number of docstrings written.
type Recorder interface {
	RecordDocstringsInserted(n int)
}

// FixerOptions configure a Fixer run.
type FixerOptions struct {
	MaxAPICalls int
	MinCoverage float64
	DryRun      bool
	Confirmer   Confirmer // nil writes without asking
	Out         io.Writer // receives diffs in dry-run and interactive mode
	Metrics     Recorder
	Logger      *zap.Logger
}

// Summary describes what a Fixer run did. In dry-run mode ModifiedFiles and Inserted describe the
// planned changes and After equals Before.
type Summary struct {
	ModifiedFiles []string
	APICalls      int
	Inserted      int
	Before        Report
	After         Report
}

// Fixer adds generated docstrings to the public definitions that lack one.
type Fixer struct {
	scanner *Scanner
	files   Files
	gen     Generator
	opts    FixerOptions
	logger  *zap.Logger
}

// NewFixer constructs a Fixer.
func NewFixer(scanner *Scanner, files Files, gen Generator, opts FixerOptions) *Fixer {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Fixer{
		scanner: scanner,
		files:   files,
		gen:     gen,
		opts:    opts,
		logger:  logging.OrNop(opts.Logger),
	}
}

// Run scans the repository, documents the files under the coverage threshold until the API call
// budget is spent and scans again. Failed generations are logged and skipped, never retried.
func (f *Fixer) Run(ctx context.Context) (Summary, error) {
	before, err := f.scanner.Scan(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Before: before, After: before}

	targets := before.BelowThreshold(f.opts.MinCoverage)
	f.logger.Info("docstring coverage scanned",
		zap.Float64("percent", before.Percent),
		zap.Int("files_below_threshold", len(targets)),
	)

	for _, fc := range targets {
		if summary.APICalls >= f.opts.MaxAPICalls {
			f.logger.Info("api call budget exhausted", zap.Int("calls", summary.APICalls))
			break
		}
		inserted, err := f.fixFile(ctx, fc.Path, &summary)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			f.logger.Warn("file left unchanged", zap.String("path", fc.Path), zap.Error(err))
			continue
		}
		if inserted > 0 {
			summary.ModifiedFiles = append(summary.ModifiedFiles, fc.Path)
			summary.Inserted += inserted
		}
	}

	if len(summary.ModifiedFiles) > 0 && !f.opts.DryRun {
		after, err := f.scanner.Scan(ctx)
		if err != nil {
			return summary, err
		}
		summary.After = after
	}
	return summary, nil
}

// fixFile returns the number of docstrings written to rel, or that would be written in dry-run mode.
func (f *Fixer) fixFile(ctx context.Context, rel string, summary *Summary) (int, error) {
	path := f.files.Abs(rel)
	fsys, err := tools.NewFilesystem(f.files.Root(), !f.opts.DryRun)
	if err != nil {
		return 0, err
	}
	src, err := fsys.ReadFile(path)
	if err != nil {
		return 0, err
	}
	file, err := pysrc.Parse(ctx, src)
	if err != nil {
		return 0, err
	}
	defs := undocumented(file)
	file.Close()

	var ins []pysrc.Insertion
	for _, d := range defs {
		if summary.APICalls >= f.opts.MaxAPICalls {
			break
		}
		summary.APICalls++
		doc, err := f.gen.GenerateDocstring(ctx, generator.DocstringRequest{Name: d.Name, Kind: d.Kind, Code: d.Code})
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			f.logger.Warn("docstring generation failed",
				zap.String("path", rel), zap.String("definition", d.QualifiedName), zap.Error(err))
			continue
		}
		ins = append(ins, pysrc.Insertion{Def: d, Docstring: doc})
	}
	if len(ins) == 0 {
		return 0, nil
	}

	updated, edits, err := pysrc.Splice(ctx, src, ins)
	if err != nil {
		return 0, err
	}
	if len(edits) == 0 {
		return 0, nil
	}

	if f.opts.DryRun || f.opts.Confirmer != nil {
		patch, err := UnifiedDiff(rel, src, edits)
		if err != nil {
			return 0, fmt.Errorf("render diff: %w", err)
		}
		fmt.Fprint(f.opts.Out, patch)
	}
	if f.opts.DryRun {
		return len(edits), nil
	}
	if f.opts.Confirmer != nil {
		ok, err := f.opts.Confirmer.Confirm(ctx, rel)
		if err != nil {
			return 0, err
		}
		if !ok {
			f.logger.Info("skipped by user", zap.String("path", rel))
			return 0, nil
		}
	}

	if err := fsys.WriteFile(path, updated); err != nil {
		return 0, fmt.Errorf("write %s: %w", rel, err)
	}
	if f.opts.Metrics != nil {
		f.opts.Metrics.RecordDocstringsInserted(len(edits))
	}
	f.logger.Info("docstrings written", zap.String("path", rel), zap.Int("count", len(edits)))
	return len(edits), nil
}
