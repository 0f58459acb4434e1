// Command ternbase-hint measures imprint counts per interleave preset and
// attaches the resulting hint records to signatures.
//
// Usage: ternbase-hint [flags] <input.db> [<output.db>]
//
// Hints let a later --unsafe imprint rebuild visit signatures in
// increasing order of their storage footprint, which protects small
// groups from a full imprint section.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/metrics"
	"github.com/boolforge/ternbase/store"
	"github.com/boolforge/ternbase/tern"
)

type options struct {
	force         bool
	text          bool
	load          string
	maxInterleave uint32
	maxHint       uint32
	hintIndexSize uint32
	ratio         float64
	sidLo, sidHi  uint32
}

func main() {
	opt := options{
		ratio:         metrics.DefaultRatio,
		maxInterleave: 5040,
	}

	cmd := &cobra.Command{
		Use:           "ternbase-hint <input.db> [<output.db>]",
		Short:         "measure per-interleave imprint counts",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &opt, args)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opt.force, "force", false, "overwrite output database if it exists")
	f.BoolVar(&opt.text, "text", false, "write hint lines to stdout")
	f.StringVar(&opt.load, "load", "", "read hints from file instead of measuring")
	f.Uint32Var(&opt.maxInterleave, "maxinterleave", 5040, "largest preset to measure")
	f.Uint32Var(&opt.maxHint, "maxhint", 0, "maximum number of hints")
	f.Uint32Var(&opt.hintIndexSize, "hintindexsize", 0, "size of hint index")
	f.Float64Var(&opt.ratio, "ratio", metrics.DefaultRatio, "index/data ratio")
	f.Uint32Var(&opt.sidLo, "sidlo", 0, "signature window lower bound")
	f.Uint32Var(&opt.sidHi, "sidhi", 0, "signature window upper bound")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGHUP)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opt *options, args []string) error {
	log := ternbase.NewTextLogger(slog.LevelInfo)

	output := ""
	if len(args) == 2 {
		output = args[1]
	}
	if output != "" && !opt.force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s: %w (use --force to overwrite)", output, ternbase.ErrExists)
		}
	}

	in, err := store.Open(args[0], false)
	log.LogOpen(ctx, args[0], err)
	if err != nil {
		return err
	}
	defer in.Close()

	out := store.New(in.Flags)
	cfg := store.NewConfig()
	cfg.Ratio = opt.ratio
	cfg.MaxHint = opt.maxHint
	cfg.HintIndexSize = metrics.NextPrime(uint64(opt.hintIndexSize))
	// hints and signatures get written
	cfg.InheritSections &^= store.MaskSignature |
		store.MaskHint | store.MaskHintIndex
	if cfg.MaxHint == 0 {
		// one hint per signature in the worst case
		cfg.MaxHint = in.NumSignature + 1
	}
	if in.NumSignature > 0 {
		cfg.MaxSignature = in.NumSignature
	}

	if err := cfg.SizeSections(out, in, 1); err != nil {
		return err
	}
	cfg.Populate(out, in)
	if out.NumSignature < in.NumSignature {
		out.NumSignature = in.NumSignature
		copy(out.Signatures, in.Signatures[:in.NumSignature])
	}
	out.RebuildIndices(cfg.RebuildSections)

	if opt.load != "" {
		if err := loadHints(out, opt.load); err != nil {
			return err
		}
	} else {
		if err := measureHints(ctx, out, opt, log); err != nil {
			return err
		}
	}

	if opt.text {
		writeHints(out, os.Stdout)
	}

	if output != "" {
		n, err := out.Save(output)
		log.LogSave(ctx, output, n, err)
		if err != nil {
			_ = os.Remove(output)
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "%s\n", out.InfoJSON())
	return nil
}

// measureHints computes the imprint count of every signature at each
// preset up to the configured ceiling.
func measureHints(ctx context.Context, db *store.Database, opt *options, log *ternbase.Logger) error {
	tree := tern.New(tern.Mode{})

	for sid := uint32(1); sid < db.NumSignature; sid++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if (opt.sidLo != 0 && sid < opt.sidLo) || (opt.sidHi != 0 && sid >= opt.sidHi) {
			continue
		}

		sig := &db.Signatures[sid]
		tree.LoadStringFast(sig.NameString(), tern.DefaultSkin)

		var hint store.Hint
		for i, row := range metrics.InterleaveTable {
			if row.NumStored > opt.maxInterleave {
				continue
			}
			n, err := store.ImprintCount(tree, db.FwdEvaluator, db.RevEvaluator, row.NumStored)
			if err != nil {
				return err
			}
			hint.NumStored[i] = n
		}

		ix := db.LookupHint(&hint)
		if db.HintIndex[ix] == 0 {
			db.HintIndex[ix] = db.AddHint(&hint)
		}
		sig.HintID = db.HintIndex[ix]
	}

	log.Info("measured hints", "numHint", db.NumHint)
	return nil
}

// loadHints reads "<name> <16 counts>" lines.
func loadHints(db *store.Database, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lineNr := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNr++
		fields := strings.Fields(scanner.Text())
		if len(fields) != 1+store.HintEntries {
			return fmt.Errorf(`{"error":"bad/empty line","linenr":%d}`, lineNr)
		}

		ix := db.LookupSignature(fields[0])
		sid := db.SignatureIndex[ix]
		if sid == 0 {
			return fmt.Errorf(`{"error":"unknown signature","linenr":%d,"name":%q}`, lineNr, fields[0])
		}

		var hint store.Hint
		for i := 0; i < store.HintEntries; i++ {
			if _, err := fmt.Sscanf(fields[1+i], "%d", &hint.NumStored[i]); err != nil {
				return fmt.Errorf(`{"error":"bad count","linenr":%d}`, lineNr)
			}
		}

		hix := db.LookupHint(&hint)
		if db.HintIndex[hix] == 0 {
			db.HintIndex[hix] = db.AddHint(&hint)
		}
		db.Signatures[sid].HintID = db.HintIndex[hix]
	}
	return scanner.Err()
}

func writeHints(db *store.Database, w *os.File) {
	for sid := uint32(1); sid < db.NumSignature; sid++ {
		sig := &db.Signatures[sid]
		if sig.HintID == 0 {
			continue
		}
		fmt.Fprintf(w, "%s", sig.NameString())
		for _, n := range db.Hints[sig.HintID].NumStored {
			fmt.Fprintf(w, "\t%d", n)
		}
		fmt.Fprintln(w)
	}
}
