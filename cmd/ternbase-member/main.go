// Command ternbase-member collects signature group members.
//
// Usage: ternbase-member [flags] <input.db> <numnode> [<output.db>]
//
// Candidates come from the built-in generator or from --load lists;
// accepted members land in the output database or, in the worker text
// modes, on stdout for a later reconciling merge. Database paths may be
// plain files or minio:// / s3:// URLs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/blobstore"
	"github.com/boolforge/ternbase/generator"
	"github.com/boolforge/ternbase/member"
	"github.com/boolforge/ternbase/metrics"
	"github.com/boolforge/ternbase/store"
	"github.com/boolforge/ternbase/tern"
)

type options struct {
	force      bool
	generate   bool
	saveIndex  bool
	verify     bool
	pure       bool
	paranoid   bool
	unsafe     bool
	truncate   bool
	ainf       bool
	load       string
	text       int
	timer      uint
	interleave uint32
	ratio      float64

	maxSignature uint32
	maxHint      uint32
	maxImprint   uint32
	maxMember    uint32
	maxPair      uint32

	signatureIndexSize uint32
	hintIndexSize      uint32
	imprintIndexSize   uint32
	memberIndexSize    uint32
	pairIndexSize      uint32

	sid    string
	window string
	task   string

	ledgerTable string
	runName     string
}

func main() {
	opt := options{
		generate:  true,
		saveIndex: true,
		ratio:     metrics.DefaultRatio,
		timer:     1,
	}

	cmd := &cobra.Command{
		Use:           "ternbase-member <input.db> <numnode> [<output.db>]",
		Short:         "collect signature group members",
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &opt, args)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opt.force, "force", false, "overwrite output database if it exists")
	f.BoolVar(&opt.generate, "generate", true, "invoke generator for new candidates")
	var noGenerate, noSaveIndex bool
	f.BoolVar(&noGenerate, "no-generate", false, "do not invoke the generator")
	f.BoolVar(&opt.saveIndex, "saveindex", true, "save the rebuildable indices")
	f.BoolVar(&noSaveIndex, "no-saveindex", false, "strip the rebuildable indices from the output")
	cobra.OnInitialize(func() {
		if noGenerate {
			opt.generate = false
		}
		if noSaveIndex {
			opt.saveIndex = false
		}
	})
	f.BoolVar(&opt.verify, "verify", false, "verify the input image checksum")
	f.BoolVar(&opt.pure, "pure", false, "QTF->QnTF rewriting")
	f.BoolVar(&opt.paranoid, "paranoid", false, "enable expensive assertions")
	f.BoolVar(&opt.unsafe, "unsafe", false, "rebuild imprints for empty/unsafe signatures only")
	f.BoolVar(&opt.truncate, "truncate", false, "truncate cleanly on database overflow")
	f.BoolVar(&opt.ainf, "ainf", false, "add-if-not-found imprint loading")
	f.StringVar(&opt.load, "load", "", "read candidates from file instead of generating")
	f.IntVar(&opt.text, "text", 0, "textual output mode (1=brief 2=compare 3=members 4=verbose 5=sql)")
	f.UintVar(&opt.timer, "timer", 1, "interval timer for verbose updates (seconds)")
	f.Uint32Var(&opt.interleave, "interleave", 0, "imprint index interleave")
	f.Float64Var(&opt.ratio, "ratio", metrics.DefaultRatio, "index/data ratio")
	f.Uint32Var(&opt.maxSignature, "maxsignature", 0, "maximum number of signatures")
	f.Uint32Var(&opt.maxHint, "maxhint", 0, "maximum number of hints")
	f.Uint32Var(&opt.maxImprint, "maximprint", 0, "maximum number of imprints")
	f.Uint32Var(&opt.maxMember, "maxmember", 0, "maximum number of members")
	f.Uint32Var(&opt.maxPair, "maxpair", 0, "maximum number of sid/tid pairs")
	f.Uint32Var(&opt.signatureIndexSize, "signatureindexsize", 0, "size of signature index")
	f.Uint32Var(&opt.hintIndexSize, "hintindexsize", 0, "size of hint index")
	f.Uint32Var(&opt.imprintIndexSize, "imprintindexsize", 0, "size of imprint index")
	f.Uint32Var(&opt.memberIndexSize, "memberindexsize", 0, "size of member index")
	f.Uint32Var(&opt.pairIndexSize, "pairindexsize", 0, "size of sid/tid pair index")
	f.StringVar(&opt.sid, "sid", "", "signature id range [lo,]hi")
	f.StringVar(&opt.window, "window", "", "generator progress window [lo,]hi")
	f.StringVar(&opt.task, "task", "", "task id,last or 'sge'")
	f.StringVar(&opt.ledgerTable, "ledger-table", "", "DynamoDB table recording completed task slices")
	f.StringVar(&opt.runName, "run", "", "run name for the task ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGHUP)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// parseRange splits "[lo,]hi" into its bounds.
func parseRange(arg string) (lo, hi uint64, err error) {
	if arg == "" {
		return 0, 0, nil
	}
	parts := strings.Split(arg, ",")
	switch len(parts) {
	case 1:
		hi, err = strconv.ParseUint(parts[0], 0, 64)
		return 0, hi, err
	case 2:
		if lo, err = strconv.ParseUint(parts[0], 0, 64); err != nil {
			return 0, 0, err
		}
		hi, err = strconv.ParseUint(parts[1], 0, 64)
		return lo, hi, err
	default:
		return 0, 0, fmt.Errorf("malformed range %q", arg)
	}
}

// parseTask resolves --task, including the SGE environment form.
func parseTask(arg string) (id, last uint32, err error) {
	if arg == "" {
		return 0, 0, nil
	}
	if arg == "sge" {
		idStr, lastStr := os.Getenv("SGE_TASK_ID"), os.Getenv("SGE_TASK_LAST")
		if idStr == "" {
			return 0, 0, fmt.Errorf("missing environment SGE_TASK_ID")
		}
		if lastStr == "" {
			return 0, 0, fmt.Errorf("missing environment SGE_TASK_LAST")
		}
		arg = idStr + "," + lastStr
	}

	var id64, last64 uint64
	parts := strings.Split(arg, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed task %q", arg)
	}
	if id64, err = strconv.ParseUint(parts[0], 0, 32); err != nil {
		return 0, 0, err
	}
	if last64, err = strconv.ParseUint(parts[1], 0, 32); err != nil {
		return 0, 0, err
	}
	if id64 == 0 || last64 == 0 || id64 > last64 {
		return 0, 0, fmt.Errorf("task id/last out of bounds: %d,%d", id64, last64)
	}
	return uint32(id64), uint32(last64), nil
}

// openArtifacts resolves database references to local paths, staging
// remote images first.
func openArtifacts(ctx context.Context, ref string) (blobstore.Store, blobstore.Location, string, error) {
	loc, err := blobstore.ParseURL(ref)
	if err != nil {
		return nil, loc, "", err
	}

	switch loc.Scheme {
	case "":
		return blobstore.NewLocal(loc.Dir()), loc, loc.Key, nil
	case "minio":
		client, err := minio.New(loc.Endpoint, &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: true,
		})
		if err != nil {
			return nil, loc, "", err
		}
		bs := blobstore.NewMinIO(client, loc.Bucket, "")
		path, err := blobstore.Stage(ctx, bs, loc.Key, "")
		return bs, loc, path, err
	case "s3":
		bs, err := blobstore.NewS3FromDefaultConfig(ctx, loc.Bucket, "")
		if err != nil {
			return nil, loc, "", err
		}
		path, err := blobstore.Stage(ctx, bs, loc.Key, "")
		return bs, loc, path, err
	default:
		return nil, loc, "", fmt.Errorf("unsupported scheme %q", loc.Scheme)
	}
}

func run(ctx context.Context, opt *options, args []string) error {
	log := ternbase.NewTextLogger(slog.LevelInfo)

	numNodes64, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("numnode: %w", err)
	}
	numNodes := uint32(numNodes64)

	outputRef := ""
	if len(args) == 3 {
		outputRef = args[2]
	}

	windowLo, windowHi, err := parseRange(opt.window)
	if err != nil {
		return err
	}
	sidLo64, sidHi64, err := parseRange(opt.sid)
	if err != nil {
		return err
	}
	sidLo, sidHi := uint32(sidLo64), uint32(sidHi64)

	taskID, taskLast, err := parseTask(opt.task)
	if err != nil {
		return err
	}
	if taskID != 0 {
		gen := metrics.GetGenerator(tern.SlotCount, opt.pure, numNodes)
		if gen == nil {
			return &store.PresetError{What: "task", Value: uint64(numNodes)}
		}
		windowLo, windowHi = generator.TaskWindow(taskID, taskLast, gen.NumProgress)
	}
	if windowHi != 0 && windowLo >= windowHi {
		return fmt.Errorf("--window low exceeds high")
	}

	// completed slices recorded in the ledger are skipped outright
	if opt.ledgerTable != "" && taskID != 0 {
		ledger, err := newLedger(ctx, opt.ledgerTable)
		if err != nil {
			return err
		}
		done, artifact, err := ledger.IsDone(ctx, opt.runName, taskID)
		if err != nil {
			return err
		}
		if done {
			log.Info("task slice already complete", "task", taskID, "artifact", artifact)
			return nil
		}
	}

	// the finalised text modes need sorting, which mutates the store
	textMode := member.TextMode(opt.text)
	readOnly := outputRef == "" &&
		textMode != member.TextMembers && textMode != member.TextVerbose && textMode != member.TextSQL

	// none of the outputs may exist
	var outStore blobstore.Store
	var outKey string
	if outputRef != "" {
		var err error
		outStore, outKey, err = outputLocation(ctx, outputRef)
		if err != nil {
			return err
		}
		if !opt.force {
			exists, err := outStore.Exists(ctx, outKey)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%s: %w (use --force to overwrite)", outputRef, ternbase.ErrExists)
			}
		}
	}

	// open input
	_, _, inputPath, err := openArtifacts(ctx, args[0])
	if err != nil {
		return err
	}
	in, err := store.Open(inputPath, opt.verify)
	log.LogOpen(ctx, args[0], err)
	if err != nil {
		return err
	}
	defer in.Close()

	flags := ternbase.Flags(0)
	if opt.pure {
		flags |= ternbase.FlagPure
	}
	if opt.paranoid {
		flags |= ternbase.FlagParanoid
	}
	if opt.unsafe {
		flags |= ternbase.FlagUnsafe
	}
	if opt.ainf {
		flags |= ternbase.FlagAINF
	}
	if in.Flags != flags {
		log.Warn("database/system flags differ",
			"database", in.Flags.String(),
			"current", flags.String(),
		)
	}
	log.Info("input", "info", in.Info())

	/*
	 * Create the output store. Transforms, hints and imprints never
	 * change and can be inherited; anything the collector mutates needs
	 * a local copy.
	 */

	out := store.New(flags)
	cfg := store.NewConfig()
	cfg.Ratio = opt.ratio
	cfg.ReadOnly = readOnly
	cfg.CopyOnWrite = readOnly
	cfg.Interleave = opt.interleave
	cfg.MaxSignature = opt.maxSignature
	cfg.MaxHint = opt.maxHint
	cfg.MaxImprint = opt.maxImprint
	cfg.MaxMember = opt.maxMember
	cfg.MaxPair = opt.maxPair
	cfg.SignatureIndexSize = metrics.NextPrime(uint64(opt.signatureIndexSize))
	cfg.HintIndexSize = metrics.NextPrime(uint64(opt.hintIndexSize))
	cfg.ImprintIndexSize = metrics.NextPrime(uint64(opt.imprintIndexSize))
	cfg.MemberIndexSize = metrics.NextPrime(uint64(opt.memberIndexSize))
	cfg.PairIndexSize = metrics.NextPrime(uint64(opt.pairIndexSize))

	// the collector writes signatures, members and pairs
	cfg.InheritSections &^= store.MaskSignature |
		store.MaskPair | store.MaskPairIndex |
		store.MaskMember | store.MaskMemberIndex
	// add-if-not-found also grows the signature index and the imprints
	if opt.ainf {
		cfg.InheritSections &^= store.MaskSignatureIndex |
			store.MaskImprint | store.MaskImprintIndex
	}
	if in.SignatureIndexSize == 0 {
		cfg.InheritSections &^= store.MaskSignatureIndex
	}
	if in.NumImprint == 0 {
		cfg.InheritSections &^= store.MaskImprint
	}
	if in.ImprintIndexSize == 0 {
		cfg.InheritSections &^= store.MaskImprintIndex
	}
	if opt.unsafe {
		cfg.RebuildSections |= store.MaskImprint | store.MaskImprintIndex
	}

	// signature growth happens only in add-if-not-found runs
	if !readOnly && !opt.ainf && cfg.MaxSignature == 0 && in.NumSignature > 0 {
		cfg.MaxSignature = in.NumSignature
	}

	if err := cfg.SizeSections(out, in, numNodes); err != nil {
		return err
	}
	cfg.Populate(out, in)

	// signatures always need a private copy
	if out.AllocMask&store.MaskSignature != 0 && out.NumSignature < in.NumSignature {
		out.NumSignature = in.NumSignature
		copy(out.Signatures, in.Signatures[:in.NumSignature])
	}

	// rebuilds in dependency order: signatures, imprints, member index
	if cfg.RebuildSections&store.MaskImprint != 0 && out.MaxImprint > 0 {
		var stats store.RebuildStats
		switch {
		case !opt.unsafe:
			stats = out.RebuildImprints(false, sidLo, sidHi, nil)
		case out.NumHint > 1:
			stats = out.RebuildImprintsWithHints(nil)
		default:
			stats = out.RebuildImprints(true, sidLo, sidHi, nil)
		}
		if stats.Truncated != 0 {
			log.LogTruncated(ctx, "imprint", uint64(stats.Truncated), out.Signatures[stats.Truncated].NameString())
		}
		log.LogRebuild(ctx, "imprint", out.NumImprint, nil)
		cfg.RebuildSections &^= store.MaskImprint | store.MaskImprintIndex
	}
	out.RebuildIndices(cfg.RebuildSections)

	/*
	 * Collect
	 */

	tick := &ternbase.Tick{}
	go func() {
		limiter := rate.NewLimiter(rate.Every(time.Duration(opt.timer)*time.Second), 1)
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			tick.Bump()
		}
	}()

	coll := member.NewCollector(out, member.Options{
		ReadOnly: readOnly,
		Truncate: opt.truncate,
		AINF:     opt.ainf,
		Text:     textMode,
		Out:      os.Stdout,
		Logger:   log,
		Tick:     tick,
	})

	if opt.load != "" {
		r, err := member.OpenCandidateFile(opt.load)
		if err != nil {
			return err
		}
		err = coll.FromFile(r, windowLo, windowHi)
		_ = r.Close()
		if err != nil {
			return err
		}
	}

	if opt.generate {
		gen := generator.New(tern.Mode{Pure: opt.pure, Paranoid: opt.paranoid})
		gen.WindowLo, gen.WindowHi = windowLo, windowHi
		gen.Progress = coll.Progress

		if numNodes <= 1 && in.NumSignature <= 1 {
			// a fresh database also wants the reserved entries
			gen.Reserved(coll)
		}
		if err := gen.Generate(ctx, numNodes, coll); err != nil {
			return err
		}
		coll.Progress = gen.Progress
	}

	if err := coll.Err(); err != nil {
		return err
	}
	if coll.Truncated != 0 {
		log.LogTruncated(ctx, "member", coll.Truncated, coll.TruncatedName)
	}

	/*
	 * Finalise and emit
	 */

	if !readOnly {
		coll.Finalise()
		if err := coll.CheckGroupInvariants(); err != nil {
			return err
		}
		if opt.paranoid {
			if err := out.Validate(); err != nil {
				return err
			}
		}
	}

	switch textMode {
	case member.TextMembers, member.TextVerbose, member.TextSQL:
		coll.WriteMembers(os.Stdout, textMode)
	}

	/*
	 * Save
	 */

	var summary = struct {
		Done      string     `json:"done"`
		TaskID    uint32     `json:"taskId,omitempty"`
		TaskLast  uint32     `json:"taskLast,omitempty"`
		WindowLo  uint64     `json:"windowLo,omitempty"`
		WindowHi  uint64     `json:"windowHi,omitempty"`
		Truncated uint64     `json:"truncated,omitempty"`
		Filename  string     `json:"filename,omitempty"`
		NumEmpty  uint64     `json:"numEmpty"`
		NumUnsafe uint64     `json:"numUnsafe"`
		Store     store.Info `json:"store"`
	}{
		Done:      "ternbase-member",
		TaskID:    taskID,
		TaskLast:  taskLast,
		WindowLo:  windowLo,
		WindowHi:  windowHi,
		Truncated: coll.Truncated,
		Filename:  outputRef,
	}

	if outputRef != "" {
		if !opt.saveIndex {
			out.DropIndexes()
		}

		tmp, err := os.CreateTemp("", "ternbase-out-*")
		if err != nil {
			return err
		}
		tmpPath := tmp.Name()
		_ = tmp.Close()

		// an interrupt must not leave a partial image behind
		cleanup := func() { _ = os.Remove(tmpPath) }

		if _, err := out.Save(tmpPath); err != nil {
			cleanup()
			return err
		}
		if ctx.Err() != nil {
			cleanup()
			return ctx.Err()
		}
		if err := blobstore.Publish(ctx, outStore, outKey, tmpPath); err != nil {
			cleanup()
			return err
		}
		cleanup()
		log.LogSave(ctx, outputRef, 0, nil)

		if opt.ledgerTable != "" && taskID != 0 {
			ledger, err := newLedger(ctx, opt.ledgerTable)
			if err != nil {
				return err
			}
			if err := ledger.MarkDone(ctx, opt.runName, taskID, outputRef); err != nil {
				return err
			}
		}
	}

	summary.NumEmpty = coll.NumEmpty()
	summary.NumUnsafe = coll.NumUnsafe()
	summary.Store = out.Info()

	enc, _ := json.Marshal(summary)
	fmt.Fprintf(os.Stderr, "%s\n", enc)

	return nil
}

// outputLocation resolves where the output image will be published.
func outputLocation(ctx context.Context, ref string) (blobstore.Store, string, error) {
	loc, err := blobstore.ParseURL(ref)
	if err != nil {
		return nil, "", err
	}

	switch loc.Scheme {
	case "":
		return blobstore.NewLocal(loc.Dir()), baseName(loc.Key), nil
	case "minio":
		client, err := minio.New(loc.Endpoint, &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: true,
		})
		if err != nil {
			return nil, "", err
		}
		return blobstore.NewMinIO(client, loc.Bucket, ""), loc.Key, nil
	case "s3":
		bs, err := blobstore.NewS3FromDefaultConfig(ctx, loc.Bucket, "")
		return bs, loc.Key, err
	default:
		return nil, "", fmt.Errorf("unsupported scheme %q", loc.Scheme)
	}
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// newLedger builds the DynamoDB task ledger from the ambient AWS
// environment.
func newLedger(ctx context.Context, table string) (*blobstore.TaskLedger, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return blobstore.NewTaskLedger(dynamodb.NewFromConfig(cfg), table), nil
}
