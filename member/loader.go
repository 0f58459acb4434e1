package member

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/boolforge/ternbase"
	"github.com/boolforge/ternbase/tern"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// OpenCandidateFile opens a one-tree-per-line candidate file. Files ending
// in .zst or .lz4 are decompressed transparently.
func OpenCandidateFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("member: open %s: %w", path, err)
		}
		return &zstdReadCloser{Decoder: zr, file: f}, nil
	case strings.HasSuffix(path, ".lz4"):
		return &wrappedReadCloser{r: lz4.NewReader(f), c: f}, nil
	default:
		return f, nil
	}
}

// CreateCandidateFile creates a candidate list, compressing by extension.
func CreateCandidateFile(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("member: create %s: %w", path, err)
		}
		return &wrappedWriteCloser{w: zw, c: f}, nil
	case strings.HasSuffix(path, ".lz4"):
		return &wrappedWriteCloser{w: lz4.NewWriter(f), c: f}, nil
	default:
		return f, nil
	}
}

type zstdReadCloser struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

type wrappedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (w *wrappedReadCloser) Read(p []byte) (int, error) { return w.r.Read(p) }
func (w *wrappedReadCloser) Close() error               { return w.c.Close() }

type wrappedWriteCloser struct {
	w interface {
		io.Writer
		Close() error
	}
	c io.Closer
}

func (w *wrappedWriteCloser) Write(p []byte) (int, error) { return w.w.Write(p) }

func (w *wrappedWriteCloser) Close() error {
	if err := w.w.Close(); err != nil {
		_ = w.c.Close()
		return err
	}
	return w.c.Close()
}

// LineError reports a rejected candidate line. Rendered as a JSON-line
// diagnostic by the tools; parse errors from user-supplied files are
// fatal.
type LineError struct {
	LineNr uint64
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf(`{"error":%q,"linenr":%d}`, e.Reason, e.LineNr)
}

// FromFile feeds candidates from r into the collector. Lines carry
// "<name>" or "<name> <numPlaceholder> <numEndpoint> <numBackRef>"; when
// all four fields are present the tail values are verified and a mismatch
// fails loudly. The window bounds restrict which lines are processed;
// the first line has progress 0.
func (c *Collector) FromFile(r io.Reader, windowLo, windowHi uint64) error {
	c.log.Info("reading members from file")

	c.Truncated = 0
	c.SkipDuplicate, c.SkipSize, c.SkipUnsafe = 0, 0, 0

	mode := tern.Mode{
		Pure:     c.db.Flags.Has(ternbase.FlagPure),
		Paranoid: c.db.Flags.Has(ternbase.FlagParanoid),
	}
	tree := tern.New(mode)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return &LineError{LineNr: c.Progress, Reason: "bad/empty line"}
		}

		fields := strings.Fields(line)
		name := fields[0]

		newPlaceholder, newEndpoint, newBackRef := tern.AnalyseName(name)

		switch len(fields) {
		case 1:
			// minimal form
		case 4:
			var nPh, nEp, nBr uint32
			if _, err := fmt.Sscanf(line, "%s %d %d %d", &name, &nPh, &nEp, &nBr); err != nil {
				return &LineError{LineNr: c.Progress, Reason: "bad/empty line"}
			}
			if nPh != newPlaceholder || nEp != newEndpoint || nBr != newBackRef {
				return &LineError{LineNr: c.Progress, Reason: "line has incorrect values"}
			}
		default:
			return &LineError{LineNr: c.Progress, Reason: "bad/empty line"}
		}

		// test if line is within the progress window
		if (windowLo != 0 && c.Progress < windowLo) || (windowHi != 0 && c.Progress >= windowHi) {
			c.Progress++
			continue
		}

		if err := tree.LoadStringSafe(name, tern.DefaultSkin); err != nil {
			return &LineError{LineNr: c.Progress, Reason: err.Error()}
		}

		if !c.Found(tree, name, newPlaceholder, newEndpoint, newBackRef) {
			break
		}
		c.Progress++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("member: read candidates: %w", err)
	}
	if c.err != nil {
		return c.err
	}

	if c.Truncated != 0 {
		c.log.Warn("storage full, truncating",
			"progress", c.Truncated,
			"name", c.TruncatedName,
		)
	}

	c.log.Info("read members",
		"progress", c.Progress,
		"numSignature", c.db.NumSignature,
		"numMember", c.db.NumMember,
		"numEmpty", c.NumEmpty(),
		"numUnsafe", c.NumUnsafe()-c.NumEmpty(),
		"skipDuplicate", c.SkipDuplicate,
		"skipSize", c.SkipSize,
		"skipUnsafe", c.SkipUnsafe,
	)

	return nil
}
