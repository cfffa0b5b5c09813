// Package shellhistory reads the user's shell history files as a read-only
// context source. Files are never written and nothing is persisted.
package shellhistory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/phloem-sh/phloem/internal/domain"
	"github.com/phloem-sh/phloem/internal/ports"
)

const defaultChunkSize = 8 * 1024

// DefaultDenylist matches commands that likely carry credentials. Patterns
// are applied case-insensitively.
var DefaultDenylist = []string{
	`password`,
	`passwd`,
	`token`,
	`secret`,
	`api[_-]?key`,
	`curl.*-H.*authorization`,
	`wget.*--header.*authorization`,
	`export\s+\S*(key|token|password)`,
}

var zshExtended = regexp.MustCompile(`^:\s*\d+:\d+;(.*)$`)

// Options configures an Importer.
type Options struct {
	Sources      []Source
	ScanLimit    int
	MaxLineBytes int
	Denylist     []string
	ChunkSize    int
	Logger       ports.Logger
}

// Importer yields commands from shell history files, most recent first.
type Importer struct {
	sources   []Source
	scanLimit int
	maxLine   int
	chunkSize int
	denylist  []*regexp.Regexp
	logger    ports.Logger
}

// New compiles the denylist and applies defaults. An empty Denylist selects
// DefaultDenylist.
func New(opts Options) (*Importer, error) {
	patterns := opts.Denylist
	if len(patterns) == 0 {
		patterns = DefaultDenylist
	}
	imp := &Importer{
		sources:   opts.Sources,
		scanLimit: opts.ScanLimit,
		maxLine:   opts.MaxLineBytes,
		chunkSize: opts.ChunkSize,
		logger:    opts.Logger,
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid denylist pattern %q: %w", p, err)
		}
		imp.denylist = append(imp.denylist, re)
	}
	if imp.scanLimit <= 0 {
		imp.scanLimit = domain.DefaultShellScanLimit
	}
	if imp.maxLine <= 0 {
		imp.maxLine = domain.DefaultMaxHistoryLineBytes
	}
	if imp.chunkSize <= 0 {
		imp.chunkSize = defaultChunkSize
	}
	return imp, nil
}

// Sources returns the configured history files.
func (i *Importer) Sources() []Source {
	return append([]Source(nil), i.sources...)
}

// Commands returns a lazy sequence over the history sources in order, each
// read from its tail. At most ScanLimit lines are inspected per iteration.
// Every range over the result starts a fresh scan.
func (i *Importer) Commands() iter.Seq[string] {
	return func(yield func(string) bool) {
		budget := i.scanLimit
		for _, src := range i.sources {
			if budget <= 0 {
				return
			}
			stopped := false
			err := i.scan(src, func(raw []byte) bool {
				budget--
				if cmd, ok := i.clean(raw); ok && !yield(cmd) {
					stopped = true
					return false
				}
				return budget > 0
			})
			if err != nil {
				i.logSourceError(src, err)
			}
			if stopped {
				return
			}
		}
	}
}

// Denied reports whether command matches the denylist.
func (i *Importer) Denied(command string) bool {
	for _, re := range i.denylist {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

func (i *Importer) clean(raw []byte) (string, bool) {
	if !utf8.Valid(raw) {
		return "", false
	}
	line := strings.TrimSpace(string(raw))
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	if m := zshExtended.FindStringSubmatch(line); m != nil {
		line = m[1]
	}
	cmd := domain.NormalizeCommand(line)
	if cmd == "" || i.Denied(cmd) {
		return "", false
	}
	return cmd, true
}

func (i *Importer) scan(src Source, fn func(line []byte) bool) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return reverseLines(f, info.Size(), i.chunkSize, i.maxLine, fn)
}

// reverseLines calls fn for each line of r, last line first, reading
// fixed-size chunks backwards from size. Lines longer than maxLine are
// dropped without being buffered in full.
func reverseLines(r io.ReaderAt, size int64, chunkSize, maxLine int, fn func(line []byte) bool) error {
	var carry []byte
	dropping := false
	pos := size
	buf := make([]byte, chunkSize)

	emit := func(line []byte) bool {
		if dropping {
			dropping = false
			return true
		}
		if len(line) == 0 {
			return true
		}
		if len(line) > maxLine {
			return true
		}
		return fn(line)
	}

	for pos > 0 {
		n := int64(chunkSize)
		if pos < n {
			n = pos
		}
		pos -= n
		chunk := buf[:n]
		if _, err := r.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		data := append(append([]byte(nil), chunk...), carry...)
		for {
			idx := bytes.LastIndexByte(data, '\n')
			if idx < 0 {
				break
			}
			if !emit(data[idx+1:]) {
				return nil
			}
			data = data[:idx]
		}
		carry = data
		if len(carry) > maxLine {
			carry = nil
			dropping = true
		}
	}
	emit(carry)
	return nil
}

func (i *Importer) logSourceError(src Source, err error) {
	if i.logger == nil {
		return
	}
	fields := map[string]interface{}{"path": src.Path, "format": string(src.Format)}
	if errors.Is(err, fs.ErrNotExist) {
		i.logger.Debug("shell history file not found", fields)
		return
	}
	fields["error"] = err.Error()
	i.logger.Warn("reading shell history failed", fields)
}

var _ ports.ShellHistorySource = (*Importer)(nil)
