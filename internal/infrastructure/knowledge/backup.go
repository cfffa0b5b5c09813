package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/phloem-sh/phloem/internal/domain"
)

const backupStampLayout = "20060102_150405"

// backupNamer derives sibling snapshot names from the document path:
// PHLOEM.md -> PHLOEM_20261014_120000_0000000007.md
type backupNamer struct {
	dir     string
	stem    string
	ext     string
	pattern *regexp.Regexp
}

func newBackupNamer(docPath string) backupNamer {
	base := filepath.Base(docPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return backupNamer{
		dir:     filepath.Dir(docPath),
		stem:    stem,
		ext:     ext,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(stem) + `_\d{8}_\d{6}_\d{10}` + regexp.QuoteMeta(ext) + `$`),
	}
}

func (n backupNamer) name(at time.Time, revision uint64) string {
	return filepath.Join(n.dir, fmt.Sprintf("%s_%s_%010d%s", n.stem, at.UTC().Format(backupStampLayout), revision, n.ext))
}

// list returns backup paths, newest first. Names sort chronologically.
func (n backupNamer) list() ([]string, error) {
	entries, err := os.ReadDir(n.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !n.pattern.MatchString(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(n.dir, e.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// rotate deletes all but the keep newest backups.
func (n backupNamer) rotate(keep int) ([]string, error) {
	backups, err := n.list()
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return nil, nil
	}
	var removed []string
	for _, path := range backups[keep:] {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path, so readers only ever see a complete file.
func writeAtomic(path string, data []byte, beforeRename func() error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, domain.DocumentFilePermissions); err != nil {
		return err
	}
	if beforeRename != nil {
		if err = beforeRename(); err != nil {
			return err
		}
	}
	return os.Rename(tmpName, path)
}
