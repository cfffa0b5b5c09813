package knowledge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/phloem-sh/phloem/internal/domain"
)

const (
	headerPrefix  = "<!-- phloem-knowledge "
	headerSuffix  = " -->"
	title         = "# Phloem Knowledge"
	sectionPrefix = "## "
	updatedPrefix = "<!-- updated: "
	exemplarMark  = "- "
	notePrefix    = "> "
	arrow         = " → "
)

// Encode renders a document as Markdown. Strings are Go-quoted so any prompt
// or command survives a decode unchanged.
func Encode(doc domain.Document) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%sschema=%d revision=%d updated=%s%s\n", headerPrefix, doc.SchemaVersion, doc.Revision, formatTime(doc.Updated), headerSuffix)
	buf.WriteString(title)
	buf.WriteString("\n")
	for _, s := range doc.Sections {
		buf.WriteString("\n")
		buf.WriteString(sectionPrefix)
		buf.WriteString(string(s.Name))
		buf.WriteString("\n")
		fmt.Fprintf(&buf, "%s%s%s\n", updatedPrefix, formatTime(s.Updated), headerSuffix)
		for _, ex := range s.Exemplars {
			fmt.Fprintf(&buf, "%s%s%s%s (x%d, %s)\n", exemplarMark, strconv.Quote(ex.Prompt), arrow, strconv.Quote(ex.Command), ex.Reinforced, formatTime(ex.LastReinforced))
		}
		for _, n := range s.Notes {
			buf.WriteString(notePrefix)
			buf.WriteString(strconv.Quote(n))
			buf.WriteString("\n")
		}
	}
	return buf.Bytes()
}

// Decode parses a document. Lines it does not recognise are skipped and
// counted so hand edits never make the file unreadable.
func Decode(data []byte) (domain.Document, int, error) {
	if !utf8.Valid(data) {
		return domain.Document{}, 0, errors.New("document is not valid UTF-8")
	}
	doc := domain.Document{}
	skipped := 0
	var current *domain.Section

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimSpace(line) == "" || line == title:
		case strings.HasPrefix(line, headerPrefix):
			if err := parseHeader(line, &doc); err != nil {
				skipped++
			}
		case strings.HasPrefix(line, sectionPrefix):
			doc.Sections = append(doc.Sections, domain.Section{Name: domain.Category(strings.TrimSpace(line[len(sectionPrefix):]))})
			current = &doc.Sections[len(doc.Sections)-1]
		case current == nil:
			skipped++
		case strings.HasPrefix(line, updatedPrefix) && strings.HasSuffix(line, headerSuffix):
			t, err := parseTime(strings.TrimSuffix(line[len(updatedPrefix):], headerSuffix))
			if err != nil {
				skipped++
				continue
			}
			current.Updated = t
		case strings.HasPrefix(line, exemplarMark):
			ex, err := parseExemplar(line[len(exemplarMark):])
			if err != nil {
				skipped++
				continue
			}
			current.Exemplars = append(current.Exemplars, ex)
		case strings.HasPrefix(line, notePrefix):
			note, err := strconv.Unquote(line[len(notePrefix):])
			if err != nil {
				note = line[len(notePrefix):]
			}
			current.Notes = append(current.Notes, note)
		default:
			skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.Document{}, skipped, err
	}
	return doc, skipped, nil
}

func parseHeader(line string, doc *domain.Document) error {
	body := strings.TrimSuffix(strings.TrimPrefix(line, headerPrefix), headerSuffix)
	for _, field := range strings.Fields(body) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return fmt.Errorf("malformed header field %q", field)
		}
		switch key {
		case "schema":
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			doc.SchemaVersion = v
		case "revision":
			v, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return err
			}
			doc.Revision = v
		case "updated":
			t, err := parseTime(value)
			if err != nil {
				return err
			}
			doc.Updated = t
		}
	}
	return nil
}

func parseExemplar(rest string) (domain.Exemplar, error) {
	var ex domain.Exemplar
	promptQ, err := strconv.QuotedPrefix(rest)
	if err != nil {
		return ex, err
	}
	if ex.Prompt, err = strconv.Unquote(promptQ); err != nil {
		return ex, err
	}
	rest = rest[len(promptQ):]
	if !strings.HasPrefix(rest, arrow) {
		return ex, errors.New("missing arrow")
	}
	rest = rest[len(arrow):]

	commandQ, err := strconv.QuotedPrefix(rest)
	if err != nil {
		return ex, err
	}
	if ex.Command, err = strconv.Unquote(commandQ); err != nil {
		return ex, err
	}
	rest = rest[len(commandQ):]

	if !strings.HasPrefix(rest, " (x") || !strings.HasSuffix(rest, ")") {
		return ex, errors.New("missing reinforcement suffix")
	}
	countRaw, tsRaw, ok := strings.Cut(rest[len(" (x"):len(rest)-1], ", ")
	if !ok {
		return ex, errors.New("malformed reinforcement suffix")
	}
	if ex.Reinforced, err = strconv.Atoi(countRaw); err != nil {
		return ex, err
	}
	if ex.LastReinforced, err = parseTime(tsRaw); err != nil {
		return ex, err
	}
	return ex, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "-" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
