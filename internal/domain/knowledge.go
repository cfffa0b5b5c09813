package domain

import "time"

// Document is the parsed knowledge document.
type Document struct {
	SchemaVersion int
	Revision      uint64
	Updated       time.Time
	Sections      []Section
}

// Section groups exemplars and notes for one category.
type Section struct {
	Name      Category
	Updated   time.Time
	Exemplars []Exemplar
	Notes     []string
}

// Exemplar is a prompt that was successfully answered by a command.
type Exemplar struct {
	Prompt         string
	Command        string
	Reinforced     int
	LastReinforced time.Time
}

// NewDocument returns an empty, versioned skeleton.
func NewDocument() Document {
	return Document{SchemaVersion: KnowledgeSchemaVersion}
}

// Section returns a pointer to the named section, creating it when absent.
func (d *Document) Section(name Category, now time.Time) *Section {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			return &d.Sections[i]
		}
	}
	d.Sections = append(d.Sections, Section{Name: name, Updated: now})
	return &d.Sections[len(d.Sections)-1]
}

// Find returns the named section without creating it.
func (d Document) Find(name Category) (Section, bool) {
	for _, s := range d.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Reinforce records a successful prompt/command pair. An existing exemplar for
// the same pair gains a reinforcement; otherwise a new one is appended and the
// oldest are dropped beyond maxExemplars.
func (s *Section) Reinforce(prompt, command string, now time.Time, maxExemplars int) {
	s.Updated = now
	key := NormalizePrompt(prompt)
	for i := range s.Exemplars {
		ex := &s.Exemplars[i]
		if NormalizePrompt(ex.Prompt) == key && ex.Command == command {
			ex.Reinforced++
			ex.LastReinforced = now
			return
		}
	}
	s.Exemplars = append(s.Exemplars, Exemplar{
		Prompt:         prompt,
		Command:        command,
		Reinforced:     1,
		LastReinforced: now,
	})
	for maxExemplars > 0 && len(s.Exemplars) > maxExemplars {
		s.removeExemplar(s.oldestExemplar())
	}
}

// AddNote appends a preference note unless an identical one exists.
func (s *Section) AddNote(note string, now time.Time) bool {
	for _, n := range s.Notes {
		if n == note {
			return false
		}
	}
	s.Notes = append(s.Notes, note)
	s.Updated = now
	return true
}

// ExemplarCount totals exemplars across all sections.
func (d Document) ExemplarCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Exemplars)
	}
	return n
}

// EvictOldest removes the globally oldest exemplar from any section that
// holds more than one. It reports false when nothing can be evicted.
func (d *Document) EvictOldest() bool {
	sectionIdx, exemplarIdx := -1, -1
	for i := range d.Sections {
		s := &d.Sections[i]
		if len(s.Exemplars) <= 1 {
			continue
		}
		j := s.oldestExemplar()
		if sectionIdx < 0 || olderThan(s.Exemplars[j], d.Sections[sectionIdx].Exemplars[exemplarIdx]) {
			sectionIdx, exemplarIdx = i, j
		}
	}
	if sectionIdx < 0 {
		return false
	}
	d.Sections[sectionIdx].removeExemplar(exemplarIdx)
	return true
}

func (s *Section) oldestExemplar() int {
	idx := 0
	for i := 1; i < len(s.Exemplars); i++ {
		if olderThan(s.Exemplars[i], s.Exemplars[idx]) {
			idx = i
		}
	}
	return idx
}

func (s *Section) removeExemplar(i int) {
	s.Exemplars = append(s.Exemplars[:i:i], s.Exemplars[i+1:]...)
}

// olderThan orders by last reinforcement, then by fewer reinforcements.
func olderThan(a, b Exemplar) bool {
	if !a.LastReinforced.Equal(b.LastReinforced) {
		return a.LastReinforced.Before(b.LastReinforced)
	}
	return a.Reinforced < b.Reinforced
}
