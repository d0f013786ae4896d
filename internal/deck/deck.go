// Package deck loads pre-authored card decks from YAML files.
package deck

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/recall/internal/generator"
	"github.com/p-n-ai/recall/internal/srs"
)

// Deck is a named set of cards that can be studied without generation.
type Deck struct {
	ID           string
	Name         string
	Description  string
	QuestionType srs.QuestionType
	Notes        string // contents of <deck>.notes.md, if present
	Cards        []srs.Card
}

// Fresh returns a copy of the deck's cards with schedules starting at now.
func (d Deck) Fresh(now time.Time) []srs.Card {
	cards := make([]srs.Card, len(d.Cards))
	for i, c := range d.Cards {
		cards[i] = c.Clone()
		cards[i].Schedule = srs.NewSchedule(now)
	}
	return cards
}

type fileCard struct {
	ID           string   `yaml:"id"`
	Question     string   `yaml:"question"`
	Answer       string   `yaml:"answer"`
	Options      []string `yaml:"options"`
	QuestionType string   `yaml:"question_type"`
	SourcePage   string   `yaml:"source_page"`
}

type fileDeck struct {
	ID           string     `yaml:"id"`
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	QuestionType string     `yaml:"question_type"`
	Cards        []fileCard `yaml:"cards"`
}

// Loader loads and caches decks from the filesystem.
type Loader struct {
	rootDir string
	decks   map[string]Deck
	mu      sync.RWMutex
}

// NewLoader creates a loader and loads every deck under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		decks:   make(map[string]Deck),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading decks: %w", err)
	}

	slog.Info("decks loaded", "decks", len(l.decks), "dir", rootDir)
	return l, nil
}

// Get returns a deck by ID.
func (l *Loader) Get(id string) (Deck, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.decks[id]
	return d, ok
}

// All returns all loaded decks sorted by ID.
func (l *Loader) All() []Deck {
	l.mu.RLock()
	defer l.mu.RUnlock()
	decks := make([]Deck, 0, len(l.decks))
	for _, d := range l.decks {
		decks = append(decks, d)
	}
	sort.Slice(decks, func(i, j int) bool { return decks[i].ID < decks[j].ID })
	return decks
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadDeck(path)
		}
		return nil
	})
}

func (l *Loader) loadDeck(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fd fileDeck
	if err := yaml.Unmarshal(data, &fd); err != nil {
		slog.Warn("skipping invalid deck YAML", "path", path, "error", err)
		return nil
	}
	if fd.ID == "" || len(fd.Cards) == 0 {
		return nil // not a deck file
	}

	qt := srs.ShortAnswer
	if fd.QuestionType != "" {
		parsed, err := srs.ParseQuestionType(fd.QuestionType)
		if err != nil {
			slog.Warn("skipping deck with unknown question type", "path", path, "question_type", fd.QuestionType)
			return nil
		}
		qt = parsed
	}

	raw := make([]generator.RawCard, len(fd.Cards))
	for i, c := range fd.Cards {
		raw[i] = generator.RawCard{
			ID:           generator.Text(c.ID),
			Question:     generator.Text(c.Question),
			Answer:       generator.Text(c.Answer),
			QuestionType: c.QuestionType,
			SourcePage:   generator.Text(c.SourcePage),
		}
		for _, opt := range c.Options {
			raw[i].Options = append(raw[i].Options, generator.Text(opt))
		}
	}

	d := Deck{
		ID:           fd.ID,
		Name:         fd.Name,
		Description:  strings.TrimSpace(fd.Description),
		QuestionType: qt,
		Notes:        readNotes(path),
		Cards:        generator.Normalize(raw, qt, time.Now()),
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if len(d.Cards) == 0 {
		slog.Warn("skipping deck without usable cards", "path", path)
		return nil
	}

	l.mu.Lock()
	l.decks[d.ID] = d
	l.mu.Unlock()

	return nil
}

func readNotes(deckPath string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(deckPath, ".yaml"), ".yml")
	data, err := os.ReadFile(base + ".notes.md")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
