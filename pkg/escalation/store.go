package escalation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

const idPrefix = "ESC-"

var ErrNotFound = errors.New("escalation rule not found")

type document struct {
	Rules []Rule `yaml:"rules"`
}

// Store is a YAML file holding the rule catalogue. Every mutation is written
// back immediately.
type Store struct {
	Path string
	// Now stamps created and updated times; defaults to time.Now.
	Now func() time.Time

	mu    sync.Mutex
	rules []Rule
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Load reads the catalogue. A missing file is an empty catalogue.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() error {
	if s.Path == "" {
		return errors.New("rules path is required")
	}
	content, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		s.rules = nil
		return nil
	}
	if err != nil {
		return err
	}
	var doc document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("failed to parse rules file: %w", err)
	}
	s.rules = doc.Rules
	return nil
}

// Save writes the catalogue through a temp file and rename.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create rules dir: %w", err)
	}
	content, err := yaml.Marshal(document{Rules: s.rules})
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".rules-*.yaml")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

func (s *Store) List() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rules)
}

func (s *Store) Get(id string) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r := s.rules[i]
	return &r, nil
}

// Add validates and stores a new rule. An empty ID is assigned the next
// free ESC-NNN number; status defaults to draft.
func (s *Store) Add(rule Rule) (*Rule, error) {
	if rule.Status == "" {
		rule.Status = StatusDraft
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = s.nextID()
	} else if s.index(rule.ID) >= 0 {
		return nil, fmt.Errorf("escalation rule %s already exists", rule.ID)
	}
	now := s.now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	s.rules = append(s.rules, rule)
	if err := s.save(); err != nil {
		s.rules = s.rules[:len(s.rules)-1]
		return nil, err
	}
	return &rule, nil
}

// Update replaces the rule with the same ID, keeping its creation metadata.
func (s *Store) Update(rule Rule) (*Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(rule.ID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rule.ID)
	}
	prev := s.rules[i]
	rule.CreatedAt, rule.CreatedBy = prev.CreatedAt, prev.CreatedBy
	if rule.Status == "" {
		rule.Status = prev.Status
	}
	rule.UpdatedAt = s.now()
	s.rules[i] = rule
	if err := s.save(); err != nil {
		s.rules[i] = prev
		return nil, err
	}
	return &rule, nil
}

func (s *Store) SetStatus(id string, status Status) (*Rule, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := s.rules[i]
	s.rules[i].Status = status
	s.rules[i].UpdatedAt = s.now()
	if err := s.save(); err != nil {
		s.rules[i] = prev
		return nil, err
	}
	r := s.rules[i]
	return &r, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := s.rules
	s.rules = slices.Delete(slices.Clone(s.rules), i, i+1)
	if err := s.save(); err != nil {
		s.rules = prev
		return err
	}
	return nil
}

// Lookup returns the active rules that apply to a violation, in catalogue order.
func (s *Store) Lookup(serviceType string, severity client.Severity) []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Rule
	for _, r := range s.rules {
		if r.Matches(serviceType, severity) {
			out = append(out, r)
		}
	}
	return out
}

// Due returns the first active rule matching the violation together with the
// highest level whose threshold has elapsed.
func (s *Store) Due(serviceType string, severity client.Severity, elapsed time.Duration) (Rule, Level, bool) {
	for _, r := range s.Lookup(serviceType, severity) {
		if l, ok := r.Due(elapsed); ok {
			return r, l, true
		}
	}
	return Rule{}, Level{}, false
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.rules, func(r Rule) bool { return r.ID == id })
}

func (s *Store) nextID() string {
	highest := 0
	for _, r := range s.rules {
		n, err := strconv.Atoi(strings.TrimPrefix(r.ID, idPrefix))
		if err == nil && strings.HasPrefix(r.ID, idPrefix) && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%03d", idPrefix, highest+1)
}
