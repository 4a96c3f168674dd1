package escalation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

func sampleRule() Rule {
	return Rule{
		Name:             "P1 incident escalation",
		Description:      "Critical incidents page the on-call lead",
		TriggerCondition: "response time exceeded",
		Priority:         client.SeverityP1,
		ServiceType:      "incident",
		Levels: []Level{
			{Level: 1, TimeThreshold: "15m", EscalateTo: "it-manager@example.com", NotificationMethod: []string{"email", "sms"}},
			{Level: 2, TimeThreshold: "30m", EscalateTo: "it-director@example.com", NotificationMethod: []string{"email", "phone"}},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "rules", "escalation.yaml"))
	fixed := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return fixed }
	require.NoError(t, s.Load())
	return s
}

func TestStoreAddAssignsIDs(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Add(sampleRule())
	require.NoError(t, err)
	assert.Equal(t, "ESC-001", first.ID)
	assert.Equal(t, StatusDraft, first.Status)
	assert.False(t, first.CreatedAt.IsZero())

	manual := sampleRule()
	manual.ID = "ESC-010"
	_, err = s.Add(manual)
	require.NoError(t, err)

	next, err := s.Add(sampleRule())
	require.NoError(t, err)
	assert.Equal(t, "ESC-011", next.ID)

	_, err = s.Add(manual)
	require.Error(t, err)
}

func TestStorePersists(t *testing.T) {
	s := newTestStore(t)
	added, err := s.Add(sampleRule())
	require.NoError(t, err)

	reloaded := NewStore(s.Path)
	require.NoError(t, reloaded.Load())
	got, err := reloaded.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, added.Name, got.Name)
	assert.Len(t, got.Levels, 2)

	entries, err := os.ReadDir(filepath.Dir(s.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestStoreUpdateKeepsCreation(t *testing.T) {
	s := newTestStore(t)
	added, err := s.Add(sampleRule())
	require.NoError(t, err)

	later := added.CreatedAt.Add(time.Hour)
	s.Now = func() time.Time { return later }

	changed := *added
	changed.Name = "Renamed"
	changed.CreatedAt = time.Time{}
	updated, err := s.Update(changed)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, added.CreatedAt, updated.CreatedAt)
	assert.Equal(t, later, updated.UpdatedAt)

	missing := sampleRule()
	missing.ID = "ESC-999"
	_, err = s.Update(missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSetStatusAndDelete(t *testing.T) {
	s := newTestStore(t)
	added, err := s.Add(sampleRule())
	require.NoError(t, err)

	r, err := s.SetStatus(added.ID, StatusActive)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, r.Status)

	_, err = s.SetStatus(added.ID, "archived")
	require.Error(t, err)

	require.NoError(t, s.Delete(added.ID))
	assert.Empty(t, s.List())
	assert.ErrorIs(t, s.Delete(added.ID), ErrNotFound)
}

func TestStoreLookup(t *testing.T) {
	s := newTestStore(t)
	active := sampleRule()
	active.Status = StatusActive
	_, err := s.Add(active)
	require.NoError(t, err)
	_, err = s.Add(sampleRule())
	require.NoError(t, err)

	assert.Len(t, s.Lookup("incident", client.SeverityP1), 1)
	assert.Empty(t, s.Lookup("incident", client.SeverityP3))
	assert.Empty(t, s.Lookup("change", client.SeverityP1))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: [unterminated"), 0o600))
	err := NewStore(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse rules file")
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr string
	}{
		{"valid", func(*Rule) {}, ""},
		{"name", func(r *Rule) { r.Name = "" }, "name is required"},
		{"no levels", func(r *Rule) { r.Levels = nil }, "at least one escalation level"},
		{"numbering", func(r *Rule) { r.Levels[1].Level = 3 }, "levels must be numbered"},
		{"threshold parse", func(r *Rule) { r.Levels[0].TimeThreshold = "soon" }, "invalid time threshold"},
		{"threshold order", func(r *Rule) { r.Levels[1].TimeThreshold = "10m" }, "must exceed the previous level"},
		{"target", func(r *Rule) { r.Levels[0].EscalateTo = "" }, "escalateTo is required"},
		{"method", func(r *Rule) { r.Levels[0].NotificationMethod = []string{"pigeon"} }, `unknown notification method "pigeon"`},
		{"priority", func(r *Rule) { r.Priority = "P9" }, `invalid priority "P9"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRule()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRuleDue(t *testing.T) {
	r := sampleRule()

	_, ok := r.Due(10 * time.Minute)
	assert.False(t, ok)

	l, ok := r.Due(15 * time.Minute)
	require.True(t, ok)
	assert.Equal(t, 1, l.Level)

	l, ok = r.Due(2 * time.Hour)
	require.True(t, ok)
	assert.Equal(t, 2, l.Level)
	assert.Equal(t, "it-director@example.com", l.EscalateTo)
}

func TestStoreDue(t *testing.T) {
	s := newTestStore(t)
	active := sampleRule()
	active.Status = StatusActive
	_, err := s.Add(active)
	require.NoError(t, err)

	_, _, ok := s.Due("", client.SeverityP1, 5*time.Minute)
	assert.False(t, ok)

	r, l, ok := s.Due("", client.SeverityP1, 20*time.Minute)
	require.True(t, ok)
	assert.Equal(t, "ESC-001", r.ID)
	assert.Equal(t, "it-manager@example.com", l.EscalateTo)

	_, _, ok = s.Due("incident", client.SeverityP2, time.Hour)
	assert.False(t, ok)
}
