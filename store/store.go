// Package store provides durable CRUD for panel conversation state with a
// pluggable backend and bounded transcript size.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/expertpanel/internal/profile"
)

// Store provides access to session records.
type Store struct {
	profile  *profile.Profile
	driver   Driver
	archiver Archiver
	presets  *PresetCatalog
}

// New creates a new instance of Store.
func New(driver Driver, archiver Archiver, p *profile.Profile) *Store {
	return &Store{
		profile:  p,
		driver:   driver,
		archiver: archiver,
		presets:  NewPresetCatalog(p.DefaultModel),
	}
}

// Capability reports the configured backend, for diagnostics.
func (s *Store) Capability() string {
	return s.driver.Kind()
}

// Presets exposes the preset roster catalog.
func (s *Store) Presets() *PresetCatalog {
	return s.presets
}

func (s *Store) Close() error {
	if err := s.archiver.Close(); err != nil {
		slog.Warn("failed to close archiver", "error", err)
	}
	return s.driver.Close()
}

// CreateConfig carries the inputs for session creation. Either a preset key
// or an explicit roster must be supplied.
type CreateConfig struct {
	Title          string
	PanelPresetKey string
	Experts        []Expert
	Moderator      *Moderator
	AutoDiscuss    bool
}

// CreateSession creates a session in draft state with an empty transcript.
// Preset-keyed sessions persist only the key; the roster is rehydrated from
// the catalog on read to keep the persisted payload small.
func (s *Store) CreateSession(ctx context.Context, create *CreateConfig) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:          shortuuid.New(),
		Title:       create.Title,
		AutoDiscuss: create.AutoDiscuss,
		Status:      SessionStatusDraft,
		Transcript:  []Message{},
		CreatedTs:   now.Unix(),
		UpdatedTs:   now.Unix(),
	}

	if len(create.Experts) > 0 {
		session.Experts = append([]Expert(nil), create.Experts...)
		session.PanelPresetKey = ""
	} else {
		key := create.PanelPresetKey
		if key == "" {
			key = DefaultPanelPresetKey
		}
		preset, ok := s.presets.Get(key)
		if !ok {
			return nil, errors.Errorf("unknown panel preset %q", key)
		}
		session.PanelPresetKey = key
		if session.Title == "" {
			session.Title = preset.Title
		}
	}
	if session.Title == "" {
		session.Title = "Custom Panel"
	}
	session.Title = session.Title + " - " + now.Format("2006-01-02 15:04")

	if create.Moderator != nil {
		session.Moderator = *create.Moderator
	} else {
		session.Moderator = Moderator{
			ID:    "moderator",
			Name:  "Moderator",
			Model: s.profile.DefaultModel,
			SystemPrompt: "Be friendly and human. Make sure the user's question is clearly answered. " +
				"If anything is missing, briefly ask a follow-up. Keep it concise and conversational.",
		}
	}

	if err := s.driver.CreateSession(ctx, session, s.ttlFor(session.Status)); err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	return s.rehydrate(session), nil
}

// GetSession returns the session or ErrNotFound. The expert roster is
// reconstructed from the preset catalog for preset-keyed records.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	session, err := s.driver.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.rehydrate(session), nil
}

// SaveSession persists the session. The transcript is compacted to the most
// recent CompactionBound entries before persisting; the first time the bound
// is reached, the pre-trim snapshot goes to the archive sink. TTL is keyed
// by status: short for draft, long for active.
func (s *Store) SaveSession(ctx context.Context, session *Session) error {
	if len(session.Transcript) > 0 {
		session.Status = SessionStatusActive
	}
	session.UpdatedTs = time.Now().Unix()

	bound := s.profile.CompactionBound
	if len(session.Transcript) > bound {
		// Best effort: the conversation must survive an unavailable sink.
		if err := s.archiver.Archive(ctx, session); err != nil {
			slog.Warn("failed to archive session snapshot",
				"session_id", session.ID, "error", err)
		}
		session.Transcript = append([]Message(nil), session.Transcript[len(session.Transcript)-bound:]...)
	}

	persisted := session.Clone()
	if persisted.PanelPresetKey != "" {
		persisted.Experts = nil
	}
	if err := s.driver.SaveSession(ctx, persisted, s.ttlFor(session.Status)); err != nil {
		return errors.Wrap(err, "save session")
	}
	return nil
}

func (s *Store) ttlFor(status SessionStatus) time.Duration {
	if status == SessionStatusActive {
		return s.profile.ActiveTTL
	}
	return s.profile.DraftTTL
}

func (s *Store) rehydrate(session *Session) *Session {
	if session.PanelPresetKey == "" || len(session.Experts) > 0 {
		return session
	}
	preset, ok := s.presets.Get(session.PanelPresetKey)
	if !ok {
		slog.Warn("session references unknown panel preset",
			"session_id", session.ID, "preset", session.PanelPresetKey)
		return session
	}
	session.Experts = preset.Experts
	return session
}
