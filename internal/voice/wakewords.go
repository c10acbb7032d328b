package voice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/rs/zerolog/log"
)

// WakeWord is one selectable wake phrase.
type WakeWord struct {
	ID        string   `toml:"id"`
	Phrase    string   `toml:"phrase"`
	Languages []string `toml:"languages"`
}

type preferences struct {
	ActiveWakeWords []string `toml:"active_wake_words"`
}

// WakeWords holds the available and active wake words. The active set is
// persisted to a TOML preferences file when one is configured.
type WakeWords struct {
	mu        sync.RWMutex
	available []WakeWord
	active    []string
	max       int
	path      string
}

// NewWakeWords applies stored preferences over active when path exists.
func NewWakeWords(available []WakeWord, active []string, maxActive int, path string) (*WakeWords, error) {
	if maxActive < 1 {
		maxActive = 1
	}
	w := &WakeWords{available: slices.Clone(available), max: maxActive, path: path}
	w.active = w.filter(active)
	if path == "" {
		return w, nil
	}
	var prefs preferences
	if _, err := toml.DecodeFile(path, &prefs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return w, nil
		}
		return nil, fmt.Errorf("voice: load preferences %s: %w", path, err)
	}
	if prefs.ActiveWakeWords != nil {
		w.active = w.filter(prefs.ActiveWakeWords)
	}
	log.Info().
		Str("component", "voice").
		Str("path", path).
		Strs("active", w.active).
		Msg("wake word preferences loaded")
	return w, nil
}

func (w *WakeWords) Active() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.active)
}

// Phrase is the spoken form of the first active wake word.
func (w *WakeWords) Phrase() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, id := range w.active {
		for _, ww := range w.available {
			if ww.ID == id {
				return ww.Phrase
			}
		}
	}
	return ""
}

// Configuration answers a hub configuration request.
func (w *WakeWords) Configuration() *protocol.VoiceAssistantConfigurationResponse {
	w.mu.RLock()
	defer w.mu.RUnlock()
	resp := &protocol.VoiceAssistantConfigurationResponse{
		ActiveWakeWords:    slices.Clone(w.active),
		MaxActiveWakeWords: uint32(w.max),
	}
	for _, ww := range w.available {
		resp.AvailableWakeWords = append(resp.AvailableWakeWords, protocol.VoiceAssistantWakeWord{
			ID:               ww.ID,
			WakeWord:         ww.Phrase,
			TrainedLanguages: slices.Clone(ww.Languages),
		})
	}
	return resp
}

// SetActive replaces the active set. Unknown ids are ignored and the set is
// capped at the configured maximum.
func (w *WakeWords) SetActive(ids []string) error {
	w.mu.Lock()
	w.active = w.filter(ids)
	active := slices.Clone(w.active)
	w.mu.Unlock()

	log.Info().
		Str("component", "voice").
		Strs("active", active).
		Msg("active wake words set")
	if w.path == "" {
		return nil
	}
	return savePreferences(w.path, preferences{ActiveWakeWords: active})
}

func (w *WakeWords) filter(ids []string) []string {
	out := make([]string, 0, min(len(ids), w.max))
	for _, id := range ids {
		if len(out) == w.max {
			log.Warn().Str("component", "voice").Str("wake_word", id).Msg("active wake word limit reached")
			break
		}
		if slices.Contains(out, id) {
			continue
		}
		if !slices.ContainsFunc(w.available, func(ww WakeWord) bool { return ww.ID == id }) {
			log.Warn().Str("component", "voice").Str("wake_word", id).Msg("unknown wake word ignored")
			continue
		}
		out = append(out, id)
	}
	return out
}

func savePreferences(path string, prefs preferences) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("voice: save preferences: %w", err)
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("voice: save preferences: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(prefs); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("voice: save preferences: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("voice: save preferences: %w", err)
	}
	return os.Rename(tmp, path)
}
