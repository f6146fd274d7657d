package overlay

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const PreferencesFileName = "ui_state.json"

type preferencesData struct {
	PreferredTrainer string `json:"preferred_trainer"`
}

// Preferences remembers UI choices between runs.
type Preferences struct {
	filePath string
	logger   *log.Logger

	mu   sync.Mutex
	data preferencesData
}

// LoadPreferences reads dir/ui_state.json. A missing or broken file gives empty preferences.
func LoadPreferences(dir string, logger *log.Logger) *Preferences {
	if logger == nil {
		panic("Preferences: logger cannot be nil")
	}
	p := &Preferences{
		filePath: filepath.Join(dir, PreferencesFileName),
		logger:   logger,
	}
	p.load()
	return p
}

func (p *Preferences) PreferredTrainer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data.PreferredTrainer
}

func (p *Preferences) SetPreferredTrainer(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Printf("Preferences: setPreferredTrainer -> %q", name)
	p.data.PreferredTrainer = name
	p.save()
}

func (p *Preferences) load() {
	raw, err := os.ReadFile(p.filePath)
	if err != nil {
		p.logger.Printf("Preferences: load %s (no existing file)", p.filePath)
		return
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		p.logger.Printf("Preferences: load %s failed to parse: %v", p.filePath, err)
		p.data = preferencesData{}
		return
	}
	p.logger.Printf("Preferences: load %s -> trainer %q", p.filePath, p.data.PreferredTrainer)
}

// save must be called with mu held.
func (p *Preferences) save() {
	if err := os.MkdirAll(filepath.Dir(p.filePath), 0755); err != nil {
		p.logger.Printf("Preferences: save mkdir failed: %v", err)
		return
	}
	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		p.logger.Printf("Preferences: save marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(p.filePath, raw, 0644); err != nil {
		p.logger.Printf("Preferences: save %s failed: %v", p.filePath, err)
	}
}
