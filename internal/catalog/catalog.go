package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dtorres47/practice-tracker/internal/practice"
)

//go:embed catalog.json
var embeddedCatalog []byte

type catalogFile struct {
	Practices []string `json:"practices"`
}

var (
	mu        sync.RWMutex
	practices []practice.Practice
)

// Load parses the embedded catalog.json into memory.
func Load() error {
	return load(embeddedCatalog)
}

func load(b []byte) error {
	var cf catalogFile
	if err := json.Unmarshal(b, &cf); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	seen := map[string]bool{}
	out := make([]practice.Practice, 0, len(cf.Practices))
	for _, name := range cf.Practices {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, practice.Practice{Name: name})
	}

	mu.Lock()
	practices = out
	mu.Unlock()

	log.Info().Int("practices", len(out)).Msg("catalog loaded")
	return nil
}

// Practices returns a copy of the default practice list.
func Practices() []practice.Practice {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]practice.Practice, len(practices))
	copy(out, practices)
	return out
}

// OrDefault returns ps, or the catalog when ps is empty.
func OrDefault(ps []practice.Practice) []practice.Practice {
	if len(ps) > 0 {
		return ps
	}
	return Practices()
}
