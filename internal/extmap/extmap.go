package extmap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"magpie/internal/logging"
	"magpie/internal/textutil"
)

// ExclusionsKey names the reserved group whose entries are skipped by the
// organizer instead of sorted. Lookup never treats it as a destination.
const ExclusionsKey = "Exclusions"

// Category pairs a folder name with the extensions (or, for Exclusions,
// literal filenames) it claims. Snapshot returns these in declaration order.
type Category struct {
	Name    string
	Entries []string
}

// Map is the persistent category map backing rule-based classification.
// Categories keep the order they were declared in, because the first
// category claiming an extension wins.
type Map struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	order  []string
	groups map[string][]string
}

func defaultCategories() []Category {
	return []Category{
		{Name: "Images", Entries: []string{".jpg", ".jpeg", ".png", ".gif", ".ico", ".webp", ".tiff"}},
		{Name: "Documents", Entries: []string{".pdf", ".docx", ".doc", ".txt", ".xlsx", ".pptx", ".csv", ".epub", ".odt"}},
		{Name: "Installers", Entries: []string{".exe", ".msi", ".dmg", ".pkg"}},
		{Name: "Archives", Entries: []string{".zip", ".rar", ".7z", ".tar", ".gz"}},
		{Name: "Code", Entries: []string{".py", ".js", ".html", ".css", ".md", ".json", ".log"}},
		{Name: "Audio", Entries: []string{".mp3", ".wav", ".aac", ".flac"}},
		{Name: "Video", Entries: []string{".mp4", ".mov", ".mkv", ".avi"}},
		{Name: ExclusionsKey, Entries: []string{".temp", ".lock", "README.md", "desktop.ini"}},
	}
}

// Load reads the category map at path, seeding and persisting the default
// map when the file does not exist yet. Read or parse failures fall back to
// the in-memory defaults without touching the file, so a hand-edit that
// breaks the JSON is never silently overwritten. An empty path yields a
// purely in-memory map.
func Load(path string, logger *slog.Logger) *Map {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "extmap")

	m := &Map{
		path:   path,
		logger: logger,
		groups: make(map[string][]string),
	}

	if path == "" {
		m.seedDefaults()
		return m
	}

	if err := m.load(); err != nil {
		logger.Warn("falling back to default category map",
			logging.String("path", path),
			logging.Error(err))
		m.seedDefaults()
	}

	return m
}

func (m *Map) seedDefaults() {
	m.order = m.order[:0]
	m.groups = make(map[string][]string)
	for _, cat := range defaultCategories() {
		m.order = append(m.order, cat.Name)
		m.groups[cat.Name] = append([]string(nil), cat.Entries...)
	}
}

// Path returns the file the map persists to, empty for in-memory maps.
func (m *Map) Path() string {
	return m.path
}

// Match returns the first category in declaration order that claims the
// extension. The query is lowercased before comparison; the Exclusions
// group never matches.
func (m *Map) Match(ext string) (string, bool) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return "", false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, name := range m.order {
		if name == ExclusionsKey {
			continue
		}
		for _, entry := range m.groups[name] {
			if entry == ext {
				return name, true
			}
		}
	}
	return "", false
}

// Excluded reports whether the filename or its extension appears in the
// Exclusions group. Both sides are compared lowercased, so ".TEMP" in the
// map still matches "cache.temp" on disk and vice versa.
func (m *Map) Excluded(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	lowerName := strings.ToLower(name)
	lowerExt := strings.ToLower(filepath.Ext(name))

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, entry := range m.groups[ExclusionsKey] {
		entry = strings.ToLower(entry)
		if entry == "" {
			continue
		}
		if entry == lowerName || (lowerExt != "" && entry == lowerExt) {
			return true
		}
	}
	return false
}

// Categories returns the destination category names in declaration order,
// without the Exclusions group. This is the context handed to the
// classification oracle.
func (m *Map) Categories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.order))
	for _, name := range m.order {
		if name == ExclusionsKey {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Exclusions returns a copy of the Exclusions group entries.
func (m *Map) Exclusions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.groups[ExclusionsKey]...)
}

// Parse validates raw category map JSON and returns its groups in
// declaration order. It runs the same decoder Load does, so a payload Parse
// accepts is one Load will honor.
func Parse(data []byte) ([]Category, error) {
	order, groups, err := parseOrdered(data)
	if err != nil {
		return nil, err
	}
	cats := make([]Category, 0, len(order))
	for _, name := range order {
		cats = append(cats, Category{
			Name:    name,
			Entries: append([]string(nil), groups[name]...),
		})
	}
	return cats, nil
}

// Snapshot returns every group, Exclusions included, in declaration order.
func (m *Map) Snapshot() []Category {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cats := make([]Category, 0, len(m.order))
	for _, name := range m.order {
		cats = append(cats, Category{
			Name:    name,
			Entries: append([]string(nil), m.groups[name]...),
		})
	}
	return cats
}

// Record binds an extension to a category and persists the updated map.
// The category name is sanitized into a filesystem-safe folder name and the
// extension is lowercased before storage; new categories append to the end
// of the declaration order so existing lookups keep their precedence. The
// sanitized name is returned even when persistence fails, letting callers
// proceed with the in-memory binding.
func (m *Map) Record(ext, category string) (string, error) {
	safe := textutil.CleanName(category)
	if safe == "" {
		return "", fmt.Errorf("category %q sanitizes to an empty name", category)
	}
	if safe == ExclusionsKey {
		return "", fmt.Errorf("category %q is reserved", ExclusionsKey)
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return "", errors.New("extension cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, known := m.groups[safe]
	if !known {
		m.order = append(m.order, safe)
	}
	for _, entry := range entries {
		if entry == ext {
			return safe, nil
		}
	}
	m.groups[safe] = append(entries, ext)

	if m.path == "" {
		return safe, nil
	}
	if err := m.save(); err != nil {
		return safe, fmt.Errorf("persist category map: %w", err)
	}

	m.logger.Info("category map updated",
		logging.String("extension", ext),
		logging.String("category", safe))

	return safe, nil
}

func (m *Map) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.seedDefaults()
			if saveErr := m.save(); saveErr != nil {
				m.logger.Warn("could not write seeded category map",
					logging.String("path", m.path),
					logging.Error(saveErr))
			}
			return nil
		}
		return fmt.Errorf("read category map: %w", err)
	}

	order, groups, err := parseOrdered(data)
	if err != nil {
		return fmt.Errorf("parse category map: %w", err)
	}

	m.order = order
	m.groups = groups

	m.logger.Debug("loaded category map",
		logging.Int("categories", len(order)),
		logging.String("path", m.path))

	return nil
}

// save writes the map atomically, preserving declaration order and the
// four-space indent users expect when editing the file by hand.
func (m *Map) save() error {
	data, err := encodeOrdered(m.order, m.groups)
	if err != nil {
		return fmt.Errorf("encode category map: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create map directory: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath) // cleanup on failure
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// parseOrdered decodes the JSON object while remembering key order, which
// encoding/json drops when unmarshaling into a plain map.
func parseOrdered(data []byte) ([]string, map[string][]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, errors.New("category map must be a JSON object")
	}

	var order []string
	groups := make(map[string][]string)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected key token %v", keyTok)
		}

		var entries []string
		if err := dec.Decode(&entries); err != nil {
			return nil, nil, fmt.Errorf("category %q: %w", key, err)
		}

		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = entries
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}

	return order, groups, nil
}

func encodeOrdered(order []string, groups map[string][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")

	for i, name := range order {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		entries := groups[name]
		if entries == nil {
			entries = []string{}
		}
		value, err := json.MarshalIndent(entries, "    ", "    ")
		if err != nil {
			return nil, err
		}

		buf.WriteString("    ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
		if i < len(order)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
