// Package resource reads and writes quest definitions as YAML files.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kasuganosora/questforge/game/quest"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// bundle is a file holding several quests.
type bundle struct {
	Quests []quest.QuestDocument `yaml:"quests"`
}

// Loader reads every *.yaml / *.yml file of a directory. A file holds
// either one quest document or a `quests:` list.
type Loader struct {
	dir    string
	logger *zap.Logger
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

// Load parses every definition file, in file name order. A name defined
// twice is an error.
func (l *Loader) Load() ([]quest.QuestDocument, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	var out []quest.QuestDocument
	seen := make(map[string]string)
	for _, f := range files {
		docs, err := loadYAMLFile(f)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			key := strings.ToLower(d.Name)
			if prev, ok := seen[key]; ok {
				return nil, fmt.Errorf("quest %q defined in both %s and %s", d.Name, prev, f)
			}
			seen[key] = f
			out = append(out, d)
		}
	}
	l.logger.Info("quest files loaded", zap.String("dir", l.dir),
		zap.Int("files", len(files)), zap.Int("quests", len(out)))
	return out, nil
}

func (l *Loader) files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read quest dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(l.dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadYAMLFile(path string) ([]quest.QuestDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quest file: %w", err)
	}
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if _, ok := top["quests"]; ok {
		var b bundle
		if err := decodeStrict(data, &b); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return b.Quests, nil
	}
	var d quest.QuestDocument
	if err := decodeStrict(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return []quest.QuestDocument{d}, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Export writes one <name>.yaml file per document into dir.
func Export(dir string, docs []quest.QuestDocument) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, d := range docs {
		data, err := yaml.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode quest %s: %w", d.Name, err)
		}
		path := filepath.Join(dir, strings.ToLower(d.Name)+".yaml")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Importer is the part of the quest service Import writes through.
type Importer interface {
	PutQuest(ctx context.Context, doc quest.QuestDocument) (*quest.Quest, error)
}

// Import stores docs through svc. Definitions that reference a quest not
// yet imported are retried after the others, so files need no particular
// order. It returns the names imported and the first hard error.
func Import(ctx context.Context, svc Importer, docs []quest.QuestDocument, logger *zap.Logger) ([]string, error) {
	var imported []string
	pending := docs
	for len(pending) > 0 {
		var retry []quest.QuestDocument
		var lastErr error
		for _, d := range pending {
			if _, err := svc.PutQuest(ctx, d); err != nil {
				if errors.Is(err, quest.ErrNotFound) {
					retry = append(retry, d)
					lastErr = err
					continue
				}
				return imported, fmt.Errorf("import quest %s: %w", d.Name, err)
			}
			imported = append(imported, d.Name)
		}
		if len(retry) == len(pending) {
			return imported, fmt.Errorf("import quest %s: %w", retry[0].Name, lastErr)
		}
		pending = retry
	}
	logger.Info("quests imported", zap.Int("count", len(imported)))
	return imported, nil
}
