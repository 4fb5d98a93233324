package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/petrijr/botflow/pkg/api"
)

const filePrefix = "bot_"

// FileStore keeps one file per bot in a directory: bot_<id>.json, or
// bot_<id>.yaml / bot_<id>.yml for hand-written flows. SaveFlow always
// writes JSON and removes any YAML variant so only one file describes a bot.
type FileStore struct {
	dir string
}

var _ FlowStore = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store reads from.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) candidates(botID string) []string {
	base := filepath.Join(s.dir, filePrefix+botID)
	return []string{base + ".json", base + ".yaml", base + ".yml"}
}

func (s *FileStore) LoadFlow(_ context.Context, botID string) (api.FlowGraph, error) {
	if err := checkBotID(botID); err != nil {
		return api.FlowGraph{}, err
	}
	for _, path := range s.candidates(botID) {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return api.FlowGraph{}, err
		}
		g, err := DecodeFlowFile(path, data)
		if err != nil {
			return api.FlowGraph{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return g, nil
	}
	return api.FlowGraph{}, api.ErrFlowNotFound
}

func (s *FileStore) SaveFlow(_ context.Context, botID string, g api.FlowGraph) error {
	data, err := prepareSave(botID, g)
	if err != nil {
		return err
	}

	paths := s.candidates(botID)
	tmp, err := os.CreateTemp(s.dir, ".flow-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), paths[0]); err != nil {
		return err
	}
	for _, p := range paths[1:] {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *FileStore) DeleteFlow(_ context.Context, botID string) error {
	if err := checkBotID(botID); err != nil {
		return err
	}
	removed := false
	for _, p := range s.candidates(botID) {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
	}
	if !removed {
		return api.ErrFlowNotFound
	}
	return nil
}

func (s *FileStore) ListFlows(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".json" && !isYAML(name) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ext)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
