package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// FileStore keeps one JSON file per conversation under a base directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("conversation store dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Create(context.Context) (Conversation, error) {
	conv := newConversation()
	if err := s.write(conv); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (s *FileStore) Get(_ context.Context, id string) (Conversation, error) {
	path, err := s.path(id)
	if err != nil {
		return Conversation{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	var conv Conversation
	if err := sonic.ConfigStd.Unmarshal(data, &conv); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *FileStore) Save(_ context.Context, conv Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	return s.write(conv)
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(id string) (string, error) {
	if !ValidID(id) {
		return "", ErrInvalidID
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// write replaces the file atomically through a temp file in the same dir.
func (s *FileStore) write(conv Conversation) error {
	path, err := s.path(conv.ID)
	if err != nil {
		return err
	}
	data, err := sonic.ConfigStd.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+conv.ID+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
