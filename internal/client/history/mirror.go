package history

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
	"github.com/dmitrijs2005/cloudchat/internal/filex"
)

// Mirror is the per-account local copy of the message list.
type Mirror struct {
	path string
}

// NewMirror places the mirror at <dataDir>/history/chat_<accountID>.json.
func NewMirror(dataDir, accountID string) (*Mirror, error) {
	dir, err := filex.EnsureSubDir(dataDir, "history")
	if err != nil {
		return nil, err
	}
	return &Mirror{path: filepath.Join(dir, "chat_"+accountID+".json")}, nil
}

func (m *Mirror) Path() string { return m.path }

// Load returns an empty list when no mirror exists yet.
func (m *Mirror) Load() ([]models.Message, error) {
	b, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Save atomically replaces the mirror.
func (m *Mirror) Save(msgs []models.Message) error {
	b, err := Encode(msgs)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(m.path, b, 0o600)
}
