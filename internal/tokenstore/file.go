package tokenstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
)

// File is a Store backed by a JSON file. When an age identity is supplied the
// file is encrypted to that identity's recipient.
type File struct {
	mu       sync.Mutex
	path     string
	identity *age.X25519Identity
	values   map[string]string
}

func OpenFile(path string, identity *age.X25519Identity) (*File, error) {
	f := &File{
		path:     path,
		identity: identity,
		values:   make(map[string]string),
	}

	if err := f.load(); err != nil {
		return nil, fmt.Errorf("loading session file: %w", err)
	}

	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok && v != ""
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return f.save()
}

func (f *File) Delete(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return f.save()
}

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if f.identity != nil {
		r, err := age.Decrypt(bytes.NewReader(data), f.identity)
		if err != nil {
			return fmt.Errorf("decrypting: %w", err)
		}

		data, err = io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("reading decrypted data: %w", err)
		}
	}

	if err := json.Unmarshal(data, &f.values); err != nil {
		return fmt.Errorf("unmarshaling session values: %w", err)
	}

	return nil
}

// save must be called with mu held.
func (f *File) save() error {
	data, err := json.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("marshaling session values: %w", err)
	}

	if f.identity != nil {
		buf := &bytes.Buffer{}
		w, err := age.Encrypt(buf, f.identity.Recipient())
		if err != nil {
			return fmt.Errorf("starting encryption: %w", err)
		}

		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("encrypting session values: %w", err)
		}

		if err := w.Close(); err != nil {
			return fmt.Errorf("finishing encryption: %w", err)
		}
		data = buf.Bytes()
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Debug("removing temp session file", "error", err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("setting session file permissions: %w", err)
	}

	return os.Rename(tmp.Name(), f.path)
}

// LoadOrCreateIdentity reads an age X25519 identity from path, generating and
// writing a new one if the file does not exist.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
		return id, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity file: %w", err)
	}

	slog.Info("generated session encryption key", "path", path)
	return id, nil
}
