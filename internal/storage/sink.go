// Package storage keeps finished conversion results, on local disk or in
// S3, optionally encrypted at rest.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Object is a result to store.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// Sink stores results and returns where they went.
type Sink interface {
	Save(ctx context.Context, id string, obj Object) (string, error)
}

// LocalSink writes results into Dir as <id>_<name>.
type LocalSink struct {
	Dir        string
	Passphrase string
}

func (s LocalSink) Save(ctx context.Context, id string, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.Dir
	if dir == "" {
		dir = "results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}
	data, name, err := seal(obj, s.Passphrase)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, fmt.Sprintf("%s_%s", id, name))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	log.Info().Str("op_id", id).Str("path", p).Int("bytes", len(data)).Msg("saved result locally")
	return p, nil
}

// seal encrypts when a passphrase is set and returns the stored file name.
func seal(obj Object, passphrase string) ([]byte, string, error) {
	name := safeName(obj.Name)
	if passphrase == "" {
		return obj.Data, name, nil
	}
	enc, err := Encrypt(obj.Data, passphrase)
	if err != nil {
		return nil, "", fmt.Errorf("encrypt result: %w", err)
	}
	return enc, name + ".enc", nil
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "result"
	}
	return name
}
