// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package aggregator

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tomtom215/modvote/internal/logging"
	"github.com/tomtom215/modvote/internal/protocol"
)

// ErrNotPNG is returned for logo data that is not a PNG image.
var ErrNotPNG = errors.New("image is not a PNG file")

// ImageStore keeps poll option logos on disk under their content hash.
type ImageStore struct {
	dir       string
	urlPrefix string
}

// NewImageStore creates dir if needed.
func NewImageStore(dir, urlPrefix string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &ImageStore{dir: dir, urlPrefix: urlPrefix}, nil
}

// Save stores a PNG and returns its file name, sha256 hex plus ".png". An
// existing file with the same name is left untouched.
func (s *ImageStore) Save(data []byte) (string, error) {
	if !mimetype.Detect(data).Is("image/png") {
		return "", ErrNotPNG
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + ".png"

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return name, nil
	}
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}
	return name, nil
}

// Rewrite returns a copy of options in which PNG logos are replaced by the
// URL of their stored file. Logos that are not valid PNGs are dropped;
// emoji logos are kept as they are.
func (s *ImageStore) Rewrite(options []protocol.StartPollOption) []protocol.StartPollOption {
	out := make([]protocol.StartPollOption, len(options))
	for i, o := range options {
		out[i] = o
		if o.Logo == nil || o.Logo.Type != "png" {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(o.Logo.Data)
		if err == nil {
			var name string
			if name, err = s.Save(data); err == nil {
				out[i].Logo = &protocol.Icon{Type: "png", Data: s.urlPrefix + name}
				continue
			}
		}
		logging.Info().Err(err).Str("option", o.ID).Msg("Dropping invalid option logo")
		out[i].Logo = nil
	}
	return out
}
