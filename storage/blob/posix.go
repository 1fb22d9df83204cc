// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gorse-io/tensorfact/common/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const tempSuffix = ".tmp"

type POSIX struct {
	dir string
}

func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

// Open a file for reading. It returns an io.Reader that can be used to read the file's content.
func (p *POSIX) Open(name string) (io.ReadCloser, error) {
	fullPath := filepath.Join(p.dir, name)
	return os.Open(fullPath)
}

// Create a new file for writing. Content goes to a temporary file that replaces the target
// only if the writer is closed without error. The done channel is closed when the writing is
// complete.
func (p *POSIX) Create(name string) (io.WriteCloser, chan struct{}, error) {
	fullPath := filepath.Join(p.dir, name)
	if err := os.MkdirAll(filepath.Dir(fullPath), os.ModePerm); err != nil {
		return nil, nil, errors.Trace(err)
	}
	tempPath := fullPath + "." + uuid.NewString() + tempSuffix
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	done := make(chan struct{})
	pr, pw := io.Pipe()
	go func() {
		defer close(done)
		_, err := io.Copy(file, pr)
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err == nil {
			err = os.Rename(tempPath, fullPath)
		}
		if err != nil {
			_ = pr.CloseWithError(err)
			_ = os.Remove(tempPath)
			log.Logger().Error("failed to write to file", zap.String("file", fullPath), zap.Error(err))
		}
	}()
	return pw, done, nil
}

// List names of all files under the directory, skipping unfinished writes.
func (p *POSIX) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(p.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, tempSuffix) {
			return nil
		}
		name, err := filepath.Rel(p.dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(name))
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	sort.Strings(names)
	return names, errors.Trace(err)
}

func (p *POSIX) Remove(name string) error {
	return errors.Trace(os.Remove(filepath.Join(p.dir, name)))
}
