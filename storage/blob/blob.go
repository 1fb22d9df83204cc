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
	"bufio"
	"io"
	"time"

	"github.com/gorse-io/tensorfact/common/log"
	"github.com/gorse-io/tensorfact/config"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Store is a flat namespace of named blobs.
type Store interface {
	// Open a blob for reading.
	Open(name string) (io.ReadCloser, error)
	// Create a blob for writing. The done channel is closed once the content written before
	// Close has been persisted (or has failed to).
	Create(name string) (io.WriteCloser, chan struct{}, error)
	// List names of all blobs.
	List() ([]string, error)
	// Remove a blob.
	Remove(name string) error
}

// Open creates the store selected by the config. It returns nil if checkpoints are disabled.
func Open(cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "posix":
		return NewPOSIX(cfg.Dir), nil
	case "s3":
		return NewS3(cfg.S3)
	case "gcs":
		return NewGCS(cfg.GCS)
	case "azure":
		return NewAzureBlob(cfg.Azure)
	default:
		return nil, errors.NotSupportedf("blob store %q", cfg.Type)
	}
}

type Marshaler interface {
	Marshal(w io.Writer) error
}

type Unmarshaler interface {
	Unmarshal(r io.Reader) error
}

// SaveModel writes a checkpoint of m to the store.
func SaveModel(store Store, name string, m Marshaler) error {
	start := time.Now()
	w, done, err := store.Create(name)
	if err != nil {
		return errors.Annotatef(err, "failed to create checkpoint %s", name)
	}
	bw := bufio.NewWriter(w)
	if err = m.Marshal(bw); err == nil {
		err = bw.Flush()
	}
	if err != nil {
		// abort the upload instead of persisting a partial checkpoint
		if pw, ok := w.(interface{ CloseWithError(error) error }); ok {
			_ = pw.CloseWithError(err)
		} else {
			_ = w.Close()
		}
		<-done
		return errors.Annotatef(err, "failed to write checkpoint %s", name)
	}
	if err = w.Close(); err != nil {
		<-done
		return errors.Annotatef(err, "failed to close checkpoint %s", name)
	}
	<-done
	log.Logger().Info("save checkpoint", zap.String("name", name), zap.Duration("duration", time.Since(start)))
	return nil
}

// LoadModel reads a checkpoint written by SaveModel into m.
func LoadModel(store Store, name string, m Unmarshaler) error {
	r, err := store.Open(name)
	if err != nil {
		return errors.Annotatef(err, "failed to open checkpoint %s", name)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Logger().Warn("failed to close checkpoint", zap.String("name", name), zap.Error(err))
		}
	}()
	if err = m.Unmarshal(bufio.NewReader(r)); err != nil {
		return errors.Annotatef(err, "failed to read checkpoint %s", name)
	}
	return nil
}
