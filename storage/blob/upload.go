// Copyright 2026 gorse Project Authors
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

	"github.com/juju/errors"
)

// uploadWriter streams written bytes into an upload running on its own goroutine. Close waits
// for the upload and returns its error. CloseWithError makes the upload read err, which
// aborts it without creating the blob.
type uploadWriter struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

func newUploadWriter(upload func(r io.Reader) error) *uploadWriter {
	pr, pw := io.Pipe()
	w := &uploadWriter{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = upload(pr)
		// unblock writers if the upload stopped reading early
		_ = pr.CloseWithError(w.err)
	}()
	return w
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	n, err := w.pw.Write(p)
	return n, errors.Trace(err)
}

func (w *uploadWriter) Close() error {
	_ = w.pw.Close()
	<-w.done
	return errors.Trace(w.err)
}

func (w *uploadWriter) CloseWithError(err error) error {
	_ = w.pw.CloseWithError(err)
	<-w.done
	return nil
}
