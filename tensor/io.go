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

package tensor

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Read parses a tensor in coordinate text format: one nonzero per line, N one-based indices
// followed by the value, separated by white space. Empty lines and lines starting with '#' are
// skipped. The dimension of each mode is its largest index.
func Read(r io.Reader) (*Tensor, error) {
	var t *Tensor
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, errors.NotValidf("line %d: %d fields", lineNumber, len(fields))
		}
		nModes := len(fields) - 1
		if t == nil {
			t = New(make([]int, nModes))
		} else if t.NModes() != nModes {
			return nil, errors.NotValidf("line %d: %d modes in a %d-mode tensor", lineNumber, nModes, t.NModes())
		}
		inds := make([]int, nModes)
		for m := 0; m < nModes; m++ {
			i, err := strconv.Atoi(fields[m])
			if err != nil {
				return nil, errors.Annotatef(err, "line %d", lineNumber)
			}
			if i < 1 {
				return nil, errors.NotValidf("line %d: index %d", lineNumber, i)
			}
			inds[m] = i - 1
			t.Dims[m] = max(t.Dims[m], i)
		}
		val, err := strconv.ParseFloat(fields[nModes], 64)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNumber)
		}
		t.Append(inds, val)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if t == nil {
		return nil, errors.NotValidf("empty tensor")
	}
	return t, nil
}

// ReadFile reads a tensor from a coordinate text file.
func ReadFile(path string) (*Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	t, err := Read(file)
	if err != nil {
		return nil, errors.Annotatef(err, "read %s", path)
	}
	return t, nil
}

// Write writes the tensor in the format accepted by Read.
func (t *Tensor) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for x := 0; x < t.NNZ(); x++ {
		buf = buf[:0]
		for m := range t.Inds {
			buf = strconv.AppendInt(buf, int64(t.Inds[m][x]+1), 10)
			buf = append(buf, ' ')
		}
		buf = strconv.AppendFloat(buf, t.Vals[x], 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}
