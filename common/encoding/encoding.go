// Copyright 2020 gorse Project Authors
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

package encoding

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/juju/errors"
)

// WriteFloats writes a float64 slice to byte stream. The length is not written.
func WriteFloats(w io.Writer, a []float64) error {
	return errors.Trace(binary.Write(w, binary.LittleEndian, a))
}

// ReadFloats fills a float64 slice from byte stream.
func ReadFloats(r io.Reader, a []float64) error {
	return errors.Trace(binary.Read(r, binary.LittleEndian, a))
}

// WriteInts writes an int slice to byte stream as a length-prefixed int64 array.
func WriteInts(w io.Writer, a []int) error {
	if err := binary.Write(w, binary.LittleEndian, int64(len(a))); err != nil {
		return errors.Trace(err)
	}
	buf := make([]int64, len(a))
	for i, v := range a {
		buf[i] = int64(v)
	}
	return errors.Trace(binary.Write(w, binary.LittleEndian, buf))
}

// ReadInts reads an int slice written by WriteInts.
func ReadInts(r io.Reader) ([]int, error) {
	var length int64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, errors.Trace(err)
	}
	if length < 0 {
		return nil, errors.Errorf("negative slice length %d", length)
	}
	buf := make([]int64, length)
	if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
		return nil, errors.Trace(err)
	}
	a := make([]int, length)
	for i, v := range buf {
		a[i] = int(v)
	}
	return a, nil
}

// WriteString writes string to byte stream.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// ReadString reads string from byte stream.
func ReadString(r io.Reader) (string, error) {
	data, err := ReadBytes(r)
	return string(data), err
}

// WriteBytes writes bytes to byte stream.
func WriteBytes(w io.Writer, s []byte) error {
	err := binary.Write(w, binary.LittleEndian, int32(len(s)))
	if err != nil {
		return errors.Trace(err)
	}
	n, err := w.Write(s)
	if err != nil {
		return errors.Trace(err)
	} else if n != len(s) {
		return errors.New("fail to write bytes")
	}
	return nil
}

// ReadBytes reads bytes from byte stream.
func ReadBytes(r io.Reader) ([]byte, error) {
	var length int32
	err := binary.Read(r, binary.LittleEndian, &length)
	if err != nil {
		return nil, errors.Trace(err)
	}
	data := make([]byte, length)
	if _, err = io.ReadFull(r, data); err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// WriteGob writes object to byte stream.
func WriteGob(w io.Writer, v interface{}) error {
	buffer := bytes.NewBuffer(nil)
	encoder := gob.NewEncoder(buffer)
	err := encoder.Encode(v)
	if err != nil {
		return errors.Trace(err)
	}
	return WriteBytes(w, buffer.Bytes())
}

// ReadGob read object from byte stream.
func ReadGob(r io.Reader, v interface{}) error {
	data, err := ReadBytes(r)
	if err != nil {
		return err
	}
	buffer := bytes.NewBuffer(data)
	decoder := gob.NewDecoder(buffer)
	return errors.Trace(decoder.Decode(v))
}
