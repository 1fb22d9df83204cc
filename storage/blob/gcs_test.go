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
	"context"
	"io"
	"testing"

	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeGCS(t *testing.T) *GCS {
	server, err := fakestorage.NewServerWithOptions(fakestorage.Options{NoListener: true})
	require.NoError(t, err)
	t.Cleanup(server.Stop)
	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: "tensorfact-test"})
	return NewGCSWithClient(server.Client(), "tensorfact-test", "blob")
}

func TestGCS(t *testing.T) {
	client := newFakeGCS(t)

	// create file
	w, done, err := client.Create("test.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	assert.NoError(t, err)
	err = w.Close()
	assert.NoError(t, err)
	<-done

	// list files
	names, err := client.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"test.txt"}, names)

	// read file
	r, err := client.Open("test.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	err = r.Close()
	assert.NoError(t, err)

	// remove file
	err = client.Remove("test.txt")
	assert.NoError(t, err)

	// list files again
	names, err = client.List()
	assert.NoError(t, err)
	assert.Empty(t, names)
}

func TestGCS_Abort(t *testing.T) {
	client := newFakeGCS(t)
	w, done, err := client.Create("test.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	assert.NoError(t, err)
	assert.NoError(t, w.(*gcsWriter).CloseWithError(context.Canceled))
	<-done

	names, err := client.List()
	assert.NoError(t, err)
	assert.Empty(t, names)
}
