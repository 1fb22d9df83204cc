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
	"cmp"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/gorse-io/tensorfact/common/log"
	"github.com/gorse-io/tensorfact/config"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// AzureBlob stores checkpoints in a container of Azure Blob Storage, under an optional prefix.
type AzureBlob struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureBlob connects with the connection string if set, otherwise with the shared key of
// the account.
func NewAzureBlob(cfg config.AzureBlobConfig) (*AzureBlob, error) {
	client, err := newAzureClient(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &AzureBlob{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func newAzureClient(cfg config.AzureBlobConfig) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, errors.NotValidf("azure blob store without connection string or shared key")
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, errors.Trace(err)
	}
	endpoint := cmp.Or(cfg.Endpoint, fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName))
	return azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
}

func (a *AzureBlob) key(name string) string {
	return path.Join(a.prefix, name)
}

func (a *AzureBlob) Open(name string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(context.Background(), a.container, a.key(name), nil)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to download %s", a.key(name))
	}
	return resp.Body, nil
}

// Create streams a new block blob. The blob is committed only when the writer is closed
// without error.
func (a *AzureBlob) Create(name string) (io.WriteCloser, chan struct{}, error) {
	key := a.key(name)
	w := newUploadWriter(func(r io.Reader) error {
		if _, err := a.client.UploadStream(context.Background(), a.container, key, r, nil); err != nil {
			log.Logger().Error("failed to upload blob", zap.String("container", a.container),
				zap.String("blob", key), zap.Error(err))
			return errors.Trace(err)
		}
		return nil
	})
	return w, w.done, nil
}

// List returns blob names relative to the prefix.
func (a *AzureBlob) List() ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	var listPrefix string
	if a.prefix != "" {
		listPrefix = a.prefix + "/"
		opts.Prefix = &listPrefix
	}
	var names []string
	pager := a.client.NewListBlobsFlatPager(a.container, opts)
	for pager.More() {
		page, err := pager.NextPage(context.Background())
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, item := range page.Segment.BlobItems {
			if name := strings.TrimPrefix(lo.FromPtr(item.Name), listPrefix); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (a *AzureBlob) Remove(name string) error {
	_, err := a.client.DeleteBlob(context.Background(), a.container, a.key(name), nil)
	return errors.Annotatef(err, "failed to remove %s", a.key(name))
}
