// Package archive defines the contract for building the payload shipped to
// a remote job executor. What goes into the archive (source tree, config
// bundle, dataset snapshot) is specific to each deployment. The one
// implementation shipped here, FSProvider, packs a per-job directory on
// local disk as a tar.gz stream.
package archive

import (
	"context"
	"io"
)

// Provider produces the archive stream for one named job's remote
// execution. Implementations are expected to stream rather than buffer
// the whole archive in memory where the underlying source allows it.
type Provider interface {
	CreateArchive(ctx context.Context, jobName string) (io.ReadCloser, error)
}
