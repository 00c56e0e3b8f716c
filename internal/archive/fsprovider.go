package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSProvider builds a gzip-compressed tar archive of one job's payload
// directory on local disk. Each job name maps to rootDir/<name>, the
// convention the remote executor expects the archive's top-level entries
// to mirror.
type FSProvider struct {
	rootDir string
}

func NewFSProvider(rootDir string) *FSProvider {
	return &FSProvider{rootDir: rootDir}
}

func (p *FSProvider) CreateArchive(ctx context.Context, jobName string) (io.ReadCloser, error) {
	dir := filepath.Join(p.rootDir, jobName)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: stat payload dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive: %s is not a directory", dir)
	}

	pr, pw := io.Pipe()

	go func() {
		gw := gzip.NewWriter(pw)
		tw := tar.NewWriter(gw)

		err := filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}

			hdr, err := tar.FileInfoHeader(fi, "")
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel)

			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			_, err = io.Copy(tw, f)
			return err
		})

		if err == nil {
			err = tw.Close()
		}
		if err == nil {
			err = gw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	return pr, nil
}
