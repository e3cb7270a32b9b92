package steps

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// Archive packs a directory into a .tar.xz file
type Archive struct {
	Base   string
	Source string
	Dest   string
}

func (a *Archive) Describe() string {
	return "archive " + a.Source + " -> " + a.Dest
}

func (a *Archive) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.Base, path)
}

func (a *Archive) Execute(ctx context.Context) (err error) {
	src := a.resolve(a.Source)
	dest := a.resolve(a.Dest)

	info, err := os.Stat(src)
	if err != nil {
		return eris.Wrapf(err, "failed to check %s", src)
	}
	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", src)
	}

	taskgraph.Log(ctx).Info().
		Str("task", taskgraph.CurrentTask(ctx)).
		Str("path", dest).
		Msgf("packing %s", dest)

	hdl, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer func() {
		hdl.Close()
		if err != nil {
			os.Remove(dest)
		}
	}()

	xzw, err := xz.NewWriter(hdl)
	if err != nil {
		return eris.Wrap(err, "failed to set up xz")
	}

	tw := tar.NewWriter(xzw)
	err = filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return eris.Wrapf(err, "failed to build header for %s", path)
		}
		hdr.Name = filepath.ToSlash(relPath)
		if fi.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return eris.Wrapf(err, "failed to write header for %s", path)
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		item, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "failed to open %s", path)
		}
		defer item.Close()

		_, err = io.Copy(tw, item)
		if err != nil {
			return eris.Wrapf(err, "failed to pack %s", path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err = tw.Close(); err != nil {
		return eris.Wrap(err, "failed to finish tar stream")
	}

	if err = xzw.Close(); err != nil {
		return eris.Wrap(err, "failed to finish xz stream")
	}

	return nil
}
