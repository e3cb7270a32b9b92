package steps

import (
	"fmt"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
)

// FileSizes lists the size of a file before and after compression
type FileSizes struct {
	Raw    int64
	Gzip   int64
	Brotli int64
}

func (s FileSizes) String(name string) string {
	return fmt.Sprintf("%s: %s (gzip %s, brotli %s)", name, formatSize(s.Raw), formatSize(s.Gzip), formatSize(s.Brotli))
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

// MeasureSizes reports how large the passed file is when served raw, gzipped and brotli compressed
func MeasureSizes(path string) (FileSizes, error) {
	var sizes FileSizes

	hdl, err := os.Open(path)
	if err != nil {
		return sizes, eris.Wrapf(err, "failed to open %s", path)
	}
	defer hdl.Close()

	gzCounter := &countingWriter{}
	gzw, err := gzip.NewWriterLevel(gzCounter, gzip.BestCompression)
	if err != nil {
		return sizes, eris.Wrap(err, "failed to set up gzip")
	}

	brCounter := &countingWriter{}
	brw := brotli.NewWriterLevel(brCounter, brotli.BestCompression)

	sizes.Raw, err = io.Copy(io.MultiWriter(gzw, brw), hdl)
	if err != nil {
		return sizes, eris.Wrapf(err, "failed to read %s", path)
	}

	if err = gzw.Close(); err != nil {
		return sizes, eris.Wrap(err, "failed to finish gzip stream")
	}

	if err = brw.Close(); err != nil {
		return sizes, eris.Wrap(err, "failed to finish brotli stream")
	}

	sizes.Gzip = gzCounter.n
	sizes.Brotli = brCounter.n
	return sizes, nil
}

func formatSize(size int64) string {
	switch {
	case size >= 1024*1024:
		return fmt.Sprintf("%.2f MiB", float64(size)/1024/1024)
	case size >= 1024:
		return fmt.Sprintf("%.2f KiB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d B", size)
	}
}
