package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format is the compression wrapped around a tar stream.
type Format int

const (
	Tar Format = iota
	Gzip
	Xz
	Bzip2
	Zstd
)

var formatNames = [...]string{"tar", "gzip", "xz", "bzip2", "zstd"}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	bzip2Magic = []byte("BZh")
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Detect identifies the compression from the leading bytes of a file.
// Anything unrecognized is assumed to be a plain tar stream.
func Detect(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip
	case bytes.HasPrefix(head, xzMagic):
		return Xz
	case bytes.HasPrefix(head, bzip2Magic):
		return Bzip2
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	}
	return Tar
}

// tarReader is a tar stream over a decompressor over a file.
type tarReader struct {
	*tar.Reader
	closers []func() error
}

func (r *tarReader) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newTarReader(f io.ReadCloser) (*tarReader, Format, error) {
	tr := &tarReader{closers: []func() error{f.Close}}
	br := bufio.NewReader(f)
	// A short file is fine here: it fails later as a tar stream.
	head, _ := br.Peek(len(xzMagic))

	var r io.Reader
	format := Detect(head)
	switch format {
	case Gzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			tr.Close()
			return nil, format, err
		}
		tr.closers = append(tr.closers, gz.Close)
		r = gz
	case Xz:
		xr, err := xz.NewReader(br)
		if err != nil {
			tr.Close()
			return nil, format, err
		}
		r = xr
	case Bzip2:
		r = bzip2.NewReader(br)
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			tr.Close()
			return nil, format, err
		}
		tr.closers = append(tr.closers, func() error { zr.Close(); return nil })
		r = zr
	default:
		r = br
	}
	tr.Reader = tar.NewReader(r)
	return tr, format, nil
}
