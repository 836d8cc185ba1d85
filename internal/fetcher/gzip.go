package fetcher

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

var gzipMagic = []byte{0x1f, 0x8b}

// NewMaybeGzipReader returns a reader that decompresses r when it starts with
// the gzip magic bytes and passes it through unchanged otherwise.
func NewMaybeGzipReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "gzip: peek header")
	}
	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, eris.Wrap(err, "gzip: open stream")
		}
		return zr, nil
	}
	return io.NopCloser(br), nil
}

type fileReader struct {
	io.ReadCloser
	file *os.File
}

func (r *fileReader) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenMaybeGzip opens path and transparently decompresses gzip content.
// Closing the returned reader closes the file.
func OpenMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gzip: open %s", path)
	}
	rc, err := NewMaybeGzipReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileReader{ReadCloser: rc, file: f}, nil
}
