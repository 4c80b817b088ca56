package extract

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"

	"github.com/modelget/rget/pkg/logging"
)

// sniffSize is enough to see every magic number below, and the ustar marker
// of a tar header.
const sniffSize = 512

var (
	gzipMagic     = []byte{0x1F, 0x8B}
	bzipMagic     = []byte{0x42, 0x5A, 0x68}
	xzMagic       = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
	lz4Magic      = []byte{0x04, 0x22, 0x4D, 0x18}
	compressMagic = []byte{0x1F, 0x9D}
	zipMagic      = []byte{0x50, 0x4B, 0x03, 0x04}
)

// decompressor wraps a compressed stream. ext is the file extension the format
// conventionally adds.
type decompressor interface {
	decompress(r io.Reader) (io.Reader, error)
	ext() string
}

// detectCompression returns the decompressor for the stream starting with
// header, or nil for an uncompressed stream.
func detectCompression(header []byte) decompressor {
	logger := logging.GetLogger()

	var d decompressor
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		d = gzipDecompressor{}
	case bytes.HasPrefix(header, bzipMagic):
		d = bzip2Decompressor{}
	case bytes.HasPrefix(header, xzMagic):
		d = xzDecompressor{}
	case bytes.HasPrefix(header, lz4Magic):
		d = lz4Decompressor{}
	case bytes.HasPrefix(header, compressMagic):
		d = compressDecompressor{}
	}
	if d != nil {
		logger.Debug().Str("type", d.ext()).Msg("Compression Format")
	}
	return d
}

type gzipDecompressor struct{}

func (gzipDecompressor) decompress(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }
func (gzipDecompressor) ext() string                               { return ".gz" }

type bzip2Decompressor struct{}

func (bzip2Decompressor) decompress(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }
func (bzip2Decompressor) ext() string                               { return ".bz2" }

type xzDecompressor struct{}

func (xzDecompressor) decompress(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }
func (xzDecompressor) ext() string                               { return ".xz" }

type lz4Decompressor struct{}

func (lz4Decompressor) decompress(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil }
func (lz4Decompressor) ext() string                               { return ".lz4" }

// compressDecompressor recognises unix compress (.Z) streams only to reject
// them: compress/lzw implements the GIF/TIFF variant, which cannot read them.
type compressDecompressor struct{}

func (compressDecompressor) decompress(io.Reader) (io.Reader, error) {
	return nil, ErrUnsupportedFormat
}
func (compressDecompressor) ext() string { return ".Z" }
