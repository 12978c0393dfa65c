package tables

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Decoder decompresses gzip source artifacts.
type Decoder struct{}

// NewDecoder creates a new decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decompress copies the gzip stream src into dst, decompressed.
func (d *Decoder) Decompress(dst io.Writer, src io.Reader) error {
	zr, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()

	if _, err := io.Copy(dst, zr); err != nil {
		return fmt.Errorf("gzip decompress: %w", err)
	}
	return nil
}

// DecompressFile decompresses the gzip file at srcPath into dstPath.
func (d *Decoder) DecompressFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}

	if err := d.Decompress(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	return dst.Close()
}
