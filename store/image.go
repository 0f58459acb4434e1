package store

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/boolforge/ternbase/transform"
	"golang.org/x/exp/mmap"
)

// image is the memory-mapped backing of an opened database file: the
// validated header plus the raw bytes every borrowed section view aliases.
// The database keeps its image alive for its whole lifetime; closing it
// invalidates all inherited sections.
type image struct {
	r    *mmap.ReaderAt
	hdr  *fileHeader
	data []byte
}

// openImage maps a database file read-only and validates its header. The
// header is reinterpreted in place, so magic, version and slot count are
// checked before anything else dereferences it.
func openImage(path string) (*image, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	data, err := mappedBytes(r)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	if len(data) != r.Len() || len(data) < headerSize {
		_ = r.Close()
		return nil, fmt.Errorf("image is %d bytes, below the %d-byte header", len(data), headerSize)
	}

	hdr := (*fileHeader)(unsafe.Pointer(&data[0]))
	switch {
	case hdr.Magic != MagicNumber:
		err := fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, hdr.Magic)
		_ = r.Close()
		return nil, err
	case hdr.Version != Version:
		err := fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, hdr.Version)
		_ = r.Close()
		return nil, err
	case hdr.SlotCount != transform.SlotCount:
		err := fmt.Errorf("slot count mismatch: got %d, want %d", hdr.SlotCount, transform.SlotCount)
		_ = r.Close()
		return nil, err
	}

	return &image{r: r, hdr: hdr, data: data}, nil
}

// section returns the byte region a section starts at, ready for a record
// view. A header offset beyond the mapping yields nil, which the view
// layer rejects for any non-empty section.
func (img *image) section(i int) []byte {
	off := img.hdr.Offsets[i]
	if off > uint64(len(img.data)) {
		return nil
	}
	return img.data[off:]
}

func (img *image) Close() error {
	if img == nil || img.r == nil {
		return nil
	}
	r := img.r
	img.r = nil
	img.hdr = nil
	img.data = nil
	return r.Close()
}

// mappedBytes returns the mapping behind an x/exp/mmap reader.
//
// The reader deliberately exposes only io.ReaderAt, but inherited sections
// are reinterpreted in place; that needs the underlying []byte. The
// unexported data field is read via reflect+unsafe, and an upstream layout
// change surfaces as a hard error at open time rather than a corrupt view
// later.
func mappedBytes(r *mmap.ReaderAt) ([]byte, error) {
	v := reflect.ValueOf(r).Elem()
	f := v.FieldByName("data")
	if !f.IsValid() || f.Kind() != reflect.Slice || f.Type().Elem().Kind() != reflect.Uint8 || !f.CanAddr() {
		return nil, fmt.Errorf("incompatible golang.org/x/exp/mmap.ReaderAt layout")
	}
	return *(*[]byte)(unsafe.Pointer(f.UnsafeAddr())), nil
}
