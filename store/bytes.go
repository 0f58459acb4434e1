// Raw section views: verified unsafe slice reinterpretation with runtime
// safety checks.
package store

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

var (
	// ErrUnsupportedArchitecture is returned when running on unsupported CPU architecture
	ErrUnsupportedArchitecture = errors.New("unsupported architecture: only amd64 and arm64 are supported")

	// ErrBigEndian is returned when running on big-endian systems
	ErrBigEndian = errors.New("big-endian systems are not supported")

	// ErrUnalignedAccess is returned when attempting unaligned memory access
	ErrUnalignedAccess = errors.New("unaligned memory access detected")
)

// init performs startup validation of platform requirements: the database
// image is reinterpreted in place, which needs little-endian layout.
func init() {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		panic(fmt.Sprintf("ternbase/store: %v: %s", ErrUnsupportedArchitecture, arch))
	}
	if !isLittleEndian() {
		panic(fmt.Sprintf("ternbase/store: %v", ErrBigEndian))
	}
}

// isLittleEndian checks if the system is little-endian
func isLittleEndian() bool {
	var test uint16 = 0x0001
	firstByte := *(*byte)(unsafe.Pointer(&test))
	return firstByte == 1
}

// recordBytes exposes a record slice as its raw bytes without copying.
func recordBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size)
}

// recordView reinterprets a byte region as a record slice. The region must
// be aligned for the record type and exactly count records long.
func recordView[T any](b []byte, count uint32) ([]T, error) {
	if count == 0 {
		return nil, nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	want := size * int(count)
	if len(b) < want {
		return nil, fmt.Errorf("store: section too short: got %d bytes, want %d", len(b), want)
	}
	ptr := uintptr(unsafe.Pointer(&b[0]))
	if ptr%uintptr(unsafe.Alignof(zero)) != 0 {
		return nil, fmt.Errorf("%w: section at address 0x%x", ErrUnalignedAccess, ptr)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), count), nil
}
