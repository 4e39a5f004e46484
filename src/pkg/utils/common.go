package utils

import (
	"encoding/binary"
	"math/rand"
)

func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}

// All on-disk integers are big-endian.

func PutUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func PutUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func PutUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

func ParseUint16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func ParseUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func ParseUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func Uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	PutUint64(b, v)
	return b
}

// Concat joins the given slices into a freshly allocated one.
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}

	res := make([]byte, 0, n)
	for _, p := range parts {
		res = append(res, p...)
	}

	return res
}

type Integer interface {
	~int | ~int64 | ~uint64 | ~uint32
}

// GenerateUniqueInts returns n distinct values from [min, max].
func GenerateUniqueInts[T Integer](n, min, max int, r *rand.Rand) []T {
	seen := make(map[T]struct{}, n)
	res := make([]T, 0, n)

	for len(res) < n {
		val := T(r.Intn(max-min+1) + min)
		if _, ok := seen[val]; ok {
			continue
		}

		seen[val] = struct{}{}
		res = append(res, val)
	}

	return res
}
