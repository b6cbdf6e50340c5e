// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package blockio abstracts the byte-addressable backing store an ext4
// image is read from, so the parser package never assumes the image is
// an in-memory slice (spec.md §4.8 external collaborator: BlockReader).
package blockio

import (
	"fmt"
	"io"
)

// Reader reads len(p) bytes from a fixed-size backing image starting
// at byte offset off. It returns an error if the read would run past
// the end of the image, rather than a short read.
type Reader interface {
	ReadAt(p []byte, off int64) error
	// Size returns the total addressable size of the image in bytes.
	Size() int64
}

// ErrOutOfRange is returned by a Reader when the requested span falls
// outside the image.
type ErrOutOfRange struct {
	Offset, Length, ImageSize int64
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("blockio: read [%d, %d) is outside image of size %d", e.Offset, e.Offset+e.Length, e.ImageSize)
}

// readerAt adapts an io.ReaderAt of known size to Reader.
type readerAt struct {
	r    io.ReaderAt
	size int64
}

// NewReaderAt builds a Reader over r, an image known to be exactly
// size bytes long.
func NewReaderAt(r io.ReaderAt, size int64) Reader {
	return &readerAt{r: r, size: size}
}

func (b *readerAt) Size() int64 { return b.size }

func (b *readerAt) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > b.size {
		return ErrOutOfRange{Offset: off, Length: int64(len(p)), ImageSize: b.size}
	}
	n, err := b.r.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return err
	}
	if n != len(p) {
		return ErrOutOfRange{Offset: off, Length: int64(len(p)), ImageSize: b.size}
	}
	return nil
}
