// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package readonly_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"go.fuchsia.dev/core/src/storage/ext4/readonly"
	"go.fuchsia.dev/core/src/storage/ext4/readonly/blockio"
)

const blockSize = 1024

// fakeImage is a blockio.Reader over an in-memory byte slice, used to
// exercise the parser without a real disk image fixture.
type fakeImage struct {
	data []byte
}

func (f *fakeImage) Size() int64 { return int64(len(f.data)) }

func (f *fakeImage) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(f.data)) {
		return blockio.ErrOutOfRange{Offset: off, Length: int64(len(p)), ImageSize: int64(len(f.data))}
	}
	copy(p, f.data[off:off+int64(len(p))])
	return nil
}

func encode(v interface{}) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func putAt(image []byte, offset int, data []byte) {
	copy(image[offset:], data)
}

func blockOffset(n int) int { return n * blockSize }

func buildExtentBlocks(startBlock uint32, lenBlocks uint16) [60]uint8 {
	header := readonly.ExtentHeader{EhMagic: 0xF30A, EhEntries: 1, EhMax: 4, EhDepth: 0}
	extent := readonly.Extent{EeBlock: 0, EeLen: lenBlocks, EeStartHi: 0, EeStartLo: startBlock}
	var blocks [60]uint8
	copy(blocks[0:12], encode(header))
	copy(blocks[12:24], encode(extent))
	return blocks
}

func buildDirEntry(inode uint32, recLen uint16, fileType readonly.EntryType, name string) []byte {
	buf := make([]byte, 8+len(name))
	binary.LittleEndian.PutUint32(buf[0:], inode)
	binary.LittleEndian.PutUint16(buf[4:], recLen)
	buf[6] = uint8(len(name))
	buf[7] = uint8(fileType)
	copy(buf[8:], name)
	return buf
}

// buildNestedImage constructs a minimal ext4 image with:
//
//	/file1        (regular file, inode 12)
//	/sub/         (directory, inode 13)
//	/sub/innerfile (regular file, inode 14)
func buildNestedImage(t *testing.T) (*readonly.Parser, string, string) {
	t.Helper()

	const (
		rootInode  = 2
		file1Inode = 12
		subInode   = 13
		innerInode = 14

		bgDescBlock   = 2
		inodeTableBlk = 3
		rootDirBlock  = 10
		subDirBlock   = 11
		file1Block    = 12
		innerBlock    = 13
	)
	file1Contents := "file1 contents.\n"
	innerContents := "inner file contents.\n"

	image := make([]byte, 20*blockSize)

	sb := readonly.SuperBlock{
		SInodesCount:     32,
		SBlocksCountLo:   20,
		SLogBlockSize:    0,
		SInodesPerGroup:  32,
		SMagic:           readonly.Magic,
		SInodeSize:       128,
		SRevLevel:        1,
		SFeatureIncompat: readonly.FeatureIncompatExtents | readonly.FeatureIncompatFiletype,
	}
	putAt(image, readonly.Superblock0Offset, encode(sb))

	bgd := readonly.BlockGroupDesc32{Ext2bgdITablesLo: inodeTableBlk}
	putAt(image, blockOffset(bgDescBlock), encode(bgd))

	inodeAddr := func(n uint32) int {
		return blockOffset(inodeTableBlk) + int((n-1)%32)*128
	}

	rootInodeStruct := readonly.INode{
		E2diMode:   0x4000,
		E2diSizeLo: blockSize,
		E2diBlocks: buildExtentBlocks(rootDirBlock, 1),
	}
	putAt(image, inodeAddr(rootInode), encode(rootInodeStruct))

	file1InodeStruct := readonly.INode{
		E2diMode:   0x8180,
		E2diSizeLo: uint32(len(file1Contents)),
		E2diBlocks: buildExtentBlocks(file1Block, 1),
	}
	putAt(image, inodeAddr(file1Inode), encode(file1InodeStruct))

	subInodeStruct := readonly.INode{
		E2diMode:   0x4000,
		E2diSizeLo: blockSize,
		E2diBlocks: buildExtentBlocks(subDirBlock, 1),
	}
	putAt(image, inodeAddr(subInode), encode(subInodeStruct))

	innerInodeStruct := readonly.INode{
		E2diMode:   0x8180,
		E2diSizeLo: uint32(len(innerContents)),
		E2diBlocks: buildExtentBlocks(innerBlock, 1),
	}
	putAt(image, inodeAddr(innerInode), encode(innerInodeStruct))

	rootDir := new(bytes.Buffer)
	rootDir.Write(buildDirEntry(rootInode, 12, readonly.EntryDirectory, "."))
	rootDir.Write(buildDirEntry(rootInode, 12, readonly.EntryDirectory, ".."))
	rootDir.Write(buildDirEntry(file1Inode, 16, readonly.EntryRegularFile, "file1"))
	rootDir.Write(buildDirEntry(subInode, blockSize-40, readonly.EntryDirectory, "sub"))
	putAt(image, blockOffset(rootDirBlock), rootDir.Bytes())

	subDir := new(bytes.Buffer)
	subDir.Write(buildDirEntry(subInode, 12, readonly.EntryDirectory, "."))
	subDir.Write(buildDirEntry(rootInode, 12, readonly.EntryDirectory, ".."))
	subDir.Write(buildDirEntry(innerInode, blockSize-24, readonly.EntryRegularFile, "innerfile"))
	putAt(image, blockOffset(subDirBlock), subDir.Bytes())

	putAt(image, blockOffset(file1Block), []byte(file1Contents))
	putAt(image, blockOffset(innerBlock), []byte(innerContents))

	p := readonly.New(&fakeImage{data: image})
	return p, file1Contents, innerContents
}

func TestSuperBlockMagic(t *testing.T) {
	p, _, _ := buildNestedImage(t)
	sb, err := p.SuperBlock()
	if err != nil {
		t.Fatalf("SuperBlock: %v", err)
	}
	if sb.SMagic != readonly.Magic {
		t.Fatalf("SMagic = %#x, want %#x", sb.SMagic, readonly.Magic)
	}
	if sb.BlockSize() != blockSize {
		t.Fatalf("BlockSize() = %d, want %d", sb.BlockSize(), blockSize)
	}
}

func TestInodeZeroInvalid(t *testing.T) {
	p, _, _ := buildNestedImage(t)
	if _, err := p.Inode(0); err == nil {
		t.Fatalf("Inode(0): got nil error, want an error")
	}
}

func TestListRootEntries(t *testing.T) {
	p, _, _ := buildNestedImage(t)
	root, err := p.RootInode()
	if err != nil {
		t.Fatalf("RootInode: %v", err)
	}
	entries, err := p.EntriesFromInode(root)
	if err != nil {
		t.Fatalf("EntriesFromInode: %v", err)
	}

	want := map[string]bool{".": false, "..": false, "file1": false, "sub": false}
	for _, e := range entries {
		if _, ok := want[e.Name]; !ok {
			t.Fatalf("unexpected entry %q", e.Name)
		}
		want[e.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("missing expected entry %q", name)
		}
	}
}

func TestEntryAtNestedPath(t *testing.T) {
	p, _, _ := buildNestedImage(t)

	entry, err := p.EntryAtPath("sub/innerfile")
	if err != nil {
		t.Fatalf("EntryAtPath: %v", err)
	}
	if entry.Name != "innerfile" {
		t.Fatalf("got name %q, want innerfile", entry.Name)
	}
	if entry.InodeNumber != 14 {
		t.Fatalf("got inode %d, want 14", entry.InodeNumber)
	}
}

func TestReadFileContents(t *testing.T) {
	p, file1Contents, innerContents := buildNestedImage(t)

	entry, err := p.EntryAtPath("file1")
	if err != nil {
		t.Fatalf("EntryAtPath(file1): %v", err)
	}
	inode, err := p.Inode(entry.InodeNumber)
	if err != nil {
		t.Fatalf("Inode: %v", err)
	}
	data, err := p.ReadFile(inode)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != file1Contents {
		t.Fatalf("ReadFile(file1) = %q, want %q", data, file1Contents)
	}

	entry, err = p.EntryAtPath("sub/innerfile")
	if err != nil {
		t.Fatalf("EntryAtPath(sub/innerfile): %v", err)
	}
	inode, err = p.Inode(entry.InodeNumber)
	if err != nil {
		t.Fatalf("Inode: %v", err)
	}
	data, err = p.ReadFile(inode)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != innerContents {
		t.Fatalf("ReadFile(sub/innerfile) = %q, want %q", data, innerContents)
	}
}

func TestWalkVisitsEveryEntryOnce(t *testing.T) {
	p, file1Contents, innerContents := buildNestedImage(t)
	root, err := p.RootInode()
	if err != nil {
		t.Fatalf("RootInode: %v", err)
	}

	hashes := map[string]string{}
	seen := map[uint32]bool{}
	count := 0

	_, err = p.Walk(root, nil, func(path []string, entry readonly.DirEntry) (bool, error) {
		count++
		if seen[entry.InodeNumber] {
			t.Fatalf("inode %d visited twice", entry.InodeNumber)
		}
		seen[entry.InodeNumber] = true

		if entry.Type == readonly.EntryRegularFile {
			inode, err := p.Inode(entry.InodeNumber)
			if err != nil {
				return false, err
			}
			data, err := p.ReadFile(inode)
			if err != nil {
				return false, err
			}
			sum := sha256.Sum256(data)
			hashes[joinPath(path)] = hex.EncodeToString(sum[:])
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if count != 3 {
		t.Fatalf("visited %d entries, want 3 (file1, sub, sub/innerfile)", count)
	}

	wantFile1 := sha256.Sum256([]byte(file1Contents))
	wantInner := sha256.Sum256([]byte(innerContents))
	if got := hashes["file1"]; got != hex.EncodeToString(wantFile1[:]) {
		t.Fatalf("file1 hash = %s, want %s", got, hex.EncodeToString(wantFile1[:]))
	}
	if got := hashes["sub/innerfile"]; got != hex.EncodeToString(wantInner[:]) {
		t.Fatalf("sub/innerfile hash = %s, want %s", got, hex.EncodeToString(wantInner[:]))
	}
}

func joinPath(components []string) string {
	out := ""
	for i, c := range components {
		if i > 0 {
			out += "/"
		}
		out += c
	}
	return out
}

func TestTreeLookupAndContents(t *testing.T) {
	p, _, innerContents := buildNestedImage(t)
	root, err := readonly.Tree(p)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}

	node, err := root.Lookup("sub/innerfile")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	data, err := node.Contents()
	if err != nil {
		t.Fatalf("Contents: %v", err)
	}
	if string(data) != innerContents {
		t.Fatalf("Contents = %q, want %q", data, innerContents)
	}

	children, err := root.Children()
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("root has %d children, want 2 (file1, sub)", len(children))
	}
}
