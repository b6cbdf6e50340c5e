// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package readonly implements a read-only ext4 image parser: given a
// blockio.Reader over a filesystem image, it can walk the directory
// tree, stat inodes, and read file contents, without ever writing back
// to the image (spec.md §3.3, §4.8).
package readonly

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/golang/glog"

	"go.fuchsia.dev/core/src/storage/ext4/readonly/blockio"
)

// Parser reads a single ext4 image. It is safe for concurrent use: the
// superblock is parsed at most once and cached, and every other
// operation is a stateless read against the backing blockio.Reader.
type Parser struct {
	reader blockio.Reader

	sbOnce sync.Once
	sb     *SuperBlock
	sbErr  error
}

// New builds a Parser over reader. The superblock is not read until
// first needed.
func New(reader blockio.Reader) *Parser {
	return &Parser{reader: reader}
}

// SuperBlock returns the image's superblock, parsing and validating it
// on first call and caching the result afterward.
func (p *Parser) SuperBlock() (*SuperBlock, error) {
	p.sbOnce.Do(func() {
		buf := make([]byte, 1024)
		if err := p.reader.ReadAt(buf, Superblock0Offset); err != nil {
			p.sbErr = err
			return
		}
		sb := new(SuperBlock)
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, sb); err != nil {
			p.sbErr = err
			return
		}
		if err := sb.checkMagic(); err != nil {
			p.sbErr = err
			return
		}
		p.sb = sb
	})
	return p.sb, p.sbErr
}

func (p *Parser) blockSize() (uint32, error) {
	sb, err := p.SuperBlock()
	if err != nil {
		return 0, err
	}
	return sb.BlockSize(), nil
}

// block reads the full contents of the given block number.
func (p *Parser) block(blockNumber uint64) ([]byte, error) {
	if blockNumber == 0 {
		return nil, Error{Kind: ErrInvalidAddress, Offset: 0, Bound: FirstBGPadding, Detail: "block 0 is reserved for boot padding"}
	}
	blockSize, err := p.blockSize()
	if err != nil {
		return nil, err
	}
	address := blockNumber * uint64(blockSize)
	if address+uint64(blockSize) > uint64(p.reader.Size()) {
		return nil, Error{Kind: ErrBlockNumberOutOfBounds, BlockNumber: blockNumber}
	}
	data := make([]byte, blockSize)
	if err := p.reader.ReadAt(data, int64(address)); err != nil {
		return nil, err
	}
	return data, nil
}

func (p *Parser) blockGroupDesc() (*BlockGroupDesc32, error) {
	blockSize, err := p.blockSize()
	if err != nil {
		return nil, err
	}

	// The first block group's descriptor table starts right after the
	// boot padding and superblock, which share block 0 when the block
	// size is large enough to hold both; otherwise they take one block
	// each (spec.md §4.8 "block group descriptor offset").
	var offset uint64
	if blockSize >= MinExt4Size {
		offset = uint64(blockSize)
	} else {
		offset = uint64(blockSize) * 2
	}

	buf := make([]byte, 32)
	if err := p.reader.ReadAt(buf, int64(offset)); err != nil {
		return nil, Error{Kind: ErrInvalidBlockGroupDesc}
	}
	bgd := new(BlockGroupDesc32)
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, bgd); err != nil {
		return nil, Error{Kind: ErrInvalidBlockGroupDesc}
	}
	return bgd, nil
}

// Inode reads and decodes the inode with the given number. Only the
// first block group is consulted: this read-only implementation does
// not support images with more inodes than fit in one group
// (spec.md §4.8 Non-goals).
func (p *Parser) Inode(inodeNumber uint32) (*INode, error) {
	if inodeNumber < 1 {
		return nil, Error{Kind: ErrInvalidInode, InodeNumber: inodeNumber}
	}
	sb, err := p.SuperBlock()
	if err != nil {
		return nil, err
	}
	blockSize, err := p.blockSize()
	if err != nil {
		return nil, err
	}
	bgd, err := p.blockGroupDesc()
	if err != nil {
		return nil, err
	}

	inodeTableOffset := uint64((inodeNumber-1)%sb.SInodesPerGroup) * uint64(sb.SInodeSize)
	inodeAddr := uint64(bgd.Ext2bgdITablesLo)*uint64(blockSize) + inodeTableOffset
	if inodeAddr < MinExt4Size {
		return nil, Error{Kind: ErrInvalidAddress, Offset: int64(inodeAddr), Bound: MinExt4Size, Detail: "inode address below minimum valid offset"}
	}

	buf := make([]byte, 128)
	if err := p.reader.ReadAt(buf, int64(inodeAddr)); err != nil {
		return nil, Error{Kind: ErrInvalidInode, InodeNumber: inodeNumber}
	}
	inode := new(INode)
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, inode); err != nil {
		return nil, Error{Kind: ErrInvalidInode, InodeNumber: inodeNumber}
	}
	return inode, nil
}

// RootInode returns the inode for the filesystem root directory.
func (p *Parser) RootInode() (*INode, error) {
	return p.Inode(RootInodeNum)
}

func rootExtentHeader(inode *INode) (*ExtentHeader, error) {
	h := new(ExtentHeader)
	if err := binary.Read(bytes.NewReader(inode.E2diBlocks[:12]), binary.LittleEndian, h); err != nil {
		return nil, Error{Kind: ErrInvalidExtent}
	}
	if err := h.checkMagic(); err != nil {
		return nil, err
	}
	return h, nil
}

func extentAt(inode *INode, index int) (*Extent, error) {
	const headerSize, extentSize = 12, 12
	offset := headerSize + extentSize*index
	end := offset + extentSize
	if end > len(inode.E2diBlocks) {
		return nil, Error{Kind: ErrInvalidAddress, Offset: int64(end), Bound: int64(len(inode.E2diBlocks)), Detail: "extent read past end of inline extent tree"}
	}
	e := new(Extent)
	if err := binary.Read(bytes.NewReader(inode.E2diBlocks[offset:end]), binary.LittleEndian, e); err != nil {
		return nil, Error{Kind: ErrInvalidExtent, Offset: int64(offset)}
	}
	return e, nil
}

// extentData reads up to allowance bytes of the blocks an extent
// covers, truncating the final block if the extent runs past the
// file's declared size.
func (p *Parser) extentData(e *Extent, allowance int) ([]byte, error) {
	blockSize, err := p.blockSize()
	if err != nil {
		return nil, err
	}
	target := e.TargetBlockNum()
	data := make([]byte, 0, int(blockSize)*int(e.EeLen))
	for i := uint16(0); i < e.EeLen; i++ {
		blockData, err := p.block(target + uint64(i))
		if err != nil {
			return nil, err
		}
		readLen := int(blockSize)
		if allowance < readLen {
			readLen = allowance
		}
		data = append(data, blockData[:readLen]...)
		allowance -= readLen
	}
	return data, nil
}

// EntriesFromInode lists the directory entries contained in inode,
// which must be a directory using a depth-0 (single-leaf) extent tree;
// deeper extent trees are rejected (spec.md §4.8 Non-goals).
func (p *Parser) EntriesFromInode(inode *INode) ([]DirEntry, error) {
	if !inode.IsDirectory() {
		return nil, Error{Kind: ErrNotADirectory}
	}
	header, err := rootExtentHeader(inode)
	if err != nil {
		return nil, err
	}
	if header.EhDepth != 0 {
		glog.V(2).Infof("ext4/readonly: rejecting extent tree of depth %d", header.EhDepth)
		return nil, Error{Kind: ErrNestedExtentsUnsupported}
	}
	blockSize, err := p.blockSize()
	if err != nil {
		return nil, err
	}
	e, err := extentAt(inode, 0)
	if err != nil {
		return nil, err
	}

	blockData, err := p.block(e.TargetBlockNum())
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	index := 0
	// The last entry's rec_len extends to (approximately) the end of
	// the block, so walking until less than a minimal header's worth
	// remains safely stops on it.
	for index+8 < int(blockSize) {
		entry, err := decodeDirEntry(blockData, index)
		if err != nil {
			return nil, err
		}
		if entry.RecLen == 0 {
			break
		}
		index += int(entry.RecLen)
		entries = append(entries, *entry)
	}
	return entries, nil
}

func decodeDirEntry(block []byte, offset int) (*DirEntry, error) {
	if offset+8 > len(block) {
		return nil, Error{Kind: ErrInvalidDirEntry, Offset: int64(offset)}
	}
	inodeNumber := binary.LittleEndian.Uint32(block[offset:])
	recLen := binary.LittleEndian.Uint16(block[offset+4:])
	nameLen := int(block[offset+6])
	fileType := block[offset+7]
	if offset+8+nameLen > len(block) {
		return nil, Error{Kind: ErrInvalidDirEntry, Offset: int64(offset)}
	}
	name := string(block[offset+8 : offset+8+nameLen])
	return &DirEntry{
		InodeNumber: inodeNumber,
		RecLen:      recLen,
		Type:        EntryType(fileType),
		Name:        name,
	}, nil
}

// ReadFile returns the full contents of the regular file backed by
// inode. Only depth-0 extent trees are supported (spec.md §4.8
// Non-goals). Each extent's data is cut off at the bytes the inode's
// declared size has left, so blocks an extent maps beyond that size are
// not returned; ErrExtentUnexpectedLength guards against an extent
// yielding more than the remaining size.
func (p *Parser) ReadFile(inode *INode) ([]byte, error) {
	header, err := rootExtentHeader(inode)
	if err != nil {
		return nil, err
	}
	if header.EhDepth != 0 {
		glog.V(2).Infof("ext4/readonly: rejecting extent tree of depth %d", header.EhDepth)
		return nil, Error{Kind: ErrNestedExtentsUnsupported}
	}

	sizeRemaining := int(inode.Size())
	data := make([]byte, 0, sizeRemaining)
	for i := 0; i < int(header.EhEntries); i++ {
		e, err := extentAt(inode, i)
		if err != nil {
			return nil, err
		}
		extentData, err := p.extentData(e, sizeRemaining)
		if err != nil {
			return nil, err
		}
		if len(extentData) > sizeRemaining {
			return nil, Error{Kind: ErrExtentUnexpectedLength, Offset: int64(len(extentData)), Bound: int64(sizeRemaining)}
		}
		sizeRemaining -= len(extentData)
		data = append(data, extentData...)
	}
	return data, nil
}

// EntryAtPath resolves a '/'-separated path, starting from the root
// directory, to the DirEntry it names. The root itself has no
// DirEntry, so "/" or "" is not a valid argument.
func (p *Parser) EntryAtPath(path string) (*DirEntry, error) {
	root, err := p.RootInode()
	if err != nil {
		return nil, err
	}
	entries, err := p.EntriesFromInode(root)
	if err != nil {
		return nil, err
	}

	components := splitPath(path)
	var found *DirEntry
	for i, name := range components {
		var next *DirEntry
		for j := range entries {
			if entries[j].Name == name {
				next = &entries[j]
				break
			}
		}
		if next == nil {
			return nil, Error{Kind: ErrPathNotFound, Path: path}
		}
		found = next
		if i == len(components)-1 {
			break
		}
		if next.Type != EntryDirectory {
			return nil, Error{Kind: ErrPathNotFound, Path: path}
		}
		inode, err := p.Inode(next.InodeNumber)
		if err != nil {
			return nil, err
		}
		entries, err = p.EntriesFromInode(inode)
		if err != nil {
			return nil, err
		}
	}
	if found == nil {
		return nil, Error{Kind: ErrPathNotFound, Path: path}
	}
	return found, nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// Walk visits every entry reachable from inode in depth-first order,
// skipping "." and "..", calling visit with the path components
// (relative to the walk's start) accumulated so far. Walk stops early
// if visit returns false.
func (p *Parser) Walk(inode *INode, prefix []string, visit func(path []string, entry DirEntry) (bool, error)) (bool, error) {
	entries, err := p.EntriesFromInode(inode)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		path := append(append([]string(nil), prefix...), entry.Name)
		cont, err := visit(path, entry)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}
		if entry.Type == EntryDirectory {
			child, err := p.Inode(entry.InodeNumber)
			if err != nil {
				return false, err
			}
			cont, err := p.Walk(child, path, visit)
			if err != nil {
				return false, err
			}
			if !cont {
				return false, nil
			}
		}
	}
	return true, nil
}
