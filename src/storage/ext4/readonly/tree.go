// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package readonly

// Node is one entry of the lazily-walked directory tree: either a
// Directory, whose Children are resolved on first access, or a File,
// whose Contents are read on first access. Neither is read until
// asked for, so building a Tree over a large image costs one inode
// read regardless of how much of the tree the caller ultimately visits
// (spec.md §4.8 supplement).
type Node struct {
	Name        string
	InodeNumber uint32
	Type        EntryType

	parser   *Parser
	children []Node
	loaded   bool
}

// Tree returns the root Node of the image's directory tree.
func Tree(p *Parser) (*Node, error) {
	if _, err := p.RootInode(); err != nil {
		return nil, err
	}
	return &Node{Name: "", InodeNumber: RootInodeNum, Type: EntryDirectory, parser: p}, nil
}

// IsDir reports whether this node is a directory.
func (n *Node) IsDir() bool { return n.Type == EntryDirectory }

// Children returns the node's directory entries, excluding "." and
// "..", resolving and caching them on first call. It is an error to
// call Children on a non-directory node.
func (n *Node) Children() ([]Node, error) {
	if !n.IsDir() {
		return nil, Error{Kind: ErrNotADirectory, InodeNumber: n.InodeNumber}
	}
	if n.loaded {
		return n.children, nil
	}
	inode, err := n.parser.Inode(n.InodeNumber)
	if err != nil {
		return nil, err
	}
	entries, err := n.parser.EntriesFromInode(inode)
	if err != nil {
		return nil, err
	}
	children := make([]Node, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		children = append(children, Node{
			Name:        e.Name,
			InodeNumber: e.InodeNumber,
			Type:        e.Type,
			parser:      n.parser,
		})
	}
	n.children = children
	n.loaded = true
	return n.children, nil
}

// Contents reads the full contents of a regular-file node. It is an
// error to call Contents on a directory node.
func (n *Node) Contents() ([]byte, error) {
	if n.IsDir() {
		return nil, Error{Kind: ErrNotADirectory, InodeNumber: n.InodeNumber}
	}
	inode, err := n.parser.Inode(n.InodeNumber)
	if err != nil {
		return nil, err
	}
	return n.parser.ReadFile(inode)
}

// Lookup resolves a '/'-separated path relative to n, descending
// through child directories as needed.
func (n *Node) Lookup(path string) (*Node, error) {
	components := splitPath(path)
	current := n
	for i, name := range components {
		children, err := current.Children()
		if err != nil {
			return nil, err
		}
		var next *Node
		for j := range children {
			if children[j].Name == name {
				next = &children[j]
				break
			}
		}
		if next == nil {
			return nil, Error{Kind: ErrPathNotFound, Path: path}
		}
		if i < len(components)-1 && !next.IsDir() {
			return nil, Error{Kind: ErrPathNotFound, Path: path}
		}
		current = next
	}
	return current, nil
}
