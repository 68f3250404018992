// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"sort"
	"strings"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/kusto"
)

// NodeKind tags a tree node.
type NodeKind string

const (
	NodeCluster   NodeKind = "cluster"
	NodeDatabase  NodeKind = "database"
	NodeGroup     NodeKind = "group"
	NodeFolder    NodeKind = "folder"
	NodeTable     NodeKind = "table"
	NodeColumn    NodeKind = "column"
	NodeFunction  NodeKind = "function"
	NodeParameter NodeKind = "parameter"
)

// Group labels under a database.
const (
	GroupFunctions         = "Functions"
	GroupExternalTables    = "External Tables"
	GroupMaterializedViews = "Materialized Views"
	GroupTables            = "Tables"
)

// NoParent marks the root node.
const NoParent = -1

// Node is one entry of a Tree. Nodes refer to each other by index.
type Node struct {
	Kind      NodeKind
	Label     string
	Type      string // column or parameter type
	DocString string
	Parent    int
	Children  []int

	// Exactly one of these is set on table and function nodes.
	Table    *kusto.TableSchema
	Function *kusto.FunctionSchema
}

// Tree is the arena of nodes for one cluster. Nodes[0] is the cluster.
type Tree struct {
	Connection connection.Info
	Nodes      []Node
	// Err is the last fetch failure. When set the cluster node has no children.
	Err error
}

// Errored reports whether the last fetch failed.
func (t *Tree) Errored() bool { return t.Err != nil }

// Root returns the cluster node.
func (t *Tree) Root() Node { return t.Nodes[0] }

// Node returns the node at index i.
func (t *Tree) Node(i int) (Node, bool) {
	if i < 0 || i >= len(t.Nodes) {
		return Node{}, false
	}
	return t.Nodes[i], true
}

func (t *Tree) add(parent int, n Node) int {
	n.Parent = parent
	t.Nodes = append(t.Nodes, n)
	idx := len(t.Nodes) - 1
	if parent != NoParent {
		t.Nodes[parent].Children = append(t.Nodes[parent].Children, idx)
	}
	return idx
}

// build replaces the nodes of t with the presentation of s.
func (t *Tree) build(s *kusto.EngineSchema) {
	label := t.Connection.DisplayName
	if label == "" {
		label = t.Connection.ID
	}
	t.Nodes = nil
	root := t.add(NoParent, Node{Kind: NodeCluster, Label: label})
	if s == nil {
		return
	}

	dbs := make([]*kusto.DatabaseSchema, len(s.Databases))
	for i := range s.Databases {
		dbs[i] = &s.Databases[i]
	}
	sort.SliceStable(dbs, func(i, j int) bool {
		return strings.ToLower(dbs[i].Name) < strings.ToLower(dbs[j].Name)
	})
	for _, db := range dbs {
		t.addDatabase(root, db)
	}
}

func (t *Tree) addDatabase(parent int, db *kusto.DatabaseSchema) {
	idx := t.add(parent, Node{Kind: NodeDatabase, Label: db.Name})

	var tables, external, views []*kusto.TableSchema
	for i := range db.Tables {
		tbl := &db.Tables[i]
		switch tbl.EntityType {
		case kusto.EntityExternalTable:
			external = append(external, tbl)
		case kusto.EntityMaterializedView:
			views = append(views, tbl)
		default:
			tables = append(tables, tbl)
		}
	}

	if len(db.Functions) == 0 && len(external) == 0 && len(views) == 0 {
		t.addTables(idx, tables)
		return
	}
	if len(db.Functions) > 0 {
		fns := make([]*kusto.FunctionSchema, len(db.Functions))
		for i := range db.Functions {
			fns[i] = &db.Functions[i]
		}
		t.addFunctions(t.add(idx, Node{Kind: NodeGroup, Label: GroupFunctions}), fns)
	}
	if len(external) > 0 {
		t.addTables(t.add(idx, Node{Kind: NodeGroup, Label: GroupExternalTables}), external)
	}
	if len(views) > 0 {
		t.addTables(t.add(idx, Node{Kind: NodeGroup, Label: GroupMaterializedViews}), views)
	}
	t.addTables(t.add(idx, Node{Kind: NodeGroup, Label: GroupTables}), tables)
}

// partition splits names into sorted folders and the ones without a folder.
func partition[T any](items []T, folder func(T) string, name func(T) string) (folders []string, byFolder map[string][]T, loose []T) {
	byFolder = make(map[string][]T)
	for _, it := range items {
		f := folder(it)
		if f == "" {
			loose = append(loose, it)
			continue
		}
		if _, ok := byFolder[f]; !ok {
			folders = append(folders, f)
		}
		byFolder[f] = append(byFolder[f], it)
	}
	sort.Strings(folders)
	byName := func(s []T) {
		sort.SliceStable(s, func(i, j int) bool { return name(s[i]) < name(s[j]) })
	}
	for _, f := range folders {
		byName(byFolder[f])
	}
	byName(loose)
	return folders, byFolder, loose
}

func (t *Tree) addTables(parent int, tables []*kusto.TableSchema) {
	folders, byFolder, loose := partition(tables,
		func(s *kusto.TableSchema) string { return s.Folder },
		func(s *kusto.TableSchema) string { return s.Name })
	for _, f := range folders {
		fi := t.add(parent, Node{Kind: NodeFolder, Label: f})
		for _, tbl := range byFolder[f] {
			t.addTable(fi, tbl)
		}
	}
	for _, tbl := range loose {
		t.addTable(parent, tbl)
	}
}

func (t *Tree) addTable(parent int, tbl *kusto.TableSchema) {
	idx := t.add(parent, Node{Kind: NodeTable, Label: tbl.Name, DocString: tbl.DocString, Table: tbl})
	for _, c := range tbl.Columns {
		t.add(idx, Node{Kind: NodeColumn, Label: c.Name, Type: c.Type, DocString: c.DocString})
	}
}

func (t *Tree) addFunctions(parent int, fns []*kusto.FunctionSchema) {
	folders, byFolder, loose := partition(fns,
		func(s *kusto.FunctionSchema) string { return s.Folder },
		func(s *kusto.FunctionSchema) string { return s.Name })
	for _, f := range folders {
		fi := t.add(parent, Node{Kind: NodeFolder, Label: f})
		for _, fn := range byFolder[f] {
			t.addFunction(fi, fn)
		}
	}
	for _, fn := range loose {
		t.addFunction(parent, fn)
	}
}

func (t *Tree) addFunction(parent int, fn *kusto.FunctionSchema) {
	idx := t.add(parent, Node{Kind: NodeFunction, Label: fn.Name, DocString: fn.DocString, Function: fn})
	for _, p := range fn.InputParameters {
		pi := t.add(idx, Node{Kind: NodeParameter, Label: p.Name, Type: p.Type})
		for _, c := range p.Columns {
			t.add(pi, Node{Kind: NodeColumn, Label: c.Name, Type: c.Type})
		}
	}
}

// ConnectionAt returns the connection a node belongs to, bound to the
// database the node sits under when there is one.
func (t *Tree) ConnectionAt(i int) (connection.Info, bool) {
	if _, ok := t.Node(i); !ok {
		return connection.Info{}, false
	}
	info := t.Connection
	for ; i != NoParent; i = t.Nodes[i].Parent {
		if t.Nodes[i].Kind == NodeDatabase {
			return info.WithDatabase(t.Nodes[i].Label), true
		}
	}
	return info, true
}
