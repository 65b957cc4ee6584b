package datatree

// Resolve computes the node at path as seen by a transaction: the committed
// node (base, ok) with the transaction's own uncommitted modifications laid
// over it in order. Nodes touched by the modifications report Version 0 since
// they have not been committed yet, preconditions see them as Uncommitted.
func Resolve(path string, base Node, ok bool, mods []Modification) (Node, bool) {
	node, exists := base, ok
	for _, m := range mods {
		switch {
		case m.Path == path:
			switch m.Op {
			case OpWrite:
				node, exists = Node{Path: path, Data: cloneBytes(m.Data)}, true
			case OpMerge:
				var current []byte
				if exists {
					current = node.Data
				}
				node, exists = Node{Path: path, Data: mergeData(current, m.Data)}, true
			case OpDelete:
				node, exists = Node{}, false
			}
		case IsDescendant(path, m.Path):
			// writes and deletes of an ancestor replace the whole subtree
			if m.Op == OpWrite || m.Op == OpDelete {
				node, exists = Node{}, false
			}
		}
	}
	return node, exists
}
