package filesystem

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

type Node struct {
	name     string                    // Name of the node (last part of the path). Protected by mu
	parent   *Node                     // Protected by mu
	mu       sync.RWMutex              // Protects the fields above
	children *xsync.Map[string, *Node] // thread-safe map of child nodes by name
	isRoot   bool
	isDel    atomic.Bool
	*Inode
}

// NewNode creates a new detached Node
//
// NOTE: Parent node is responsible for adding itself to the returned Node's
// Parent ref when linking as its child
func NewNode(name string, inode *Inode) (*Node, error) {
	if inode == nil {
		return nil, fmt.Errorf("cannot create node with nil inode: %s", name)
	}
	return &Node{
		Inode:    inode,
		name:     name,
		children: xsync.NewMap[string, *Node](),
	}, nil
}

// Path returns the absolute path of the node; the root is "/".
//
// Returns an error if the node or an ancestor is detached or deleted
func (n *Node) Path() (string, error) {
	if n.isRoot {
		return "/", nil
	}
	n.mu.RLock()
	name, p := n.name, n.parent
	n.mu.RUnlock()

	if n.isDel.Load() {
		return "", fmt.Errorf("deleted node: %s", name)
	}
	// handle detached node
	if p == nil {
		return name, fmt.Errorf("detached node: %s", name)
	}
	pPath, err := p.Path()
	if err != nil {
		return "", err
	}
	if pPath == "/" {
		return "/" + name, nil
	}
	return pPath + "/" + name, nil
}

// AddChild adds a child node to the node's children map, replacing any
// existing child of the same name, and sets the child's parent to this node
func (n *Node) AddChild(child *Node) {
	n.children.Store(child.Name(), child)

	child.mu.Lock()
	defer child.mu.Unlock()
	child.parent = n
}

// AddChildIfAbsent links child unless a node of the same name exists.
// Returns the existing node and false when the name is taken.
func (n *Node) AddChildIfAbsent(child *Node) (*Node, bool) {
	actual, loaded := n.children.LoadOrStore(child.Name(), child)
	if loaded {
		return actual, false
	}
	child.mu.Lock()
	defer child.mu.Unlock()
	child.parent = n
	return child, true
}

// GetChild returns a child node.
func (n *Node) GetChild(name string) (child *Node, ok bool) {
	return n.children.Load(name)
}

// RemoveChild detaches and returns the named child
func (n *Node) RemoveChild(name string) (*Node, bool) {
	child, exists := n.children.LoadAndDelete(name)
	if !exists {
		return nil, false
	}
	child.mu.Lock()
	defer child.mu.Unlock()
	child.parent = nil
	return child, true
}

// ChildCount returns the number of children
func (n *Node) ChildCount() int {
	return n.children.Size()
}

// Children returns the child nodes sorted by name
func (n *Node) Children() []*Node {
	children := make([]*Node, 0, n.children.Size())
	n.children.Range(func(_ string, ch *Node) bool {
		children = append(children, ch)
		return true
	})
	sort.Slice(children, func(i, j int) bool {
		return children[i].Name() < children[j].Name()
	})
	return children
}

// Name returns the node's Name.
func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

// rename changes the name of a detached node
func (n *Node) rename(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.name = name
}

func (n *Node) IsRoot() bool {
	return n.isRoot
}

func (n *Node) IsDel() bool {
	return n.isDel.Load()
}

// Del marks the node and its whole subtree as deleted
func (n *Node) Del() {
	n.isDel.Store(true)
	n.children.Range(func(_ string, ch *Node) bool {
		ch.Del()
		return true
	})
}
