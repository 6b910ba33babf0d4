package playerx

import (
	"sync"
	"time"
)

var (
	taskNameTag   = NewTag[string]("task.name")
	startTimeTag  = NewTag[time.Time]("exec.start_time")
	endTimeTag    = NewTag[time.Time]("exec.end_time")
	statusTag     = NewTag[TaskStatus]("exec.status")
	errorTag      = NewTag[error]("exec.error")
	inputTag      = NewTag[any]("exec.input")
	outputTag     = NewTag[any]("exec.output")
	panicStackTag = NewTag[[]byte]("exec.panic_stack")
)

func TaskName() Tag[string]     { return taskNameTag }
func StartTime() Tag[time.Time] { return startTimeTag }
func EndTime() Tag[time.Time]   { return endTimeTag }
func Status() Tag[TaskStatus]   { return statusTag }
func ErrorTag() Tag[error]      { return errorTag }
func Input() Tag[any]           { return inputTag }
func Output() Tag[any]          { return outputTag }
func PanicStack() Tag[[]byte]   { return panicStackTag }

// finalize snapshots the context's tags. parentFinished reports whether the
// parent fork has already been recorded.
func (e *ExecutionCtx) finalize() (node *ExecutionNode, parentFinished bool) {
	node = &ExecutionNode{
		ID:   e.id,
		Tags: make(map[any]any),
	}
	if parent := e.parentExecution(); parent != nil {
		node.ParentID = parent.id
		status, _ := statusTag.Get(parent)
		parentFinished = status.Finished()
	}

	e.meta.mu.RLock()
	for k, v := range e.meta.values {
		node.Tags[k] = v
	}
	e.meta.mu.RUnlock()

	return node, parentFinished
}

// ExecutionNode is the record of a finished fork
type ExecutionNode struct {
	ID       string
	ParentID string
	Tags     map[any]any
}

func (n *ExecutionNode) GetTag(tag any) (any, bool) {
	v, ok := n.Tags[tag]
	return v, ok
}

func (n *ExecutionNode) GetAllTags() map[any]any {
	return n.Tags
}

// ExecutionTree keeps the most recent finished forks. Once the limit is
// reached every new record drops the oldest one, wherever it sits in the
// tree. Records whose parent was dropped are listed as roots.
type ExecutionTree struct {
	mu       sync.RWMutex
	records  map[string]*treeRecord
	children map[string][]string
	order    []string
	limit    int
}

type treeRecord struct {
	node     *ExecutionNode
	orphaned bool
}

func (r *treeRecord) root() bool {
	return r.node.ParentID == "" || r.orphaned
}

func newExecutionTree(limit int) *ExecutionTree {
	return &ExecutionTree{
		records:  make(map[string]*treeRecord),
		children: make(map[string][]string),
		limit:    limit,
	}
}

// addNode records a finished fork. A fork finishing after its parent's
// record was dropped is recorded as a root.
func (t *ExecutionTree) addNode(node *ExecutionNode, parentFinished bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := &treeRecord{node: node}
	if node.ParentID != "" && parentFinished && t.records[node.ParentID] == nil {
		rec.orphaned = true
	}
	t.records[node.ID] = rec
	t.order = append(t.order, node.ID)
	if node.ParentID != "" && !rec.orphaned {
		t.children[node.ParentID] = append(t.children[node.ParentID], node.ID)
	}

	for len(t.records) > t.limit {
		t.dropOldest()
	}
}

// dropOldest forgets the oldest record. Its recorded children become roots.
func (t *ExecutionTree) dropOldest() {
	id := t.order[0]
	t.order[0] = ""
	t.order = t.order[1:]

	rec := t.records[id]
	delete(t.records, id)

	if parent := rec.node.ParentID; parent != "" {
		siblings := removeElement(t.children[parent], id)
		if len(siblings) == 0 {
			delete(t.children, parent)
		} else {
			t.children[parent] = siblings
		}
	}

	for _, childID := range t.children[id] {
		if child := t.records[childID]; child != nil {
			child.orphaned = true
		}
	}
	delete(t.children, id)
}

// Len returns the number of nodes kept
func (t *ExecutionTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func (t *ExecutionTree) GetNode(id string) *ExecutionNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rec := t.records[id]; rec != nil {
		return rec.node
	}
	return nil
}

// GetChildren returns the kept children of id in the order they finished
func (t *ExecutionTree) GetChildren(id string) []*ExecutionNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	childIDs := t.children[id]
	children := make([]*ExecutionNode, 0, len(childIDs))
	for _, childID := range childIDs {
		if rec := t.records[childID]; rec != nil {
			children = append(children, rec.node)
		}
	}
	return children
}

// GetRoots returns the forks started from the root context and the forks
// whose parent record was dropped, oldest first
func (t *ExecutionTree) GetRoots() []*ExecutionNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var roots []*ExecutionNode
	for _, id := range t.order {
		if rec := t.records[id]; rec.root() {
			roots = append(roots, rec.node)
		}
	}
	return roots
}

func (t *ExecutionTree) Filter(predicate func(*ExecutionNode) bool) []*ExecutionNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []*ExecutionNode
	for _, id := range t.order {
		if node := t.records[id].node; predicate(node) {
			result = append(result, node)
		}
	}
	return result
}

func (t *ExecutionTree) Walk(rootID string, visitor func(*ExecutionNode) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.walkUnlocked(rootID, visitor)
}

func (t *ExecutionTree) walkUnlocked(nodeID string, visitor func(*ExecutionNode) bool) {
	rec := t.records[nodeID]
	if rec == nil || !visitor(rec.node) {
		return
	}

	for _, childID := range t.children[nodeID] {
		t.walkUnlocked(childID, visitor)
	}
}
