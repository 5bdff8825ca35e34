package earthengine

import (
	"encoding/json"
	"strconv"
)

// Expression is a serialized Earth Engine computation graph. Nodes
// live in a flat table keyed by their position; Result names the node
// whose value the server should produce.
type Expression struct {
	Values map[string]*ValueNode `json:"values"`
	Result string                `json:"result"`
}

// ValueNode is one vertex of the computation graph. Exactly one field
// is set.
type ValueNode struct {
	ConstantValue           json.RawMessage     `json:"constantValue,omitempty"`
	FunctionInvocationValue *FunctionInvocation `json:"functionInvocationValue,omitempty"`
	ValueReference          string              `json:"valueReference,omitempty"`
}

// FunctionInvocation calls a named server-side function. Arguments
// reference other nodes in the graph.
type FunctionInvocation struct {
	FunctionName string                `json:"functionName"`
	Arguments    map[string]*ValueNode `json:"arguments"`
}

// Ref identifies a node created by a Builder.
type Ref int

// Builder assembles an expression graph bottom-up. Structurally equal
// nodes are created once and shared, the way the official client
// libraries serialize their trees.
//
// Builder methods never fail individually; the first marshaling error
// is held back and reported by Build.
type Builder struct {
	nodes []*ValueNode
	index map[string]Ref
	err   error
}

// NewBuilder creates an empty expression builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]Ref)}
}

// Constant adds a literal node. Numbers, strings, booleans and
// homogeneous slices of those are all valid constants.
func (b *Builder) Constant(v any) Ref {
	raw, err := json.Marshal(v)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return 0
	}
	return b.add(&ValueNode{ConstantValue: raw})
}

// Invoke adds a call to a server-side function. Argument values are
// recorded as references to their nodes.
func (b *Builder) Invoke(name string, args map[string]Ref) Ref {
	inv := &FunctionInvocation{
		FunctionName: name,
		Arguments:    make(map[string]*ValueNode, len(args)),
	}
	for arg, ref := range args {
		inv.Arguments[arg] = &ValueNode{ValueReference: ref.key()}
	}
	return b.add(&ValueNode{FunctionInvocationValue: inv})
}

func (b *Builder) add(n *ValueNode) Ref {
	// encoding/json writes map keys sorted, so the marshaled form is a
	// canonical key for structural deduplication.
	key, err := json.Marshal(n)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return 0
	}
	if ref, ok := b.index[string(key)]; ok {
		return ref
	}
	ref := Ref(len(b.nodes))
	b.nodes = append(b.nodes, n)
	b.index[string(key)] = ref
	return ref
}

// Build finalizes the graph with result as its root.
func (b *Builder) Build(result Ref) (*Expression, error) {
	if b.err != nil {
		return nil, b.err
	}
	values := make(map[string]*ValueNode, len(b.nodes))
	for i, n := range b.nodes {
		values[strconv.Itoa(i)] = n
	}
	return &Expression{Values: values, Result: result.key()}, nil
}

func (r Ref) key() string {
	return strconv.Itoa(int(r))
}
