package nodeid

import (
	"fmt"
	"slices"
	"strings"
)

// String serializes the Address into its canonical path string representation.
func (a *Address) String() string {
	if a == nil {
		return ""
	}

	var sb strings.Builder
	for i, segment := range a.Path {
		if i > 0 {
			sb.WriteRune('.')
		}
		sb.WriteString(segment.Name)
		if segment.HasIndex() {
			sb.WriteString(fmt.Sprintf("[%d]", segment.Index))
		}
	}
	return sb.String()
}

// Equal checks for deep equality between two Address pointers.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return slices.Equal(a.Path, other.Path)
}

// Parent returns the address without its last segment, or nil for a
// top-level address.
func (a *Address) Parent() *Address {
	if a == nil || len(a.Path) < 2 {
		return nil
	}
	return &Address{Path: slices.Clone(a.Path[:len(a.Path)-1])}
}

// Join appends child to the parent id. Both must already be valid ids.
func Join(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

// Part returns the id of the index-th part of a split unit.
func Part(id string, index int) string {
	return fmt.Sprintf("%s[%d]", id, index)
}

// Base strips a trailing part index from id, so Base("sum[1]") is "sum".
// Ids without an index are returned unchanged.
func Base(id string) string {
	addr, err := Parse(id)
	if err != nil {
		return id
	}
	last := &addr.Path[len(addr.Path)-1]
	last.Index = -1
	return addr.String()
}
