package codec

import "sort"

// ObjectBuilder is a small fluent helper for constructing Object values
// without repeating map literal boilerplate at every call site. It is not
// required — Object is a plain map — but stage writers that build large
// envelopes lean on it for readability.
type ObjectBuilder struct {
	obj Object
}

// NewObject starts a new ObjectBuilder.
func NewObject() *ObjectBuilder {
	return &ObjectBuilder{obj: Object{}}
}

// Set assigns a field and returns the builder for chaining.
func (b *ObjectBuilder) Set(key string, v Value) *ObjectBuilder {
	b.obj[key] = v
	return b
}

// Build returns the accumulated Object.
func (b *ObjectBuilder) Build() Object {
	return b.obj
}

// StringArray converts a []string to a canonical Array of String values,
// sorted ascending (reason_codes and similar fields are required sorted and
// deduplicated per spec §3.2).
func StringArray(ss []string) Array {
	dedup := make(map[string]struct{}, len(ss))
	uniq := make([]string, 0, len(ss))
	for _, s := range ss {
		if _, ok := dedup[s]; ok {
			continue
		}
		dedup[s] = struct{}{}
		uniq = append(uniq, s)
	}
	sort.Strings(uniq)
	arr := make(Array, len(uniq))
	for i, s := range uniq {
		arr[i] = String(s)
	}
	return arr
}

// ObjectArray converts a slice of Objects into a canonical Array.
func ObjectArray(objs []Object) Array {
	arr := make(Array, len(objs))
	for i, o := range objs {
		arr[i] = o
	}
	return arr
}
