package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Key identifies one cacheable execution.
type Key uint64

func (k Key) String() string { return fmt.Sprintf("%016x", uint64(k)) }

// Bytes returns the key as byte-keyed stores hold it.
func (k Key) Bytes() []byte {
	return []byte(k.String())
}

// Identifier is implemented by units whose configuration matters for
// caching beyond their id.
type Identifier interface {
	CacheIdentity() string
}

// BindingReader is implemented by units whose outputs depend on
// ExecutionContext bindings. The named bindings join the fingerprint.
type BindingReader interface {
	CacheBindings() []string
}

// Identity returns the string units are fingerprinted under.
func Identity(u unit.Unit) string {
	if i, ok := u.(Identifier); ok {
		return i.CacheIdentity()
	}
	return u.ID()
}

// BoundIdentity extends Identity with the bindings a BindingReader names.
// An unbound name is recorded as such.
func BoundIdentity(u unit.Unit, binding func(string) (cty.Value, bool)) (string, error) {
	id := Identity(u)
	br, ok := u.(BindingReader)
	if !ok {
		return id, nil
	}
	var b strings.Builder
	b.WriteString(id)
	for _, name := range br.CacheBindings() {
		b.WriteString("|" + name + "=")
		v, ok := binding(name)
		if !ok {
			b.WriteString("<unbound>")
			continue
		}
		data, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			return "", fmt.Errorf("fingerprinting binding '%s': %w", name, err)
		}
		b.Write(data)
	}
	return b.String(), nil
}

// Fingerprint hashes identity and the delivered inputs: port names, value
// kinds, types and data, plus the skipped sources of fan-in ports. Values
// that cannot be serialized make the execution uncacheable.
func Fingerprint(identity string, in unit.Inputs) (Key, error) {
	h := xxhash.New()
	write := func(s string) {
		_, _ = h.WriteString(strconv.Itoa(len(s)))
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(s)
	}

	write(identity)
	for _, name := range in.Ports() {
		write(name)
		for _, v := range in.All(name) {
			data, err := ctyjson.SimpleJSONValue{Value: v.Data}.MarshalJSON()
			if err != nil {
				return 0, fmt.Errorf("fingerprinting input '%s': %w", name, err)
			}
			write(v.Kind.String())
			write(string(data))
		}
		for _, src := range in.Skipped(name) {
			write("skipped")
			write(src)
		}
	}
	return Key(h.Sum64()), nil
}
