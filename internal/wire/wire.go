// Package wire implements the compact self-describing binary format the
// price feed speaks. It is deliberately not a general serialization
// library: only the handful of tag types the feed actually emits are
// handled, and uninteresting fields are skipped by span rather than
// materialized.
package wire

// Type tags used by the feed. One byte each, preceding a null-terminated
// field name and a tag-specific payload.
const (
	tagDouble    = 0x01
	tagString    = 0x02 // int32 length + bytes + trailing NUL
	tagDocument  = 0x03 // int32 total length, recursive
	tagArray     = 0x04 // document with numeric-index keys
	tagBinary    = 0x05 // int32 length + subtype byte + bytes, skipped
	tagObjectID  = 0x07 // 12 bytes, skipped
	tagBool      = 0x08
	tagDatetime  = 0x09 // int64 millis
	tagNull      = 0x0A
	tagInt32     = 0x10
	tagTimestamp = 0x11 // int64
	tagInt64     = 0x12
)

// Field is one decoded name/value pair. Value is one of: nil, bool,
// int32, int64, float64, string, *Doc, or []any (array values in
// insertion order).
type Field struct {
	Name  string
	Value any
}

// Doc is a decoded document. Field order is preserved from the wire.
type Doc struct {
	fields []Field
}

// Fields returns the document's fields in wire order.
func (d *Doc) Fields() []Field {
	return d.fields
}

// Len returns the number of decoded fields.
func (d *Doc) Len() int {
	return len(d.fields)
}

// Get returns the named field's value.
func (d *Doc) Get(name string) (any, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the named field as a string, or "" if absent or not a
// string.
func (d *Doc) String(name string) string {
	v, ok := d.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Int returns the named field coerced to int64. The feed is inconsistent
// about integer widths (item ids arrive as int32, prices as either), so
// all numeric tags coerce.
func (d *Doc) Int(name string) (int64, bool) {
	v, ok := d.Get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// Bool returns the named field as a bool, false if absent or non-bool.
func (d *Doc) Bool(name string) bool {
	v, ok := d.Get(name)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Doc returns the named field as a nested document.
func (d *Doc) Doc(name string) (*Doc, bool) {
	v, ok := d.Get(name)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Doc)
	return sub, ok
}

// Array returns the named field's array values in wire order.
func (d *Doc) Array(name string) ([]any, bool) {
	v, ok := d.Get(name)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}
