package wire

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"testing"
)

// docBuilder assembles frames byte-by-byte so tests do not depend on the
// package's own encoder.
type docBuilder struct {
	buf []byte
}

func newDoc() *docBuilder {
	return &docBuilder{buf: make([]byte, 4)}
}

func (b *docBuilder) tagged(tag byte, name string) *docBuilder {
	b.buf = append(b.buf, tag)
	b.buf = append(b.buf, name...)
	b.buf = append(b.buf, 0)
	return b
}

func (b *docBuilder) str(name, v string) *docBuilder {
	b.tagged(tagString, name)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(v)+1))
	b.buf = append(b.buf, v...)
	b.buf = append(b.buf, 0)
	return b
}

func (b *docBuilder) i32(name string, v int32) *docBuilder {
	b.tagged(tagInt32, name)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(v))
	return b
}

func (b *docBuilder) i64(name string, v int64) *docBuilder {
	b.tagged(tagInt64, name)
	b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(v))
	return b
}

func (b *docBuilder) f64(name string, v float64) *docBuilder {
	b.tagged(tagDouble, name)
	b.buf = binary.LittleEndian.AppendUint64(b.buf, math.Float64bits(v))
	return b
}

func (b *docBuilder) boolean(name string, v bool) *docBuilder {
	b.tagged(tagBool, name)
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
	return b
}

func (b *docBuilder) null(name string) *docBuilder {
	return b.tagged(tagNull, name)
}

func (b *docBuilder) objectID(name string) *docBuilder {
	b.tagged(tagObjectID, name)
	b.buf = append(b.buf, make([]byte, 12)...)
	return b
}

func (b *docBuilder) embed(tag byte, name string, sub *docBuilder) *docBuilder {
	b.tagged(tag, name)
	b.buf = append(b.buf, sub.bytes()...)
	return b
}

func (b *docBuilder) doc(name string, sub *docBuilder) *docBuilder {
	return b.embed(tagDocument, name, sub)
}

func (b *docBuilder) array(name string, subs ...*docBuilder) *docBuilder {
	arr := newDoc()
	for i, sub := range subs {
		arr.embed(tagDocument, strconv.Itoa(i), sub)
	}
	return b.embed(tagArray, name, arr)
}

func (b *docBuilder) bytes() []byte {
	out := make([]byte, len(b.buf)+1)
	copy(out, b.buf)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(out)))
	return out
}

func TestEventNameFindsEventAfterUnrelatedFields(t *testing.T) {
	frame := newDoc().
		i32("world", 40).
		boolean("hq", true).
		f64("weight", 1.5).
		str("event", "listings/add").
		str("channel", "listings/add{world=40}").
		bytes()

	if got := EventName(frame); got != "listings/add" {
		t.Fatalf("EventName = %q, want %q", got, "listings/add")
	}
}

func TestEventNameMalformedFrames(t *testing.T) {
	good := newDoc().str("event", "sales/add").bytes()

	cases := map[string][]byte{
		"empty":             nil,
		"short":             {0x05, 0x00},
		"length over runs":  append([]byte{0xFF, 0xFF, 0x00, 0x00}, good[4:]...),
		"truncated string":  good[:len(good)-4],
		"no event field":    newDoc().i32("item", 5).bytes(),
		"event wrong tag":   newDoc().i32("event", 1).bytes(),
		"garbage after tag": {0x09, 0x00, 0x00, 0x00, 0x02, 0x65, 0x76, 0x00, 0x00},
	}

	for name, frame := range cases {
		if got := EventName(frame); got != "" {
			t.Errorf("%s: EventName = %q, want empty", name, got)
		}
	}
}

func TestEncodeCommandRoundTrip(t *testing.T) {
	frame := EncodeSubscribe("listings/add{world=74}")

	if got := EventName(frame); got != "subscribe" {
		t.Fatalf("EventName = %q, want %q", got, "subscribe")
	}

	doc, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := doc.String("channel"); got != "listings/add{world=74}" {
		t.Errorf("channel = %q", got)
	}

	frame = EncodeUnsubscribe("sales/add")
	if got := EventName(frame); got != "unsubscribe" {
		t.Errorf("EventName = %q, want %q", got, "unsubscribe")
	}
}

func TestDecodeScalars(t *testing.T) {
	frame := newDoc().
		str("event", "listings/add").
		i32("item", 5057).
		i64("total", 125000).
		f64("pricePerUnit", 2500).
		boolean("hq", true).
		null("retainerCity").
		bytes()

	doc, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got := doc.String("event"); got != "listings/add" {
		t.Errorf("event = %q", got)
	}
	if got, ok := doc.Int("item"); !ok || got != 5057 {
		t.Errorf("item = %d, %v", got, ok)
	}
	if got, ok := doc.Int("total"); !ok || got != 125000 {
		t.Errorf("total = %d, %v", got, ok)
	}
	// Doubles coerce to int64 through Int.
	if got, ok := doc.Int("pricePerUnit"); !ok || got != 2500 {
		t.Errorf("pricePerUnit = %d, %v", got, ok)
	}
	if !doc.Bool("hq") {
		t.Error("hq = false, want true")
	}
	if v, ok := doc.Get("retainerCity"); !ok || v != nil {
		t.Errorf("retainerCity = %v, %v", v, ok)
	}
}

func TestDecodeNestedListings(t *testing.T) {
	frame := newDoc().
		str("event", "listings/add").
		i32("item", 5057).
		i32("world", 74).
		array("listings",
			newDoc().i32("pricePerUnit", 100).i32("quantity", 5).boolean("hq", false),
			newDoc().i32("pricePerUnit", 250).i32("quantity", 1).boolean("hq", true),
		).
		bytes()

	doc, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	arr, ok := doc.Array("listings")
	if !ok {
		t.Fatal("listings array missing")
	}
	if len(arr) != 2 {
		t.Fatalf("len(listings) = %d, want 2", len(arr))
	}

	first, ok := arr[0].(*Doc)
	if !ok {
		t.Fatalf("listings[0] is %T, want *Doc", arr[0])
	}
	if price, _ := first.Int("pricePerUnit"); price != 100 {
		t.Errorf("listings[0].pricePerUnit = %d", price)
	}
	second := arr[1].(*Doc)
	if !second.Bool("hq") {
		t.Error("listings[1].hq = false, want true")
	}
}

func TestDecodeDropsObjectID(t *testing.T) {
	frame := newDoc().
		objectID("_id").
		str("event", "sales/add").
		bytes()

	doc, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := doc.Get("_id"); ok {
		t.Error("_id survived decode, want dropped")
	}
	if got := doc.String("event"); got != "sales/add" {
		t.Errorf("event = %q", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	truncated := newDoc().str("event", "sales/add").bytes()
	binary.LittleEndian.PutUint32(truncated[0:4], uint32(len(truncated)+10))
	if _, err := Decode(truncated); !errors.Is(err, ErrTruncated) {
		t.Errorf("overrun length: err = %v, want ErrTruncated", err)
	}

	// Valid prefix, unknown tag byte.
	bad := []byte{0x07, 0x00, 0x00, 0x00, 0x7F, 0x61, 0x00}
	if _, err := Decode(bad); !errors.Is(err, ErrBadTag) {
		t.Errorf("unknown tag: err = %v, want ErrBadTag", err)
	}

	// Declared length cuts off before the zero terminator.
	unterminated := newDoc().i32("a", 1).bytes()
	unterminated = unterminated[:len(unterminated)-1]
	binary.LittleEndian.PutUint32(unterminated[0:4], uint32(len(unterminated)))
	if _, err := Decode(unterminated); err == nil {
		t.Error("unterminated doc decoded without error")
	}
}

func TestDecodeFieldOrderPreserved(t *testing.T) {
	frame := newDoc().
		i32("c", 3).
		i32("a", 1).
		i32("b", 2).
		bytes()

	doc, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []string{"c", "a", "b"}
	for i, f := range doc.Fields() {
		if f.Name != want[i] {
			t.Errorf("field %d = %q, want %q", i, f.Name, want[i])
		}
	}
}
