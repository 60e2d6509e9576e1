package feed

import (
	"encoding/binary"
	"strconv"
)

// frameBuilder assembles wire frames for tests, independent of the wire
// package's encoder.
type frameBuilder struct {
	buf []byte
}

func newFrame() *frameBuilder {
	return &frameBuilder{buf: make([]byte, 4)}
}

func (b *frameBuilder) name(tag byte, name string) *frameBuilder {
	b.buf = append(b.buf, tag)
	b.buf = append(b.buf, name...)
	b.buf = append(b.buf, 0)
	return b
}

func (b *frameBuilder) str(field, v string) *frameBuilder {
	b.name(0x02, field)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(v)+1))
	b.buf = append(b.buf, v...)
	b.buf = append(b.buf, 0)
	return b
}

func (b *frameBuilder) i32(field string, v int32) *frameBuilder {
	b.name(0x10, field)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(v))
	return b
}

func (b *frameBuilder) boolean(field string, v bool) *frameBuilder {
	b.name(0x08, field)
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
	return b
}

func (b *frameBuilder) docs(field string, subs ...*frameBuilder) *frameBuilder {
	arr := newFrame()
	for i, sub := range subs {
		arr.name(0x03, strconv.Itoa(i))
		arr.buf = append(arr.buf, sub.bytes()...)
	}
	b.name(0x04, field)
	b.buf = append(b.buf, arr.bytes()...)
	return b
}

func (b *frameBuilder) bytes() []byte {
	out := make([]byte, len(b.buf)+1)
	copy(out, b.buf)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(out)))
	return out
}

// listingsAddFrame builds a typical listings/add frame with one record
// per (price, hq) pair.
func listingsAddFrame(itemID, worldID int, prices []int, hq []bool) []byte {
	records := make([]*frameBuilder, len(prices))
	for i, p := range prices {
		records[i] = newFrame().
			i32("pricePerUnit", int32(p)).
			i32("quantity", 1).
			i32("total", int32(p)).
			boolean("hq", hq[i]).
			str("retainerName", "Mercury")
	}
	return newFrame().
		str("event", "listings/add").
		i32("item", int32(itemID)).
		i32("world", int32(worldID)).
		docs("listings", records...).
		bytes()
}
