package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// eventField is the top-level field naming the event kind in every feed
// frame.
const eventField = "event"

// EventName extracts just the top-level event-kind string from a frame
// without building the full field map. Malformed or event-less frames
// yield "", which callers treat as "no event recognized"; a bad frame
// must never take down the receive loop.
func EventName(buf []byte) string {
	d, err := newDecoder(buf)
	if err != nil {
		return ""
	}
	for {
		tag, err := d.readByte()
		if err != nil || tag == 0 {
			return ""
		}
		name, err := d.readCString()
		if err != nil {
			return ""
		}
		if name == eventField && tag == tagString {
			s, err := d.readString()
			if err != nil {
				return ""
			}
			return s
		}
		if err := d.skipValue(tag); err != nil {
			return ""
		}
	}
}

// Decode parses a complete frame into an ordered field map. Nested
// documents and arrays are materialized; binary and ObjectId fields are
// dropped since the feed only carries them as metadata.
func Decode(buf []byte) (*Doc, error) {
	d, err := newDecoder(buf)
	if err != nil {
		return nil, err
	}
	return d.readFields()
}

type decoder struct {
	buf []byte
	off int
	end int
}

// newDecoder validates the 4-byte little-endian length prefix and bounds
// the decoder to the declared document span.
func newDecoder(buf []byte) (*decoder, error) {
	if len(buf) < 5 {
		return nil, ErrTruncated
	}
	total := int(int32(binary.LittleEndian.Uint32(buf)))
	if total < 5 || total > len(buf) {
		return nil, ErrTruncated
	}
	return &decoder{buf: buf, off: 4, end: total}, nil
}

func (d *decoder) readFields() (*Doc, error) {
	doc := &Doc{}
	for {
		tag, err := d.readByte()
		if err != nil {
			return nil, ErrNoTerminal
		}
		if tag == 0 {
			return doc, nil
		}
		name, err := d.readCString()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagBinary, tagObjectID:
			if err := d.skipValue(tag); err != nil {
				return nil, err
			}
		default:
			v, err := d.readValue(tag)
			if err != nil {
				return nil, err
			}
			doc.fields = append(doc.fields, Field{Name: name, Value: v})
		}
	}
}

func (d *decoder) readValue(tag byte) (any, error) {
	switch tag {
	case tagDouble:
		n, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(n), nil
	case tagString:
		return d.readString()
	case tagDocument:
		return d.readSubdoc()
	case tagArray:
		sub, err := d.readSubdoc()
		if err != nil {
			return nil, err
		}
		// Array keys are numeric indices; expose values in wire order.
		vals := make([]any, 0, len(sub.fields))
		for _, f := range sub.fields {
			vals = append(vals, f.Value)
		}
		return vals, nil
	case tagBool:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case tagDatetime, tagTimestamp, tagInt64:
		n, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return int64(n), nil
	case tagNull:
		return nil, nil
	case tagInt32:
		n, err := d.readInt32()
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadTag, tag)
	}
}

// skipValue advances past a value by its computed span without
// allocating.
func (d *decoder) skipValue(tag byte) error {
	switch tag {
	case tagDouble, tagDatetime, tagTimestamp, tagInt64:
		return d.skip(8)
	case tagString:
		n, err := d.readInt32()
		if err != nil {
			return err
		}
		return d.skip(int(n))
	case tagDocument, tagArray:
		n, err := d.readInt32()
		if err != nil {
			return err
		}
		// Declared length counts its own 4 prefix bytes.
		return d.skip(int(n) - 4)
	case tagBinary:
		n, err := d.readInt32()
		if err != nil {
			return err
		}
		return d.skip(int(n) + 1)
	case tagObjectID:
		return d.skip(12)
	case tagBool:
		return d.skip(1)
	case tagNull:
		return nil
	case tagInt32:
		return d.skip(4)
	default:
		return fmt.Errorf("%w: 0x%02x", ErrBadTag, tag)
	}
}

// readSubdoc parses a length-prefixed embedded document in place.
func (d *decoder) readSubdoc() (*Doc, error) {
	if d.end-d.off < 5 {
		return nil, ErrTruncated
	}
	total := int(int32(binary.LittleEndian.Uint32(d.buf[d.off:])))
	if total < 5 || d.off+total > d.end {
		return nil, ErrTruncated
	}
	sub := &decoder{buf: d.buf, off: d.off + 4, end: d.off + total}
	doc, err := sub.readFields()
	if err != nil {
		return nil, err
	}
	d.off += total
	return doc, nil
}

func (d *decoder) readByte() (byte, error) {
	if d.off >= d.end {
		return 0, ErrTruncated
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) readCString() (string, error) {
	start := d.off
	for d.off < d.end {
		if d.buf[d.off] == 0 {
			s := string(d.buf[start:d.off])
			d.off++
			return s, nil
		}
		d.off++
	}
	return "", ErrTruncated
}

// readString reads a length-prefixed string. The declared length counts
// the trailing NUL.
func (d *decoder) readString() (string, error) {
	n, err := d.readInt32()
	if err != nil {
		return "", err
	}
	if n < 1 || d.off+int(n) > d.end {
		return "", ErrTruncated
	}
	s := string(d.buf[d.off : d.off+int(n)-1])
	d.off += int(n)
	return s, nil
}

func (d *decoder) readInt32() (int32, error) {
	if d.off+4 > d.end {
		return 0, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return int32(n), nil
}

func (d *decoder) readUint64() (uint64, error) {
	if d.off+8 > d.end {
		return 0, ErrTruncated
	}
	n := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return n, nil
}

func (d *decoder) skip(n int) error {
	if n < 0 || d.off+n > d.end {
		return ErrTruncated
	}
	d.off += n
	return nil
}
