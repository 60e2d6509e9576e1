package wire

import "encoding/binary"

// EncodeCommand builds the two-field subscribe/unsubscribe document the
// feed expects: {event: <verb>, channel: <channel>}. The layout mirrors
// what Decode reads (length prefix, tagged string fields, zero
// terminator), so a round trip through the decoder recovers both fields.
func EncodeCommand(verb, channel string) []byte {
	buf := make([]byte, 4, 4+len(verb)+len(channel)+32)
	buf = appendStringField(buf, eventField, verb)
	buf = appendStringField(buf, "channel", channel)
	buf = append(buf, 0)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	return buf
}

// EncodeSubscribe builds a subscribe message for one channel.
func EncodeSubscribe(channel string) []byte {
	return EncodeCommand("subscribe", channel)
}

// EncodeUnsubscribe builds an unsubscribe message for one channel.
func EncodeUnsubscribe(channel string) []byte {
	return EncodeCommand("unsubscribe", channel)
}

func appendStringField(buf []byte, name, value string) []byte {
	buf = append(buf, tagString)
	buf = append(buf, name...)
	buf = append(buf, 0)
	// String length counts the trailing NUL.
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)+1))
	buf = append(buf, value...)
	buf = append(buf, 0)
	return buf
}
