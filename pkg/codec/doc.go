/*
Package codec implements binary-comparable key encoding for SoliDB's
embedded key/value substrate.

BoltDB orders keys lexicographically as raw bytes. Every place SoliDB needs
keys to sort the same way its logical values do — document keys within a
collection, secondary index entries, replication log sequence numbers — the
value must first be encoded into a byte string whose lexicographic order
matches the value's logical order. codec is that encoding.

# Scheme

Each encoded key is a sequence of tagged components. A type tag byte
precedes each component so mixed-type index entries still compare
correctly component-by-component. 0x00 is reserved exclusively as the
array/object terminator and is never a value tag, so a decoder can always
tell "one more element follows" from "this container is done" even when
the last element is itself null:

	0x01  null
	0x02  false
	0x03  true
	0x04  int (8-byte big-endian two's-complement, sign bit flipped —
	      encoded directly from int64, never routed through float64, so
	      two distinct large integers never collide by rounding to the
	      same nearest float)
	0x05  float (8-byte big-endian, sign-and-exponent flipped so that
	      IEEE-754 bit order matches numeric order, including negatives)
	0x06  string (escaped, NUL-terminated)
	0x07  bytes (raw, escaped/NUL-terminated — used for document/blob
	      keys; not a types.Value kind, so DecodeValue has no case for it)
	0x08  array (each element tagged and concatenated, 0x00-terminated)
	0x09  object (each entry is an escaped string key followed by a
	      tagged value, 0x00-terminated)

Sequence numbers use a fixed-width big-endian encoding directly (no tag),
since replication log keys are always compared as plain counters.

DecodeValue inverts AppendValue/EncodeValue tag-for-tag, returning the
decoded value plus whatever bytes follow it — composite keys built by
EncodeValues decode by calling DecodeValue repeatedly on the returned
tail.
*/
package codec
