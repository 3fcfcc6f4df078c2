// Package checksum implements the 8-bit frame checksum expected by the
// controller emulator: CRC-8 with polynomial 0x07, MSB first, no reflection
// and a zero initial value.
package checksum

import (
	"fmt"

	"github.com/sigurn/crc8"
)

// Poly is the generator polynomial (x^8 + x^2 + x + 1).
const Poly = 0x07

var table = crc8.MakeTable(crc8.CRC8)

func init() {
	// The device only accepts the bit-serial result, so the table must agree
	// with it for every single-byte input.
	for i := 0; i < 256; i++ {
		b := byte(i)
		if got, want := crc8.Checksum([]byte{b}, table), Update(0, b); got != want {
			panic(fmt.Sprintf("checksum: table mismatch for 0x%02x: 0x%02x != 0x%02x", b, got, want))
		}
	}
}

// Update folds one byte into a running checksum using the bit-serial
// definition.
func Update(crc, data byte) byte {
	d := crc ^ data
	for i := 0; i < 8; i++ {
		if d&0x80 != 0 {
			d = d<<1 ^ Poly
		} else {
			d <<= 1
		}
	}
	return d
}

// Sum returns the checksum of data. Sum(nil) is 0.
func Sum(data []byte) byte {
	return crc8.Checksum(data, table)
}

// Append returns payload with its checksum appended.
func Append(payload []byte) []byte {
	out := make([]byte, len(payload), len(payload)+1)
	copy(out, payload)
	return append(out, Sum(payload))
}
