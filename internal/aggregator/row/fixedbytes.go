// Copyright (c) 2022 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package row converts an EnrichedLogEntry into a ColumnarRow, the shape
// the external ColumnarWriter consumes, direct generalization of
// original_source/.../adapter/clickhouse/row.rs and convert.rs.
package row

// fixedBytes copies min(len(s), n) bytes of s into a length-n slice and
// zero-pads the remainder, matching convert.rs's string_to_fixed_bytes.
// Go has no const generics over array length, so TraceID (32 bytes) and
// SpanID (16 bytes) each get a thin typed wrapper over this helper rather
// than one generic function.
func fixedBytes(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

// StringToFixedBytes32 converts s to a 32-byte fixed array, used for
// TraceID.
func StringToFixedBytes32(s string) [32]byte {
	var out [32]byte
	copy(out[:], fixedBytes(s, 32))
	return out
}

// StringToFixedBytes16 converts s to a 16-byte fixed array, used for
// SpanID.
func StringToFixedBytes16(s string) [16]byte {
	var out [16]byte
	copy(out[:], fixedBytes(s, 16))
	return out
}
