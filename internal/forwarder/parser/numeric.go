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
// along with this program.  If not, see <http://www.gnu.org/licenses/>

package parser

import "errors"

var errNonDigit = errors.New("parser: non-digit character")

// parseUintBytes parses an unsigned decimal integer from b without
// allocating, rejecting empty input, non-digit bytes, and values that
// overflow uint64 -- generalizing internals/servicelog/parser.go's fixed-
// width parseInt2Bytes/parseInt4Bytes to arbitrary-width nginx status and
// byte-count fields.
func parseUintBytes(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, errNonDigit
	}
	var result uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, errNonDigit
		}
		digit := uint64(c - '0')
		if result > (^uint64(0)-digit)/10 {
			return 0, errors.New("parser: integer overflow")
		}
		result = result*10 + digit
	}
	return result, nil
}

// parseUint16Bytes is parseUintBytes bounded to uint16, used for HTTP
// status codes.
func parseUint16Bytes(b []byte) (uint16, error) {
	v, err := parseUintBytes(b)
	if err != nil || v > 0xFFFF {
		return 0, errNonDigit
	}
	return uint16(v), nil
}
