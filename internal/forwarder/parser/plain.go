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

package parser

import "github.com/rask-sh/rask-pipeline/internal/domain"

// PlainParser is the always-matching fallback, lowest priority.
type PlainParser struct{}

func NewPlainParser() *PlainParser { return &PlainParser{} }

func (p *PlainParser) Name() string  { return "plain" }
func (p *PlainParser) Priority() int { return 0 }

func (p *PlainParser) CanParse(line []byte) bool { return true }

func (p *PlainParser) Parse(line []byte) domain.ParsedLogEntry {
	return domain.ParsedLogEntry{
		LogType: domain.LogTypePlain,
		Message: string(line),
		Fields:  map[string]string{},
	}
}
