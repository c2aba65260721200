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

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/rask-sh/rask-pipeline/internal/domain"
)

// ansiEscape matches terminal color/style escape sequences, which
// Meilisearch emits liberally in its console logs.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

var meilisearchSeverities = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}

// MeilisearchParser recognizes ANSI-colored severity-tagged lines, as
// emitted by Meilisearch's default console logger. It has no fixed
// detection priority in spec.md's table; it's ordered between Go
// structured (60) and plain (0).
type MeilisearchParser struct{}

func NewMeilisearchParser() *MeilisearchParser { return &MeilisearchParser{} }

func (p *MeilisearchParser) Name() string  { return "meilisearch" }
func (p *MeilisearchParser) Priority() int { return 40 }

func (p *MeilisearchParser) CanParse(line []byte) bool {
	if !ansiEscape.Match(line) {
		return false
	}
	clean := stripANSI(line)
	for _, sev := range meilisearchSeverities {
		if bytes.Contains(clean, []byte(sev)) {
			return true
		}
	}
	return false
}

func (p *MeilisearchParser) Parse(line []byte) domain.ParsedLogEntry {
	clean := stripANSI(line)
	level := domain.LevelInfo
	upper := strings.ToUpper(string(clean))
	for _, sev := range meilisearchSeverities {
		if strings.Contains(upper, sev) {
			level = domain.ParseLevel(sev)
			break
		}
	}
	return domain.ParsedLogEntry{
		LogType: domain.LogTypeSearch,
		Message: string(clean),
		Level:   &level,
		Fields:  map[string]string{},
	}
}

func stripANSI(line []byte) []byte {
	return ansiEscape.ReplaceAll(line, nil)
}
