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

package domain

import (
	"fmt"
	"time"
)

// DiskBatchFilename returns the forwarder journal filename for a batch id,
// "<id>.batch".
func DiskBatchFilename(id string) string {
	return id + ".batch"
}

// JournalFilename returns the aggregator journal filename for a base name
// rotated at the given time: "<base>_<YYYYMMDD_HHMMSS>.json".
func JournalFilename(base string, at time.Time) string {
	return fmt.Sprintf("%s_%s.json", base, at.UTC().Format("20060102_150405"))
}
