// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package models

import (
	"strconv"
	"strings"
)

// ParseParameterSize converts a provider-supplied parameter-size string
// ("7B", "3.5M", "0.5B", "70b") into an absolute parameter count.
// Returns 0 for anything unparseable; 0 is treated as "smallest" by the
// ranker.
func ParseParameterSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	multiplier := int64(1)
	last := s[len(s)-1]
	switch last {
	case 'B', 'b':
		multiplier = 1_000_000_000
		s = s[:len(s)-1]
	case 'M', 'm':
		multiplier = 1_000_000
		s = s[:len(s)-1]
	case 'K', 'k':
		multiplier = 1_000
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v * float64(multiplier))
}
