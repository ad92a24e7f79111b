// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package genomics

import "strings"

// Aliases maps alternative chromosome names to the names used in a file.
// Files name chromosomes either "chr1" or "1"; the table lets queries use
// either convention, and maps "chrM" to "MT".
type Aliases map[string]string

// NewAliases builds the alias table for the chromosome names of one file.
func NewAliases(names []string) Aliases {
	aliases := make(Aliases, len(names))
	for _, name := range names {
		switch {
		case strings.HasPrefix(name, "chr"):
			aliases[name[len("chr"):]] = name
		case name == "MT":
			aliases["chrM"] = name
		default:
			aliases["chr"+name] = name
		}
	}
	return aliases
}

// Resolve returns the file's name for name, or false if neither name nor an
// alias of it is known.  known reports whether a name is used by the file.
func (a Aliases) Resolve(name string, known func(string) bool) (string, bool) {
	if known(name) {
		return name, true
	}
	if alias, ok := a[name]; ok {
		return alias, true
	}
	return "", false
}
