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

// Package sqlitedriver selects the SQLite driver backing the runtime's
// stores. Both build flavors register under the driver name "sqlite3" so
// pkg/storage never sees the difference: CGO builds get go-sqlcipher,
// which accepts a SQLCipher PRAGMA key on the interaction-log database;
// pure-Go builds get modernc.org/sqlite and run unencrypted.
//
// Blank-import for the registration side effect:
//
//	import _ "github.com/teradata-labs/quorum/internal/sqlitedriver"
//
// EncryptionSupported tells callers which flavor they got.
package sqlitedriver
