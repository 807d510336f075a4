// Package all registers every built-in storage backend with the storage
// factory. Import it for side effects:
//
//	import _ "github.com/nicktill/techboard/pkg/storage/all"
//
// after which storage.New accepts the kinds "memory", "badger", "postgres"
// and "sqlite".
package all

import (
	_ "github.com/nicktill/techboard/pkg/storage/badger"
	_ "github.com/nicktill/techboard/pkg/storage/memory"
	_ "github.com/nicktill/techboard/pkg/storage/postgres"
	_ "github.com/nicktill/techboard/pkg/storage/sqlite"
)
