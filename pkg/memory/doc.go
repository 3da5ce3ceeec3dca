// Package memory persists conversational history across agent runs.
//
// A Store is a dumb record keeper keyed by memory id with optional expiry. The Manager layers
// the drop-policy rules on top and is the only component that decides when history is read,
// windowed, replaced or destroyed. Three Store variants exist: sqlitestore (embedded), redisstore
// and pgstore; all of them pass the memorytest contract suite.
//
// Expired records are indistinguishable from absent ones. No lock is taken on a memory id:
// concurrent runs sharing one id race and the last Save wins.
package memory
