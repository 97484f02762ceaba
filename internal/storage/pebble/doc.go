// Package pebblestore wraps Pebble with an fsync policy, an in-memory mode,
// prefix scans and a metrics hook. The controller keeps its completion
// journal and client settings here.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeInterval})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("jr/k"), []byte("v"))
//	_ = db.ScanPrefix([]byte("jr/"), func(k, v []byte) bool { return true })
package pebblestore
