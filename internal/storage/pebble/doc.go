// Package pebblestore wraps Pebble with an fsync policy, batch commits and a
// metrics hook. It backs the delivery journal.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data/store",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
package pebblestore
