// Package runtime wires storage, journal, metrics and configuration for a
// single dispatch server process.
//
//	rt, err := runtime.Open(runtime.Options{DataDir: "./data/store", Config: config.Default()})
//	if err != nil { /* handle */ }
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
package runtime
