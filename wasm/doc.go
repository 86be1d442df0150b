// Package wasm inspects WebAssembly binary modules.
//
// Inspect decodes just enough of a module to recover the surface a JavaScript
// host needs for linking: the import table grouped by originating module, and
// the list of export names.
//
//	data, _ := os.ReadFile("add.wasm")
//	surface, err := wasm.Inspect(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, group := range surface.Imports {
//	    fmt.Println(group.Module, group.Names)
//	}
//	fmt.Println(surface.Exports)
//
// Imports keep first-occurrence order of both origin modules and member names
// within an origin; a member imported twice from the same origin appears once.
// Exports keep declaration order. Export kinds (function, memory, ...) are not
// retained.
//
// Sections other than import and export are skipped by size. No validation is
// performed beyond what is required to enumerate the two tables; any decode
// failure is returned as an error wrapping a *ParseError and never as a
// partial surface.
package wasm
