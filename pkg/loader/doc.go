// Package loader turns a built unit directory into a live unit.Handler.
//
// Units are Go plugins built into dist/unit.so that export a constructor:
//
//	package main
//
//	type server struct{}
//
//	func (server) ServeGet(w http.ResponseWriter, r *http.Request)  { ... }
//	func (server) ServePost(w http.ResponseWriter, r *http.Request) { ... }
//
//	func New() any { return server{} }
//
// A process can open a given plugin path only once, so a unit that is
// rebuilt while the host runs must be linked with a new -pluginpath. The
// default build step does this through pipeline.PluginPathVar.
//
// Any failure to find, open or construct the unit is reported with the
// LOAD_FAILED error code. Func adapts plain functions for tests and for
// embedding units compiled into the host binary.
package loader
