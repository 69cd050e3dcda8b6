// Package cli implements the unithost command-line interface.
//
// # Overview
//
// The unithost CLI runs the unit host server and drives its management API:
// installing units from git repositories, pulling updates, removing units,
// and editing the environment file each unit is started with.
//
// # Commands
//
// serve - Run the server:
//
//	unithost serve [--port 8080] [--root units]
//
// install - Clone, build and load a unit:
//
//	unithost install https://github.com/acme/sample-unit.git
//
// update - Pull and rebuild a unit:
//
//	unithost update sample-unit [--format table|json|yaml] [--output FILE]
//
// uninstall - Remove a unit and its directory:
//
//	unithost uninstall sample-unit [--yes]
//
// list - Show installed units:
//
//	unithost list [--format table|json|yaml] [--output FILE]
//
// env get / env set - Read or replace a unit's environment file:
//
//	unithost env get sample-unit --format yaml
//	unithost env set sample-unit GREETING=hello
//	unithost env set --merge --file env.yaml sample-unit
//
// # Global Flags
//
//	--config       Config file (default: ./unithost.yaml)
//	--server, -s   Server URL (default: http://localhost:8080, env UNITHOST_SERVER_URL)
//	--log-level    Log level: debug, info, warn, error (env LOG_LEVEL)
//
// # Exit Codes
//
//	0  Success
//	1  Any failure; the error code and server details are printed to stderr
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/NVIDIA/unithost/pkg/cli.version=1.0.0'"
package cli
