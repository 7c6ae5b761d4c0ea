// Package scaffold embeds the starter configuration written by
// "dataflow init": dataflow.yaml, mcp_servers.yaml and an example .env.
package scaffold

import "embed"

// FilesFS contains the embedded starter files. Walk from "files" to iterate
// over all of them.
//
//go:embed files/*
var FilesFS embed.FS
