// Package client provides the `farm` command-line client.
//
// The CLI talks to the farm controller's HTTP API to submit invocations,
// inspect and cancel pending requests, tune client priorities and run
// remote processors from a terminal.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. The standalone binary reads FARM_ADDR and
// defaults to http://127.0.0.1:8080.
//
// Usage
//
//	farm invoke --client CL1 --id I-1-1 --data '{"op":"sum","args":[1,2]}'
//	farm invoke --client CL1 --id I-1-2 --data 42 --sync --timeout 5s
//	farm invoke --client CL1 --id gpu-1 --requires 'attrs.gpu == true'
//
//	farm pending count --client CL1 --prefix I-1-
//	farm pending list                       # every client
//	farm pending cancel --client CL1 --prefix I-1-
//
//	farm completed --client CL1 --prefix I-1- --limit 20
//
//	farm clients set-priority --client CL1 --priority 0
//	farm clients set-priority --client CL1 --reset
//
//	# Echo processor with attributes
//	farm processor run --id p1 --attr gpu=true --attr zone=eu
//	# Run each payload through a command (payload JSON on stdin)
//	farm processor run --id p2 -- jq '.args | add'
package client
