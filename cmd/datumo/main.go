// Command datumo creates dataset projects, attaches sources in any supported
// annotation format, and merges or exports them.
//
// Usage:
//
//	datumo create -p ./proj
//	datumo source add voc ./VOC2012 -f voc_det -p ./proj
//	datumo export -f yolo -o ./out -p ./proj --save-images
//	datumo export -f parquet -o ./out.tar.zst -p ./proj
//	datumo merge ./a ./b -o ./merged
//	datumo formats
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "datumo:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// exitCode separates filesystem failures from bad input.
func exitCode(err error) int {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return exitSysError
	}
	return exitUserError
}
