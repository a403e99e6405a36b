// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/tools/txtar"

	"github.com/race-tools/cilksan-go/cilksan"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s trace-file\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := cilksan.ConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	det := cilksan.New(0, cfg)

	if err := Replay(det, bytes.NewReader(traceBytes(data))); err != nil {
		log.Fatal(err)
	}
	if err := det.Shutdown(); err != nil {
		log.Fatal(err)
	}
}

// traceBytes returns the trace text in data: if data parses as a
// txtar archive containing a "trace" file, that file's contents;
// otherwise data itself, treated as a bare trace.
func traceBytes(data []byte) []byte {
	archive := txtar.Parse(data)
	for _, f := range archive.Files {
		if f.Name == "trace" {
			return f.Data
		}
	}
	return data
}
