// assemble lowers a stack assembly source file to a bytecode image.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/delamarch3/stack/asm"
	"github.com/delamarch3/stack/bytecode"
	"github.com/delamarch3/stack/manifest"
)

func main() {
	output := flag.String("o", "", "Output image path (default from stack.toml, or a.out)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: assemble [options] SRC\n\n")
		fmt.Fprintf(os.Stderr, "Assembles SRC into a bytecode image plus a debug-info sidecar.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(2, nil)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	src := flag.Arg(0)

	// A stack.toml anywhere above the source contributes include dirs and
	// the default output name.
	var includeDirs []string
	out := *output
	m, err := manifest.FindAndLoad(filepath.Dir(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m != nil {
		includeDirs = m.AbsIncludeDirs()
		if out == "" {
			out = m.Image.Output
		}
	}
	if out == "" {
		out = manifest.DefaultOutput
	}

	img, dbg, err := asm.AssembleFile(src, asm.OSResolver, includeDirs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	file, err := os.Create(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := bytecode.WriteImage(file, img); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	file.Close()

	encoded, err := dbg.Encode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(bytecode.DebugPath(out), encoded, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Wrote %s (%d code bytes, %d data bytes, %d symbols)\n",
			out, len(img.Code), len(img.Data), len(img.Symbols))
	}
}
