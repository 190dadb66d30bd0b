// debug launches the interactive debugger REPL on a bytecode image.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"github.com/delamarch3/stack/bytecode"
	"github.com/delamarch3/stack/vm"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: debug [options] IMAGE\n\n")
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
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	img, err := bytecode.DecodeImage(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The sidecar is optional; debugging degrades gracefully without it.
	var dbg *bytecode.DebugInfo
	if encoded, err := os.ReadFile(bytecode.DebugPath(path)); err == nil {
		if dbg, err = bytecode.DecodeDebugInfo(encoded); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: ignoring debug info: %v\n", err)
			dbg = nil
		}
	}

	debugger := vm.NewDebugger(vm.New(img), dbg, os.Stdin, os.Stdout)
	debugger.EnableColor(term.IsTerminal(int(os.Stdout.Fd())))

	if err := debugger.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
