// Command ndsdump is a thin demonstration CLI over this module's
// codecs: inspect, extract, and repack verbs for ROM images and NARC
// archives (inspect and extract also accept BMG containers).
package main

import (
	"flag"
	"fmt"
	"os"
)

func usage(fset *flag.FlagSet, helpText string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, helpText)
		fmt.Fprintf(os.Stderr, "Flags for ndsdump %s:\n", fset.Name())
		fset.PrintDefaults()
	}
}

func funcmain() error {
	verbs := map[string]func(args []string) error{
		"inspect": inspect,
		"extract": extract,
		"repack":  repack,
	}

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "ndsdump <command> [-flags] [args]\n")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "\tinspect  - print header/tree information about a ROM, NARC or BMG\n")
		fmt.Fprintf(os.Stderr, "\textract  - dump a ROM, NARC or BMG's contents to a directory\n")
		fmt.Fprintf(os.Stderr, "\trepack   - rebuild a ROM or NARC from a directory written by extract\n")
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]
	v, ok := verbs[verb]
	if !ok {
		return fmt.Errorf("unknown command %q", verb)
	}
	return v(rest)
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
