// Command nyash-plugin-info loads a Nyash plugin shared library and
// prints the type/method table it publishes, for diagnosing ABI
// mismatches and verifying a nyash.toml manifest against what a plugin
// actually exports (spec.md §4.7, §6).
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/nyashlang/nyash-core/box"
	"github.com/nyashlang/nyash-core/plugin"
	"github.com/yuin/goldmark"
)

var (
	formatFlag = flag.String("format", "text", "output format: text or html")
	pathFlag   = flag.String("plugin", "", "path to the plugin shared library (.so)")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: nyash-plugin-info -plugin <path> [-format text|html]\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *pathFlag == "" {
		usage()
		os.Exit(2)
	}

	reg := box.NewRegistry()
	forest := box.NewForest(nil)
	loader := plugin.NewLoader(reg, forest, nil, nil)

	loaded, err := loader.Load(*pathFlag)
	if err != nil {
		log.Fatalf("nyash-plugin-info: %v", err)
	}

	md := renderMarkdown(loaded)
	switch *formatFlag {
	case "text":
		fmt.Print(md)
	case "html":
		var out bytes.Buffer
		if err := goldmark.Convert([]byte(md), &out); err != nil {
			log.Fatalf("nyash-plugin-info: rendering markdown: %v", err)
		}
		fmt.Print(out.String())
	default:
		log.Fatalf("nyash-plugin-info: unknown -format %q (want text or html)", *formatFlag)
	}
}

func renderMarkdown(loaded *plugin.Loaded) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", loaded.Path)
	fmt.Fprintf(&b, "ABI version: %d\n\n", loaded.Info.ABIVersion)
	for _, t := range loaded.Info.Types {
		fmt.Fprintf(&b, "## %s (type id %d)\n\n", t.TypeName, t.TypeID)
		fmt.Fprintf(&b, "| method | id | signature hash |\n|---|---|---|\n")
		for _, m := range t.Methods {
			fmt.Fprintf(&b, "| %s | %d | %016x |\n", m.Name, m.ID, m.SignatureHash)
		}
		b.WriteString("\n")
	}
	return b.String()
}
