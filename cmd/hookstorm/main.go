// Package main is the hookstorm inspection tool. It boots an extension set
// from one or more search paths and reports what a host embedding the
// library would see.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/tidwall/pretty"

	"github.com/dshills/hookstorm"
	"github.com/dshills/hookstorm/cache"
	"github.com/dshills/hookstorm/log"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

// pathList is a repeatable -path flag.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(value string) error {
	*p = append(*p, value)
	return nil
}

func run() int {
	var paths pathList
	var cachePath string
	var logLevel string
	var showVersion bool

	flag.Var(&paths, "path", "Extension search path (repeatable)")
	flag.StringVar(&cachePath, "cache", "", "Path to a persistent hook cache database")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Hookstorm - extension and hook inspector\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hookstorm [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  list           List all registered extensions\n")
		fmt.Fprintf(os.Stderr, "  order          Show the dependency load order\n")
		fmt.Fprintf(os.Stderr, "  hooks <hook>   List the extensions implementing a hook\n")
		fmt.Fprintf(os.Stderr, "  info <name>    Show one extension in detail\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hookstorm -path ./extensions list\n")
		fmt.Fprintf(os.Stderr, "  hookstorm -path ./extensions hooks form_alter\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("Hookstorm %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	}

	level, ok := parseLevel(logLevel)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", logLevel)
		return 1
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return 1
	}

	opts := []hookstorm.Option{
		hookstorm.WithSearchPaths(paths...),
		hookstorm.WithLogger(log.New(level, os.Stderr)),
	}
	if cachePath != "" {
		backend, err := cache.OpenBolt(cachePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open cache: %v\n", err)
			return 1
		}
		opts = append(opts, hookstorm.WithBackend(backend))
	}

	sys := hookstorm.New(opts...)
	if err := sys.Boot(); err != nil {
		// Partial boots are still inspectable; report and continue.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	defer sys.Close()

	var err error
	switch args[0] {
	case "list":
		err = cmdList(sys)
	case "order":
		err = cmdOrder(sys)
	case "hooks":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Error: hooks requires a hook name\n")
			return 1
		}
		err = cmdHooks(sys, args[1])
	case "info":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Error: info requires an extension name\n")
			return 1
		}
		err = cmdInfo(sys, args[1])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", args[0])
		flag.Usage()
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseLevel(s string) (log.Level, bool) {
	switch s {
	case "debug":
		return log.DebugLevel, true
	case "info":
		return log.InfoLevel, true
	case "warn":
		return log.WarnLevel, true
	case "error":
		return log.ErrorLevel, true
	default:
		return 0, false
	}
}

// printJSON renders any value as indented JSON on stdout.
func printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	os.Stdout.Write(pretty.Pretty(data))
	return nil
}

type extensionSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

func cmdList(sys *hookstorm.System) error {
	summaries := make([]extensionSummary, 0)
	for _, ext := range sys.Registry().List() {
		s := extensionSummary{
			Name:    ext.Name,
			Kind:    string(ext.Kind),
			Version: ext.Manifest.Version,
			State:   ext.State().String(),
		}
		if err := ext.Err(); err != nil {
			s.Error = err.Error()
		}
		summaries = append(summaries, s)
	}
	return printJSON(summaries)
}

type orderEntry struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

func cmdOrder(sys *hookstorm.System) error {
	entries := make([]orderEntry, 0)
	for _, ext := range sys.Registry().List() {
		entries = append(entries, orderEntry{Name: ext.Name, Weight: ext.Weight()})
	}
	return printJSON(entries)
}

func cmdHooks(sys *hookstorm.System, hookName string) error {
	names, err := sys.Dispatcher().Implementations(hookName)
	if err != nil {
		return err
	}
	return printJSON(names)
}

type extensionDetail struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	Author       string   `json:"author,omitempty"`
	Path         string   `json:"path"`
	State        string   `json:"state"`
	Weight       int      `json:"weight"`
	Dependencies []string `json:"dependencies"`
	Requires     []string `json:"requires"`
	RequiredBy   []string `json:"required_by"`
}

func cmdInfo(sys *hookstorm.System, name string) error {
	ext, err := sys.Registry().Get(name)
	if err != nil {
		return err
	}
	detail := extensionDetail{
		Name:         ext.Name,
		Kind:         string(ext.Kind),
		Version:      ext.Manifest.Version,
		Description:  ext.Manifest.Description,
		Author:       ext.Manifest.Author,
		Path:         ext.Path,
		State:        ext.State().String(),
		Weight:       ext.Weight(),
		Dependencies: ext.Dependencies,
		Requires:     sortedSlice(ext.Requires()),
		RequiredBy:   sortedSlice(ext.RequiredBy()),
	}
	return printJSON(detail)
}

// sortedSlice flattens a set for stable output.
func sortedSlice(set mapset.Set[string]) []string {
	if set == nil {
		return []string{}
	}
	return mapset.Sorted(set)
}
