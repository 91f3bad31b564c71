// fabrictl is the one-shot operator tool: load a topology, plan or
// connect a set of devices, and print the per-interface outcomes as
// JSON. It talks to the store directly rather than through plannerd,
// which makes it handy for validating a topology file before a rollout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/signalsfoundry/fabric-planner/core"
	"github.com/signalsfoundry/fabric-planner/internal/logging"
	"github.com/signalsfoundry/fabric-planner/internal/store/sqlite"
	"github.com/signalsfoundry/fabric-planner/inventory"
)

func main() {
	topologyPath := flag.String("topology", "", "YAML topology to load (required unless -db points at a seeded database)")
	dbPath := flag.String("db", "", "Path to a SQLite inventory database (empty runs in-memory)")
	devices := flag.String("devices", "", "Comma-separated device names to plan connectivity for")
	workspace := flag.String("workspace", "", "Workspace tag carried onto committed cables")
	dryRun := flag.Bool("dry-run", false, "Plan only; do not materialize cables")
	minRedundancy := flag.Int("min-redundancy", 0, "Override the dual-homing floor (0 keeps the default of 2)")
	flag.Parse()

	if *devices == "" {
		fmt.Fprintln(os.Stderr, "fabrictl: -devices is required")
		flag.Usage()
		os.Exit(2)
	}
	if *topologyPath == "" && *dbPath == "" {
		fmt.Fprintln(os.Stderr, "fabrictl: one of -topology or -db is required")
		flag.Usage()
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	ctx := context.Background()

	store, closeStore, err := openStore(*dbPath)
	if err != nil {
		fatal("open store: %v", err)
	}
	defer closeStore()

	if *topologyPath != "" {
		f, err := os.Open(*topologyPath)
		if err != nil {
			fatal("open topology: %v", err)
		}
		summary, err := core.LoadTopology(ctx, store, f)
		f.Close()
		if err != nil {
			fatal("load topology: %v", err)
		}
		fmt.Fprintf(os.Stderr, "loaded topology: %d racks, %d devices, %d interfaces, %d cables\n",
			len(summary.Racks), len(summary.Devices), summary.Interfaces, summary.Cables)
	}

	var opts []core.Option
	if *minRedundancy > 0 {
		opts = append(opts, core.WithMinRedundancy(*minRedundancy))
	}
	planner := core.New(store, log, opts...)

	names := splitDevices(*devices)
	exitCode := 0
	results := make([]*core.DeviceResult, 0, len(names))
	for _, dev := range names {
		req := core.ConnectRequest{Device: dev, Workspace: *workspace}
		var (
			res    *core.DeviceResult
			runErr error
		)
		if *dryRun {
			res, runErr = planner.Plan(ctx, req)
		} else {
			res, runErr = planner.Connect(ctx, req)
		}
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "fabrictl: %s: %v\n", dev, runErr)
			exitCode = 1
		}
		if res != nil {
			results = append(results, res)
			if res.Outcome() == "failed" {
				exitCode = 1
			}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		fatal("encode results: %v", err)
	}
	os.Exit(exitCode)
}

type fabricStore interface {
	inventory.Store
	inventory.Seeder
}

func openStore(path string) (fabricStore, func(), error) {
	if path == "" {
		return inventory.NewMemoryStore(), func() {}, nil
	}
	st, err := sqlite.New(path)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

func splitDevices(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fabrictl: "+format+"\n", args...)
	os.Exit(1)
}
