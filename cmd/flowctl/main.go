// Command flowctl loads a workflow document, then either runs it
// continuously (production mode) or steps a single node with
// cache-resolved inputs (development mode). It wires the bundled example node kinds
// (internal/examplenodes) into the registry; a real deployment would list
// its own node packages' RegisterFuncs here instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyzr/flowkernel/common/bootstrap"
	"github.com/lyzr/flowkernel/internal/envelope"
	"github.com/lyzr/flowkernel/internal/examplenodes"
	"github.com/lyzr/flowkernel/internal/loader"
	"github.com/lyzr/flowkernel/internal/orchestrator"
	"github.com/lyzr/flowkernel/internal/registry"
)

// Exit codes: 0 clean stop, 1 load/validation failure, 2 runtime crash.
const (
	exitOK             = 0
	exitLoadFailure    = 1
	exitRuntimeFailure = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, "usage: flowctl run --mode production|development --workflow path.json [--node id] [--input file.json]")
		return exitLoadFailure
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	mode := fs.String("mode", "production", "production or development")
	workflowPath := fs.String("workflow", "", "path to workflow JSON document")
	nodeID := fs.String("node", "", "node id to execute (development mode only)")
	inputPath := fs.String("input", "", "optional path to a JSON envelope fed to --node")
	memStore := fs.Bool("memory-store", false, "use an in-memory DataStore instead of Redis")
	if err := fs.Parse(args[1:]); err != nil {
		return exitLoadFailure
	}

	if *workflowPath == "" {
		fmt.Fprintln(os.Stderr, "flowctl: --workflow is required")
		return exitLoadFailure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []bootstrap.Option{}
	if *memStore {
		opts = append(opts, bootstrap.WithMemoryStore())
	}
	components, err := bootstrap.Setup(ctx, "flowctl", opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowctl: setup failed: %v\n", err)
		return exitLoadFailure
	}
	defer components.Shutdown(ctx)

	reg, err := registry.Discover(func(r *registry.Registry) {
		examplenodes.Register(r, components.DataStore)
	})
	if err != nil {
		components.Logger.Error("flowctl: registry discovery failed", "error", err)
		return exitLoadFailure
	}

	raw, err := os.ReadFile(*workflowPath)
	if err != nil {
		components.Logger.Error("flowctl: failed to read workflow file", "error", err)
		return exitLoadFailure
	}

	l := loader.New(reg, components.Logger)
	orch := orchestrator.New(l, components.Executor, components.DevCache, components.DLQ, components.Logger)
	if err := orch.LoadWorkflow(ctx, raw); err != nil {
		components.Logger.Error("flowctl: failed to load workflow", "error", err)
		return exitLoadFailure
	}

	switch *mode {
	case "production":
		return runProduction(ctx, orch, components)
	case "development":
		return runDevelopment(ctx, orch, components, *nodeID, *inputPath)
	default:
		fmt.Fprintf(os.Stderr, "flowctl: unknown mode %q\n", *mode)
		return exitLoadFailure
	}
}

func runProduction(ctx context.Context, orch *orchestrator.Orchestrator, components *bootstrap.Components) int {
	if err := orch.StartAll(ctx); err != nil {
		components.Logger.Error("flowctl: failed to start loops", "error", err)
		return exitRuntimeFailure
	}

	components.Logger.Info("flowctl: running", "loops", orch.RunningLoops())
	<-ctx.Done()

	components.Logger.Info("flowctl: signal received, stopping loops")
	orch.StopAll()
	return exitOK
}

func runDevelopment(ctx context.Context, orch *orchestrator.Orchestrator, components *bootstrap.Components, nodeID, inputPath string) int {
	if nodeID == "" {
		fmt.Fprintln(os.Stderr, "flowctl: --node is required in development mode")
		return exitLoadFailure
	}

	var input *envelope.Envelope
	if inputPath != "" {
		raw, err := os.ReadFile(inputPath)
		if err != nil {
			components.Logger.Error("flowctl: failed to read input file", "error", err)
			return exitLoadFailure
		}
		parsed, err := envelope.Unmarshal(raw)
		if err != nil {
			components.Logger.Error("flowctl: failed to parse input envelope", "error", err)
			return exitLoadFailure
		}
		input = parsed
	}

	out, err := orch.ExecuteNode(ctx, nodeID, input)
	if err != nil {
		components.Logger.Error("flowctl: node execution failed", "node_id", nodeID, "error", err)
		return exitRuntimeFailure
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		components.Logger.Error("flowctl: failed to encode node output", "error", err)
		return exitRuntimeFailure
	}
	fmt.Println(string(encoded))
	return exitOK
}
