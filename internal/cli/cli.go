// Package cli dispatches the shufflewriter binary's subcommands: a
// top-level Execute(args) int, one flag.FlagSet per subcommand, and
// log.Printf for operator-facing status lines.
package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"shufflewriter/internal/config"
)

// Execute dispatches CLI subcommands and returns the process exit code.
func Execute(args []string) int {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("[shufflewriter] ")

	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "write":
		return runWrite(args[1:])
	case "variance":
		return runVariance(args[1:])
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "version", "--version", "-v":
		fmt.Println("shufflewriter 0.1.0-dev")
		return 0
	default:
		log.Printf("Unknown subcommand: %s", args[0])
		printUsage()
		return 1
	}
}

func runWrite(args []string) int {
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	var configPath string
	var inputPartition int
	var metadataOut string
	fs.StringVar(&configPath, "config", "", "Job configuration file path (YAML)")
	fs.StringVar(&configPath, "c", "", "Job configuration file path (YAML)")
	fs.IntVar(&inputPartition, "input-partition", 0, "Input partition index to execute")
	fs.StringVar(&metadataOut, "metadata-out", "", "Optional path to write the partition metadata batch as an Arrow IPC file")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		log.Printf("Failed to parse arguments: %v", err)
		return 1
	}
	if configPath == "" {
		log.Println("The --config flag is required")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 2
	}

	results, err := runShuffleWrite(cfg, inputPartition, metadataOut)
	if err != nil {
		log.Printf("Shuffle write failed: %v", err)
		return 1
	}
	for _, r := range results {
		log.Printf("partition=%d path=%q rows=%d batches=%d bytes=%d", r.PartitionID, r.Path, r.NumRows, r.NumBatches, r.NumBytes)
	}
	return 0
}

func runVariance(args []string) int {
	fs := flag.NewFlagSet("variance", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	var kind string
	var values floatSliceFlag
	fs.StringVar(&kind, "kind", "sample", "Variance kind: sample or population")
	fs.Var(&values, "value", "A value to accumulate (repeatable)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		log.Printf("Failed to parse arguments: %v", err)
		return 1
	}

	result, err := runVarianceCommand(kind, values.values)
	if err != nil {
		log.Printf("Variance computation failed: %v", err)
		return 1
	}
	fmt.Println(result)
	return 0
}

func printUsage() {
	binary := filepath.Base(os.Args[0])
	fmt.Printf(`shufflewriter - distributed query engine shuffle-write stage

Usage:
  %[1]s <command> [options]

Available commands:
  write     Execute one input partition of a shuffle-writer job against a config file
  variance  Compute sample/population variance over a list of values
  help      Show this help
  version   Show version info

Examples:
  %[1]s write --config job.yaml --input-partition 0
  %[1]s write --config job.yaml --input-partition 0 --metadata-out meta.arrow
  %[1]s variance --kind population --value 1 --value 2 --value 3
`, binary)
}
