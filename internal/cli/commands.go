package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"shufflewriter/internal/config"
	"shufflewriter/internal/flightclient"
	"shufflewriter/internal/partitioning"
	"shufflewriter/internal/planio"
	"shufflewriter/internal/registry"
	"shufflewriter/internal/shufflewriter"
	"shufflewriter/internal/sink"
	"shufflewriter/internal/variance"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/redis/go-redis/v9"
)

func runShuffleWrite(cfg *config.Config, inputPartition int, metadataOutPath string) ([]shufflewriter.ShuffleWritePartition, error) {
	src, err := planio.NewFileSource(cfg.Input.Files)
	if err != nil {
		return nil, err
	}

	location, err := buildOutputLocation(cfg)
	if err != nil {
		return nil, err
	}

	var part *partitioning.Partitioning
	if cfg.Partitioning != nil {
		exprs := make([]partitioning.KeyExpr, len(cfg.Partitioning.Columns))
		for i, col := range cfg.Partitioning.Columns {
			exprs[i] = partitioning.NewColumn(col)
		}
		p := partitioning.NewHash(exprs, cfg.Partitioning.Partitions)
		part = &p
	}

	codec, err := parseCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	node, err := shufflewriter.New(cfg.JobID, cfg.StageID, src, location, part, nil, flightclient.Dialer{}, codec, buildPublisher(cfg))
	if err != nil {
		return nil, err
	}
	node.MaxPushBatchesPerSec = cfg.Output.MaxPushQPS

	results, err := node.Execute(context.Background(), inputPartition, nil)
	if err != nil {
		return nil, err
	}

	if metadataOutPath != "" {
		if err := writeResultMetadata(node, results, metadataOutPath); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// buildPublisher wires a Partition Location Registry client from
// cfg.Registry, or returns nil (disabling publishing) when no Redis
// address is configured.
func buildPublisher(cfg *config.Config) shufflewriter.PartitionPublisher {
	if cfg.Registry.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Registry.Addr,
		Password: cfg.Registry.Password,
		DB:       cfg.Registry.DB,
	})
	return registry.New(client)
}

// writeResultMetadata writes the partition metadata batch - one row
// per output partition - to path as an Arrow IPC file.
func writeResultMetadata(node *shufflewriter.Node, results []shufflewriter.ShuffleWritePartition, path string) error {
	rec := node.ResultBatch(results)
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cli: create metadata output file: %w", err)
	}
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()))
	if err != nil {
		return fmt.Errorf("cli: create metadata ipc writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("cli: write metadata batch: %w", err)
	}
	return w.Close()
}

func buildOutputLocation(cfg *config.Config) (partitioning.OutputLocation, error) {
	switch cfg.Output.Kind {
	case "localDir":
		return partitioning.NewLocalDir(cfg.Output.Dir), nil
	case "executors":
		execs := make([]partitioning.ExecutorMeta, len(cfg.Output.Executors))
		for i, e := range cfg.Output.Executors {
			execs[i] = partitioning.ExecutorMeta{ID: e.ID, Host: e.Host, Port: e.Port}
		}
		return partitioning.NewExecutors(execs), nil
	default:
		return partitioning.OutputLocation{}, fmt.Errorf("cli: unknown output.kind %q", cfg.Output.Kind)
	}
}

func parseCodec(name string) (sink.Codec, error) {
	switch name {
	case "", "none":
		return sink.CodecNone, nil
	case "lz4":
		return sink.CodecLZ4, nil
	case "zstd":
		return sink.CodecZstd, nil
	default:
		return 0, fmt.Errorf("cli: unknown compression %q", name)
	}
}

func runVarianceCommand(kind string, values []float64) (string, error) {
	var statsType variance.StatsType
	switch strings.ToLower(kind) {
	case "sample":
		statsType = variance.Sample
	case "population":
		statsType = variance.Population
	default:
		return "", fmt.Errorf("cli: unknown variance kind %q (want sample or population)", kind)
	}

	acc := variance.New(statsType)
	for _, v := range values {
		acc.Update(v)
	}
	result, isNull, err := acc.Evaluate()
	if err != nil {
		return "", err
	}
	if isNull {
		return "null", nil
	}
	return strconv.FormatFloat(result, 'g', -1, 64), nil
}

// floatSliceFlag implements flag.Value to collect repeated -value flags.
type floatSliceFlag struct {
	values []float64
}

func (f *floatSliceFlag) String() string {
	parts := make([]string, len(f.values))
	for i, v := range f.values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (f *floatSliceFlag) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cli: invalid value %q: %w", s, err)
	}
	f.values = append(f.values, v)
	return nil
}
