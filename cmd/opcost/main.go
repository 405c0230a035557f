package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"opcost/internal"
	"opcost/internal/catalog"
	"opcost/internal/config"
	"opcost/internal/pipeline"
	"opcost/internal/storage"
	"opcost/internal/util"
	"opcost/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	cmd := os.Args[1]
	switch cmd {
	case "catalog:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "sheet spec xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		blob, err := os.ReadFile(*file)
		must(err)
		specs, err := catalog.ImportSpecsFromXLSX(blob)
		must(err)
		must(db.UpsertSpecs(specs))
		fmt.Printf("catalog import done specs=%d\n", len(specs))
	case "catalog:sync":
		svc := catalog.NewSyncService(db, cfg)
		count, err := svc.Sync(context.Background())
		must(err)
		fmt.Printf("catalog sync done specs=%d\n", count)
	case "rules:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "process rules json path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		rules, err := pipeline.LoadRulesJSON(*file)
		must(err)
		must(db.UpsertRules(rules))
		fmt.Printf("rules import done rules=%d\n", len(rules))
	case "op:normalize":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "op file path (xlsx|html|pdf)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		result, err := normalizeFile(cfg, *input)
		must(err)
		printJSON(result)
	case "op:estimate":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "op file path (xlsx|html|pdf)")
		scrap := fs.Float64("scrap", -1, "scrap fraction override")
		efficiency := fs.Float64("efficiency", -1, "nesting efficiency override")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		result, err := estimateFile(db, cfg, *input, overrideFromFlags(*scrap, *efficiency))
		must(err)
		printJSON(result)
	case "op:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "op file path to register and process")
		fileID := fs.Int("fileId", 0, "already registered file id")
		batch := fs.Int("batch", 0, "process up to N registered files")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, cfg, logger)
		switch {
		case strings.TrimSpace(*input) != "":
			row, err := processor.RegisterFile(*input)
			must(err)
			result, err := processor.ProcessFile(row.ID, nil)
			must(err)
			fmt.Printf("processed fileId=%d items=%d groups=%d canFinalize=%t\n",
				row.ID, len(result.Classifications), len(result.Groups), result.CanFinalize)
		case *fileID != 0:
			result, err := processor.ProcessFile(*fileID, nil)
			must(err)
			fmt.Printf("processed fileId=%d items=%d groups=%d canFinalize=%t\n",
				*fileID, len(result.Classifications), len(result.Groups), result.CanFinalize)
		case *batch > 0:
			count, err := processor.ProcessPending(*batch)
			must(err)
			fmt.Printf("processed pending files=%d\n", count)
		default:
			must(fmt.Errorf("--input, --fileId or --batch is required"))
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		fileID := fs.Int("fileId", 0, "internal op file id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *fileID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--fileId and --out are required"))
		}
		result, err := db.GetLatestEstimation(*fileID)
		must(err)
		if result == nil {
			must(fmt.Errorf("no estimation for fileId=%d", *fileID))
		}
		must(pipeline.ExportEstimationToXLSX(*result, *out))
		fmt.Printf("exported fileId=%d to %s\n", *fileID, *out)
	case "watch":
		svc := watcher.NewService(db, cfg, logger)
		must(svc.Run(context.Background()))
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "op file path (xlsx|html|pdf)")
		output := fs.String("output", "", "output xlsx path")
		scrap := fs.Float64("scrap", -1, "scrap fraction override")
		efficiency := fs.Float64("efficiency", -1, "nesting efficiency override")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" || strings.TrimSpace(*output) == "" {
			must(fmt.Errorf("--input and --output are required"))
		}
		result, err := estimateFile(db, cfg, *input, overrideFromFlags(*scrap, *efficiency))
		must(err)
		must(pipeline.ExportEstimationToXLSX(*result, *output))
		fmt.Printf("run done items=%d groups=%d sheets=%d cost=%.2f canFinalize=%t output=%s\n",
			len(result.Classifications), len(result.Groups), result.Totals.TotalSheets,
			result.Totals.MaterialCost, result.CanFinalize, *output)
	default:
		usage()
		os.Exit(1)
	}
}

func normalizeFile(cfg config.Config, input string) (internal.OpNormalizationResult, error) {
	grid, sheetName, err := pipeline.GridFromFile(input)
	if err != nil {
		return internal.OpNormalizationResult{}, err
	}
	opts := pipeline.NormalizeOptions{
		ProbeRows:         cfg.HeaderProbeRows,
		FallbackHeaderRow: cfg.FallbackHeaderRow,
	}
	if cfg.SynonymsPath != "" {
		synonyms, err := pipeline.LoadSynonyms(cfg.SynonymsPath)
		if err != nil {
			return internal.OpNormalizationResult{}, err
		}
		opts.Synonyms = synonyms
	}
	return pipeline.NormalizeGrid(grid, sheetName, opts), nil
}

func estimateFile(db *storage.DB, cfg config.Config, input string, override *internal.EstimationOverride) (*internal.EstimationResult, error) {
	normalized, err := normalizeFile(cfg, input)
	if err != nil {
		return nil, err
	}
	if len(normalized.Items) == 0 {
		return nil, fmt.Errorf("no items found in %s", input)
	}

	specs, err := db.ListSpecs()
	if err != nil {
		return nil, err
	}
	rules, err := db.ListRules()
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 && cfg.RulesPath != "" {
		rules, err = pipeline.LoadRulesJSON(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
	}

	estimator := pipeline.NewEstimator(specs, rules)
	result := estimator.Estimate(normalized.Items, override)
	return &result, nil
}

func overrideFromFlags(scrap, efficiency float64) *internal.EstimationOverride {
	if scrap < 0 && efficiency < 0 {
		return nil
	}
	override := &internal.EstimationOverride{}
	if scrap >= 0 {
		override.Scrap = util.FloatPtr(scrap)
	}
	if efficiency >= 0 {
		override.Efficiency = util.FloatPtr(efficiency)
	}
	return override
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func usage() {
	fmt.Println("usage: opcost <command>")
	fmt.Println("commands:")
	fmt.Println("  catalog:import --file=./specs.xlsx")
	fmt.Println("  catalog:sync")
	fmt.Println("  rules:import --file=./rules.json")
	fmt.Println("  op:normalize --input=./op.xlsx")
	fmt.Println("  op:estimate --input=./op.xlsx [--scrap=0.1] [--efficiency=0.75]")
	fmt.Println("  op:process --input=./op.xlsx | --fileId=1 | --batch=20")
	fmt.Println("  export:xlsx --fileId=1 --out=./out/result.xlsx")
	fmt.Println("  watch")
	fmt.Println("  run --input=./op.xlsx --output=./out/result.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
