package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TaranshG/Receipt-Identifer/internal/app"
	"github.com/TaranshG/Receipt-Identifer/internal/config"
	"github.com/TaranshG/Receipt-Identifer/internal/domain"
	"github.com/TaranshG/Receipt-Identifer/internal/gcsuploader"
	infra "github.com/TaranshG/Receipt-Identifer/internal/infra/bigquery"
	"github.com/TaranshG/Receipt-Identifer/internal/logger"
	"github.com/TaranshG/Receipt-Identifer/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(os.Args[2:])
	case "certify":
		runCertify(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "proofs":
		runProofs(os.Args[2:])
	case "upload":
		runUpload(os.Args[2:])
	case "analyses":
		runAnalyses(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt fingerprint CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze    Extract, fingerprint and risk-score a receipt")
	fmt.Println("  certify    Anchor a receipt fingerprint on the ledger")
	fmt.Println("  verify     Check a receipt against a ledger transaction")
	fmt.Println("  proofs     List local proofs or show one transaction's bundle")
	fmt.Println("  upload     Upload a receipt image to GCS")
	fmt.Println("  analyses   List archived analyses or a fingerprint's certifications")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup loads config and builds the logger. CLI logs go to stderr so
// stdout carries only results.
func setup(configPath string) (config.Config, zerolog.Logger) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.Configure(logger.Options{Level: cfg.Log.Level, Format: logger.FormatConsole, Out: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	return cfg, log
}

func build(ctx context.Context, log zerolog.Logger, cfg config.Config, opts app.Options) *app.App {
	a, err := app.Build(ctx, cfg, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	return a
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

func readFile(log zerolog.Logger, path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read file")
	}
	return data
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	imagePath := fs.String("image", "", "Local receipt image")
	imageURI := fs.String("uri", "", "gs:// URI of a receipt image")
	recordPath := fs.String("record", "", "JSON file with receipt fields")
	rawPath := fs.String("raw", "", "File holding raw AI output to normalize")
	certify := fs.Bool("certify", false, "Certify the fingerprint after analysis")
	fs.Parse(args)

	cfg, log := setup(*configPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var in pipeline.AnalyzeInput
	switch {
	case *imagePath != "":
		in.Image = readFile(log, *imagePath)
		in.MIMEType = gcsuploader.ContentTypeFor(*imagePath, in.Image)
	case *imageURI != "":
		in.ImageURI = *imageURI
	case *recordPath != "":
		var rec domain.Record
		if err := json.Unmarshal(readFile(log, *recordPath), &rec); err != nil {
			log.Fatal().Err(err).Msg("Invalid record JSON")
		}
		in.Record = &rec
	case *rawPath != "":
		in.RawAIOutput = string(readFile(log, *rawPath))
	default:
		log.Fatal().Msg("Usage: cli analyze (-image PATH | -uri gs://... | -record PATH | -raw PATH) [-certify]")
	}

	a := build(ctx, log, cfg, app.Options{Ledger: *certify})
	defer a.Close()

	res, err := a.Service.Analyze(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	if !*certify {
		printJSON(res)
		return
	}

	cert, err := a.Service.Certify(ctx, pipeline.CertifyInput{
		CanonicalText: res.CanonicalText,
		Summary:       res.Summary(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Certification failed")
	}
	printJSON(map[string]interface{}{
		"analysis":      res,
		"certification": cert,
	})
}

func runCertify(args []string) {
	fs := flag.NewFlagSet("certify", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	textPath := fs.String("text-file", "", "File holding canonical text")
	fingerprint := fs.String("fingerprint", "", "Fingerprint to anchor")
	fs.Parse(args)

	cfg, log := setup(*configPath)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	in := pipeline.CertifyInput{Fingerprint: *fingerprint}
	if *textPath != "" {
		in.CanonicalText = strings.TrimSpace(string(readFile(log, *textPath)))
	}
	if in.CanonicalText == "" && in.Fingerprint == "" {
		log.Fatal().Msg("Usage: cli certify (-text-file PATH | -fingerprint HEX)")
	}

	a := build(ctx, log, cfg, app.Options{Ledger: true})
	defer a.Close()

	res, err := a.Service.Certify(ctx, in)
	if err != nil {
		if res != nil {
			printJSON(res)
		}
		log.Fatal().Err(err).Msg("Certification failed")
	}
	printJSON(res)
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	txID := fs.String("tx", "", "Ledger transaction id")
	textPath := fs.String("text-file", "", "File holding the presented canonical text")
	fingerprint := fs.String("fingerprint", "", "Presented fingerprint")
	fs.Parse(args)

	cfg, log := setup(*configPath)
	if *txID == "" {
		log.Fatal().Msg("Error: -tx is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	in := pipeline.VerifyInput{TxID: *txID, Fingerprint: *fingerprint}
	if *textPath != "" {
		in.CanonicalText = string(readFile(log, *textPath))
	}

	a := build(ctx, log, cfg, app.Options{Ledger: true})
	defer a.Close()

	res, err := a.Service.Verify(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Verification failed")
	}
	printJSON(res)
	if !res.Verified {
		os.Exit(2)
	}
}

func runProofs(args []string) {
	fs := flag.NewFlagSet("proofs", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	txID := fs.String("tx", "", "Show the bundle for one transaction")
	fs.Parse(args)

	cfg, log := setup(*configPath)
	ctx := logger.WithContext(context.Background(), log)

	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open proof store")
	}
	defer store.Close()

	if *txID != "" {
		bundle, err := store.GetBundle(ctx, *txID)
		if err != nil {
			log.Fatal().Err(err).Str("tx_id", *txID).Msg("Bundle lookup failed")
		}
		printJSON(bundle)
		return
	}

	recs, err := store.ListAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list proofs")
	}

	fmt.Printf("=== Proofs (%d) ===\n", len(recs))
	for i, rec := range recs {
		fmt.Printf("\n%d. %s\n", i+1, rec.Fingerprint)
		fmt.Printf("   First tx:   %s (%s)\n", rec.FirstSeenTx, rec.FirstSeenAt.Format(time.RFC3339))
		fmt.Printf("   Latest tx:  %s (%s)\n", rec.MostRecentTx, rec.LastSeenAt.Format(time.RFC3339))
		fmt.Printf("   Seen:       %d\n", rec.SeenCount)
		if s := rec.Summary; s != nil {
			fmt.Printf("   Receipt:    %s %s %s %s\n", s.Merchant, s.Date, s.Total, s.Currency)
			fmt.Printf("   Risk:       %s (%d)\n", s.RiskLevel, s.RiskScore)
		}
	}
}

func runUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	bucket := fs.String("bucket", "", "GCS bucket (overrides config)")
	filePath := fs.String("file", "", "Path to local receipt image")
	fs.Parse(args)

	cfg, log := setup(*configPath)
	if *bucket != "" {
		cfg.Blobs.Bucket = *bucket
	}
	if cfg.Blobs.Bucket == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -file PATH [-bucket NAME]")
	}

	ctx := logger.WithContext(context.Background(), log)

	images, err := gcsuploader.NewImageStore(ctx, cfg.Blobs.Bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer images.Close()

	uri, err := images.UploadFile(ctx, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Println(uri)
}

func runAnalyses(args []string) {
	fs := flag.NewFlagSet("analyses", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	limit := fs.Int("limit", 20, "Number of analyses to show")
	fingerprint := fs.String("fingerprint", "", "List certifications of this fingerprint instead")
	fs.Parse(args)

	cfg, log := setup(*configPath)
	if cfg.Archive.ProjectID == "" {
		log.Fatal().Msg("Error: archive.project_id (RECEIPTID_GCP_PROJECT) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	archive, err := infra.NewArchive(ctx, cfg.Archive.ProjectID, cfg.Archive.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer archive.Close()

	if *fingerprint != "" {
		rows, err := archive.ListCertifications(ctx, *fingerprint)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list certifications")
		}
		fmt.Printf("=== Certifications (%d) ===\n", len(rows))
		for i, row := range rows {
			fmt.Printf("%d. %s  %s  seen=%d duplicate=%t  %s\n",
				i+1, row.CreatedTS.Format(time.RFC3339), row.TxID, row.SeenCount, row.Duplicate, row.Network)
		}
		return
	}

	rows, err := archive.ListRecentAnalyses(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list analyses")
	}
	fmt.Printf("=== Analyses (%d) ===\n", len(rows))
	for i, row := range rows {
		total := "-"
		if row.Total != nil {
			total = row.Total.FloatString(2)
		}
		fmt.Printf("\n%d. %s  %s\n", i+1, row.AnalysisID, row.CreatedTS.Format(time.RFC3339))
		fmt.Printf("   Source:     %s\n", row.Source)
		fmt.Printf("   Receipt:    %s %s %s\n", row.Merchant, total, row.Currency)
		fmt.Printf("   Risk:       %s (%d), AI %s\n", row.RiskLevel, row.RiskScore, row.AIVerdict)
		fmt.Printf("   Fingerprint %s\n", row.Fingerprint)
	}
}
