package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"lambda-url-crawler/internal/batch"
	"lambda-url-crawler/internal/logger"
	"lambda-url-crawler/internal/models"
	"lambda-url-crawler/internal/services"
)

type rootOptions struct {
	functionName string
	inFile       string
	outDir       string
	profile      string
	region       string
	quiet        bool

	resume      bool
	s3Bucket    string
	ledgerTable string

	maxRequestsPerReset  int
	maxForbiddenPerReset int
	resetCooldown        time.Duration
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	rootCmd := &cobra.Command{
		Use:           "crawl",
		Short:         "Invoke the deployed crawl function once per URL in a file",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.functionName, "function-name", "f", "crawler-dev-crawl", "crawl function name")
	flags.StringVarP(&opts.inFile, "in-file", "i", "urls.txt", "input file with one URL per line")
	flags.StringVarP(&opts.outDir, "out-dir", "o", "results", "output directory for crawled data and logs")
	flags.StringVarP(&opts.profile, "profile", "p", "", "AWS profile")
	flags.StringVarP(&opts.region, "region", "r", "", "AWS region of the crawl function")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "show warnings only on the console")
	flags.BoolVar(&opts.resume, "resume", false, "skip URLs recorded as crawled or failed by earlier runs")
	flags.StringVar(&opts.s3Bucket, "s3-bucket", "", "store results in this S3 bucket instead of the output directory")
	flags.StringVar(&opts.ledgerTable, "ledger-table", "", "DynamoDB table for the crawl ledger (implies --resume)")
	flags.IntVar(&opts.maxRequestsPerReset, "max-requests-per-reset", 1000, "reset the function after this many requests")
	flags.IntVar(&opts.maxForbiddenPerReset, "max-forbidden-per-reset", 10, "reset the function after this many 403 responses")
	flags.DurationVar(&opts.resetCooldown, "reset-cooldown", 60*time.Second, "wait after a function reset")

	return rootCmd
}

func run(cmd *cobra.Command, opts rootOptions) error {
	ctx := cmd.Context()

	log, logCloser, err := logger.New(logger.Config{
		Dir:   opts.outDir,
		Quiet: opts.quiet,
	})
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	// Open the input before touching AWS: a missing URL file fails the run
	// before any invocation.
	src, err := batch.OpenLineSource(opts.inFile)
	if err != nil {
		return err
	}
	defer src.Close()

	awsCfg, err := services.LoadAWSConfig(ctx, opts.profile, opts.region)
	if err != nil {
		return err
	}

	invoker, err := services.NewFunctionInvoker(awsCfg, opts.functionName)
	if err != nil {
		return err
	}

	var sink batch.ResultSink
	if opts.s3Bucket != "" {
		sink, err = services.NewS3ResultStore(awsCfg, opts.s3Bucket, "")
	} else {
		sink, err = batch.NewDirSink(filepath.Join(opts.outDir, "crawled"))
	}
	if err != nil {
		return err
	}

	var ledger batch.Ledger
	switch {
	case opts.ledgerTable != "":
		ledger, err = services.NewDynamoLedger(awsCfg, opts.ledgerTable)
	case opts.resume:
		ledger, err = batch.OpenFileLedger(opts.outDir)
	}
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
	}

	runner := batch.NewRunner(batch.RunnerConfig{
		Invoker: invoker,
		Sink:    sink,
		Ledger:  ledger,
		Policy: batch.ResetPolicy{
			MaxRequests:  opts.maxRequestsPerReset,
			MaxForbidden: opts.maxForbiddenPerReset,
			Cooldown:     opts.resetCooldown,
		},
		Logger:   log,
		Progress: !opts.quiet,
	})

	summary, err := runner.Run(ctx, src)
	if summary != nil {
		printSummary(cmd, summary)
	}
	return err
}

func printSummary(cmd *cobra.Command, summary *models.BatchSummary) {
	fmt.Fprintf(cmd.OutOrStdout(),
		"%s: %d invoked, %d succeeded, %d failed, %d skipped in %s\n",
		summary.RunID, summary.Invoked, summary.Succeeded, summary.Failed,
		summary.Skipped, summary.CompletedAt.Sub(summary.StartedAt).Round(time.Millisecond))
}
