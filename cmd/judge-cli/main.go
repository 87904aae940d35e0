package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codejudge/internal/judge/envconfig"
	"codejudge/internal/judge/executor"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/report"
	"codejudge/internal/judge/service"
	"codejudge/internal/judge/testcase"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
)

const defaultPistonURL = "http://localhost:2000"

func main() {
	os.Exit(run())
}

func run() int {
	defaults := model.DefaultConfig()
	dir := flag.String("dir", "test_cases", "Directory holding inputN.txt/outputN.txt pairs")
	file := flag.String("file", "", "Source file to evaluate")
	lang := flag.String("lang", "python", "Language name")
	version := flag.String("version", "*", "Language version")
	baseURL := flag.String("url", defaultPistonURL, "Execution service base URL")
	envFile := flag.String("env", ".env", "Path to env file")
	concurrency := flag.Int("concurrency", defaults.MaxConcurrent, "Maximum concurrent executions")
	rps := flag.Float64("rps", defaults.RequestsPerSecond, "Maximum execution requests per second")
	attempts := flag.Int("attempts", defaults.MaxAttempts, "Attempts per test case")
	timeout := flag.Duration("timeout", defaults.PerTestTimeout, "Timeout per execution request")
	deadline := flag.Duration("deadline", defaults.SubmissionDeadline, "Deadline for the whole submission")
	noFallback := flag.Bool("no-fallback", false, "Do not switch to the public API when the service is unreachable")
	jsonOut := flag.Bool("json", false, "Print the verdict as JSON")
	verbose := flag.Bool("v", false, "Log retries and admission details")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level, Format: "console", OutputPath: "stderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return 2
	}
	defer func() {
		_ = logger.Sync()
	}()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: judge-cli -file main.py [-lang python] [-dir test_cases]")
		return 2
	}
	if err := envconfig.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "load env failed: %v\n", err)
		return 2
	}

	cfg := defaults
	cfg.MaxConcurrent = *concurrency
	cfg.RequestsPerSecond = *rps
	cfg.BurstCapacity = 0
	cfg.MaxAttempts = *attempts
	cfg.PerTestTimeout = *timeout
	cfg.SubmissionDeadline = *deadline
	url := *baseURL
	if err := envconfig.Apply(&url, &cfg, os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		return 2
	}

	source, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read source failed: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cases, err := testcase.LoadDir(ctx, *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test cases failed: %v\n", err)
		return 2
	}
	if len(cases) == 0 {
		fmt.Fprintf(os.Stderr, "no test case files found in %s/ (expected input1.txt, output1.txt, ...)\n", *dir)
		return 2
	}

	clientOpts := []executor.Option{executor.WithUserAgent("codejudge-cli")}
	if !*noFallback {
		endpoint := executor.ResolveEndpoint(ctx, url, 2*time.Second, clientOpts...)
		if endpoint.Public {
			if endpoint.Reason != "" {
				fmt.Fprintf(os.Stderr, "warning: %s\n", endpoint.Reason)
			}
			cfg = executor.PublicLimits(cfg)
			fmt.Fprintf(os.Stderr, "using public execution api %s (max %d concurrent, ~%.0f req/s)\n",
				endpoint.BaseURL, cfg.MaxConcurrent, cfg.RequestsPerSecond)
		}
		url = endpoint.BaseURL
	}

	sub := model.Submission{
		ID:              uuid.NewString(),
		Language:        *lang,
		LanguageVersion: *version,
		SourceCode:      source,
		TestCases:       cases,
	}
	fmt.Fprintf(os.Stderr, "running %d test case(s) against %s (max %d concurrent, ~%.0f req/s)\n",
		len(cases), url, cfg.MaxConcurrent, cfg.RequestsPerSecond)

	verdict, err := service.Evaluate(ctx, executor.NewClient(url, clientOpts...), sub, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evaluate failed: %v\n", err)
		return 2
	}

	if *jsonOut {
		err = report.WriteJSON(os.Stdout, verdict)
	} else {
		err = report.Write(os.Stdout, sub, verdict)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "write report failed: %v\n", err)
		return 2
	}
	if !verdict.OverallPassed {
		return 1
	}
	return 0
}
