package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/wudi/pdflinear/observability"
	"github.com/wudi/pdflinear/writer"
)

type options struct {
	pages         int
	firstPage     int
	compress      bool
	deterministic bool
	plain         bool
	verbose       bool
	metrics       bool
	outPath       string
	dumpPath      string
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mklinear: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "mklinear: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: go run ./cmd/mklinear [flags]\n")
		flag.PrintDefaults()
	}
	flag.IntVar(&opts.pages, "pages", 3, "Number of pages in the generated document")
	flag.IntVar(&opts.firstPage, "first", 0, "Zero-based index of the page to optimize for")
	flag.BoolVar(&opts.compress, "compress", false, "Flate encode the hint stream")
	flag.BoolVar(&opts.deterministic, "deterministic", false, "Derive the file identifier from the content")
	flag.BoolVar(&opts.plain, "plain", false, "Write without linearization")
	flag.BoolVar(&opts.verbose, "v", false, "Log debug output to stderr")
	flag.BoolVar(&opts.metrics, "metrics", false, "Print writer metrics to stderr when done")
	flag.StringVar(&opts.outPath, "out", "linearized.pdf", "Output file, - for stdout")
	flag.StringVar(&opts.dumpPath, "dump", "", "Print the hint tables of an existing linearized file and exit")
	flag.Parse()

	if flag.NArg() != 0 {
		flag.Usage()
		return options{}, fmt.Errorf("unexpected arguments %v", flag.Args())
	}
	if opts.pages < 1 {
		return options{}, fmt.Errorf("-pages must be at least 1")
	}
	return opts, nil
}

func run(opts options, stdout, stderr io.Writer) error {
	if opts.dumpPath != "" {
		data, err := os.ReadFile(opts.dumpPath)
		if err != nil {
			return err
		}
		return dump(data, stdout)
	}

	kl := log.NewLogfmtLogger(log.NewSyncWriter(stderr))
	if opts.verbose {
		kl = level.NewFilter(kl, level.AllowDebug())
	} else {
		kl = level.NewFilter(kl, level.AllowWarn())
	}
	kl = log.With(kl, "ts", log.DefaultTimestampUTC)

	reg := prometheus.NewRegistry()
	cfg := writer.Config{
		Version:       writer.PDF17,
		Linearize:     !opts.plain,
		FirstPage:     opts.firstPage,
		CompressHints: opts.compress,
		Deterministic: opts.deterministic,
		Logger:        observability.NewKitLogger(kl),
		Metrics:       observability.NewMetrics(reg),
	}

	var buf bytes.Buffer
	if err := writer.NewWriter().Write(context.Background(), sampleDocument(opts.pages), &buf, cfg); err != nil {
		return err
	}
	if opts.outPath == "-" {
		if _, err := stdout.Write(buf.Bytes()); err != nil {
			return err
		}
	} else if err := os.WriteFile(opts.outPath, buf.Bytes(), 0o644); err != nil {
		return err
	}

	if opts.metrics {
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(stderr, mf); err != nil {
				return err
			}
		}
	}
	return nil
}
