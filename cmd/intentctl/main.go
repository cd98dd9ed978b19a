// cmd/intentctl/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/intent-service/internal/app"
	"github.com/SyedDaiam9101/intent-service/internal/config"
	"github.com/SyedDaiam9101/intent-service/internal/logging"
)

const serviceName = "intentctl"

type options struct {
	configFile string
	model      string
	tokenizer  string
	labels     string
	history    string
	mock       bool
	verbose    bool
	trace      bool

	idsPath  string
	maskPath string

	examples     bool
	tokenizeOnly bool

	pretokenize string
	maxLen      int
	text        string

	showHistory int
	remote      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configFile, "config", "", "Path to config file (optional)")
	fs.StringVar(&o.model, "model", "", "Path to ONNX model file")
	fs.StringVar(&o.tokenizer, "tokenizer", "", "Path to tokenizer.json or vocab.txt")
	fs.StringVar(&o.labels, "labels", "", "Path to a label table (json, yaml or toml)")
	fs.StringVar(&o.history, "history", "", "Record predictions in this SQLite journal")
	fs.BoolVar(&o.mock, "mock", false, "Use mock inference engine (for testing)")
	fs.BoolVar(&o.verbose, "verbose", false, "Print probabilities and timing, log at debug level")
	fs.BoolVar(&o.trace, "trace", false, "Export pipeline spans to stderr")

	fs.StringVar(&o.idsPath, "ids", "", "Classify pre-tokenized input ids from this .npy file")
	fs.StringVar(&o.maskPath, "mask", "", "Attention mask .npy file for -ids")

	fs.BoolVar(&o.examples, "examples", false, "Classify the built-in demo commands")
	fs.BoolVar(&o.tokenizeOnly, "tokenize-only", false, "Interactive loop that only prints ids and mask")

	fs.StringVar(&o.pretokenize, "pretokenize", "", "Write input_ids.npy and attention_mask.npy for -text into this directory")
	fs.IntVar(&o.maxLen, "max-len", 16, "Fixed sequence length for -pretokenize")
	fs.StringVar(&o.text, "text", "", "Input text for -pretokenize or -remote")

	fs.IntVar(&o.showHistory, "show-history", 0, "Print the N most recent journal entries")
	fs.StringVar(&o.remote, "remote", "", "Classify -text on a running intentd at this address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if (o.idsPath == "") != (o.maskPath == "") {
		return nil, fmt.Errorf("-ids and -mask must be given together")
	}
	if o.pretokenize != "" && o.maxLen < 2 {
		return nil, fmt.Errorf("-max-len must be at least 2")
	}
	return &o, nil
}

// loadConfig layers flags over the config file and environment.
func loadConfig(o *options) (*config.Config, error) {
	v, err := config.Open(o.configFile)
	if err != nil {
		return nil, err
	}
	setIf(v, "model", o.model)
	setIf(v, "tokenizer", o.tokenizer)
	setIf(v, "labels", o.labels)
	setIf(v, "history", o.history)
	if o.mock {
		v.Set("use_mock_inference", true)
	}
	switch {
	case o.verbose:
		v.Set("log_level", "debug")
	case !v.IsSet("log_level"):
		// Keep stdout-oriented sessions quiet unless asked otherwise
		v.Set("log_level", "warn")
	}

	// These modes never run the model
	if o.tokenizeOnly || o.pretokenize != "" {
		v.Set("use_mock_inference", true)
	}
	if o.pretokenize != "" {
		v.Set("max_seq_len", o.maxLen)
	}
	return config.Decode(v)
}

func setIf(v *viper.Viper, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 2
	}

	if o.remote != "" {
		return report(stderr, classifyRemote(ctx, o, stdout))
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}
	log := logging.NewWithWriter(stderr, cfg.LogLevel)

	if o.showHistory > 0 {
		return report(stderr, showHistory(ctx, cfg, o.showHistory, stdout))
	}

	if err := cfg.ValidateModel(); err != nil {
		fmt.Fprintf(stderr, "%s: invalid configuration: %v\n", serviceName, err)
		return 1
	}

	if o.trace {
		shutdown, err := app.InitTracer(serviceName, stderr)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize tracer")
		} else {
			defer shutdown(context.Background())
		}
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}
	defer a.Close()

	switch {
	case o.pretokenize != "":
		err = pretokenize(a.Classifier, o.text, o.pretokenize, stdout)
	case o.idsPath != "":
		err = classifyArrays(ctx, a.Classifier, o.idsPath, o.maskPath, o.verbose, stdout)
	case o.examples:
		err = runExamples(ctx, a.Classifier, stdout)
	default:
		err = interactive(ctx, a.Classifier, stdin, stdout, o)
	}
	return report(stderr, err)
}

func report(stderr io.Writer, err error) int {
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}
	return 0
}
