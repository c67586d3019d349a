package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into dataset, pipeline, scheduling, display, and utility.
// The config file named by --config is applied before flags are defined so
// its values become the flag defaults; explicit flags still win.

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrExitEarly is returned by [ParseFlags] after --help or --version has
// been printed. Callers should exit successfully.
var ErrExitEarly = errors.New("exit requested")

// usageOut is where help text goes; tests may redirect it.
var usageOut io.Writer = os.Stderr

// ParseFlags parses args (without the program name) into cfg.
// On error it returns non-nil (e.g. unknown flag, missing positional args).
func ParseFlags(cfg *Config, version string, args []string) error {
	if path := configFileArg(args); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return err
		}
		cfg.ConfigFile = path
	}

	fs := flag.NewFlagSet("neurobatch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() { printUsage(version) }

	var extra extraFlags

	defineDatasetFlags(fs, cfg)
	definePipelineFlags(fs, cfg)
	defineSchedulingFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &extra)
	defineUtilityFlags(fs, cfg, &extra)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(version)
			return ErrExitEarly
		}
		return err
	}

	applyExtraFlags(cfg, &extra)

	if extra.showHelp {
		printUsage(version)
		return ErrExitEarly
	}
	if extra.showVersion {
		fmt.Fprintln(os.Stdout, "neurobatch v"+version)
		return ErrExitEarly
	}

	return parsePositionalArgs(fs, cfg)
}

// extraFlags holds flags that are applied after Parse. These either invert
// a default (noSummary -> SummaryJSON=false) or trigger exit.
type extraFlags struct {
	noSummary   bool
	noColor     bool
	configPath  string
	showVersion bool
	showHelp    bool
}

// defineDatasetFlags registers --session, --subjects, --subject-pattern, --log-dir.
func defineDatasetFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Session, "session", cfg.Session, "Only process this session (e.g. ses-M00)")
	fs.StringVar(&cfg.Session, "s", cfg.Session, "Same as --session")
	fs.Var(&listValue{p: &cfg.Subjects}, "subjects", "Comma-separated subject IDs to process")
	fs.StringVar(&cfg.SubjectPattern, "subject-pattern", cfg.SubjectPattern, "Glob for subject directories")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for per-subject logs")
}

// definePipelineFlags registers -P/--pipeline, -t/--threads, --dry-run.
func definePipelineFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Pipeline, "pipeline", cfg.Pipeline, "Built-in pipeline name or YAML definition path")
	fs.StringVar(&cfg.Pipeline, "P", cfg.Pipeline, "Same as --pipeline")
	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "Threads per external tool invocation")
	fs.IntVar(&cfg.Threads, "t", cfg.Threads, "Same as --threads")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Log commands without executing them")
	fs.BoolVar(&cfg.DryRun, "d", cfg.DryRun, "Same as --dry-run")
}

// defineSchedulingFlags registers -j/--jobs and --step-timeout.
func defineSchedulingFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.MaxConcurrency, "jobs", cfg.MaxConcurrency, "Subjects processed concurrently")
	fs.IntVar(&cfg.MaxConcurrency, "j", cfg.MaxConcurrency, "Same as --jobs")
	fs.DurationVar(&cfg.StepTimeout, "step-timeout", cfg.StepTimeout, "Watchdog per step (0 = unbounded)")
}

// defineDisplayFlags registers --color, --no-color, verbose, --log, --no-summary.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *extraFlags) {
	fs.Var(&colorModeValue{&cfg.ColorMode}, "color", "Color mode: auto, always or never")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Echo tool output to the console")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Same as --verbose")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Append console logs to file")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "Same as --log")
	fs.BoolVar(&n.noSummary, "no-summary", false, "Do not write the run summary JSON")
}

// defineUtilityFlags registers --config, --check, --list-pipelines, --version and --help.
func defineUtilityFlags(fs *flag.FlagSet, cfg *Config, n *extraFlags) {
	fs.StringVar(&n.configPath, "config", "", "YAML config file (applied before flags)")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Check pipeline tools are installed and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.BoolVar(&cfg.ListPipelines, "list-pipelines", false, "List built-in pipelines and exit")
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyExtraFlags copies negated flag values into cfg. --no-color wins over
// --color.
func applyExtraFlags(cfg *Config, n *extraFlags) {
	if n.noSummary {
		cfg.SummaryJSON = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	}
}

// parsePositionalArgs sets BaseDir from the single positional arg. The
// config file may supply it instead; a positional arg overrides the file.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	switch {
	case len(args) == 1:
		cfg.BaseDir = NormalizeDirArg(args[0])
	case len(args) > 1:
		return fmt.Errorf("need exactly one base_dir (got %d arguments)", len(args))
	case cfg.NeedsDataset() && cfg.BaseDir == "":
		return errors.New("need exactly one base_dir")
	}
	return nil
}

// configFileArg finds the value of --config / -config in args without
// fully parsing them, so the file can seed flag defaults.
func configFileArg(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return ""
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// printUsage writes the help text. Column-aligned for readability.
func printUsage(version string) {
	const col1 = 30 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "neurobatch v" + version + " - idempotent per-subject neuroimaging pipeline runner"},
		{"", ""},
		{"  neurobatch [OPTIONS] <base_dir>", ""},
		{"", ""},
		{"Dataset", ""},
		{"  -s, --session <ses-label>", "Only process this session (default: all)"},
		{"  --subjects <a,b,...>", "Only process these subjects (default: all)"},
		{"  --subject-pattern <glob>", "Subject directory glob (default: sub-*)"},
		{"  --log-dir <path>", "Per-subject logs (default: <base_dir>/logs)"},
		{"", ""},
		{"Pipeline", ""},
		{"  -P, --pipeline <name|file>", "Built-in name, YAML file or - for stdin (default: " + DefaultPipeline + ")"},
		{"  -t, --threads <n>", "Threads per tool invocation (default: 4)"},
		{"  -d, --dry-run", "Log commands without executing them"},
		{"", ""},
		{"Scheduling", ""},
		{"  -j, --jobs <n>", "Subjects processed concurrently (default: 2)"},
		{"  --step-timeout <dur>", "Watchdog per step, e.g. 6h (default: none)"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Echo tool output to the console"},
		{"  -l, --log <path>", "Append console logs to file"},
		{"  --no-summary", "Do not write run-<id>.json"},
		{"", ""},
		{"Utility", ""},
		{"  --config <path>", "YAML config file (flags override it)"},
		{"  -c, --check", "Check pipeline tools are installed"},
		{"  --list-pipelines", "List built-in pipelines"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(usageOut)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(usageOut, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(usageOut, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(usageOut, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapters for enum and list types.

type colorModeValue struct{ p *ColorMode }

func (c *colorModeValue) String() string {
	if c.p == nil {
		return ""
	}
	return string(*c.p)
}

func (c *colorModeValue) Set(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		*c.p = ColorAuto
	case "always":
		*c.p = ColorAlways
	case "never":
		*c.p = ColorNever
	default:
		return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", s)
	}
	return nil
}

// listValue accumulates comma-separated values. The first Set replaces any
// value seeded from the config file; repeating the flag appends.
type listValue struct {
	p   *[]string
	set bool
}

func (l *listValue) String() string {
	if l.p == nil {
		return ""
	}
	return strings.Join(*l.p, ",")
}

func (l *listValue) Set(s string) error {
	if !l.set {
		*l.p = nil
		l.set = true
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*l.p = append(*l.p, part)
		}
	}
	return nil
}
