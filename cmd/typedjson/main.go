package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/mattn/go-isatty"

	"github.com/mcncl/typedjson"
	"github.com/mcncl/typedjson/internal/config"
	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/logging"
)

// Version information
const (
	Version = "0.1.0"
)

// CLI defines the command-line interface
type CLI struct {
	Profile   string           `help:"Bundled profile name or path to a profile file. Defaults to the nearest .typedjson.yml." short:"p"`
	LogLevel  string           `help:"Log level (error, warn, info, debug)." default:"warn" enum:"error,warn,info,debug"`
	Debug     bool             `help:"Enable debug logging." short:"d"`
	LogFormat string           `help:"Log line format (text, json)." default:"text" enum:"text,json"`
	Workers   int              `help:"Files processed in parallel. Zero means one per CPU." default:"0"`
	Version   kong.VersionFlag `help:"Show version information." short:"v"`

	Check   CheckCmd   `cmd:"" help:"Parse documents and report syntax errors."`
	Format  FormatCmd  `cmd:"" help:"Re-indent or compact documents without validating them."`
	Select  SelectCmd  `cmd:"" help:"Print the nodes a dotted path selects."`
	Convert ConvertCmd `cmd:"" help:"Re-encode a document through a profile."`
}

// Context holds the runtime context passed to every command
type Context struct {
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	Profile  *typedjson.Profile
	Logger   logging.Logger
	Workers  int
	Terminal bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var cli CLI
	exitCode := -1
	parser, err := kong.New(&cli,
		kong.Name("typedjson"),
		kong.Description("Check, format, query and convert JSON documents"),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
	)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		// --help and --version exit through kong
		return exitCode
	}
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	level := logging.ParseLevel(cli.LogLevel)
	if cli.Debug {
		level = logging.LevelDebug
	}
	var logger logging.Logger
	if cli.LogFormat == "json" {
		logger = logging.NewJSON(level, stderr)
	} else {
		logger = logging.New(level, stderr)
	}
	typedjson.SetLogger(logger)
	defer typedjson.SetLogger(nil)

	profile, err := loadProfile(cli.Profile, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", errors.UserFriendlyError(err))
		return 1
	}

	ctx := &Context{
		Stdin:    stdin,
		Stdout:   stdout,
		Stderr:   stderr,
		Profile:  profile,
		Logger:   logger,
		Workers:  cli.Workers,
		Terminal: isTerminal(stdout),
	}
	if err := kctx.Run(ctx); err != nil {
		if !stderrors.Is(err, errFailed) {
			fmt.Fprintf(stderr, "%s\n", errors.UserFriendlyError(err))
		}
		return 1
	}
	return 0
}

// loadProfile resolves the --profile flag: a bundled name, a file path, or
// the nearest profile file when the flag is empty.
func loadProfile(name string, logger logging.Logger) (*typedjson.Profile, error) {
	if name == "" {
		path := config.FindProfileFile()
		if path == "" {
			return typedjson.DefaultProfile(), nil
		}
		logger.Debugf("using profile file %s", path)
		return typedjson.LoadProfile(path)
	}
	if p, err := typedjson.BundledProfile(name); err == nil {
		return p, nil
	}
	if _, err := os.Stat(name); err != nil {
		return nil, errors.NewInputError(fmt.Sprintf("profile %q is neither bundled (%v) nor a readable file", name, config.BundledNames()), errors.ErrFileNotFound)
	}
	return typedjson.LoadProfile(name)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
