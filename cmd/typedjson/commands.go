package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"

	"github.com/mcncl/typedjson"
	"github.com/mcncl/typedjson/internal/batch"
	"github.com/mcncl/typedjson/internal/errors"
	"github.com/mcncl/typedjson/internal/formatter"
	"github.com/mcncl/typedjson/internal/models"
)

// errFailed is returned by commands that have already reported their
// failures on stderr.
var errFailed = stderrors.New("command failed")

// runBatch runs fn over every input on a worker pool.
func runBatch[Out any](ctx *Context, names []string, fn func(string) (Out, error)) ([]batch.Result[string, Out], int, error) {
	runner, err := batch.NewRunner(ctx.Workers, batch.WithLogger(ctx.Logger))
	if err != nil {
		return nil, 0, err
	}
	defer runner.Release()

	results, failed := batch.Run(context.Background(), runner, names, func(_ context.Context, name string) (Out, error) {
		return fn(name)
	})
	return results, failed, nil
}

// CheckCmd parses documents and reports the first error in each
type CheckCmd struct {
	Files    []string `arg:"" optional:"" help:"Files to check. Reads stdin when none are given or for '-'."`
	Encoding string   `help:"Character encoding of the input (WHATWG name). Defaults to UTF-8." short:"e"`
	Quiet    bool     `help:"Only report failures." short:"q"`
}

// Run executes the check command
func (c *CheckCmd) Run(ctx *Context) error {
	results, failed, err := runBatch(ctx, inputs(c.Files), func(name string) (*models.Value, error) {
		data, err := ctx.readInput(name)
		if err != nil {
			return nil, err
		}
		return typedjson.ParseBytes(data, c.Encoding)
	})
	if err != nil {
		return err
	}

	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(ctx.Stderr, "%s: %s\n", res.Input, errors.UserFriendlyError(res.Err))
			continue
		}
		if !c.Quiet {
			fmt.Fprintf(ctx.Stdout, "%s: ok (%s)\n", res.Input, res.Value.Kind())
		}
	}
	if failed > 0 {
		ctx.Logger.Infof("%d of %d documents failed", failed, len(results))
		return errFailed
	}
	return nil
}

// FormatCmd re-indents or compacts documents. Comments are kept when
// indenting and dropped when compacting.
type FormatCmd struct {
	Files   []string `arg:"" optional:"" help:"Files to format. Reads stdin when none are given or for '-'."`
	Compact bool     `help:"Remove all insignificant whitespace." short:"c"`
	Indent  string   `help:"Indentation unit." default:"  "`
	Write   bool     `help:"Rewrite files in place instead of printing them." short:"w"`
}

// Run executes the format command
func (c *FormatCmd) Run(ctx *Context) error {
	f := &formatter.Formatter{Indent: c.Indent, Compact: c.Compact}
	results, failed, err := runBatch(ctx, inputs(c.Files), func(name string) ([]byte, error) {
		data, err := ctx.readInput(name)
		if err != nil {
			return nil, err
		}
		out := []byte(f.Format(string(data)))
		if c.Compact {
			out = append(out, '\n')
		}
		if c.Write && name != stdinName {
			return nil, ctx.writeOutput(name, out)
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(ctx.Stderr, "%s: %s\n", res.Input, errors.UserFriendlyError(res.Err))
			continue
		}
		if res.Value != nil {
			if err := ctx.writeOutput("", res.Value); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return errFailed
	}
	return nil
}

// SelectCmd prints every node a path reaches, one per line
type SelectCmd struct {
	Path     string `arg:"" help:"Dotted path such as 'metrics.options[0].name' or 'a.b[*].[1]'. An empty path selects the root."`
	File     string `arg:"" optional:"" default:"-" help:"File to read. Reads stdin by default."`
	Encoding string `help:"Character encoding of the input (WHATWG name). Defaults to UTF-8." short:"e"`
	Flatten  bool   `help:"Print the elements of selected arrays instead of the arrays." short:"f"`
	Pretty   bool   `help:"Indent each result. On by default when writing to a terminal."`
	Compact  bool   `help:"Print each result on one line." short:"c"`
}

// Run executes the select command
func (c *SelectCmd) Run(ctx *Context) error {
	data, err := ctx.readInput(c.File)
	if err != nil {
		return err
	}
	doc, err := typedjson.ParseBytes(data, c.Encoding)
	if err != nil {
		return err
	}
	seq, err := typedjson.SelectValue[*typedjson.Value](c.Path, doc, ctx.Profile)
	if err != nil {
		return err
	}

	pretty := (c.Pretty || ctx.Terminal) && !c.Compact
	var out bytes.Buffer
	emit := func(v *models.Value) {
		if pretty {
			out.WriteString(formatter.Beautify(v.String()))
			return
		}
		out.Write(v.AppendJSON(nil))
		out.WriteByte('\n')
	}

	matched := 0
	for v := range seq {
		if c.Flatten && v.Kind() == models.KindArray {
			for _, item := range v.Items() {
				emit(item)
				matched++
			}
			continue
		}
		emit(v)
		matched++
	}
	if matched == 0 {
		fmt.Fprintf(ctx.Stderr, "path %q matched nothing\n", c.Path)
		return errFailed
	}
	ctx.Logger.Debugf("path %q matched %d nodes", c.Path, matched)
	return ctx.writeOutput("", out.Bytes())
}

// ConvertCmd reads a document into generic values under the active profile
// and writes it back out. Object keys are written in sorted order and
// numbers follow the profile's number mode.
type ConvertCmd struct {
	File   string `arg:"" optional:"" default:"-" help:"File to read. Reads stdin by default."`
	Output string `help:"File to write. Writes stdout by default." short:"o"`
	From   string `help:"Character encoding of the input (WHATWG name). Defaults to UTF-8."`
	To     string `help:"Character encoding of the output (WHATWG name). Defaults to UTF-8."`
	Pretty bool   `help:"Indent the output. On by default when writing to a terminal."`
}

// Run executes the convert command
func (c *ConvertCmd) Run(ctx *Context) error {
	data, err := ctx.readInput(c.File)
	if err != nil {
		return err
	}
	doc, err := typedjson.ParseBytes(data, c.From)
	if err != nil {
		return err
	}
	v, err := typedjson.MaterializeValue[any](doc, ctx.Profile)
	if err != nil {
		return err
	}

	profile := ctx.Profile
	if c.Pretty || (ctx.Terminal && c.Output == "") {
		profile = profile.Clone()
		profile.Indent = true
	}
	var out bytes.Buffer
	if err := typedjson.WriteTo(&out, v, c.To, profile); err != nil {
		return err
	}
	if !profile.Indent {
		out.WriteByte('\n')
	}
	return ctx.writeOutput(c.Output, out.Bytes())
}
