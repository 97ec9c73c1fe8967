package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/mcncl/typedjson/internal/errors"
)

// stdinName is the file argument that reads standard input
const stdinName = "-"

var gzipMagic = []byte{0x1f, 0x8b}

// readInput reads a whole document from a file, or from stdin when name is
// "-". Gzip-compressed input is detected by its magic bytes and inflated.
func (c *Context) readInput(name string) ([]byte, error) {
	var r io.Reader
	if name == stdinName {
		if c.Stdin == nil {
			return nil, errors.NewInputError("no input provided", errors.ErrNoInput)
		}
		r = c.Stdin
	} else {
		f, err := os.Open(name)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewInputError(fmt.Sprintf("file '%s' not found", name), errors.ErrFileNotFound)
			}
			return nil, errors.NewInputError(fmt.Sprintf("failed to open file '%s'", name), err)
		}
		defer f.Close()
		r = f
	}

	br := bufio.NewReader(r)
	if magic, _ := br.Peek(len(gzipMagic)); bytes.Equal(magic, gzipMagic) {
		c.Logger.Debugf("%s is gzip compressed", name)
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.NewInputError(fmt.Sprintf("failed to open gzip stream in '%s'", name), err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewInputError(fmt.Sprintf("failed to read '%s'", name), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewInputError(fmt.Sprintf("'%s' is empty", name), errors.ErrFileEmpty)
	}
	return data, nil
}

// inputs returns the file arguments, or stdin when there are none.
func inputs(files []string) []string {
	if len(files) == 0 {
		return []string{stdinName}
	}
	return files
}

// writeOutput writes data to a file, or to stdout when path is empty.
func (c *Context) writeOutput(path string, data []byte) error {
	if path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return errors.NewOutputError(fmt.Sprintf("failed to write to file '%s'", path), err)
		}
		c.Logger.Infof("wrote %s", path)
		return nil
	}
	if _, err := c.Stdout.Write(data); err != nil {
		return errors.NewOutputError("failed to write to stdout", err)
	}
	return nil
}
