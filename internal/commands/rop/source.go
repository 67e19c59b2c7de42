package rop

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/ropcat/internal/colors"
	"github.com/blacktop/ropcat/internal/utils"
	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
)

// StdinInput is the input name that reads a listing from stdin
const StdinInput = "-"

// listingExt marks inputs that already hold gadget finder output
const listingExt = ".txt"

// Finder runs the external rp++ gadget finder
type Finder struct {
	Path     string
	MaxSize  int
	BadBytes string
	Verbose  bool
}

// Args returns the gadget finder arguments used to search file
func (f *Finder) Args(file string) []string {
	args := []string{"--unique", "--file", file}
	if f.MaxSize > 0 {
		args = append(args, "-r", strconv.Itoa(f.MaxSize))
	}
	if f.BadBytes != "" {
		args = append(args, "--bad-bytes", f.BadBytes)
	}
	return args
}

// Run searches file for gadgets and returns the finder's listing
func (f *Finder) Run(ctx context.Context, file string) (string, error) {
	path, err := exec.LookPath(f.Path)
	if err != nil {
		return "", fmt.Errorf("gadget finder %s not found (install rp++ or set --rp): %w", f.Path, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, f.Args(file)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if f.Verbose {
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	}

	utils.Indent(log.Debug, 2)(cmd.String())

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", filepath.Base(path), err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", filepath.Base(path), err)
	}
	return stdout.String(), nil
}

// Source gathers gadget listings from the configured inputs
type Source struct {
	Finder   *Finder
	Stdin    io.Reader
	Progress bool
}

// Collect returns the concatenated listings of inputs in order. Inputs ending
// in .txt are read as listings, "-" reads stdin and anything else is searched
// with the gadget finder.
func (s *Source) Collect(ctx context.Context, inputs []string) (string, error) {
	var out strings.Builder
	for _, input := range inputs {
		listing, err := s.collect(ctx, input)
		if err != nil {
			return "", err
		}
		out.WriteString(listing)
		if listing != "" && !strings.HasSuffix(listing, "\n") {
			out.WriteByte('\n')
		}
	}
	return out.String(), nil
}

func (s *Source) collect(ctx context.Context, input string) (string, error) {
	if input == StdinInput {
		if s.Stdin == nil {
			return "", fmt.Errorf("no stdin to read gadget listing from")
		}
		data, err := io.ReadAll(s.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read gadget listing from stdin: %w", err)
		}
		log.WithField("size", humanize.Bytes(uint64(len(data)))).Debug("Read gadget listing from stdin")
		return string(data), nil
	}

	if _, err := os.Stat(input); err != nil {
		return "", fmt.Errorf("file %s does not exist: %w", input, err)
	}

	if strings.EqualFold(filepath.Ext(input), listingExt) {
		data, err := os.ReadFile(input)
		if err != nil {
			return "", fmt.Errorf("failed to read gadget listing %s: %w", input, err)
		}
		log.WithFields(log.Fields{
			"listing": input,
			"size":    humanize.Bytes(uint64(len(data))),
		}).Debug("Read gadget listing")
		return string(data), nil
	}

	if s.Finder == nil {
		return "", fmt.Errorf("no gadget finder configured to search %s", input)
	}

	log.WithField("file", input).Info("Searching for gadgets")
	if s.Progress {
		sp := spinner.New(spinner.CharSets[38], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		sp.Prefix = colors.Blue().Sprintf("   • Running %s... ", filepath.Base(s.Finder.Path))
		sp.Start()
		defer sp.Stop()
	}
	return s.Finder.Run(ctx, input)
}
