// Package rop implements the gadget classification commands.
package rop

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/blacktop/ropcat/pkg/gadget"
)

// Config is the configuration of a classification run
type Config struct {
	Inputs []string

	Limit   int
	Ignore  []string
	Catalog string   // YAML catalog file replacing the default catalog
	Disable []string // rule names to disable

	Finder   Finder
	Progress bool
	Stdin    io.Reader
}

// LoadCatalog returns the default catalog, or the one stored at path, with
// the disable rules applied
func LoadCatalog(path string, disable []string) (gadget.Catalog, error) {
	catalog := gadget.DefaultCatalog()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog: %w", err)
		}
		defer f.Close()
		if catalog, err = gadget.LoadCatalog(f); err != nil {
			return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
		}
	}
	if err := catalog.Disable(disable...); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Run collects the gadget listings of all inputs and classifies them
func Run(ctx context.Context, conf *Config) (*gadget.Tree, error) {
	if len(conf.Inputs) == 0 {
		return nil, fmt.Errorf("no input files supplied")
	}

	catalog, err := LoadCatalog(conf.Catalog, conf.Disable)
	if err != nil {
		return nil, err
	}
	classifier, err := gadget.NewClassifier(catalog, conf.Limit)
	if err != nil {
		return nil, fmt.Errorf("invalid classifier configuration: %w", err)
	}
	filter, err := gadget.NewFilter(conf.Ignore)
	if err != nil {
		return nil, err
	}

	src := &Source{
		Finder:   &conf.Finder,
		Stdin:    conf.Stdin,
		Progress: conf.Progress,
	}
	listing, err := src.Collect(ctx, conf.Inputs)
	if err != nil {
		return nil, err
	}

	ranked := filter.Ranked(listing)
	tree := classifier.Classify(ranked)

	log.WithFields(log.Fields{
		"ranked":     len(ranked),
		"classified": tree.Count(),
		"categories": tree.Len(),
	}).Info("Classified gadgets")

	return tree, nil
}
