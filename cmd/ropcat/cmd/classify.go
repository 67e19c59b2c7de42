/*
Copyright © 2018-2026 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/ropcat/internal/commands/rop"
	"github.com/blacktop/ropcat/internal/config"
	"github.com/blacktop/ropcat/pkg/gadget"
	"github.com/caarlos0/ctrlc"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().IntP("limit", "l", config.DefaultLimit, "Maximum gadgets per subcategory")
	classifyCmd.Flags().StringSliceP("ignore", "i", nil, "Drop gadgets matching these patterns (default jmp,call,' byte ')")
	classifyCmd.Flags().IntP("max-size", "r", config.DefaultMaxSize, "Maximum gadget size passed to the gadget finder")
	classifyCmd.Flags().StringP("bad-bytes", "b", "", "Bytes the gadget addresses must not contain (i.e. '\\x00\\x0a')")
	classifyCmd.Flags().String("rp", config.DefaultFinder, "rp++ gadget finder executable")
	classifyCmd.Flags().StringP("catalog", "c", "", "YAML pattern catalog replacing the built-in one")
	classifyCmd.Flags().StringSliceP("disable", "d", nil, "Catalog rules to disable (see 'ropcat catalog')")
	classifyCmd.Flags().BoolP("json", "j", false, "Output as JSON")

	viper.BindPFlag("classify.limit", classifyCmd.Flags().Lookup("limit"))
	viper.BindPFlag("classify.ignore", classifyCmd.Flags().Lookup("ignore"))
	viper.BindPFlag("classify.max-size", classifyCmd.Flags().Lookup("max-size"))
	viper.BindPFlag("classify.bad-bytes", classifyCmd.Flags().Lookup("bad-bytes"))
	viper.BindPFlag("classify.rp", classifyCmd.Flags().Lookup("rp"))
	viper.BindPFlag("classify.catalog", classifyCmd.Flags().Lookup("catalog"))
	viper.BindPFlag("classify.disable", classifyCmd.Flags().Lookup("disable"))
	viper.BindPFlag("classify.json", classifyCmd.Flags().Lookup("json"))

	classifyCmd.MarkFlagFilename("catalog", "yaml", "yml")
}

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify <FILE|->...",
	Short: "Find and classify ROP gadgets",
	Long: `Find and classify ROP gadgets.

Inputs ending in .txt are read as rp++ listings, '-' reads a listing from
stdin and any other file is searched with the rp++ gadget finder.`,
	Example: heredoc.Doc(`
		# Classify the gadgets of a binary
		❯ ropcat classify ./vuln
		# Classify a saved listing keeping 5 gadgets per subcategory
		❯ ropcat classify --limit 5 gadgets.txt
		# Skip the push/pop pairs and only keep gadgets without NULL bytes
		❯ ropcat classify --disable push-pop --bad-bytes '\x00' ./vuln
		# Read a listing from stdin and output JSON
		❯ rp-lin --unique -r 5 -f ./vuln | ropcat classify --json -`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := setup()
		if err != nil {
			return err
		}

		runConf := &rop.Config{
			Inputs:  args,
			Limit:   conf.Classify.Limit,
			Ignore:  conf.Classify.Ignore,
			Catalog: conf.Classify.Catalog,
			Disable: conf.Classify.Disable,
			Finder: rop.Finder{
				Path:     conf.Classify.Finder,
				MaxSize:  conf.Classify.MaxSize,
				BadBytes: conf.Classify.BadBytes,
				Verbose:  conf.Verbose,
			},
			Progress: !conf.Verbose && isatty.IsTerminal(os.Stderr.Fd()),
			Stdin:    os.Stdin,
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var tree *gadget.Tree
		if err := ctrlc.Default.Run(ctx, func() error {
			tree, err = rop.Run(ctx, runConf)
			return err
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Exiting...")
				return nil
			}
			return errors.Wrap(err, "failed to classify gadgets")
		}

		if conf.Classify.JSON {
			return rop.RenderJSON(os.Stdout, tree)
		}
		if tree.Empty() {
			log.Warn("No gadgets classified")
			return nil
		}
		return rop.RenderTree(os.Stdout, tree)
	},
}
