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
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/ropcat/internal/commands/rop"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().StringP("catalog", "c", "", "YAML pattern catalog replacing the built-in one")
	catalogCmd.Flags().StringSliceP("disable", "d", nil, "Catalog rules to disable")
	catalogCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	catalogCmd.Flags().Bool("yaml", false, "Output as a YAML catalog file")
	catalogCmd.MarkFlagsMutuallyExclusive("json", "yaml")

	viper.BindPFlag("catalog.catalog", catalogCmd.Flags().Lookup("catalog"))
	viper.BindPFlag("catalog.disable", catalogCmd.Flags().Lookup("disable"))
	viper.BindPFlag("catalog.json", catalogCmd.Flags().Lookup("json"))
	viper.BindPFlag("catalog.yaml", catalogCmd.Flags().Lookup("yaml"))

	catalogCmd.MarkFlagFilename("catalog", "yaml", "yml")
}

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the classification rules in match order",
	Example: heredoc.Doc(`
		# List the built-in rules
		❯ ropcat catalog
		# Dump the built-in catalog as a starting point for a custom one
		❯ ropcat catalog --yaml > my-catalog.yaml
		# Check what a custom catalog looks like with a rule disabled
		❯ ropcat catalog --catalog my-catalog.yaml --disable mov`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(); err != nil {
			return err
		}

		path := viper.GetString("catalog.catalog")
		if path == "" {
			path = viper.GetString("classify.catalog")
		}

		catalog, err := rop.LoadCatalog(path, viper.GetStringSlice("catalog.disable"))
		if err != nil {
			return errors.Wrap(err, "failed to load catalog")
		}

		if viper.GetBool("catalog.yaml") {
			return catalog.Encode(os.Stdout)
		}
		return rop.RenderCatalog(os.Stdout, catalog, viper.GetBool("catalog.json"))
	},
}
