package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/indy"
)

func newSitesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sites <classfile>",
		Short: "List the invokedynamic call sites of a class file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := classfile.ParseFile(args[0])
			if err != nil {
				return err
			}
			sites, err := cf.InvokeDynamicSites()
			if err != nil {
				return err
			}
			a.logger.Debug("invokedynamic sites", zap.String("file", args[0]), zap.Int("count", len(sites)))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tSITE\tBOOTSTRAP\tIMPL")
			for _, site := range sites {
				bsm, bargs, _, err := indy.BootstrapFromSite(site)
				impl := bargs.Impl.String()
				if err != nil {
					impl = "unsupported: " + err.Error()
				}
				fmt.Fprintf(w, "%d\t%s\t%s.%s\t%s\n", site.Index, site.NameAndDescriptor(), bsm.Owner, bsm.Name, impl)
			}
			return w.Flush()
		},
	}
}
