package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/shellforge/shellforge/pkg/descriptor"
)

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "List the outputs a descriptor declares",
		Long: `List the outputs a descriptor declares without resolving any
sources: every declared shell, once per target platform.`,
		Example: `  # Show outputs of the descriptor in the current directory
  shellforge show`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			parser, err := descriptor.NewParser()
			if err != nil {
				return err
			}
			desc, err := parser.Parse(cmd.Context(), []string{path})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(showListing(desc))
			}

			if desc.Description != "" {
				fmt.Println(desc.Description)
				fmt.Println()
			}

			inputs := make([]string, 0, len(desc.Inputs))
			for id := range desc.Inputs {
				inputs = append(inputs, id)
			}
			sort.Strings(inputs)

			fmt.Println("inputs:")
			for _, id := range inputs {
				in := desc.Inputs[id]
				switch {
				case in.Follows != "":
					fmt.Printf("  %s -> follows %s\n", id, in.Follows)
				case in.Rev != "":
					fmt.Printf("  %s -> %s@%s\n", id, in.URL, in.Rev)
				default:
					fmt.Printf("  %s -> %s (unpinned)\n", id, in.URL)
				}
			}

			fmt.Println("devShells:")
			for _, out := range showListing(desc) {
				fmt.Printf("  %s\n", out)
			}
			return nil
		},
	}

	return cmd
}

// showListing enumerates platform.shell output names in stable order.
func showListing(desc *descriptor.Descriptor) []string {
	shells := make([]string, 0, len(desc.Shells))
	for name := range desc.Shells {
		shells = append(shells, name)
	}
	sort.Strings(shells)

	platforms := append([]string(nil), desc.Platforms...)
	sort.Strings(platforms)

	listing := make([]string, 0, len(platforms)*len(shells))
	for _, p := range platforms {
		for _, s := range shells {
			listing = append(listing, fmt.Sprintf("%s.%s", p, s))
		}
	}
	return listing
}
