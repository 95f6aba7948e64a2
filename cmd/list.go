package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"github.com/AlexanderGrooff/uplaybook/pkg/playbook"
)

var listNamesOnly bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the playbooks found on the playbook path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !listNamesOnly {
			printPlaybooks(out, GetConfig().PlaybookPath)
			return nil
		}
		playbooks, err := playbook.List(GetConfig().PlaybookPath)
		if err != nil {
			return err
		}
		for _, pb := range playbooks {
			fmt.Fprintln(out, pb.Name)
		}
		return nil
	},
}

// printPlaybooks writes every playbook with its description. Playbooks that
// an earlier one with the same name hides are marked.
func printPlaybooks(out io.Writer, playbookPath string) {
	playbooks, err := playbook.List(playbookPath)
	if err != nil {
		common.LogWarn("Failed to list playbooks", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	fmt.Fprintln(out, "Available playbooks:")
	seen := make(map[string]bool)
	for _, pb := range playbooks {
		hidden := ""
		if seen[pb.Name] {
			hidden = " *HIDDEN BY PREVIOUS PLAYBOOK*"
		}
		seen[pb.Name] = true
		fmt.Fprintf(out, "  - %s (%s%s)\n", pb.Name, pb.Directory, hidden)
		if desc := playbook.Describe(pb.File); desc != "" {
			fmt.Fprintf(out, "      %s\n", desc)
		}
	}
	fmt.Fprintln(out)
}

func init() {
	listCmd.Flags().BoolVar(&listNamesOnly, "names", false, "Only print playbook names")
	RootCmd.AddCommand(listCmd)
}
