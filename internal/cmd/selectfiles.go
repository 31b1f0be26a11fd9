package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/auscope/vgljobs/pkg/fileselect"
)

var selectFilesCmd = &cobra.Command{
	Use:   "select-files <file.xml|->",
	Short: "List the fileUrl entries of a file selection document",
	Long: `Print one URL per line for every fileUrl element in a batch file
selection document. Use - to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runSelectFiles,
}

func init() {
	rootCmd.AddCommand(selectFilesCmd)
}

func runSelectFiles(cmd *cobra.Command, args []string) error {
	var (
		doc []byte
		err error
	)
	if args[0] == "-" {
		doc, err = io.ReadAll(cmd.InOrStdin())
	} else {
		doc, err = os.ReadFile(args[0])
	}
	if err != nil {
		if os.IsNotExist(err) {
			return exitError(foundry.ExitFileNotFound, "Selection file not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to read selection", err)
	}

	urls, err := fileselect.SelectedFileURLs(doc)
	if errors.Is(err, fileselect.ErrNoFiles) {
		return exitError(foundry.ExitInvalidArgument, "No files selected", err)
	}
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Malformed selection", err)
	}
	for _, u := range urls {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), u); err != nil {
			return err
		}
	}
	return nil
}
