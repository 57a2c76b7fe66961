package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"octosurf/internal/flags"
	"octosurf/internal/patterns"
)

var patternsListQuiet bool
var patternsListFile string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect pattern files",
	Long: `Inspect OctoSurf pattern files.

A pattern file holds one literal pattern per line. Line order becomes the
column order of the scan report.

Examples:
  # Show how a pattern file is read
  octosurf patterns list --query-file patterns.txt
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the patterns in a pattern file",
	Long: `List the patterns in a pattern file, in report column order.

Examples:
  octosurf patterns list --query-file patterns.txt
  octosurf patterns list -q patterns.txt --quiet

Output:
  A numbered list of patterns followed by the report header:
    ----------------------------------------
    PATTERNS: {FILE}
    ----------------------------------------
      1  {PATTERN}
      ...
    header: repo,{PATTERN},...
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := patterns.LoadFile(patternsListFile)
		if err != nil {
			return err
		}
		if patternsListQuiet {
			for _, p := range set.All() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		}
		printPatterns(cmd.OutOrStdout(), patternsListFile, set)
		return nil
	},
}

func printPatterns(w io.Writer, source string, set *patterns.Set) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "PATTERNS: %s\n", source)
	fmt.Fprintln(w, "----------------------------------------")
	for i, p := range set.All() {
		if p == "" {
			fmt.Fprintf(w, "%3d  ", i+1)
			faint.Fprintln(w, "(empty, never matches)")
			continue
		}
		fmt.Fprintf(w, "%3d  %s\n", i+1, p)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, "header: repo")
	for _, p := range set.All() {
		fmt.Fprintf(w, ",%s", p)
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd)
	patternsListCmd.Flags().StringVarP(&patternsListFile, flags.FlagQueryFile, "q", "", "Pattern file to read (required)")
	patternsListCmd.Flags().BoolVar(&patternsListQuiet, "quiet", false, "Only print the patterns, one per line")
	_ = patternsListCmd.MarkFlagRequired(flags.FlagQueryFile)
}
