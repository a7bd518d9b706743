package main

import (
	"fmt"
	"os"

	"github.com/named-data/ndn-validator/policy"
	"github.com/spf13/cobra"
)

var cmdRoot = &cobra.Command{
	Use:   "ndn-validator",
	Short: "NDN trust policy tools",
	Long: `Tools for working with NDN trust policy configuration files.

A policy file declares validation rules and trust anchors; see the
policy package documentation for the configuration grammar.`,
}

var cmdLint = &cobra.Command{
	Use:   "lint CONFIG-FILE",
	Short: "Check a trust policy configuration for errors",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := policy.LoadFile(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("%s: ok\n", args[0])
	},
}

var cmdShow = &cobra.Command{
	Use:   "show CONFIG-FILE",
	Short: "Print the rules and trust anchors of a trust policy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, err := policy.LoadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
			os.Exit(1)
		}

		for _, kind := range []policy.RuleKind{policy.DataRule, policy.InterestRule} {
			for _, rule := range config.Rules.Rules(kind) {
				fmt.Printf("rule %s\n", rule.Id())
				fmt.Printf("  for: %s\n", rule.Kind())
				fmt.Printf("  filters: %d\n", rule.FilterCount())
				fmt.Printf("  checkers: %d\n", rule.CheckerCount())
			}
		}

		for _, anchor := range config.Anchors.Entries() {
			fmt.Printf("trust-anchor %s\n", anchor.Prefix)
			fmt.Printf("  cert: %s\n", anchor.Cert.Name())
		}
	},
}

func init() {
	cobra.EnableCommandSorting = false
	cmdRoot.AddCommand(cmdLint)
	cmdRoot.AddCommand(cmdShow)
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}
