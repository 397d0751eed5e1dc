package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bnpl/internal/option"
	"bnpl/internal/plugin"
)

func newPluginsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var capability string

	cmd := &cobra.Command{
		Use:         "plugins [key]",
		Short:       "List registered plugins or describe one",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := ctx.plugins()
			if len(args) == 1 {
				desc, err := reg.Descriptor(args[0])
				if err != nil {
					return err
				}
				if wantsJSON(cmd, jsonOutput) {
					return writeJSON(cmd, desc)
				}
				renderDescriptor(cmd, desc)
				return nil
			}

			descs := reg.Describe()
			if capability != "" {
				want, err := plugin.ParseCapability(capability)
				if err != nil {
					return err
				}
				filtered := descs[:0]
				for _, d := range descs {
					if d.Type == want {
						filtered = append(filtered, d)
					}
				}
				descs = filtered
			}
			if wantsJSON(cmd, jsonOutput) {
				return writeJSON(cmd, descs)
			}
			if len(descs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plugins registered")
				return nil
			}
			rows := make([][]string, 0, len(descs))
			for _, d := range descs {
				rows = append(rows, []string{d.Key, string(d.Type), strconv.Itoa(len(d.Options)), d.Description})
			}
			printTable(cmd, []string{"Key", "Type", "Options", "Description"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON even when attached to a terminal")
	cmd.Flags().StringVarP(&capability, "type", "t", "", "Only list plugins of this type")
	return cmd
}

func renderDescriptor(cmd *cobra.Command, desc plugin.Descriptor) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", desc.Key, desc.Type)
	if desc.Description != "" {
		fmt.Fprintln(out, desc.Description)
	}
	fmt.Fprintf(out, "Implemented by %s\n\n", desc.ImportPath)
	if len(desc.Options) == 0 {
		fmt.Fprintln(out, "No options")
		return
	}
	rows := make([][]string, 0, len(desc.Options))
	for _, o := range desc.Options {
		rows = append(rows, []string{o.Name, optionType(o), o.Alias, yesNo(o.Required), formatDefault(o.Default), o.Description})
	}
	printTable(cmd, []string{"Option", "Type", "Alias", "Required", "Default", "Description"}, rows, nil)
}

func optionType(o option.Description) string {
	if o.Items != "" {
		return fmt.Sprintf("%s<%s>", o.Type, o.Items)
	}
	return string(o.Type)
}

func formatDefault(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(value)
	}
}
