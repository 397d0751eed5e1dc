package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bnpl/internal/cliargs"
	"bnpl/internal/fileutil"
	"bnpl/internal/services"
	"bnpl/internal/sound"
	"bnpl/internal/storage"
)

func newSoundCommand(ctx *commandContext) *cobra.Command {
	soundCmd := &cobra.Command{
		Use:   "sound",
		Short: "Inspect and maintain stored sounds",
	}

	soundCmd.AddCommand(newSoundGetCommand(ctx))
	soundCmd.AddCommand(newSoundSearchCommand(ctx))
	soundCmd.AddCommand(newSoundRmCommand(ctx))
	soundCmd.AddCommand(newSoundCheckCommand(ctx))
	soundCmd.AddCommand(newSoundRepairCommand(ctx))
	soundCmd.AddCommand(newSoundFetchCommand(ctx))

	return soundCmd
}

func newSoundGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <uid>",
		Short: "Print the stored record of a sound",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *storage.Library) error {
				s, err := lib.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, lib.Naming().ToMap(s))
			})
		},
	}
}

func newSoundSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		text       string
		matches    []string
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := storage.Query{Text: text, Limit: limit, Offset: offset}
			for _, m := range matches {
				field, raw, ok := strings.Cut(m, "=")
				if !ok || strings.TrimSpace(field) == "" {
					return services.Wrap(services.ErrValidation, "cli", "search", fmt.Sprintf("--match expects field=value, got %q", m), nil)
				}
				value, err := cliargs.Value(raw)
				if err != nil {
					return err
				}
				if q.Match == nil {
					q.Match = make(map[string]any)
				}
				q.Match[strings.TrimSpace(field)] = value
			}
			if err := q.Validate(); err != nil {
				return err
			}
			return ctx.withLibrary(func(lib *storage.Library) error {
				found, err := lib.Search(cmd.Context(), q)
				if err != nil {
					return err
				}
				naming := lib.Naming()
				if wantsJSON(cmd, jsonOutput) {
					docs := make([]map[string]any, 0, len(found))
					for _, s := range found {
						docs = append(docs, naming.ToMap(s))
					}
					return writeNDJSON(cmd, docs)
				}
				if len(found) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sounds found")
					return nil
				}
				rows := make([][]string, 0, len(found))
				for _, s := range found {
					rows = append(rows, []string{s.UID, naming.Slug(s), s.Format, strconv.Itoa(len(s.Properties))})
				}
				printTable(cmd, []string{"UID", "Slug", "Format", "Properties"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&text, "text", "q", "", "Free-text match against every field")
	cmd.Flags().StringArrayVarP(&matches, "match", "m", nil, "Exact field match as field=value (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit NDJSON even when attached to a terminal")
	return cmd
}

func newSoundRmCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <uid>...",
		Short: "Delete sounds from both stores",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *storage.Library) error {
				out := cmd.OutOrStdout()
				for _, uid := range args {
					if err := lib.Rm(cmd.Context(), uid); err != nil {
						return err
					}
					fmt.Fprintf(out, "Removed %s\n", uid)
				}
				return nil
			})
		},
	}
}

func newSoundCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check <uid>...",
		Short: "Report whether the blob and record stores agree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *storage.Library) error {
				results := make([]storage.Consistency, 0, len(args))
				for _, uid := range args {
					s, err := lib.Get(cmd.Context(), uid)
					if err != nil {
						return err
					}
					c, err := lib.Check(cmd.Context(), s)
					if err != nil {
						return err
					}
					results = append(results, c)
				}
				return renderConsistency(cmd, results, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit NDJSON even when attached to a terminal")
	return cmd
}

func newSoundRepairCommand(ctx *commandContext) *cobra.Command {
	var (
		localPath  string
		document   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "repair <uid>",
		Short: "Copy whatever one store is missing from the other",
		Long: `Repair a sound written to only one store.

A missing blob is re-uploaded from the local file named by the record, or by
--path when the file moved. A missing record is rebuilt from --sound, a JSON or
YAML document in the format printed by "bnpl sound get".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *storage.Library) error {
				s, err := lib.Get(cmd.Context(), args[0])
				if err != nil && (document == "" || !errors.Is(err, services.ErrNotFound)) {
					return err
				}
				if document != "" {
					if s, err = loadSound(document); err != nil {
						return err
					}
					s.UID = args[0]
				}
				if localPath != "" {
					s.Path = localPath
				}
				c, err := lib.Repair(cmd.Context(), s)
				if err != nil {
					return err
				}
				return renderConsistency(cmd, []storage.Consistency{c}, jsonOutput)
			})
		},
	}

	cmd.Flags().StringVarP(&localPath, "path", "p", "", "Local file to upload when the blob is missing")
	cmd.Flags().StringVar(&document, "sound", "", "Sound document used when the record is missing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit NDJSON even when attached to a terminal")
	return cmd
}

func loadSound(path string) (*sound.Sound, error) {
	doc, err := cliargs.Value(path)
	if err != nil {
		return nil, err
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "cli", "repair", fmt.Sprintf("%s does not hold a sound document", path), nil)
	}
	return sound.FromMap(m)
}

func newSoundFetchCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <uid>",
		Short: "Write the stored content of a sound to a file or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *storage.Library) error {
				s, body, err := lib.Read(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer body.Close()
				if output == "" || output == "-" {
					_, err := io.Copy(cmd.OutOrStdout(), body)
					return err
				}
				dest := output
				if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
					dest = filepath.Join(dest, lib.Naming().Filename(s))
				}
				size, _, err := fileutil.WriteAtomic(dest, body, 0o644)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", size, dest)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file or directory (default stdout)")
	return cmd
}

func renderConsistency(cmd *cobra.Command, results []storage.Consistency, jsonOutput bool) error {
	if wantsJSON(cmd, jsonOutput) {
		return writeNDJSON(cmd, results)
	}
	rows := make([][]string, 0, len(results))
	for _, c := range results {
		rows = append(rows, []string{c.UID, c.BlobKey, yesNo(c.Blob), yesNo(c.Record), yesNo(c.Consistent())})
	}
	printTable(cmd, []string{"UID", "Blob key", "Blob", "Record", "Consistent"}, rows, nil)
	return nil
}
