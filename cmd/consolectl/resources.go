package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/devgrupoglobalsoft/apiexec"
	"github.com/devgrupoglobalsoft/apiexec/services"
)

type record = map[string]any

var (
	listPage     int
	listPageSize int
	listFilter   string
	listFresh    bool

	getOutput string
)

func resourceFor(exec *apiexec.Executor, name string) (*services.Resource[record, record], error) {
	all := services.Resources()
	path, ok := all[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(all))
		for n := range all {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown resource %q, expected one of: %s", name, strings.Join(names, ", "))
	}
	return services.NewResource[record, record](exec, path), nil
}

var listCmd = &cobra.Command{
	Use:   "list <resource>",
	Short: "List a collection",
	Example: `  consolectl list licenses --filter acme
  consolectl list users --page 2 --page-size 50`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, exec, closer, err := console(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		res, err := resourceFor(exec, args[0])
		if err != nil {
			return err
		}

		var opts []apiexec.CallOption
		if listFresh {
			opts = append(opts, apiexec.NoCache())
		}
		resp, err := res.List(cmd.Context(), services.ListOptions{
			Page:     listPage,
			PageSize: listPageSize,
			Filter:   listFilter,
		}, opts...)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Nome", "Ativo"})
		for _, item := range resp.Data.Items {
			active := faint("-")
			if v, ok := item["ativo"].(bool); ok && v {
				active = greenCheck
			} else if ok {
				active = redCross
			}
			t.AppendRow(table.Row{
				faint(fmt.Sprint(item["id"])),
				bold(truncate(fmt.Sprint(item["nome"]), 60)),
				active,
			})
		}

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		fmt.Println(faint(fmt.Sprintf("page %d, %d of %d", resp.Data.Page, len(resp.Data.Items), resp.Data.TotalCount)))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <resource> <id>",
	Short: "Show one record as JSON or YAML",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, exec, closer, err := console(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		res, err := resourceFor(exec, args[0])
		if err != nil {
			return err
		}
		resp, err := res.Get(cmd.Context(), args[1])
		if err != nil {
			return err
		}

		return writeDocument(os.Stdout, getOutput, resp.Data)
	},
}

// writeDocument renders v as indented JSON or as YAML.
func writeDocument(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = w.Write(out)
		return err
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete <resource> <id>...",
	Short: "Delete one or more records",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, exec, closer, err := console(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		res, err := resourceFor(exec, args[0])
		if err != nil {
			return err
		}

		ids := args[1:]
		if len(ids) == 1 {
			if _, err := res.Delete(cmd.Context(), ids[0]); err != nil {
				return err
			}
			logSuccess("deleted %s", bold(ids[0]))
			return nil
		}

		resp, err := res.DeleteMany(cmd.Context(), ids)
		if err != nil {
			return err
		}
		logSuccess("deleted %d of %d records", resp.Data, len(ids))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, getCmd, deleteCmd)

	listCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	listCmd.Flags().IntVar(&listPageSize, "page-size", 25, "Page size")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "Filter on name")
	listCmd.Flags().BoolVar(&listFresh, "fresh", false, "Bypass the response cache")

	getCmd.Flags().StringVarP(&getOutput, "output", "o", "json", "Output format (json, yaml)")
}
