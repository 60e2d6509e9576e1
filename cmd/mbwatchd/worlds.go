package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sileric/mbwatch/internal/scope"
)

func worldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worlds",
		Short: "Print the resolved subscription scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := newAPIClient()
			dir, sel, err := loadScope(ctx, client)
			if err != nil {
				return err
			}

			resolved := scope.Resolve(sel, dir)
			fmt.Printf("Mode: %s\n", sel.Mode)
			for _, r := range resolved {
				names := make([]string, 0, len(r.WorldIDs))
				for _, id := range r.WorldIDs {
					name, ok := dir.WorldName(id)
					if !ok {
						name = fmt.Sprintf("world-%d", id)
					}
					names = append(names, fmt.Sprintf("%s (%d)", name, id))
				}
				if len(names) == 0 {
					fmt.Printf("  %s: no worlds resolved\n", r.Label)
					continue
				}
				fmt.Printf("  %s: %s\n", r.Label, strings.Join(names, ", "))
			}
			return nil
		},
	}
}
