package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"attune/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the behavioral profile catalog",
	RunE:  listProfiles,
}

func listProfiles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := profile.NewCatalogStore(cfg.Store.ProfileDir, logger)
	if err != nil {
		return err
	}
	profiles, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(cmd, profiles)
	}

	w := cmd.OutOrStdout()
	for _, p := range profiles {
		fmt.Fprintf(w, "%-12s %-10s min %d chars  traits: %s\n",
			p.ID, p.Name, p.MinLength, strings.Join(p.Traits, ", "))
	}
	return nil
}
