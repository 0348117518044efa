package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncRolesDryRun bool

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User maintenance",
}

var usersSyncRolesCmd = &cobra.Command{
	Use:   "sync-roles",
	Short: "Rewrite role so it matches the highest role in roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		result, err := s.app.Users.SyncRoles(cmd.Context(), syncRolesDryRun)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var usersCheckDriftCmd = &cobra.Command{
	Use:   "check-drift",
	Short: "List users whose role disagrees with roles; exits non-zero when any are found",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		drifted, err := s.app.Users.Drifted(cmd.Context())
		if err != nil {
			return err
		}
		rows := make([]map[string]any, 0, len(drifted))
		for _, u := range drifted {
			rows = append(rows, map[string]any{"id": u.ID, "email": u.Email, "role": u.Role, "roles": u.Roles})
		}
		if err := printJSON(cmd, rows); err != nil {
			return err
		}
		if len(rows) > 0 {
			return fmt.Errorf("%d users have drifted roles", len(rows))
		}
		return nil
	},
}

func init() {
	usersSyncRolesCmd.Flags().BoolVar(&syncRolesDryRun, "dry-run", false, "report drift without writing")
	usersCmd.AddCommand(usersSyncRolesCmd, usersCheckDriftCmd)
	rootCmd.AddCommand(usersCmd)
}
