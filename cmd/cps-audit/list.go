package main

import (
	"fmt"

	"github.com/Sternrassler/cps-audit/pkg/logging"
	"github.com/spf13/cobra"
)

func newContractsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contracts",
		Short: "List the top-level contracts visible to the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			logging.Setup(s.Log)

			cl, closeClient, err := openClient(cmd.Context(), s, logging.NewLogger("cli"))
			if err != nil {
				return err
			}
			defer closeClient()

			contracts, err := cl.ListContracts(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range contracts {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func newEnrollmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrollments <contract-id>",
		Short: "List the enrollment IDs of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			logging.Setup(s.Log)

			cl, closeClient, err := openClient(cmd.Context(), s, logging.NewLogger("cli"))
			if err != nil {
				return err
			}
			defer closeClient()

			ids, err := cl.ListEnrollments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
