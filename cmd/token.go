package cmd

import (
	"fmt"

	"skillpath_backend/internal/util"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Issue a JWT for an existing user (local development)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := bootstrap(cmd, false)
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		user, err := a.Services.User.UserRepo.FindByEmail(cmd.Context(), args[0])
		if err != nil {
			if util.IsRecordNotFound(err) {
				return util.ErrUserNotFound
			}
			return err
		}
		cfg := a.Config()
		token, err := util.GenerateJWT(user, cfg.JWT.Secret, cfg.JWT.ExpireTime)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
