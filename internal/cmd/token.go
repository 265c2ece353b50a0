package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ely.by/multilogin/internal/security"
)

var tokenCmd = &cobra.Command{
	Use:   "token [scopes...]",
	Short: "Creates a new token, which allows to interact with the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("specify at least one scope: identities, whitelist")
		}

		container := shouldGetContainer()
		var auth *security.Jwt
		err := container.Resolve(&auth)
		if err != nil {
			return err
		}

		scopes := make([]security.Scope, len(args))
		for i, arg := range args {
			scopes[i] = security.Scope(arg)
		}

		token, err := auth.NewToken(scopes...)
		if err != nil {
			return fmt.Errorf("unable to create a new token: %w", err)
		}

		fmt.Println(token)

		return nil
	},
}

func init() {
	RootCmd.AddCommand(tokenCmd)
}
