package main

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/outpostctl/outpost/internal/account"
	"github.com/outpostctl/outpost/internal/config"
)

const (
	passphraseSecretFile = "/run/secrets/outpost_passphrase"
	passphraseEnvVar     = "OUTPOST_PASSPHRASE"
)

// unlock resolves the accounts-store passphrase through the container
// secret file / env var chain first, falling back to an interactive
// password prompt, then unlocks a.store (spec.md §6).
func unlock(a *app) error {
	passphrase, ok := config.PassphraseSource(passphraseSecretFile, passphraseEnvVar)
	if !ok {
		if err := survey.AskOne(&survey.Password{Message: "Accounts store passphrase:"}, &passphrase); err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
	}
	return a.store.Unlock(passphrase)
}

func newAccountsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage saved game accounts",
	}
	cmd.AddCommand(newAccountsAddCommand(a), newAccountsListCommand(a), newAccountsRemoveCommand(a))
	return cmd
}

func newAccountsAddCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Add a new account to the encrypted store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(a); err != nil {
				return err
			}

			var username, world, password string
			questions := []*survey.Question{
				{Name: "username", Prompt: &survey.Input{Message: "Email:"}},
				{Name: "world", Prompt: &survey.Input{Message: "World (e.g. s123-en):"}},
			}
			answers := struct{ Username, World string }{}
			if err := survey.Ask(questions, &answers); err != nil {
				return err
			}
			username, world = answers.Username, answers.World
			if err := survey.AskOne(&survey.Password{Message: "Password:"}, &password); err != nil {
				return err
			}

			acct := account.Account{
				ID:       uuid.NewString(),
				Username: username,
				World:    world,
				Password: password,
			}
			if err := a.store.Put(acct); err != nil {
				return err
			}
			fmt.Printf("added account %s (%s)\n", acct.Username, acct.ID)
			return nil
		},
	}
}

func newAccountsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(a); err != nil {
				return err
			}
			for _, acct := range a.store.List() {
				fmt.Printf("%s  %-30s  world=%s\n", acct.ID, acct.Username, acct.World)
			}
			return nil
		},
	}
}

func newAccountsRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Remove a saved account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(a); err != nil {
				return err
			}
			return a.store.Remove(args[0])
		},
	}
}
