package main

import (
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/staffboard/internal/application"
)

func newHashKeyCommand() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "hash-key",
		Short: "Hash an API key for security.api_key_hash, generating one when --key is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := struct {
				APIKey string `yaml:"api_key,omitempty"`
				Hash   string `yaml:"api_key_hash"`
			}{}

			key = strings.TrimSpace(key)
			if key == "" {
				generated, err := application.GenerateAPIKey(32)
				if err != nil {
					return err
				}
				key = generated
				out.APIKey = generated
			}

			hash, err := application.HashAPIKey(key, application.DefaultArgon2idParams)
			if err != nil {
				return err
			}
			out.Hash = hash
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(out)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key to hash")
	return cmd
}
