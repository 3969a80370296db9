package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Seann-Moser/wechat-oauth/oauth/bizdata"
)

var (
	decryptSessionKey string
	decryptData       string
	decryptIV         string
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt a mini program user data payload",
	RunE:  runDecrypt,
}

func init() {
	decryptCmd.Flags().StringVar(&decryptSessionKey, "session-key", "", "Base64 session key from jscode2session")
	decryptCmd.Flags().StringVar(&decryptData, "encrypted-data", "", "Base64 encryptedData")
	decryptCmd.Flags().StringVar(&decryptIV, "iv", "", "Base64 iv")
	for _, name := range []string{"session-key", "encrypted-data", "iv"} {
		_ = decryptCmd.MarkFlagRequired(name)
	}
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := bizdata.Decrypt(cfg.AppID, decryptSessionKey, decryptData, decryptIV)
	if err != nil {
		var de *bizdata.DecryptionError
		if errors.As(err, &de) {
			return fmt.Errorf("cannot decrypt payload: %s", de.Reason)
		}
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data.Raw))
	return err
}
