package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Seann-Moser/wechat-oauth/oauth/oclient"
)

var (
	authState   string
	authScope   string
	authWebsite bool
)

var authorizeURLCmd = &cobra.Command{
	Use:   "authorize-url <redirect>",
	Short: "Print the WeChat authorize URL for a redirect",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthorizeURL,
}

func init() {
	authorizeURLCmd.Flags().StringVar(&authState, "state", "", "Opaque state echoed back to the redirect")
	authorizeURLCmd.Flags().StringVar(&authScope, "scope", "", "Requested scope (default snsapi_base, or snsapi_login with --website)")
	authorizeURLCmd.Flags().BoolVar(&authWebsite, "website", false, "Build the QR-code login URL for websites")
}

func runAuthorizeURL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var u string
	if authWebsite {
		u = oclient.AuthorizeURLForWebsite(cfg.AppID, args[0], authState, authScope)
	} else {
		u = oclient.AuthorizeURL(cfg.AppID, args[0], authState, authScope)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
	return err
}
