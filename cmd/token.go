package main

import (
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-analytics/internal/auth/jwt"
	"github.com/spf13/cobra"
)

var (
	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the report API",
		RunE:  token,
	}

	tokenTTL     time.Duration
	tokenSubject string
)

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "report consumer name")
}

func token(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.HTTP.JWTSecret == "" {
		return fmt.Errorf("http.jwt_secret is not set")
	}
	tok, err := jwt.New(cfg.HTTP.JWTSecret).Issue(tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
