package cli

import (
	"fmt"
	"io"

	"jonglog-service/internal/config"
	pkgAuth "jonglog-service/pkg/auth"

	"github.com/spf13/cobra"
)

type TokenOptions struct {
	Config  string
	Subject string
	Expire  int
}

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Issue an editor token signed with the server's secret",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			expire := conf.JWT.Expire
			if opts.Expire > 0 {
				expire = opts.Expire
			}
			token, err := pkgAuth.NewSigner(conf.JWT.Secret, expire).GenerateToken(opts.Subject)
			if err != nil {
				return err
			}
			out := map[string]interface{}{"token": token, "subject": opts.Subject, "expireHours": expire}
			return writeResult(cmd, rootOpts, out, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "config.yaml", "path to the server config file")
	cmd.Flags().StringVar(&opts.Subject, "subject", "jongctl", "token subject, e.g. the device or organiser")
	cmd.Flags().IntVar(&opts.Expire, "expire", 0, "expiry in hours (defaults to jwt.expire)")

	return cmd
}
