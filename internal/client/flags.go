package client

import "github.com/spf13/cobra"

// TLS contains the tls configuration passed in via cli flags
type TLS struct {
	CACertFileName string
	CertFileName   string
	KeyFileName    string
}

// Enabled reports whether any tls file is configured
func (t *TLS) Enabled() bool {
	return t.CACertFileName != "" || t.CertFileName != "" || t.KeyFileName != ""
}

// Config contains all configuration passed in via cli flags
type Config struct {
	Addr string
	TLS  TLS
}

func (c *Config) Flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Addr, "addr", "127.0.0.1:8000", "server address")
	cmd.Flags().StringVar(&c.TLS.CACertFileName, "tls-ca-cert", "", "tls ca cert file name to use for validating server certificate")
	cmd.Flags().StringVar(&c.TLS.CertFileName, "tls-cert", "", "tls client certificate file name")
	cmd.Flags().StringVar(&c.TLS.KeyFileName, "tls-key", "", "tls client key file name")
}
