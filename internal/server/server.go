package server

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/spf13/cobra"

	"github.com/joshuarubin/moldock-supervisor/pkg/project"
	supervisorv1 "github.com/joshuarubin/moldock-supervisor/pkg/proto/supervisor/v1"
	"github.com/joshuarubin/moldock-supervisor/pkg/supervisor"
)

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
	Addr            string
	TLS             TLS
	ShutdownTimeout time.Duration
}

const (
	DefaultAddr             = "127.0.0.1:8000"
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultKeepaliveTime    = 30 * time.Second
	DefaultKeepaliveTimeout = 20 * time.Second
	DefaultKeepaliveMinTime = 15 * time.Second
)

func (c *Config) Flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Addr, "listen-addr", DefaultAddr, "listen address")
	cmd.Flags().StringVar(&c.TLS.CACertFileName, "tls-ca-cert", "", "tls ca cert file name to use for validating client certificates")
	cmd.Flags().StringVar(&c.TLS.CertFileName, "tls-cert", "", "tls server certificate file name")
	cmd.Flags().StringVar(&c.TLS.KeyFileName, "tls-key", "", "tls server key file name")
	cmd.Flags().DurationVar(&c.ShutdownTimeout, "shutdown-timeout", DefaultShutdownTimeout, "time to wait for connections to close and jobs to finish before forcing shutdown")
}

// ErrIncompleteTLS is returned by New when only some of the tls files are
// configured
var ErrIncompleteTLS = errors.New("tls requires a ca cert, a cert and a key")

type Server struct {
	supervisorv1.UnimplementedSupervisorServer

	cfg     *Config
	sup     *supervisor.Supervisor
	sources []project.Source
	s       *grpc.Server
	health  *health.Server
}

// New creates a grpc server that exposes sup. Projects are discovered in
// sources.
func New(cfg *Config, sup *supervisor.Supervisor, sources []project.Source) (*Server, error) {
	srv := Server{
		cfg:     cfg,
		sup:     sup,
		sources: sources,
	}

	creds, err := srv.credentials()
	if err != nil {
		return nil, err
	}

	srv.s = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             DefaultKeepaliveMinTime,
			PermitWithoutStream: true,
		}),
		grpc.Creds(creds),
		grpc.ChainUnaryInterceptor(logUnary),
	)
	srv.health = health.NewServer()
	healthpb.RegisterHealthServer(srv.s, srv.health)
	reflection.Register(srv.s)

	supervisorv1.RegisterSupervisorServer(srv.s, &srv)
	srv.health.SetServingStatus(supervisorv1.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &srv, nil
}

func (s *Server) credentials() (credentials.TransportCredentials, error) {
	if !s.cfg.TLS.Enabled() {
		slog.Warn("tls is not configured, serving without transport security")
		return insecure.NewCredentials(), nil
	}

	if s.cfg.TLS.CACertFileName == "" || s.cfg.TLS.CertFileName == "" || s.cfg.TLS.KeyFileName == "" {
		return nil, ErrIncompleteTLS
	}

	tlsConfig, err := s.tlsConfig()
	if err != nil {
		return nil, err
	}

	return credentials.NewTLS(tlsConfig), nil
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	crt, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFileName, s.cfg.TLS.KeyFileName)
	if err != nil {
		return nil, fmt.Errorf("error loading server keypair: %w", err)
	}

	caCert, err := os.ReadFile(s.cfg.TLS.CACertFileName)
	if err != nil {
		return nil, fmt.Errorf("error loading ca-cert file: %w", err)
	}

	clientCAs := x509.NewCertPool()
	clientCAs.AppendCertsFromPEM(caCert)

	return &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientCAs,
		Certificates: []tls.Certificate{crt},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// Serve listens on the configured address and blocks until the server stops
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	return s.ServeListener(lis)
}

// ServeListener serves on lis and blocks until the server stops
func (s *Server) ServeListener(lis net.Listener) error {
	slog.Info("listening", "addr", lis.Addr())
	return s.s.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.s.Stop()
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.s.GracefulStop()
}
