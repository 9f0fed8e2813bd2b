package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshuarubin/moldock-supervisor/pkg/launcher"
	"github.com/joshuarubin/moldock-supervisor/pkg/project"
	supervisorv1 "github.com/joshuarubin/moldock-supervisor/pkg/proto/supervisor/v1"
	"github.com/joshuarubin/moldock-supervisor/pkg/registry"
	"github.com/joshuarubin/moldock-supervisor/pkg/supervisor"
)

// Client talks to a supervisor server and converts its messages back to Go
// types
type Client struct {
	conn *grpc.ClientConn
	rpc  supervisorv1.SupervisorClient
}

// ErrIncompleteTLS is returned by Dial when only some of the tls files are
// configured
var ErrIncompleteTLS = errors.New("tls requires a ca cert, a cert and a key")

// Dial creates a client for the server at cfg.Addr
func Dial(cfg *Config, opts ...grpc.DialOption) (*Client, error) {
	creds, err := cfg.credentials()
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(cfg.Addr, append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("error creating client: %w", err)
	}

	return New(conn), nil
}

// New returns a Client that uses conn
func New(conn *grpc.ClientConn) *Client {
	return &Client{
		conn: conn,
		rpc:  supervisorv1.NewSupervisorClient(conn),
	}
}

func (c *Config) credentials() (credentials.TransportCredentials, error) {
	if !c.TLS.Enabled() {
		return insecure.NewCredentials(), nil
	}

	if c.TLS.CACertFileName == "" || c.TLS.CertFileName == "" || c.TLS.KeyFileName == "" {
		return nil, ErrIncompleteTLS
	}

	crt, err := tls.LoadX509KeyPair(c.TLS.CertFileName, c.TLS.KeyFileName)
	if err != nil {
		return nil, fmt.Errorf("error loading client keypair: %w", err)
	}

	caCert, err := os.ReadFile(c.TLS.CACertFileName)
	if err != nil {
		return nil, fmt.Errorf("error loading ca-cert file: %w", err)
	}

	rootCAs := x509.NewCertPool()
	rootCAs.AppendCertsFromPEM(caCert)

	return credentials.NewTLS(&tls.Config{
		RootCAs:      rootCAs,
		Certificates: []tls.Certificate{crt},
		MinVersion:   tls.VersionTLS13,
	}), nil
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run runs the worker on the server and waits for it
func (c *Client) Run(ctx context.Context, req supervisor.Request) (*launcher.Result, error) {
	in, err := supervisorv1.ToStruct(req)
	if err != nil {
		return nil, err
	}

	out, err := c.rpc.Run(ctx, in)
	if err != nil {
		return nil, err
	}

	var res launcher.Result
	if err = supervisorv1.FromStruct(out, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Launch starts a job on the server
func (c *Client) Launch(ctx context.Context, req supervisor.Request) (*supervisor.Launched, error) {
	in, err := supervisorv1.ToStruct(req)
	if err != nil {
		return nil, err
	}

	out, err := c.rpc.Launch(ctx, in)
	if err != nil {
		return nil, err
	}

	var l supervisor.Launched
	if err = supervisorv1.FromStruct(out, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Status returns the status of job id
func (c *Client) Status(ctx context.Context, id registry.ID) (*registry.Status, error) {
	out, err := c.rpc.Status(ctx, wrapperspb.UInt64(uint64(id)))
	if err != nil {
		return nil, err
	}

	var st registry.Status
	if err = supervisorv1.FromStruct(out, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Output copies the output of job id to w until the worker exits or ctx is
// done
func (c *Client) Output(ctx context.Context, id registry.ID, w io.Writer) error {
	stream, err := c.rpc.Output(ctx, wrapperspb.UInt64(uint64(id)))
	if err != nil {
		return err
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err = w.Write(msg.GetValue()); err != nil {
			return err
		}
	}
}

// Progress reads the progress of the project in dir. path defaults to the
// project's progress file when empty.
func (c *Client) Progress(ctx context.Context, dir, path string) (*project.Progress, error) {
	in, err := supervisorv1.ToStruct(supervisorv1.ProgressRequest{Project: dir, Path: path})
	if err != nil {
		return nil, err
	}

	out, err := c.rpc.Progress(ctx, in)
	if err != nil {
		return nil, err
	}

	var p project.Progress
	if err = supervisorv1.FromStruct(out, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Projects lists the projects known to the server
func (c *Client) Projects(ctx context.Context) ([]project.Project, error) {
	out, err := c.rpc.Projects(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}

	var resp supervisorv1.ProjectsResponse
	if err = supervisorv1.FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// ReadText returns the contents of the file at path on the server
func (c *Client) ReadText(ctx context.Context, path string) (string, error) {
	out, err := c.rpc.ReadText(ctx, wrapperspb.String(path))
	if err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// CSVPreview returns the header and up to maxRows records of the csv file at
// path on the server
func (c *Client) CSVPreview(ctx context.Context, path string, maxRows int) (*project.CSVPreview, error) {
	in, err := supervisorv1.ToStruct(supervisorv1.CSVPreviewRequest{Path: path, MaxRows: maxRows})
	if err != nil {
		return nil, err
	}

	out, err := c.rpc.CSVPreview(ctx, in)
	if err != nil {
		return nil, err
	}

	var p project.CSVPreview
	if err = supervisorv1.FromStruct(out, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
