package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/m5zonk/api/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProjectID = "GOOGLE_CLOUD_PROJECT"
)

// ErrProviderClosed is returned by Client once Close has been called.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider owns the Firestore client of a process. The client is dialled on first use.
type Provider struct {
	cfg         config.FirestoreConfig
	dialTimeout time.Duration
	clientOpts  []option.ClientOption
	txDefaults  []TxOption
	lookupEnv   func(string) string

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// ProviderOption customises a Provider.
type ProviderOption func(*Provider)

// WithDialTimeout bounds client creation.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithClientOptions appends raw client options, e.g. a custom token source.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// WithTransactionDefaults applies attempts and timeout to every transaction run through
// the provider. Options passed to RunTransaction override them.
func WithTransactionDefaults(attempts int, timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		p.txDefaults = []TxOption{WithTxAttempts(attempts), WithTxTimeout(timeout)}
	}
}

// NewProvider returns a Provider for cfg. No connection is made until Client is called.
func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg:         cfg,
		dialTimeout: defaultDialTimeout,
		lookupEnv:   os.Getenv,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Client returns the shared client, creating it on the first call.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		return p.client, nil
	}

	conn, err := p.connection()
	if err != nil {
		return nil, err
	}
	if conn.emulatorHost != "" && os.Getenv(envEmulatorHost) == "" {
		// the client library only adds the emulator owner credentials when the variable is set
		_ = os.Setenv(envEmulatorHost, conn.emulatorHost)
	}
	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	client, err := firestore.NewClient(dialCtx, conn.projectID, conn.options(p.clientOpts)...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client for project %s: %w", conn.projectID, err)
	}
	p.client = client
	return client, nil
}

// Close releases the client. Later Client calls fail with ErrProviderClosed.
func (p *Provider) Close(context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// RunTransaction runs fn in a transaction using the provider defaults merged with opts.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	merged := append(append([]TxOption(nil), p.txDefaults...), opts...)
	return runTransaction(ctx, client, fn, newTxConfig(merged))
}

// connection is the resolved way of reaching Firestore.
type connection struct {
	projectID       string
	emulatorHost    string
	credentialsJSON string
	credentialsFile string
}

func (p *Provider) connection() (connection, error) {
	conn := connection{
		projectID:       strings.TrimSpace(p.cfg.ProjectID),
		emulatorHost:    strings.TrimSpace(p.cfg.EmulatorHost),
		credentialsJSON: strings.TrimSpace(p.cfg.CredentialsJSON),
		credentialsFile: strings.TrimSpace(p.cfg.CredentialsFile),
	}
	if conn.projectID == "" {
		conn.projectID = strings.TrimSpace(p.lookupEnv(envGoogleProjectID))
	}
	if conn.emulatorHost == "" {
		conn.emulatorHost = strings.TrimSpace(p.lookupEnv(envEmulatorHost))
	}
	if conn.projectID == "" {
		return connection{}, errors.New("firestore: project id is required")
	}
	return conn, nil
}

func (c connection) options(extra []option.ClientOption) []option.ClientOption {
	opts := append([]option.ClientOption(nil), extra...)
	switch {
	case c.emulatorHost != "":
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(c.emulatorHost),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	case c.credentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.credentialsJSON)))
	case c.credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.credentialsFile))
	}
	return opts
}
