package main

import (
	"context"
	"os"

	gosalesforce "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/leadon/outreach-cli/internal/channel"
	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/internal/rategate"
	"github.com/leadon/outreach-cli/internal/store"
	sfpkg "github.com/leadon/outreach-cli/pkg/salesforce"
)

// appEnv holds the initialized store, rate gate, and channel adapters shared
// by the search/campaign/serve commands.
type appEnv struct {
	Store    store.Store
	Gate     *rategate.Gate
	Adapters *channel.Registry
	Policies map[model.Channel]channel.Policy
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store, runs migrations, loads channel policies, and wires
// the rate gate and bridge adapters. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	policies, err := channel.LoadPolicies(cfg.Channels.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	adapters := channel.NewRegistry()
	adapters.Register(channel.NewLinkedIn(cfg.Campaign.BridgeURL))
	adapters.Register(channel.NewTelegram(cfg.Campaign.BridgeURL))

	return &appEnv{
		Store:    st,
		Gate:     rategate.New(st, policies),
		Adapters: adapters,
		Policies: policies,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (OUTREACH_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := gosalesforce.Init(gosalesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
