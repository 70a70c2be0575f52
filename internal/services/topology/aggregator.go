// Package topology builds the static-route view of a tenant: every site with
// its flattened interface subnets plus the account's remote user IP ranges.
package topology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/graphql"
	"github.com/ternarybob/cmabridge/internal/services/loginstate"
	"github.com/ternarybob/cmabridge/internal/services/session"
)

// DefaultConcurrency bounds parallel per-site fetches
const DefaultConcurrency = 4

// Capture names of the aggregation queries
const (
	identityCaptureName = "loginState_for_static_route"
	sitesCaptureName    = "accountSnapshotSites_for_static_route"
	accountCaptureName  = "account_for_static_route"
)

// SessionBridge yields a bridged session for one request
type SessionBridge interface {
	Bridge(ctx context.Context) (*session.BridgedSession, error)
}

// IdentityFetcher runs an uncached loginState
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, sess *session.BridgedSession, captureName string) (*models.LoginState, error)
}

// Aggregator runs the dependent query chain
type Aggregator struct {
	sessions    SessionBridge
	identity    IdentityFetcher
	runner      loginstate.QueryRunner
	concurrency int
	logger      arbor.ILogger
}

// NewAggregator creates an aggregator; concurrency below one uses DefaultConcurrency
func NewAggregator(sessions SessionBridge, identity IdentityFetcher, runner loginstate.QueryRunner, concurrency int, logger arbor.ILogger) *Aggregator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Aggregator{
		sessions:    sessions,
		identity:    identity,
		runner:      runner,
		concurrency: concurrency,
		logger:      logger,
	}
}

type siteRef struct {
	id   string
	name string
}

// Aggregate fetches identity, sites, per-site interfaces and account IP ranges.
// Identity, site list and IP ranges are fatal and return a *StepError with no
// data. A failed site is kept with an annotated name and no networks.
func (a *Aggregator) Aggregate(ctx context.Context) (*models.TopologyResult, error) {
	sess, err := a.sessions.Bridge(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	state, err := a.identity.FetchIdentity(ctx, sess, identityCaptureName)
	if err != nil {
		return nil, &StepError{Step: StepIdentity, Err: err}
	}
	if state.AccountID == "" {
		return nil, &StepError{Step: StepIdentity, Err: loginstate.ErrAccountIDMissing}
	}
	accountID := state.AccountID

	refs, err := a.fetchSites(ctx, sess, accountID)
	if err != nil {
		return nil, &StepError{Step: StepSites, Err: err}
	}

	sites := a.fetchAllSites(ctx, sess, refs)

	ranges, err := a.fetchRanges(ctx, sess, accountID)
	if err != nil {
		return nil, &StepError{Step: StepAccount, Err: err}
	}

	failed := 0
	for _, s := range sites {
		if s.Error != "" {
			failed++
		}
	}
	a.logger.Info().
		Str("account_id", accountID).
		Int("sites", len(sites)).
		Int("failed_sites", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Static route topology aggregated")

	return &models.TopologyResult{Sites: sites, RemoteIPRanges: ranges}, nil
}

func (a *Aggregator) fetchSites(ctx context.Context, sess *session.BridgedSession, accountID string) ([]siteRef, error) {
	env, err := a.runner.ExecuteAs(ctx, sess, sitesCaptureName, graphql.OpAccountSnapshotSites,
		graphql.AccountSnapshotSitesQuery, map[string]interface{}{"accountID": accountID})
	if err != nil {
		return nil, err
	}

	var snapshot snapshotSites
	if _, err := graphql.Decode(env, "accountSnapshot", &snapshot); err != nil {
		return nil, err
	}

	refs := make([]siteRef, 0, len(snapshot.Sites))
	for _, s := range snapshot.Sites {
		id := string(s.ID)
		if id == "" {
			a.logger.Debug().Msg("Skipping site without id")
			continue
		}
		name := ""
		if s.Info != nil {
			name = s.Info.Name
		}
		if name == "" {
			name = "Site " + id
		}
		refs = append(refs, siteRef{id: id, name: name})
	}
	return refs, nil
}

// fetchAllSites runs one siteInfo per site on a bounded pool.
// Results are stored by index so output order matches refs.
func (a *Aggregator) fetchAllSites(ctx context.Context, sess *session.BridgedSession, refs []siteRef) []models.Site {
	sites := make([]models.Site, len(refs))
	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup

	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref siteRef) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				sites[i] = failedSite(ref, ctx.Err())
				return
			}
			defer func() { <-sem }()

			var site models.Site
			err := common.RecoverPanic(func() error {
				var fetchErr error
				site, fetchErr = a.fetchSite(ctx, sess, ref)
				return fetchErr
			})
			if err != nil {
				a.logger.Warn().Str("site_id", ref.id).Err(err).Msg("Failed to fetch site interfaces")
				site = failedSite(ref, err)
			}
			sites[i] = site
		}(i, ref)
	}

	wg.Wait()
	return sites
}

func (a *Aggregator) fetchSite(ctx context.Context, sess *session.BridgedSession, ref siteRef) (models.Site, error) {
	env, err := a.runner.ExecuteAs(ctx, sess, "siteInfo_"+ref.id, graphql.OpSiteInfo,
		graphql.SiteInfoQuery, map[string]interface{}{"siteId": ref.id})
	if err != nil {
		return models.Site{}, err
	}

	var info siteInfo
	if _, err := graphql.Decode(env, "siteInfo", &info); err != nil {
		return models.Site{}, err
	}

	return models.Site{
		ID:       ref.id,
		Name:     ref.name,
		Networks: flatten(info),
	}, nil
}

func (a *Aggregator) fetchRanges(ctx context.Context, sess *session.BridgedSession, accountID string) (models.RemoteIPRanges, error) {
	env, err := a.runner.ExecuteAs(ctx, sess, accountCaptureName, graphql.OpAccount,
		graphql.AccountQuery, map[string]interface{}{"accountID": accountID})
	if err != nil {
		return models.RemoteIPRanges{}, err
	}

	var account accountRanges
	if _, err := graphql.Decode(env, "account", &account); err != nil {
		return models.RemoteIPRanges{}, err
	}

	ranges := models.RemoteIPRanges{
		Default: refID(account.VPNRange),
		Dynamic: refID(account.VPNRangeForDynamicIPAllocation),
	}
	if account.AccessSettings != nil {
		ranges.Static = refID(account.AccessSettings.StaticIPRange)
	}
	return ranges, nil
}

// flatten produces one entry per interface subnet, interfaces then subnets in upstream order
func flatten(info siteInfo) []models.NetworkEntry {
	networks := []models.NetworkEntry{}
	for _, iface := range info.Interfaces {
		for _, subnet := range iface.Subnets {
			entry := models.NetworkEntry{
				InterfaceName: iface.Name,
				SubnetName:    subnet.Name,
				Type:          subnet.Type,
				CIDR:          refID(subnet.Subnet),
				Gateway:       refID(subnet.Gateway),
				VLAN:          subnet.VLANTag.value,
			}
			if subnet.DHCPSettings != nil {
				entry.DHCPType = subnet.DHCPSettings.DHCPType
			}
			networks = append(networks, entry)
		}
	}
	return networks
}

func failedSite(ref siteRef, err error) models.Site {
	msg := errorMessage(err)
	return models.Site{
		ID:       ref.id,
		Name:     fmt.Sprintf("%s (fetch error: %s)", ref.name, msg),
		Error:    msg,
		Networks: []models.NetworkEntry{},
	}
}

func errorMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return err.Error()
}
