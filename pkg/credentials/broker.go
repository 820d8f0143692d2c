// Package credentials implements the cross-account credential broker: given
// an account descriptor, it produces short-lived assumed-role credentials
// scoped to a region. Unlike a long-running service sharing one aws.Config
// cache across many callers, this broker caches nothing across invocations
// of the engine — each run assumes its own role fresh, per §4.3.
package credentials

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/cuemby/scheduler/pkg/metrics"
	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/types"
)

// RoleSessionName identifies this engine's assumed sessions in CloudTrail.
const RoleSessionName = "cost-scheduler"

// AccountDescriptor is the broker's input: the account to assume into and
// the region the resulting credentials are scoped to.
type AccountDescriptor struct {
	AccountID  string
	RoleARN    string
	ExternalID string
	Region     string
}

// assumeRoleAPI is the subset of *sts.Client stscreds.NewAssumeRoleProvider
// needs, narrowed so tests can swap in a fake without talking to AWS.
type assumeRoleAPI = stscreds.AssumeRoleAPIClient

// Broker assumes roles via STS. It holds no state between calls.
type Broker struct {
	logger zerolog.Logger

	// loadConfig and newSTSClient are overridden in tests; production
	// callers get the real AWS SDK via NewBroker.
	loadConfig  func(ctx context.Context, region string) (awssdk.Config, error)
	newSTSClient func(awssdk.Config) assumeRoleAPI
}

// NewBroker constructs a Broker backed by the real AWS SDK.
func NewBroker(logger zerolog.Logger) *Broker {
	return &Broker{
		logger: logger,
		loadConfig: func(ctx context.Context, region string) (awssdk.Config, error) {
			return config.LoadDefaultConfig(ctx, config.WithRegion(region))
		},
		newSTSClient: func(cfg awssdk.Config) assumeRoleAPI {
			return sts.NewFromConfig(cfg)
		},
	}
}

// AssumeRole produces short-lived, region-scoped credentials for the given
// account. A single failure here must not abort processing of other
// accounts; callers translate the returned error into an account-skip.
func (b *Broker) AssumeRole(ctx context.Context, desc AccountDescriptor) (types.AccountCredentials, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CredentialAssumeDuration)

	cfg, err := b.loadConfig(ctx, desc.Region)
	if err != nil {
		metrics.CredentialAssumeFailures.Inc()
		return types.AccountCredentials{}, fmt.Errorf("load base config for account %s: %w", desc.AccountID, schedulererr.ErrAccountUnreachable)
	}

	stsClient := b.newSTSClient(cfg)
	provider := stscreds.NewAssumeRoleProvider(stsClient, desc.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = RoleSessionName
		if desc.ExternalID != "" {
			o.ExternalID = awssdk.String(desc.ExternalID)
		}
	})

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		metrics.CredentialAssumeFailures.Inc()
		b.logger.Warn().
			Err(err).
			Str("account_id", desc.AccountID).
			Str("role_arn", desc.RoleARN).
			Msg("assume role failed")
		return types.AccountCredentials{}, fmt.Errorf("assume role %s for account %s: %w", desc.RoleARN, desc.AccountID, schedulererr.ErrAccountUnreachable)
	}

	return types.AccountCredentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Region:          desc.Region,
	}, nil
}
