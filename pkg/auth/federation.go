package auth

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/connect"
	"github.com/aws/aws-sdk-go/service/connect/connectiface"
)

// AWSSessionConfig contains the settings for the federation client
type AWSSessionConfig struct {
	// Region is the AWS region; empty defers to the SDK's default chain
	Region string

	// Profile selects a shared credentials profile
	Profile string

	// Endpoint overrides the Connect API endpoint (for testing)
	Endpoint string
}

// NewFederationClientFactory returns a factory building a Connect client from
// the ambient AWS credentials
func NewFederationClientFactory(cfg AWSSessionConfig) FederationClientFactory {
	return func() (connectiface.ConnectAPI, error) {
		awsConfig := aws.Config{}
		if cfg.Region != "" {
			awsConfig.Region = aws.String(cfg.Region)
		}
		if cfg.Endpoint != "" {
			awsConfig.Endpoint = aws.String(cfg.Endpoint)
		}

		sess, err := session.NewSessionWithOptions(session.Options{
			Config:            awsConfig,
			Profile:           cfg.Profile,
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}

		return connect.New(sess), nil
	}
}
