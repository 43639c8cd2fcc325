package config

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var ErrCredentialsNotFound = errors.New("gateway credentials not found")

// CredentialStore resolves gateway credentials for a sales channel.
type CredentialStore interface {
	Lookup(ctx context.Context, channel string) (Credentials, error)
}

// StaticCredentials serves credentials from the gateway.channels config map.
type StaticCredentials struct {
	channels map[string]Credentials
}

func NewStaticCredentials(channels map[string]Credentials) *StaticCredentials {
	normalized := make(map[string]Credentials, len(channels))
	for token, creds := range channels {
		// viper lower-cases map keys
		normalized[strings.ToLower(token)] = creds
	}
	return &StaticCredentials{channels: normalized}
}

func (s *StaticCredentials) Lookup(_ context.Context, channel string) (Credentials, error) {
	creds, ok := s.channels[strings.ToLower(channel)]
	if !ok || creds.KeyID == "" || creds.KeySecret == "" {
		return Credentials{}, errors.Wrapf(ErrCredentialsNotFound, "channel %q", channel)
	}
	return creds, nil
}
