package session

import (
	"github.com/hashicorp/go-hclog"

	"github.com/plf1996/simfocus-go/keycloak"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

// storeOptions is the set of available options for Store functions
type storeOptions struct {
	withLogger   hclog.Logger
	withKeycloak keycloak.Service
}

// storeDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func storeDefaults() storeOptions {
	return storeOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getStoreOpts gets the defaults and applies the opt overrides passed in.
func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for the store.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			if l != nil {
				o.withLogger = l
			}
		}
	}
}

// WithKeycloak provides the Keycloak adapter, enabling the Keycloak login
// and callback entry points.
func WithKeycloak(svc keycloak.Service) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withKeycloak = svc
		}
	}
}
