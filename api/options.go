package api

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
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

// clientOptions is the set of available options for Client functions
type clientOptions struct {
	withTimeout    time.Duration
	withProviderCA string
	withLogger     hclog.Logger
	withHTTPClient *http.Client
}

// clientDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withTimeout: DefaultTimeout,
		withLogger:  hclog.NewNullLogger(),
	}
}

// getClientOpts gets the defaults and applies the opt overrides passed in.
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTimeout provides an optional request timeout for the client.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withTimeout = d
		}
	}
}

// WithProviderCA provides an optional CA cert PEM used when sending requests
// to the backend.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithLogger provides an optional logger for the client.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			if l != nil {
				o.withLogger = l
			}
		}
	}
}

// WithHTTPClient provides an optional pre-built http.Client, overriding the
// timeout and CA options.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withHTTPClient = c
		}
	}
}
