package keycloak

import (
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/plf1996/simfocus-go/api"
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

// svcOptions is the set of available options for NewService
type svcOptions struct {
	withLogger     hclog.Logger
	withHTTPClient *http.Client
	withNavigator  api.Navigator
}

// svcDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func svcDefaults() svcOptions {
	return svcOptions{
		withLogger:    hclog.NewNullLogger(),
		withNavigator: api.NavigatorFunc(func(string) {}),
	}
}

// getSvcOpts gets the defaults and applies the opt overrides passed in.
func getSvcOpts(opt ...Option) svcOptions {
	opts := svcDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for the service.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*svcOptions); ok {
			if l != nil {
				o.withLogger = l
			}
		}
	}
}

// WithHTTPClient provides an optional pre-built http.Client for the
// service's direct calls, overriding the CA option.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*svcOptions); ok {
			o.withHTTPClient = c
		}
	}
}

// WithNavigator provides the navigator used for the full-page redirects the
// login and logout flows perform.
func WithNavigator(n api.Navigator) Option {
	return func(o interface{}) {
		if o, ok := o.(*svcOptions); ok {
			if n != nil {
				o.withNavigator = n
			}
		}
	}
}
