package dialog

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

// modalOptions is the set of available options for modal functions
type modalOptions struct {
	withTitle       string
	withConfirmText string
	withCancelText  string
	withConfirmType string
	withClose       bool
}

// modalDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func modalDefaults() modalOptions {
	return modalOptions{
		withConfirmText: "OK",
		withCancelText:  "Cancel",
		withConfirmType: "primary",
		withClose:       true,
	}
}

// getModalOpts gets the defaults and applies the opt overrides passed in.
func getModalOpts(opt ...Option) modalOptions {
	opts := modalDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTitle provides an optional modal title.
func WithTitle(title string) Option {
	return func(o interface{}) {
		if o, ok := o.(*modalOptions); ok {
			o.withTitle = title
		}
	}
}

// WithConfirmText provides an optional confirm button label.
func WithConfirmText(text string) Option {
	return func(o interface{}) {
		if o, ok := o.(*modalOptions); ok {
			o.withConfirmText = text
		}
	}
}

// WithCancelText provides an optional cancel button label.
func WithCancelText(text string) Option {
	return func(o interface{}) {
		if o, ok := o.(*modalOptions); ok {
			o.withCancelText = text
		}
	}
}

// WithConfirmType provides an optional presentation style for the confirm
// button, for example "danger" on destructive confirmations.
func WithConfirmType(typ string) Option {
	return func(o interface{}) {
		if o, ok := o.(*modalOptions); ok {
			o.withConfirmType = typ
		}
	}
}

// WithoutClose hides the modal's close affordance.
func WithoutClose() Option {
	return func(o interface{}) {
		if o, ok := o.(*modalOptions); ok {
			o.withClose = false
		}
	}
}
