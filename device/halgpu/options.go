package halgpu

import "time"

type options struct {
	label   string
	timeout time.Duration
	spirv   bool
}

func defaultOptions() options {
	return options{
		label:   "canvas",
		timeout: 5 * time.Second,
	}
}

// Option configures a Device.
type Option func(*options)

// WithLabel sets the prefix of every GPU object label.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// WithTimeout bounds how long Submit and ReadBuffer wait for the GPU.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithSPIRV hands the HAL the SPIR-V produced by naga instead of the
// WGSL text. Backends without a WGSL front end need it.
func WithSPIRV() Option {
	return func(o *options) {
		o.spirv = true
	}
}
