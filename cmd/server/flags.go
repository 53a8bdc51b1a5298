package main

import "github.com/spf13/pflag"

// flagOptions binds a handful of command-line overrides for values that
// config.Load otherwise reads from the environment. Env vars remain
// authoritative at Load time; any flag the operator actually passes on the
// command line wins over its env-derived default.
type flagOptions struct {
	port     int
	logLevel string

	fs *pflag.FlagSet
}

// AddFlags registers the override flags on fs.
func (o *flagOptions) AddFlags(fs *pflag.FlagSet) {
	o.fs = fs
	fs.IntVar(&o.port, "port", 0, "Override PORT: HTTP listen port.")
	fs.StringVar(&o.logLevel, "log-level", "", "Override LOG_LEVEL: debug, info, warn, or error.")
}

// changed reports whether the named flag was explicitly passed.
func (o *flagOptions) changed(name string) bool {
	f := o.fs.Lookup(name)
	return f != nil && f.Changed
}
