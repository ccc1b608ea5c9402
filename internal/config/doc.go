// Package config holds vpnprobe settings: built-in defaults, the optional
// .vpnprobe YAML file, XDG directories and validation of the port layout.
package config
