// Package link decodes proxy share links into server profiles.
//
// Only vmess:// links are decoded. Links of other well known proxy schemes
// are recognized and reported as unsupported so a subscription can be
// processed line by line without aborting on them. A malformed link yields a
// *DecodeError and is skipped by the caller.
package link
