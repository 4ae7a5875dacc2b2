/*
Package config loads and validates cluster configuration.

A cluster is described by a YAML file decoded over Default, then credentials
are taken from the environment:

	prefix: analytics
	version: 0.20.0
	worker:
	  count: 5
	  extra_packages: lzo
	aux:
	  count: 1
	kerberized: true

AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required for the ec2 provider
(ErrMissingCredentials otherwise); AWS_ACCOUNT_ID scopes image lookups to the
account's own images first. Credentials are never written back out.

Role returns the effective per-role settings, deriving the image label from
version and arch when a role has neither its own label nor an image id.
*/
package config
