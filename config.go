package dnsresolver

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileOptions mirrors the recognized options table (§6.3) for TOML
// deployments that prefer configuring the resolver from a file over Go
// code. Durations are parsed with time.ParseDuration; "infinite" is
// accepted wherever Infinite is a valid value.
type fileOptions struct {
	Recursion                  *bool   `toml:"recursion"`
	UseCache                   *bool   `toml:"use_cache"`
	EnableAuditTrail           *bool   `toml:"enable_audit_trail"`
	Retries                    *int    `toml:"retries"`
	ThrowDNSErrors             *bool   `toml:"throw_dns_errors"`
	Timeout                    *string `toml:"timeout"`
	UseTCPFallback             *bool   `toml:"use_tcp_fallback"`
	UseTCPOnly                 *bool   `toml:"use_tcp_only"`
	ContinueOnDNSError         *bool   `toml:"continue_on_dns_error"`
	ContinueOnEmptyResponse    *bool   `toml:"continue_on_empty_response"`
	UseRandomNameServer        *bool   `toml:"use_random_name_server"`
	ExtendedDNSBufferSize      *int    `toml:"extended_dns_buffer_size"`
	RequestDNSSECRecords       *bool   `toml:"request_dnssec_records"`
	CacheFailedResults         *bool   `toml:"cache_failed_results"`
	FailedResultsCacheDuration *string `toml:"failed_results_cache_duration"`
	MinimumCacheTimeout        *string `toml:"minimum_cache_timeout"`
	MaximumCacheTimeout        *string `toml:"maximum_cache_timeout"`
	AutoResolveNameServers     *bool   `toml:"auto_resolve_name_servers"`
}

// LoadOptionsFile parses a TOML file at path and overlays it onto
// DefaultQueryOptions, returning the merged, validated result. Only keys
// present in the file override the default; Servers is never set this way
// (it has no portable text representation here) and must be set in code.
func LoadOptionsFile(path string) (QueryOptions, error) {
	var fo fileOptions
	if _, err := toml.DecodeFile(path, &fo); err != nil {
		return QueryOptions{}, fmt.Errorf("dnsresolver: load options file %s: %w", path, err)
	}

	opts := DefaultQueryOptions()

	if fo.Recursion != nil {
		opts.Recursion = *fo.Recursion
	}
	if fo.UseCache != nil {
		opts.UseCache = *fo.UseCache
	}
	if fo.EnableAuditTrail != nil {
		opts.EnableAuditTrail = *fo.EnableAuditTrail
	}
	if fo.Retries != nil {
		opts.Retries = *fo.Retries
	}
	if fo.ThrowDNSErrors != nil {
		opts.ThrowDNSErrors = *fo.ThrowDNSErrors
	}
	if fo.UseTCPFallback != nil {
		opts.UseTCPFallback = *fo.UseTCPFallback
	}
	if fo.UseTCPOnly != nil {
		opts.UseTCPOnly = *fo.UseTCPOnly
	}
	if fo.ContinueOnDNSError != nil {
		opts.ContinueOnDNSError = *fo.ContinueOnDNSError
	}
	if fo.ContinueOnEmptyResponse != nil {
		opts.ContinueOnEmptyResponse = *fo.ContinueOnEmptyResponse
	}
	if fo.UseRandomNameServer != nil {
		opts.UseRandomNameServer = *fo.UseRandomNameServer
	}
	if fo.ExtendedDNSBufferSize != nil {
		opts.ExtendedDNSBufferSize = uint16(*fo.ExtendedDNSBufferSize)
	}
	if fo.RequestDNSSECRecords != nil {
		opts.RequestDNSSECRecords = *fo.RequestDNSSECRecords
	}
	if fo.CacheFailedResults != nil {
		opts.CacheFailedResults = *fo.CacheFailedResults
	}
	if fo.AutoResolveNameServers != nil {
		opts.AutoResolveNameServers = *fo.AutoResolveNameServers
	}

	var err error
	if opts.Timeout, err = parseFileDuration(fo.Timeout, opts.Timeout); err != nil {
		return QueryOptions{}, err
	}
	if opts.FailedResultsCacheDuration, err = parseFileDuration(fo.FailedResultsCacheDuration, opts.FailedResultsCacheDuration); err != nil {
		return QueryOptions{}, err
	}
	if opts.MinimumCacheTimeout, err = parseFileDuration(fo.MinimumCacheTimeout, opts.MinimumCacheTimeout); err != nil {
		return QueryOptions{}, err
	}
	if opts.MaximumCacheTimeout, err = parseFileDuration(fo.MaximumCacheTimeout, opts.MaximumCacheTimeout); err != nil {
		return QueryOptions{}, err
	}

	if err := opts.Validate(); err != nil {
		return QueryOptions{}, err
	}

	return opts, nil
}

func parseFileDuration(s *string, fallback time.Duration) (time.Duration, error) {
	if s == nil {
		return fallback, nil
	}
	if *s == "infinite" {
		return Infinite, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0, fmt.Errorf("dnsresolver: invalid duration %q: %w", *s, err)
	}
	return d, nil
}
