/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package config is the session builder struct (spec.md §6 "Configuration
// surface") plus its file/env loader, grounded on the teacher's component
// pattern (nabbar-golib/config/component.go: a flat struct, `Default()`
// populated fields, `Validate()` via a struct-tag validator).
package config

import (
	"github.com/go-playground/validator/v10"

	"github.com/sabouaram/cassandra-core/duration"
)

// TLS is the subset of certs.Config exposed on the session builder.
type TLS struct {
	Enabled            bool   `mapstructure:"enabled"`
	CAFile             string `mapstructure:"ca_file"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	HostnameVerify     bool   `mapstructure:"hostname_verify"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// Credentials is the plain-text AUTH_RESPONSE payload (spec.md §6
// `credentials`). The session answers authentication with these when
// Username is set and with conn.NoAuth otherwise; Config has no field for
// a custom authenticator.
type Credentials struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Pool mirrors pool.Config's tunables (spec.md §6 pool-bound rows).
type Pool struct {
	CoreConnectionsPerHost         int               `mapstructure:"core_connections_per_host" validate:"min=1"`
	MaxConnectionsPerHost          int               `mapstructure:"max_connections_per_host" validate:"min=1"`
	MaxConcurrentRequestsThreshold int               `mapstructure:"max_concurrent_requests_threshold" validate:"min=1"`
	ReconnectBase                  duration.Duration `mapstructure:"reconnect_base_ms"`
	ReconnectCap                   duration.Duration `mapstructure:"reconnect_cap_ms"`
	MaxConsecutiveFailures         int               `mapstructure:"max_consecutive_failures" validate:"min=1"`
	PendingQueueSize               int               `mapstructure:"pending_queue_size" validate:"min=1"`
}

// Timeouts mirrors spec.md §6's timer rows.
type Timeouts struct {
	Connect        duration.Duration `mapstructure:"connect_timeout_ms"`
	Request        duration.Duration `mapstructure:"request_timeout_ms"`
	Resolve        duration.Duration `mapstructure:"resolve_timeout_ms"`
	HeartbeatSecs  duration.Duration `mapstructure:"heartbeat_interval_secs"`
	IdleTimeoutSec duration.Duration `mapstructure:"idle_timeout_secs"`
	SchemaWait     duration.Duration `mapstructure:"max_schema_wait_ms"`
	TracingWait    duration.Duration `mapstructure:"max_tracing_wait_ms"`
	Shutdown       duration.Duration `mapstructure:"shutdown_deadline_ms"`
}

// Socket mirrors spec.md §6's socket-tuning row.
type Socket struct {
	TCPNoDelay         bool `mapstructure:"tcp_nodelay"`
	TCPKeepalive       bool `mapstructure:"tcp_keepalive"`
	UseHostResolution  bool `mapstructure:"use_hostname_resolution"`
}

// LoadBalancing names one of the §4.7 policies and its parameters;
// session.New resolves Policy into a concrete lbpolicy.Policy.
type LoadBalancing struct {
	Policy               string `mapstructure:"load_balancing_policy" validate:"oneof=round_robin dc_aware rack_aware token_aware"`
	LocalDC              string `mapstructure:"local_dc"`
	LocalRack            string `mapstructure:"local_rack"`
	UsedHostsPerRemoteDC int    `mapstructure:"used_hosts_per_remote_dc"`
	FilterAllow          []string `mapstructure:"filter_allow"`
	FilterDeny           []string `mapstructure:"filter_deny"`
}

// Retry names one of the §4.8 retry policies.
type Retry struct {
	Policy string `mapstructure:"retry_policy" validate:"oneof=default downgrading"`
}

// Speculative names one of the §4.8 speculative-execution policies.
type Speculative struct {
	Policy   string            `mapstructure:"speculative_execution_policy" validate:"oneof=none constant"`
	Delay    duration.Duration `mapstructure:"speculative_delay_ms"`
	MaxTries int               `mapstructure:"speculative_max_tries"`
}

// Config is the flat session builder of spec.md §6.
type Config struct {
	ContactPoints     []string `mapstructure:"contact_points" validate:"required,min=1"`
	Port              int      `mapstructure:"port" validate:"min=1,max=65535"`
	ProtocolVersion   int      `mapstructure:"protocol_version"`
	UseBetaProtocol   bool     `mapstructure:"use_beta_protocol"`
	Keyspace          string   `mapstructure:"keyspace"`
	NumThreads        int      `mapstructure:"num_threads" validate:"min=1"`

	Credentials Credentials `mapstructure:"credentials"`
	TLS         TLS         `mapstructure:"tls_context"`

	LoadBalancing LoadBalancing `mapstructure:"load_balancing"`
	Retry         Retry         `mapstructure:"retry"`
	Speculative   Speculative   `mapstructure:"speculative"`

	Pool     Pool     `mapstructure:"pool"`
	Timeouts Timeouts `mapstructure:"timeouts"`
	Socket   Socket   `mapstructure:"socket"`

	PrepareOnAllHosts    bool `mapstructure:"prepare_on_all_hosts"`
	PrepareOnUpOrAddHost bool `mapstructure:"prepare_on_up_or_add_host"`

	// TimestampGenerator selects between a monotonic client-side clock
	// ("monotonic") and leaving the timestamp to the server ("server").
	TimestampGenerator string `mapstructure:"timestamp_generator" validate:"oneof=monotonic server"`
}

// Default returns a Config populated the way the teacher's component
// pattern populates its own Default(): every optional knob set to a
// sensible value, only ContactPoints left for the caller to fill in.
func Default() *Config {
	return &Config{
		Port:            9042,
		ProtocolVersion: 4,
		NumThreads:      4,
		LoadBalancing: LoadBalancing{
			Policy:               "round_robin",
			UsedHostsPerRemoteDC: 0,
		},
		Retry:       Retry{Policy: "default"},
		Speculative: Speculative{Policy: "none"},
		Pool: Pool{
			CoreConnectionsPerHost:         1,
			MaxConnectionsPerHost:          2,
			MaxConcurrentRequestsThreshold: 128,
			ReconnectBase:                  duration.MustParse("1s"),
			ReconnectCap:                   duration.MustParse("60s"),
			MaxConsecutiveFailures:         5,
			PendingQueueSize:               256,
		},
		Timeouts: Timeouts{
			Connect:        duration.MustParse("5s"),
			Request:        duration.MustParse("12s"),
			Resolve:        duration.MustParse("5s"),
			HeartbeatSecs:  duration.MustParse("30s"),
			IdleTimeoutSec: duration.MustParse("60s"),
			SchemaWait:     duration.MustParse("10s"),
			TracingWait:    duration.MustParse("5s"),
			Shutdown:       duration.MustParse("10s"),
		},
		Socket: Socket{
			TCPNoDelay:   true,
			TCPKeepalive: true,
		},
		TimestampGenerator: "monotonic",
	}
}

var validate = validator.New()

// Validate runs struct-tag validation, matching the teacher's
// `go-playground/validator` usage in its own component Validate() methods.
// It returns the validator's error as is; session.New wraps a failure as
// EXECUTION_PROFILE_INVALID (spec.md §7).
func (c *Config) Validate() error {
	return validate.Struct(c)
}
