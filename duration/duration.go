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

// Package duration is a human-friendly wrapper around time.Duration used by
// every timing knob of the session builder (spec.md §6): connect/request
// timeouts, heartbeat interval, reconnection backoff, schema/tracing wait
// budgets. It marshals/unmarshals as a plain string so the config loader
// (viper/yaml/toml) can express "30s", "2m", "250ms" directly.
package duration

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration with text (un)marshalling support.
type Duration struct {
	time.Duration
}

// New wraps a stdlib duration.
func New(d time.Duration) Duration {
	return Duration{Duration: d}
}

// Parse parses a human-friendly duration string ("30s", "2m", "1h30m").
// An empty string parses to zero without error.
func Parse(s string) (Duration, error) {
	if s == "" {
		return Duration{}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Duration{}, fmt.Errorf("duration: parse %q: %w", s, err)
	}
	return Duration{Duration: d}, nil
}

// MustParse panics on a malformed duration string; only meant for static
// default tables inside this module, never for user input.
func MustParse(s string) Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Duration) String() string {
	return d.Duration.String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// OrDefault returns d if it is positive, otherwise def.
func (d Duration) OrDefault(def Duration) Duration {
	if d.Duration <= 0 {
		return def
	}
	return d
}

// Jitter returns d scaled by a pseudo-random factor in [1-frac, 1+frac],
// used by the reconnection backoff schedule (spec.md §4.5).
func (d Duration) Jitter(frac float64, rnd func() float64) Duration {
	if frac <= 0 {
		return d
	}
	f := 1 - frac + 2*frac*rnd()
	return Duration{Duration: time.Duration(float64(d.Duration) * f)}
}
