// Package featureflags evaluates rollout flags parsed from a single
// config string, so behavior can be toggled or ramped without a deploy.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags holds parsed flag definitions. The source format is a
// comma-separated list of key=value pairs, where value is on/off,
// true/false, 1/0, or a percentage like "25%" for a deterministic
// per-user ramp. Example: "companion_bot=on,link_previews=25%".
type Flags struct {
	values map[string]string
}

// Parse builds a Flags set from the raw config string. Malformed pairs
// are skipped rather than rejected.
func Parse(raw string) *Flags {
	values := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = canon(key)
		value = canon(value)
		if key == "" || value == "" {
			continue
		}
		values[key] = value
	}
	return &Flags{values: values}
}

// Enabled reports whether the named flag is on for the given user. A
// percentage value buckets users deterministically, so one user sees a
// ramped feature consistently across requests. Unknown flags are off.
func (f *Flags) Enabled(name string, userID uint) bool {
	if f == nil {
		return false
	}
	value, ok := f.values[canon(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil || pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	if userID == 0 {
		return false
	}
	return bucket(name, userID) < pct
}

// Snapshot evaluates every configured flag for one user, for debugging
// and support tooling.
func (f *Flags) Snapshot(userID uint) map[string]bool {
	if f == nil {
		return nil
	}
	out := make(map[string]bool, len(f.values))
	for name := range f.values {
		out[name] = f.Enabled(name, userID)
	}
	return out
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// bucket maps (flag, user) to a stable 0-99 slot.
func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", canon(name), userID)))
	return int(h.Sum32() % 100)
}
