package packet

import "regexp"

// ScanPolicy controls how the suspicious-content scanner reacts to a hit.
type ScanPolicy string

const (
	// PolicyBlock refuses delivery/update outright when a hit is found.
	PolicyBlock ScanPolicy = "block"
	// PolicyWarn allows the write through but records the hit for the caller to surface.
	PolicyWarn ScanPolicy = "warn"
	// PolicyAllow disables scanning entirely.
	PolicyAllow ScanPolicy = "allow"
)

// Hit describes one matched suspicious pattern.
type Hit struct {
	Rule    string
	Snippet string
}

// rule pairs a name with the pattern that flags it. Patterns target
// destructive filesystem operations, raw device writes, fork bombs, and
// host shutdown/reboot commands — the classes of body content the spec
// requires the scanner to recognize regardless of which agent authored it.
type rule struct {
	name    string
	pattern *regexp.Regexp
}

var rules = []rule{
	{"recursive-force-delete", regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*|-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*)\s+/`)},
	{"filesystem-format", regexp.MustCompile(`\bmkfs(\.\w+)?\b`)},
	{"raw-disk-write", regexp.MustCompile(`\bdd\s+.*\bof=/dev/`)},
	{"fork-bomb", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;?\s*:`)},
	{"disk-wipe", regexp.MustCompile(`\b(shred|wipefs)\b`)},
	{"host-shutdown", regexp.MustCompile(`\b(shutdown|reboot|poweroff|halt)\b\s`)},
	{"permission-bomb", regexp.MustCompile(`\bchmod\s+-R\s+777\s+/`)},
	{"credential-exfil", regexp.MustCompile(`\bcurl\b.*\b(id_rsa|\.aws/credentials|\.ssh/)\b`)},
}

// Scan inspects body text for suspicious content. It always returns the
// list of hits found (possibly empty); whether those hits are fatal is the
// caller's decision, driven by policy.
func Scan(body string) []Hit {
	var hits []Hit
	for _, r := range rules {
		if loc := r.pattern.FindStringIndex(body); loc != nil {
			start, end := loc[0], loc[1]
			if end-start > 80 {
				end = start + 80
			}
			hits = append(hits, Hit{Rule: r.name, Snippet: body[start:end]})
		}
	}
	return hits
}

// Enforce applies policy to a scan result: PolicyBlock returns
// ErrSuspiciousContentBlocked when hits is non-empty, PolicyWarn and
// PolicyAllow never error (PolicyAllow should be paired with skipping Scan
// altogether, but tolerating a pre-computed hit list keeps this function a
// pure policy decision independent of whether scanning ran).
func Enforce(policy ScanPolicy, hits []Hit) error {
	if policy == PolicyBlock && len(hits) > 0 {
		return ErrSuspiciousContentBlocked
	}
	return nil
}
