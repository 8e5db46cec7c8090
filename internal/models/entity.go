package models

// EntityKind identifies the class of an observed infrastructure unit.
type EntityKind string

const (
	KindContainer   EntityKind = "container"
	KindVolume      EntityKind = "volume"
	KindCertificate EntityKind = "certificate"
	KindDomain      EntityKind = "domain"
)

// AllKinds lists every entity kind the inventory can snapshot.
var AllKinds = []EntityKind{KindContainer, KindVolume, KindCertificate, KindDomain}

// Well-known metadata keys. Each kind populates the keys that apply to it;
// probes must tolerate missing keys.
const (
	MetaExitCode     = "exit_code"     // container: exit code of last termination
	MetaHealth       = "health"        // container: healthcheck status string
	MetaRestartCount = "restart_count" // container: restart counter
	MetaImage        = "image"         // container: image reference
	MetaRefCount     = "ref_count"     // volume: number of containers mounting it
	MetaDriver       = "driver"        // volume: volume driver
	MetaMountpoint   = "mountpoint"    // volume: host path
	MetaNotAfter     = "not_after"     // certificate: expiry, RFC3339
	MetaIssuer       = "issuer"        // certificate: issuer common name
	MetaSubject      = "subject"       // certificate: subject common name
	MetaTarget       = "target"        // domain: upstream the proxy routes to
)

// Entity is a point-in-time view of one observed unit. Entities are rebuilt
// from the backends on every invocation and never persisted.
type Entity struct {
	Kind     EntityKind        `json:"kind"`
	ID       string            `json:"id"`
	Name     string            `json:"name,omitempty"`
	State    string            `json:"state,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Meta returns the metadata value for key, or "" when absent.
func (e Entity) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// DisplayName prefers the human-readable name over the raw identifier.
func (e Entity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}
