package models

// JobStatus represents the lifecycle state of an analysis job
type JobStatus string

const (
	JobStatusRunning    JobStatus = "running"            // synchronous port phase in progress
	JobStatusBackground JobStatus = "background_running" // port phase returned, CVE/leak stage running
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusFailed     JobStatus = "failed"
)

// RiskAlert is a single finding raised by the port risk analyzer
type RiskAlert struct {
	IP      string `json:"ip" bson:"ip"`
	Port    int    `json:"port" bson:"port"`
	Message string `json:"message" bson:"message"`
}

// SoftwareFinding is a raw banner captured on an open port, fed to the
// CVE resolver. Banner may be an opaque fingerprint that never matches.
type SoftwareFinding struct {
	IP     string `json:"ip" bson:"ip"`
	Port   int    `json:"port" bson:"port"`
	Banner string `json:"banner" bson:"banner"`
}

// SoftwareAlert is a resolved vulnerability for a detected software
type SoftwareAlert struct {
	IP       string   `json:"ip" bson:"ip"`
	Port     int      `json:"port" bson:"port"`
	Software string   `json:"software" bson:"software"`
	CVEID    string   `json:"cve_id" bson:"cve_id"`
	CVSS     *float64 `json:"cvss" bson:"cvss"`
}

// CVERecord is a read-only record from the CVE reference store
type CVERecord struct {
	ID    string   `json:"id" bson:"id"`
	CVSS  *float64 `json:"cvss" bson:"cvss"`
	CVSS3 *float64 `json:"cvss3" bson:"cvss3"`
}

// Score returns the preferred CVSS value: v3 when present, v2 otherwise.
func (r *CVERecord) Score() *float64 {
	if r.CVSS3 != nil {
		return r.CVSS3
	}
	return r.CVSS
}

// LeakRecord is a single credential exposure entry
type LeakRecord struct {
	Email          string `json:"email" bson:"email"`
	Password       string `json:"password,omitempty" bson:"password,omitempty"`
	HashedPassword string `json:"hashed_password,omitempty" bson:"hashed_password,omitempty"`
}

// LeakResult aggregates credential-leak intelligence for a domain
type LeakResult struct {
	NumEmails    int          `json:"num_emails" bson:"num_emails"`
	NumPasswords int          `json:"num_passwords" bson:"num_passwords"`
	NumHashes    int          `json:"num_hashes" bson:"num_hashes"`
	Records      []LeakRecord `json:"records,omitempty" bson:"records,omitempty"`
}

// PortPhaseResult is the immutable synchronous-phase result returned to the
// caller as soon as port analysis finishes. The background stage never
// mutates it.
type PortPhaseResult struct {
	JobID         string           `json:"job_id"`
	Domain        string           `json:"domain"`
	OpenPorts     map[string][]int `json:"open_ports"`
	PortAlerts    []RiskAlert      `json:"port_alerts"`
	PortScore     float64          `json:"port_score"`
	NumSubdomains int              `json:"num_subdomains"`
	NumIPs        int              `json:"num_ips"`
}

// BackgroundResult holds everything the background continuation computes.
// It is written exactly once, by the background task, then read by the
// status endpoint.
type BackgroundResult struct {
	SoftwareAlerts []SoftwareAlert `json:"software_alerts"`
	SoftwareScore  float64         `json:"software_score"`
	LeakScore      float64         `json:"leak_score"`
	FinalScore     float64         `json:"final_score"`
	Leak           LeakResult      `json:"leak"`
}
