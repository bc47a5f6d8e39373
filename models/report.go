package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names
const (
	CollectionReports = "reports"
	CollectionUsers   = "users"
	CollectionCVEs    = "cves"
)

// Report is the durable copy of a completed analysis, upserted by domain.
// The in-memory job record is evicted once read; this is what survives.
type Report struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Domain         string             `json:"domain" bson:"domain"`
	NumSubdomains  int                `json:"num_subdomains" bson:"num_subdomains"`
	NumIPs         int                `json:"num_ips" bson:"num_ips"`
	PortAlerts     []RiskAlert        `json:"port_alerts" bson:"port_alerts"`
	SoftwareAlerts []SoftwareAlert    `json:"software_alerts" bson:"software_alerts"`
	PortScore      float64            `json:"port_score" bson:"port_score"`
	SoftwareScore  float64            `json:"software_score" bson:"software_score"`
	LeakScore      float64            `json:"leak_score" bson:"leak_score"`
	FinalScore     float64            `json:"final_score" bson:"final_score"`
	NumEmails      int                `json:"num_emails" bson:"num_emails"`
	NumPasswords   int                `json:"num_passwords" bson:"num_passwords"`
	NumHashes      int                `json:"num_hashes" bson:"num_hashes"`
	LeakedData     []LeakRecord       `json:"leaked_data,omitempty" bson:"leaked_data,omitempty"`
	Timestamp      time.Time          `json:"timestamp" bson:"timestamp"`
}
