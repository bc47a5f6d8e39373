package intelligence

import (
	"math"
	"strings"

	"threatlens/models"
)

// DefaultAdjustK is the default sample-size adjustment constant.
const DefaultAdjustK = 4.0

// alertWeights maps alert-message substrings to risk weights. Matching is
// first-hit over this ordered list, so more specific tokens come first.
var alertWeights = []struct {
	Token  string
	Weight float64
}{
	{"Telnet", 5},
	{"RDP", 4.5},
	{"SMB", 4.5},
	{"FTP open", 4.5},
	{"SQL Server", 4},
	{"MySQL", 4},
	{"PostgreSQL", 3.5},
	{"SMTP open", 3.5},
	{"SSH accessible", 3},
	{"HTTP without HTTPS", 2.5},
	{"HTTP exposed", 2},
}

const defaultAlertWeight = 1

func portWeight(message string) float64 {
	for _, w := range alertWeights {
		if strings.Contains(message, w.Token) {
			return w.Weight
		}
	}
	return defaultAlertWeight
}

// adjustFactor scales total risk by evidence size: log2(n+1) * k.
func adjustFactor(n int, k float64) float64 {
	return math.Log2(float64(n)+1) * k
}

// formula normalizes a weighted risk sum into (0, 1]. A non-positive
// factor means no evidence, which scores as clean.
func formula(totalRisk, factor float64) float64 {
	if factor <= 0 {
		return 1.0
	}
	return 1 / (1 + totalRisk/factor)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalcPortScore scores port-level alerts against the number of analyzed
// hosts. No alerts, or no hosts, scores 1.0.
func CalcPortScore(alerts []models.RiskAlert, numIPs int) float64 {
	return CalcPortScoreK(alerts, numIPs, DefaultAdjustK)
}

// CalcPortScoreK is CalcPortScore with an explicit adjustment constant.
func CalcPortScoreK(alerts []models.RiskAlert, numIPs int, k float64) float64 {
	if len(alerts) == 0 || numIPs <= 0 {
		return 1.0
	}
	var total float64
	for _, a := range alerts {
		total += portWeight(a.Message)
	}
	return round2(formula(total, adjustFactor(numIPs, k)))
}

// CalcSoftwareScore scores resolved CVE alerts by their CVSS sum. Alerts
// without a CVSS value are ignored; none left scores 1.0.
func CalcSoftwareScore(alerts []models.SoftwareAlert) float64 {
	return CalcSoftwareScoreK(alerts, DefaultAdjustK)
}

// CalcSoftwareScoreK is CalcSoftwareScore with an explicit adjustment constant.
func CalcSoftwareScoreK(alerts []models.SoftwareAlert, k float64) float64 {
	var total float64
	n := 0
	for _, a := range alerts {
		if a.CVSS == nil {
			continue
		}
		total += *a.CVSS
		n++
	}
	if n == 0 {
		return 1.0
	}
	return round2(formula(total, adjustFactor(n, k)))
}

// CalcLeakScore scores credential-leak counts. Plaintext passwords weigh
// heaviest, then hashes, then bare emails.
func CalcLeakScore(numEmails, numPasswords, numHashes int) float64 {
	return CalcLeakScoreK(numEmails, numPasswords, numHashes, DefaultAdjustK)
}

// CalcLeakScoreK is CalcLeakScore with an explicit adjustment constant.
func CalcLeakScoreK(numEmails, numPasswords, numHashes int, k float64) float64 {
	n := numEmails + numPasswords + numHashes
	if n <= 0 {
		return 1.0
	}
	total := float64(numEmails)*1 + float64(numPasswords)*5 + float64(numHashes)*3
	return round2(formula(total, adjustFactor(n, k)))
}

// CalcFinalScore combines the three sub-scores into a weighted average.
// A sub-score of exactly 1.0 carries no signal and is excluded; when all
// are excluded the final score is 1.0.
func CalcFinalScore(portScore, softwareScore, leakScore float64) float64 {
	type weighted struct {
		score  float64
		weight float64
	}
	candidates := []weighted{
		{portScore, 2},
		{softwareScore, 1},
		{leakScore, 1},
	}

	var sum, weights float64
	for _, c := range candidates {
		if c.score == 1.0 {
			continue
		}
		sum += c.score * c.weight
		weights += c.weight
	}
	if weights == 0 {
		return 1.0
	}
	return round2(sum / weights)
}
