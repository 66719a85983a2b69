// Package license generates and validates entitlement credentials without a
// database round-trip. Two independent schemes live here: checksummed
// subscription/desktop codes, and forex EA keys validated by shape only.
// The schemes are never cross-validated.
package license

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"crypto-trading-saas/internal/plans"
)

// codeAlphabet is the 32-symbol alphabet for code segments. I, O, 0 and 1
// are excluded as visually ambiguous.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	segmentLen   = 4
	segmentCount = 4
)

// tierPrefixes maps each plan tier 1:1 to its code prefix.
var tierPrefixes = map[plans.PlanTier]string{
	plans.TierFree:    "FRE",
	plans.TierStarter: "STR",
	plans.TierPro:     "PRO",
	plans.TierElite:   "ELT",
	plans.TierDesktop: "DSK",
}

var prefixTiers = func() map[string]plans.PlanTier {
	m := make(map[string]plans.PlanTier, len(tierPrefixes))
	for tier, prefix := range tierPrefixes {
		m[prefix] = tier
	}
	return m
}()

// codePattern matches the exact code grammar after uppercasing.
var codePattern = regexp.MustCompile(
	`^(FRE|STR|PRO|ELT|DSK)-([A-HJ-NP-Z2-9]{4})-([A-HJ-NP-Z2-9]{4})-([A-HJ-NP-Z2-9]{4})-([A-HJ-NP-Z2-9]{4})-(\d{3})$`)

// ValidationResult is the outcome of validating a subscription/desktop code.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	PlanTier plans.PlanTier `json:"plan_tier,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Generate mints a license code of the form PREFIX-XXXX-XXXX-XXXX-XXXX-CCC.
// The randomness is not cryptographic: codes are single-use and rate-limited
// at issuance, not guessed at scale.
func Generate(tier plans.PlanTier, cycle plans.BillingCycle) (string, error) {
	prefix, ok := tierPrefixes[tier]
	if !ok {
		return "", fmt.Errorf("unknown plan tier: %s", tier)
	}
	if !plans.IsValidCycle(cycle) {
		return "", fmt.Errorf("unknown billing cycle: %s", cycle)
	}

	segments := make([]string, segmentCount)
	for i := range segments {
		segments[i] = randomSegment(segmentLen)
	}

	checksum := checksumOf(prefix + strings.Join(segments, ""))

	return fmt.Sprintf("%s-%s-%03d", prefix, strings.Join(segments, "-"), checksum), nil
}

// Validate checks a code against the grammar and its embedded checksum.
// Input is case-insensitive. Format errors and checksum mismatches both
// yield Valid=false, with messages that tell them apart.
func Validate(code string) ValidationResult {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	match := codePattern.FindStringSubmatch(normalized)
	if match == nil {
		return ValidationResult{
			Valid: false,
			Error: "invalid license code format, expected PREFIX-XXXX-XXXX-XXXX-XXXX-CCC",
		}
	}

	prefix := match[1]
	payload := prefix + match[2] + match[3] + match[4] + match[5]

	claimed, err := strconv.Atoi(match[6])
	if err != nil {
		// Unreachable given the pattern, kept as a guard.
		return ValidationResult{Valid: false, Error: "invalid license code checksum segment"}
	}

	if checksumOf(payload) != claimed {
		return ValidationResult{Valid: false, Error: "license code checksum mismatch"}
	}

	return ValidationResult{Valid: true, PlanTier: prefixTiers[prefix]}
}

// checksumOf sums the character codes of the unpunctuated payload mod 1000.
func checksumOf(payload string) int {
	sum := 0
	for _, c := range payload {
		sum += int(c)
	}
	return sum % 1000
}

func randomSegment(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// ---- forex EA key scheme (no checksum, shape-validated only) ----

// ForexPlan is the plan type of an externally sold forex EA license.
type ForexPlan string

const (
	ForexPlanMonthly  ForexPlan = "monthly"
	ForexPlanLifetime ForexPlan = "lifetime"
)

var forexPlanTags = map[ForexPlan]string{
	ForexPlanMonthly:  "MO",
	ForexPlanLifetime: "LT",
}

// forexKeyPattern matches FX-(LT|MO)-XXXXXXXX-XXXXXX-XXXX.
var forexKeyPattern = regexp.MustCompile(`^FX-(LT|MO)-[A-Z0-9]{8}-[A-Z0-9]{6}-[A-Z0-9]{4}$`)

const forexAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateForexKey mints a forex EA key: an 8-char fragment derived from the
// user id, a 6-char timestamp fragment, and a 4-char random suffix.
func GenerateForexKey(userID string, plan ForexPlan) (string, error) {
	tag, ok := forexPlanTags[plan]
	if !ok {
		return "", fmt.Errorf("unknown forex plan type: %s", plan)
	}

	return fmt.Sprintf("FX-%s-%s-%s-%s",
		tag,
		userFragment(userID),
		timestampFragment(time.Now()),
		randomForexSuffix(4),
	), nil
}

// ValidateForexKeyFormat checks the key shape only; forex keys carry no
// checksum and entitlement is decided against the persisted record.
func ValidateForexKeyFormat(key string) bool {
	return forexKeyPattern.MatchString(strings.ToUpper(strings.TrimSpace(key)))
}

// ForexPlanFromKey extracts the plan type tag from a well-formed key.
func ForexPlanFromKey(key string) (ForexPlan, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(key))
	if !forexKeyPattern.MatchString(normalized) {
		return "", false
	}
	switch normalized[3:5] {
	case "MO":
		return ForexPlanMonthly, true
	case "LT":
		return ForexPlanLifetime, true
	}
	return "", false
}

// userFragment hashes the user id into 8 base-36 characters so keys for the
// same user are recognizably related without exposing the id.
func userFragment(userID string) string {
	h := fnv.New64a()
	h.Write([]byte(userID))
	return padBase36(h.Sum64(), 8)
}

func timestampFragment(t time.Time) string {
	return padBase36(uint64(t.Unix()), 6)
}

func padBase36(v uint64, width int) string {
	s := strings.ToUpper(strconv.FormatUint(v, 36))
	if len(s) > width {
		s = s[len(s)-width:]
	}
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func randomForexSuffix(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = forexAlphabet[rand.Intn(len(forexAlphabet))]
	}
	return string(b)
}
