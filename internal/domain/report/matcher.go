package report

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/refermed/refermed/internal/domain/referral"
)

// Matcher scores a clinic report against a pool of open referrals and decides
// whether it can be linked automatically or needs a human. Thresholds come
// from configuration. The matcher never touches referral or payment state.
type Matcher struct {
	autoThreshold   int
	reviewThreshold int
}

func NewMatcher(autoThreshold, reviewThreshold int) *Matcher {
	return &Matcher{autoThreshold: autoThreshold, reviewThreshold: reviewThreshold}
}

// Candidate is one scored referral. Score is a percentage 0..100.
type Candidate struct {
	Referral *referral.Referral
	Score    int
}

// Verdict is the routing decision for a freshly ingested report.
type Verdict struct {
	Status              Status
	Confidence          int
	LinkedReferralID    *int64
	SuggestedReferralID *int64
}

// Scoring weights. When the clinic component is unavailable the remaining
// weights are rescaled so a perfect name+date match can still reach 100.
const (
	weightName   = 60
	weightDate   = 25
	weightClinic = 15

	dateDecayDays = 14
)

// Rank scores every candidate and orders them best first. Ties are broken by
// earliest referral creation time.
func (m *Matcher) Rank(rep *ClinicReport, pool []*referral.Referral) []Candidate {
	candidates := make([]Candidate, 0, len(pool))
	for _, ref := range pool {
		candidates = append(candidates, Candidate{Referral: ref, Score: m.score(rep, ref)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Referral.CreatedAt.Before(candidates[j].Referral.CreatedAt)
	})
	return candidates
}

// Route picks the best candidate and applies the routing policy: at or above
// the auto threshold the referral is linked pending final confirmation, in
// the review band it is only suggested, below that the report goes to review
// bare.
func (m *Matcher) Route(rep *ClinicReport, pool []*referral.Referral) Verdict {
	ranked := m.Rank(rep, pool)
	if len(ranked) == 0 {
		return Verdict{Status: StatusPendingReview}
	}

	best := ranked[0]
	v := Verdict{Confidence: best.Score}
	switch {
	case best.Score >= m.autoThreshold:
		v.Status = StatusAutoMatched
		id := best.Referral.ID
		v.LinkedReferralID = &id
	case best.Score >= m.reviewThreshold:
		v.Status = StatusPendingReview
		id := best.Referral.ID
		v.SuggestedReferralID = &id
	default:
		v.Status = StatusPendingReview
	}
	return v
}

func (m *Matcher) score(rep *ClinicReport, ref *referral.Referral) int {
	if rep.PatientName == nil || *rep.PatientName == "" {
		return 0
	}

	total := weightName * nameSimilarity(*rep.PatientName, ref.PatientName)
	weights := weightName

	if rep.VisitDate != nil {
		total += weightDate * dateProximity(*rep.VisitDate, ref.CreatedAt)
		weights += weightDate
	}
	if rep.ClinicName != nil && *rep.ClinicName != "" && ref.ClinicName != nil && *ref.ClinicName != "" {
		total += weightClinic * nameSimilarity(*rep.ClinicName, *ref.ClinicName)
		weights += weightClinic
	}
	return total / weights
}

// nameSimilarity compares two names token-set style: order-insensitive,
// case-insensitive, diacritics folded. Each token is matched against its
// closest counterpart by edit distance; the result is the length-weighted
// average over both directions, 0..100.
func nameSimilarity(a, b string) int {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	return (directedSimilarity(ta, tb) + directedSimilarity(tb, ta)) / 2
}

func directedSimilarity(from, to []string) int {
	var sum, weight int
	for _, t := range from {
		best := 0
		for _, u := range to {
			if r := tokenRatio(t, u); r > best {
				best = r
			}
		}
		sum += best * len(t)
		weight += len(t)
	}
	return sum / weight
}

func tokenRatio(a, b string) int {
	if a == b {
		return 100
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}
	return 100 * (longest - levenshtein(a, b)) / longest
}

func tokenize(s string) []string {
	return strings.Fields(normalize(s))
}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalize(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// dateProximity scores how close the clinic visit is to the referral's
// creation, decaying linearly to zero over two weeks.
func dateProximity(visit, created time.Time) int {
	d := visit.Sub(created)
	if d < 0 {
		d = -d
	}
	days := int(d.Hours() / 24)
	if days >= dateDecayDays {
		return 0
	}
	return 100 - days*100/dateDecayDays
}
