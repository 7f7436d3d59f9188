package classifier

import (
	"math"
	"regexp"
	"strings"
)

// Source records which strategy produced a classification.
type Source int

const (
	SourceNone Source = iota
	SourceURL
	SourceKeyword
)

func (s Source) String() string {
	switch s {
	case SourceURL:
		return "url"
	case SourceKeyword:
		return "keyword"
	default:
		return "none"
	}
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(text []byte) error {
	switch string(text) {
	case "url":
		*s = SourceURL
	case "keyword":
		*s = SourceKeyword
	default:
		*s = SourceNone
	}
	return nil
}

const (
	// URLConfidence is assigned to categories read from a category id in the URL.
	URLConfidence = 1.0

	// ShortCircuitThreshold lets a URL result skip keyword scoring entirely.
	ShortCircuitThreshold = 0.8

	keywordBaseConfidence    = 0.1
	keywordMatchConfidence   = 0.15
	keywordConfidenceCeiling = 0.95
)

var categoryIDPattern = regexp.MustCompile(`/c/(MLB\d+)`)

// Result is the outcome of a classification. A zero Result means uncategorized.
type Result struct {
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Found reports whether a category was assigned.
func (r Result) Found() bool {
	return r.Source != SourceNone && r.Category != ""
}

// Band returns the display band for the result's confidence.
func (r Result) Band() Band {
	return BandFor(r.Confidence)
}

// Classifier assigns categories from URL structure and keyword evidence.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	taxonomy *Taxonomy
}

func New(taxonomy *Taxonomy) *Classifier {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Classifier{taxonomy: taxonomy}
}

func (c *Classifier) Taxonomy() *Taxonomy {
	return c.taxonomy
}

// ByURL looks for a /c/MLB<digits> category id in the URL.
func (c *Classifier) ByURL(url string) Result {
	if url == "" {
		return Result{}
	}
	m := categoryIDPattern.FindStringSubmatch(url)
	if m == nil {
		return Result{}
	}
	name, ok := c.taxonomy.CategoryByID(m[1])
	if !ok {
		return Result{}
	}
	return Result{Category: name, Confidence: URLConfidence, Source: SourceURL}
}

// ByKeywords scores every category by keyword substrings found in name and description.
// The best (score, matches) pair wins and the earlier category wins a full tie.
func (c *Classifier) ByKeywords(name, description string) Result {
	if name == "" {
		return Result{}
	}

	text := strings.ToLower(name + " " + description)

	var (
		best        string
		bestScore   float64
		bestMatches int
	)
	for _, cat := range c.taxonomy.categories {
		score := 0.0
		matches := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				score += cat.Weight
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		if best == "" || score > bestScore || (score == bestScore && matches > bestMatches) {
			best, bestScore, bestMatches = cat.Name, score, matches
		}
	}

	if best == "" {
		return Result{}
	}
	return Result{Category: best, Confidence: KeywordConfidence(bestMatches), Source: SourceKeyword}
}

// KeywordConfidence maps a match count to min(0.1 + 0.15*matches, 0.95).
func KeywordConfidence(matches int) float64 {
	conf := keywordBaseConfidence + float64(matches)*keywordMatchConfidence
	// trim float noise: 2 matches is exactly 0.4
	conf = math.Round(conf*1e6) / 1e6
	return math.Min(conf, keywordConfidenceCeiling)
}

// Classify combines both strategies. A URL result above the short-circuit
// threshold wins outright; otherwise agreement keeps the higher confidence and
// disagreement keeps the more confident result, preferring keywords on a tie.
func (c *Classifier) Classify(name, url, description string) Result {
	byURL := c.ByURL(url)
	if byURL.Found() && byURL.Confidence > ShortCircuitThreshold {
		return byURL
	}

	byKeywords := c.ByKeywords(name, description)

	switch {
	case byURL.Found() && byKeywords.Found():
		if byURL.Category == byKeywords.Category {
			if byKeywords.Confidence > byURL.Confidence {
				return byKeywords
			}
			return byURL
		}
		if byURL.Confidence > byKeywords.Confidence {
			return byURL
		}
		return byKeywords
	case byURL.Found():
		return byURL
	case byKeywords.Found():
		return byKeywords
	default:
		return Result{}
	}
}
