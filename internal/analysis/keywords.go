package analysis

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cuongbtq/jobfeed/internal/domain"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after all also an and any are as at be because been before being
		below between both but by can could did do does doing during each etc experience
		few for from further good great had has have having he her here how i if in into
		is it its itself join just knowledge looking may more most must need new nice no
		nor not of off on once only or other our out over own plus preferred required
		role same she should skills so some strong such team than that the their them
		then there these they this those through to too under until up using very want
		was we well were what when where which while who whom why will with work working
		would years you your`) {
		stopWords[w] = struct{}{}
	}
}

// KeywordAnalyzer scores a resume by the share of the job description's
// keywords it mentions
type KeywordAnalyzer struct{}

func (KeywordAnalyzer) Analyze(_ context.Context, resumeText, jobDescription string) (domain.MatchAnalysis, error) {
	wanted := keywords(jobDescription)

	have := make(map[string]struct{})
	for _, k := range keywords(resumeText) {
		have[k] = struct{}{}
	}

	result := domain.MatchAnalysis{
		MatchedKeywords: []string{},
		MissingKeywords: []string{},
	}
	for _, k := range wanted {
		if _, ok := have[k]; ok {
			result.MatchedKeywords = append(result.MatchedKeywords, k)
		} else {
			result.MissingKeywords = append(result.MissingKeywords, k)
		}
	}

	if len(wanted) > 0 {
		score := 100 * float64(len(result.MatchedKeywords)) / float64(len(wanted))
		result.Score = math.Round(score*10) / 10
	}

	return result, nil
}

// keywords returns the distinct lower-cased tokens of text in order of first
// appearance, without stop words and bare numbers
func keywords(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#' && r != '.'
	})

	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".")
		if len(tok) < 2 || isNumber(tok) {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}
