package verify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
)

var (
	statusLine     = regexp.MustCompile(`(?i)^[\s\-*\d.)#]*\**(UNVERIFIED|INCORRECT|VERIFIED)\**\s*[:\-]\s*(.+)$`)
	correctionLine = regexp.MustCompile(`(?i)^[\s\-*]*\**(CORRECTION|CORRECTED|SHOULD BE|FIX)\**\s*[:\-]\s*(.+)$`)
	answerHeader   = regexp.MustCompile(`(?i)^[\s#*]*(VERIFIED ANSWER|FINAL ANSWER|CORRECTED ANSWER)\**\s*:\s*(.*)$`)
	urlPattern     = regexp.MustCompile(`https?://[^\s)\]>"'` + "`" + `]+`)
	pathPattern    = regexp.MustCompile(`(?:^|[\s(\[` + "`" + `"'])((?:[\w.-]+/)*[\w.-]+\.(?:go|py|js|ts|tsx|jsx|rs|java|kt|c|h|cc|cpp|hpp|rb|php|cs|swift|scala|sh|sql|proto|yaml|yml|json|toml|md|txt|html|css))(?::(\d+)(?:-(\d+))?)?`)
)

// Parse reads a structured verifier response. It reports false when raw carries no
// usable JSON object with a verifiedAnswer or claims field.
func Parse(raw, original string) (*VerifiedAnswer, bool) {
	doc, ok := agents.ExtractJSON(agents.StripToolRequests(raw))
	if !ok {
		return nil, false
	}
	root := gjson.Parse(doc)
	if !root.Get("verifiedAnswer").Exists() && !root.Get("claims").Exists() {
		return nil, false
	}

	va := &VerifiedAnswer{
		OriginalAnswer: original,
		VerifiedAnswer: strings.TrimSpace(root.Get("verifiedAnswer").String()),
		Structured:     true,
	}
	if va.VerifiedAnswer == "" {
		va.VerifiedAnswer = original
	}

	root.Get("claims").ForEach(func(_, v gjson.Result) bool {
		c := Claim{
			Claim:      strings.TrimSpace(v.Get("claim").String()),
			Status:     normalizeStatus(v.Get("status").String()),
			Correction: strings.TrimSpace(v.Get("correction").String()),
		}
		if c.Claim == "" {
			return true
		}
		if cit := v.Get("citation"); cit.Exists() {
			if parsed := agents.ParseCitations(gjson.Parse("[" + cit.Raw + "]")); len(parsed) > 0 {
				c.Citation = &parsed[0]
			}
		}
		va.Claims = append(va.Claims, c)
		return true
	})

	root.Get("corrections").ForEach(func(_, v gjson.Result) bool {
		s := strings.TrimSpace(v.String())
		if v.IsObject() {
			s = strings.TrimSpace(v.Get("correction").String())
		}
		if s != "" {
			va.Corrections = append(va.Corrections, s)
		}
		return true
	})

	va.Citations = dedupCitations(agents.ParseCitations(root.Get("citations")))
	return va, true
}

// ExtractManual recovers what it can from unstructured verifier text. It never fails:
// with nothing recognisable the result simply echoes the original answer.
func ExtractManual(raw, original string) *VerifiedAnswer {
	va := &VerifiedAnswer{OriginalAnswer: original, VerifiedAnswer: original}
	text := agents.StripToolRequests(raw)

	var answerLines []string
	inAnswer := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := answerHeader.FindStringSubmatch(trimmed); m != nil {
			inAnswer = true
			if rest := strings.TrimSpace(m[2]); rest != "" {
				answerLines = append(answerLines, rest)
			}
			continue
		}

		if m := statusLine.FindStringSubmatch(trimmed); m != nil {
			inAnswer = false
			c := Claim{Claim: strings.TrimSpace(m[2]), Status: normalizeStatus(m[1])}
			if cits := findCitations(c.Claim); len(cits) > 0 {
				c.Citation = &cits[0]
			}
			va.Claims = append(va.Claims, c)
			continue
		}

		if m := correctionLine.FindStringSubmatch(trimmed); m != nil {
			inAnswer = false
			corr := strings.TrimSpace(m[2])
			va.Corrections = append(va.Corrections, corr)
			if n := len(va.Claims); n > 0 && va.Claims[n-1].Status == StatusIncorrect && va.Claims[n-1].Correction == "" {
				va.Claims[n-1].Correction = corr
			}
			continue
		}

		if inAnswer {
			if trimmed == "" && len(answerLines) > 0 {
				inAnswer = false
				continue
			}
			answerLines = append(answerLines, trimmed)
		}
	}

	if ans := strings.TrimSpace(strings.Join(answerLines, "\n")); ans != "" {
		va.VerifiedAnswer = ans
	}
	va.Citations = findCitations(text)
	return va
}

// UncitedVerifiedClaims returns verified claims that carry no citation. It is advisory
// and does not change any verdict.
func UncitedVerifiedClaims(va *VerifiedAnswer) []Claim {
	return lo.Filter(va.Claims, func(c Claim, _ int) bool {
		return c.Status == StatusVerified && (c.Citation == nil || c.Citation.Source == "")
	})
}

func normalizeStatus(s string) ClaimStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verified", "correct", "true", "supported":
		return StatusVerified
	case "incorrect", "false", "wrong", "refuted":
		return StatusIncorrect
	default:
		return StatusUnverified
	}
}

func findCitations(text string) []agents.Citation {
	var out []agents.Citation
	for _, u := range urlPattern.FindAllString(text, -1) {
		out = append(out, agents.Citation{Type: agents.CitationURL, Source: strings.TrimRight(u, ".,;:")})
	}
	withoutURLs := urlPattern.ReplaceAllString(text, " ")
	for _, m := range pathPattern.FindAllStringSubmatch(withoutURLs, -1) {
		c := agents.Citation{Type: agents.CitationFile, Source: m[1]}
		if m[2] != "" {
			c.LineNumbers = lineRange(m[2], m[3])
		}
		out = append(out, c)
	}
	return dedupCitations(out)
}

func lineRange(from, to string) []int {
	start, err := strconv.Atoi(from)
	if err != nil || start <= 0 {
		return nil
	}
	if to == "" {
		return []int{start}
	}
	end, err := strconv.Atoi(to)
	if err != nil || end < start || end-start > 500 {
		return []int{start}
	}
	return lo.RangeFrom(start, end-start+1)
}

func dedupCitations(cs []agents.Citation) []agents.Citation {
	return lo.UniqBy(cs, func(c agents.Citation) string { return c.Key() })
}
