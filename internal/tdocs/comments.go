package tdocs

import (
	"regexp"
	"strings"
)

// idPattern matches a TDoc number such as S2-1812345 or S2-1812345r02.
const idPattern = `[A-Z][A-Za-z0-9]{0,3}-\d{5,8}(?:r\d{1,2})?`

var (
	idRe     = regexp.MustCompile(idPattern)
	idOnlyRe = regexp.MustCompile(`^` + idPattern + `$`)

	listSep = `(?:\s*(?:,|;|(?i:and|part\s+of)\b|[()\[\]]))*\s*`
	idList  = `((?:` + listSep + idPattern + `)+)`

	mergeOfRe    = regexp.MustCompile(`(?i:\bmerging)` + idList)
	revisedToRe  = regexp.MustCompile(`(?i:\brevised\s+(?:(?:off-line|offline|in\s+parallel\s+session|in\s+drafting\s+session)\s+)?(?:merging\s+related\s+CRs\s+)?to)\s+(` + idPattern + `)`)
	revisionOfRe = regexp.MustCompile(`(?i:\brevision\s+of\s+(?:postponed\s+)?)(` + idPattern + `)(?:\s+(?i:from)\s+([A-Za-z]+\d*#\d+\w*))?`)
	mergedToRe   = regexp.MustCompile(`(?i:\bmerged\s+(?:into|with))` + idList)

	listDecoration = regexp.MustCompile(`(?i)\band\b|\bpart\s+of\b|[()\[\];]`)
)

// Annotations are the lineage facts stated in a row's comment cell.
type Annotations struct {
	RevisionOf string   `json:"revision_of"`
	RevisedTo  string   `json:"revised_to"`
	MergeOf    []string `json:"merge_of"`
	MergedTo   []string `json:"merged_to"`
	// PriorMeeting is the meeting tag of a "Revision of X from <tag>" phrase.
	PriorMeeting string `json:"prior_meeting,omitempty"`
}

// ParseComment extracts the four lineage relations. Phrases are consumed in
// a fixed order (merging, revised to, revision of, merged into) so an ID
// claimed by one phrase cannot be picked up again by a later one. When
// ignoreCrossMeeting is set, a revision of a document from a prior meeting is
// left empty because it cannot be resolved within this meeting's table.
func ParseComment(text string, ignoreCrossMeeting bool) Annotations {
	var a Annotations
	rest, mergeOf := ExtractMergeOf(text)
	rest, a.RevisedTo = ExtractRevisedTo(rest)
	rest, revisionOf, prior := ExtractRevisionOf(rest)
	_, mergedTo := ExtractMergedTo(rest)

	a.MergeOf = mergeOf
	a.MergedTo = mergedTo
	a.PriorMeeting = prior
	if prior == "" || !ignoreCrossMeeting {
		a.RevisionOf = revisionOf
	}
	return a
}

// ExtractMergeOf consumes a "merging A, B and part of C" phrase.
func ExtractMergeOf(text string) (string, []string) {
	rest, groups := consume(mergeOfRe, text)
	if groups == nil {
		return text, nil
	}
	return rest, SplitIDList(groups[1])
}

// ExtractRevisedTo consumes a "Revised [off-line|in parallel session|in
// drafting session] [merging related CRs] to X" phrase.
func ExtractRevisedTo(text string) (string, string) {
	rest, groups := consume(revisedToRe, text)
	if groups == nil {
		return text, ""
	}
	return rest, groups[1]
}

// ExtractRevisionOf consumes a "Revision of [Postponed] X [from <meeting>]"
// phrase and reports the prior meeting tag when present.
func ExtractRevisionOf(text string) (rest, id, priorMeeting string) {
	rest, groups := consume(revisionOfRe, text)
	if groups == nil {
		return text, "", ""
	}
	return rest, groups[1], groups[2]
}

// ExtractMergedTo consumes a "Merged into|with A and B" phrase.
func ExtractMergedTo(text string) (string, []string) {
	rest, groups := consume(mergedToRe, text)
	if groups == nil {
		return text, nil
	}
	return rest, SplitIDList(groups[1])
}

func consume(re *regexp.Regexp, text string) (string, []string) {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil
	}
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return text[:loc[0]] + text[loc[1]:], groups
}

// SplitIDList splits a comma separated ID list after dropping "and",
// "part of" and brackets. Duplicates and non-ID tokens are dropped.
func SplitIDList(s string) []string {
	s = listDecoration.ReplaceAllString(s, ",")
	out := make([]string, 0, 4)
	seen := map[string]struct{}{}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if !idOnlyRe.MatchString(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// JoinIDs renders an ID list the way the report does ("A, B").
func JoinIDs(ids []string) string {
	return strings.Join(ids, ", ")
}
