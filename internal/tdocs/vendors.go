package tdocs

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"tdocflow/internal/logger"
)

// Signature recognises one vendor in a free-text source field.
type Signature struct {
	Vendor  string
	Pattern *regexp.Regexp
}

func sig(vendor, pattern string) Signature {
	return Signature{Vendor: vendor, Pattern: regexp.MustCompile(`(?i)` + pattern)}
}

const (
	vendorATT  = "AT&T"
	vendorCATT = "CATT"
)

var attToken = regexp.MustCompile(`(?i)at\s?&\s?t|at&amp;t|\batt\b`)

// DefaultSignatures is the curated vendor table. Order is significant: it is
// the column order and the order of names in a source summary.
var DefaultSignatures = []Signature{
	sig("Ericsson", `eric[s]?sson|\bericson\b`),
	sig("Nokia", `nokia`),
	sig("Nokia Shanghai Bell", `shanghai\s*bell|\bnsb\b`),
	sig("Huawei", `hua[w]?ei`),
	sig("HiSilicon", `hi-?\s?silicon`),
	sig("ZTE", `\bzte\b`),
	sig("Sanechips", `sanechips`),
	sig("Samsung", `sams[au]ng`),
	sig("Qualcomm", `qual?com+\b|qualcomm`),
	sig("Intel", `\bintel\b`),
	sig("Apple", `\bapple\b`),
	sig("LG Electronics", `\blg\s*electronics|\blge\b`),
	sig("LG Uplus", `\blg\s*u(?:\+|plus)`),
	sig("Sony", `\bsony\b`),
	sig("Sharp", `\bsharp\b`),
	sig("NTT DOCOMO", `docomo`),
	sig("KDDI", `\bkddi\b`),
	sig("SoftBank", `soft\s*bank`),
	sig("Rakuten", `rakuten`),
	sig("NEC", `\bnec\b`),
	sig("Fujitsu", `fujitsu`),
	sig("Panasonic", `panasonic`),
	sig("Kyocera", `kyocera`),
	sig("Mitsubishi Electric", `mitsubishi`),
	sig("Hitachi", `hitachi`),
	sig("Toshiba", `toshiba`),
	sig("Vodafone", `voda\s*fone`),
	sig("Deutsche Telekom", `deutsche\s*telekom|\bdtag\b|t-systems`),
	sig("Orange", `\borange\b`),
	sig("Telefonica", `telef[oó]nica`),
	sig("Telecom Italia", `telecom\s*italia|\btim\b`),
	sig("BT", `\bbt\b|british\s*telecom`),
	// "att\b" also hits the tail of "CATT" or "Matt"; Match only keeps AT&T
	// when some token carries the name itself (attToken).
	sig(vendorATT, `at\s?&\s?t|at&amp;t|att\b`),
	sig("Verizon", `verizon`),
	sig("T-Mobile USA", `t-?\s?mobile`),
	sig("Sprint", `\bsprint\b`),
	sig("US Cellular", `\bus\s*cellular`),
	sig("Charter Communications", `\bcharter\b`),
	sig("Comcast", `comcast`),
	sig("Dish Network", `\bdish\b`),
	sig("China Mobile", `china\s*mobile|\bcmcc\b`),
	sig("China Telecom", `china\s*telecom`),
	sig("China Unicom", `china\s*unicom|\bcucc\b`),
	sig(vendorCATT, `\bcatt\b|china\s*academy\s*of\s*telecommunications?\s*technology`),
	sig("CAICT", `\bcaict\b|\bcatr\b`),
	sig("Xiaomi", `xiaomi`),
	sig("OPPO", `\boppo\b`),
	sig("vivo", `\bvivo\b`),
	sig("Lenovo", `lenovo`),
	sig("Motorola Mobility", `motorola`),
	sig("MediaTek", `media\s*tek`),
	sig("Unisoc", `unisoc|spreadtrum`),
	sig("Convida Wireless", `convida`),
	sig("InterDigital", `inter\s*digital`),
	sig("Cisco", `cisco`),
	sig("Juniper", `juniper`),
	sig("Oracle", `oracle`),
	sig("Broadcom", `broadcom`),
	sig("Nvidia", `nvidia`),
	sig("Google", `google`),
	sig("Amazon", `amazon`),
	sig("Meta", `\bmeta\b|facebook`),
	sig("Microsoft", `microsoft`),
	sig("IBM", `\bibm\b`),
	sig("Tencent", `tencent`),
	sig("Alibaba", `alibaba`),
	sig("Baidu", `baidu`),
	sig("ETRI", `\betri\b`),
	sig("KT", `\bkt\b`),
	sig("SK Telecom", `sk\s*telecom|\bskt\b`),
	sig("Chunghwa Telecom", `chunghwa`),
	sig("ITRI", `\bitri\b`),
	sig("III", `\biii\b|institute\s*for\s*information\s*industry`),
	sig("Telstra", `telstra`),
	sig("Telenor", `telenor`),
	sig("Telia", `\btelia`),
	sig("Swisscom", `swisscom`),
	sig("KPN", `\bkpn\b`),
	sig("Bell Mobility", `\bbell\s*(?:mobility|canada)`),
	sig("Rogers", `\brogers\b`),
	sig("TELUS", `\btelus\b`),
	sig("Reliance Jio", `reliance|\bjio\b`),
	sig("Bharti Airtel", `airtel`),
	sig("Tejas Networks", `tejas`),
	sig("IIT Madras", `\biit\b`),
	sig("CEWiT", `cewit`),
	sig("Ofinno", `ofinno`),
	sig("Futurewei", `futurewei`),
	sig("Sequans", `sequans`),
	sig("u-blox", `u-?blox`),
	sig("ASUSTeK", `asus`),
	sig("HTC", `\bhtc\b`),
	sig("Turkcell", `turkcell`),
	sig("Etisalat", `etisalat`),
	sig("Saudi Telecom", `\bstc\b|saudi\s*telecom`),
	sig("TNO", `\btno\b`),
	sig("Fraunhofer", `fraunhofer`),
	sig("EURECOM", `eurecom`),
	sig("ETSI MCC", `\bmcc\b|\betsi\b`),
	sig("GSMA", `\bgsma\b`),
	sig("NIST", `\bnist\b`),
	sig("Nordic Semiconductor", `nordic`),
	sig("Murata", `murata`),
	sig("Sierra Wireless", `sierra\s*wireless`),
	sig("Telit", `\btelit\b`),
	sig("Quectel", `quectel`),
	sig("Fibocom", `fibocom`),
	sig("Skyworks", `skyworks`),
	sig("Qorvo", `qorvo`),
	sig("Rohde & Schwarz", `rohde|\br&s\b`),
	sig("Keysight", `keysight`),
	sig("Anritsu", `anritsu`),
	sig("Spirent", `spirent`),
	sig("Mavenir", `mavenir`),
	sig("Casa Systems", `casa\s*systems`),
	sig("Parallel Wireless", `parallel\s*wireless`),
	sig("Affirmed Networks", `affirmed`),
	sig("Ciena", `ciena`),
	sig("BlackBerry", `black\s*berry`),
	sig("Siemens", `siemens`),
	sig("Bosch", `bosch`),
	sig("Continental", `\bcontinental\b`),
	sig("Volkswagen", `volkswagen`),
	sig("Thales", `thales|gemalto`),
	sig("IDEMIA", `idemia`),
	sig("Giesecke+Devrient", `giesecke|\bg\+d`),
	sig("Airbus", `airbus`),
	sig("FirstNet", `firstnet`),
	sig("UK Home Office", `home\s*office`),
	sig("Philips", `philips`),
	sig("Peraton Labs", `peraton|perspecta`),
}

var (
	rapporteurMark = regexp.MustCompile(`(?i)\([^()]*rapporteur[^()]*\)`)
	sourceNoise    = regexp.MustCompile(`[?\[\]]`)
)

// Classifier attributes documents to vendors. Its memo of already reported
// unknown co-signers lives for the classifier's lifetime, so one classifier
// per session avoids repeating the same warning for every meeting.
type Classifier struct {
	sigs []Signature
	log  *logger.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewClassifier(sigs []Signature, log *logger.Logger) *Classifier {
	if sigs == nil {
		sigs = DefaultSignatures
	}
	return &Classifier{sigs: sigs, log: logger.OrNop(log), seen: map[string]struct{}{}}
}

// Vendors returns the vendor names in signature order.
func (c *Classifier) Vendors() []string {
	out := make([]string, 0, len(c.sigs))
	for _, s := range c.sigs {
		out = append(out, s.Vendor)
	}
	return out
}

// Classify sets Vendors and SourceSummary on every document and returns the
// co-signer tokens no signature recognised, deduplicated case-insensitively
// and sorted.
func (c *Classifier) Classify(t *Table) []string {
	unmatched := map[string]string{}
	for i := 0; i < t.Len(); i++ {
		d := t.At(i)
		vendors, unknown := c.Match(d.Source)
		d.Vendors = vendors
		d.SourceSummary = strings.Join(vendors, ", ")
		for _, tok := range unknown {
			key := strings.ToLower(tok)
			if _, ok := unmatched[key]; !ok {
				unmatched[key] = tok
			}
		}
	}
	t.SetVendorColumns(c.Vendors())

	keys := make([]string, 0, len(unmatched))
	for k := range unmatched {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, unmatched[k])
		c.report(k, unmatched[k])
	}
	return out
}

func (c *Classifier) report(key, token string) {
	c.mu.Lock()
	_, dup := c.seen[key]
	c.seen[key] = struct{}{}
	c.mu.Unlock()
	if !dup {
		c.log.Warn("unrecognised co-signer in source", "cosigner", token)
	}
}

// Match classifies one source string. A vendor matches anywhere in the whole
// cleaned source, since sources are sometimes prose rather than a list;
// unknown co-signers are judged per comma-separated token.
func (c *Classifier) Match(source string) (vendors []string, unmatched []string) {
	cleaned := CleanSource(source)
	tokens := splitCosigners(cleaned)
	vendors = make([]string, 0, 2)
	if cleaned == "" {
		return vendors, nil
	}
	for _, s := range c.sigs {
		if s.Pattern.MatchString(cleaned) {
			vendors = append(vendors, s.Vendor)
		}
	}
	if contains(vendors, vendorATT) && !c.attNamed(tokens) {
		vendors = remove(vendors, vendorATT)
	}
	for _, tok := range tokens {
		if !c.matchesAny(tok) {
			unmatched = append(unmatched, tok)
		}
	}
	return vendors, unmatched
}

func (c *Classifier) attNamed(tokens []string) bool {
	for _, tok := range tokens {
		if attToken.MatchString(tok) {
			return true
		}
	}
	return false
}

func (c *Classifier) matchesAny(token string) bool {
	for _, s := range c.sigs {
		if s.Vendor == vendorATT && !attToken.MatchString(token) {
			continue
		}
		if s.Pattern.MatchString(token) {
			return true
		}
	}
	return false
}

// CleanSource drops rapporteur markers, stray "?" and bracket characters and
// embedded document numbers from a source field.
func CleanSource(source string) string {
	s := rapporteurMark.ReplaceAllString(source, " ")
	s = sourceNoise.ReplaceAllString(s, " ")
	s = idRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func splitCosigners(cleaned string) []string {
	out := make([]string, 0, 4)
	for _, tok := range strings.Split(cleaned, ",") {
		tok = strings.Trim(strings.TrimSpace(tok), "()")
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
