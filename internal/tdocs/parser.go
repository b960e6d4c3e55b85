package tdocs

import (
	"fmt"
	"strings"

	"tdocflow/internal/logger"
	"tdocflow/internal/util"
)

// Options configure a Parser. IgnoreCrossMeetingRevisions applies to every
// row of every report the parser handles.
type Options struct {
	IgnoreCrossMeetingRevisions bool
	MaxDepth                    int
	GroupName                   string
	Signatures                  []Signature
}

// Result is a fully processed agenda report.
type Result struct {
	Format    Format
	Table     *Table
	Unmatched []string
}

// Parser runs the whole report pipeline. It is safe to share between
// goroutines: each Parse builds its own table.
type Parser struct {
	opts       Options
	log        *logger.Logger
	resolver   *Resolver
	classifier *Classifier
}

func NewParser(opts Options, log *logger.Logger) *Parser {
	log = logger.OrNop(log)
	return &Parser{
		opts:       opts,
		log:        log,
		resolver:   NewResolver(opts.MaxDepth, log),
		classifier: NewClassifier(opts.Signatures, log),
	}
}

// Vendors is the vendor column list of tables this parser produces.
func (p *Parser) Vendors() []string {
	return p.classifier.Vendors()
}

// Settings fingerprints the options that shape this parser's results. Two
// parsers with equal settings produce equal results for the same bytes.
func (p *Parser) Settings() string {
	var sigs strings.Builder
	for _, s := range p.classifier.sigs {
		sigs.WriteString(s.Vendor)
		sigs.WriteByte('=')
		sigs.WriteString(s.Pattern.String())
		sigs.WriteByte('\n')
	}
	return fmt.Sprintf("xmeeting=%t;depth=%d;group=%s;sigs=%s",
		p.opts.IgnoreCrossMeetingRevisions, p.resolver.MaxDepth, p.opts.GroupName,
		util.MD5Hex([]byte(sigs.String()))[:12])
}

// Parse decodes, normalizes, builds, resolves and classifies raw report
// bytes. Malformed input yields an empty table, never an error.
func (p *Parser) Parse(raw []byte) Result {
	text := Decode(raw, p.log)
	sheet := Normalize(text, p.log)
	t := Build(sheet, BuildOptions{
		IgnoreCrossMeetingRevisions: p.opts.IgnoreCrossMeetingRevisions,
		GroupName:                   p.opts.GroupName,
	}, p.log)
	p.resolver.Resolve(t)
	unmatched := p.classifier.Classify(t)
	p.log.Info("parsed agenda report",
		"format", sheet.Format,
		"documents", t.Len(),
		"email_approval", t.EmailApprovalCount(),
		"unmatched_cosigners", len(unmatched),
	)
	return Result{Format: sheet.Format, Table: t, Unmatched: unmatched}
}
