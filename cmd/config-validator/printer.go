package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// kind selects the emoji prefix of a line and whether quiet mode hides it.
type kind struct {
	emoji  string
	toErr  bool
	always bool
}

var (
	kindSuccess    = kind{emoji: "✅"}
	kindInfo       = kind{emoji: "🔍"}
	kindSecurity   = kind{emoji: "🔒"}
	kindError      = kind{emoji: "❌", toErr: true, always: true}
	kindTip        = kind{emoji: "💡"}
	kindBanner     = kind{emoji: "🎉"}
	kindProduction = kind{emoji: "🏭"}
	kindSection    = kind{emoji: "📋"}
	kindFile       = kind{emoji: "📁"}
	kindOverride   = kind{emoji: "🔄"}
)

// Printer writes validator output. Emoji prefixes are optional; quiet mode
// keeps only errors.
type Printer struct {
	out   io.Writer
	err   io.Writer
	emoji bool
	quiet bool
}

// NewPrinter creates a printer writing results to out and errors to err.
func NewPrinter(out, err io.Writer, emoji, quiet bool) *Printer {
	return &Printer{out: out, err: err, emoji: emoji, quiet: quiet}
}

func (p *Printer) print(k kind, msg string) {
	if p.quiet && !k.always {
		return
	}
	w := p.out
	if k.toErr {
		w = p.err
	}
	if p.emoji {
		fmt.Fprintf(w, "%s %s\n", k.emoji, msg)
		return
	}
	fmt.Fprintln(w, msg)
}

func (p *Printer) Success(msg string)    { p.print(kindSuccess, msg) }
func (p *Printer) Info(msg string)       { p.print(kindInfo, msg) }
func (p *Printer) Lock(msg string)       { p.print(kindSecurity, msg) }
func (p *Printer) Error(msg string)      { p.print(kindError, msg) }
func (p *Printer) Tip(msg string)        { p.print(kindTip, msg) }
func (p *Printer) Banner(msg string)     { p.print(kindBanner, msg) }
func (p *Printer) Production(msg string) { p.print(kindProduction, msg) }
func (p *Printer) Section(msg string)    { p.print(kindSection, msg) }
func (p *Printer) File(msg string)       { p.print(kindFile, msg) }

// Cycle reports that environment variables override file values.
func (p *Printer) Cycle(msg string) { p.print(kindOverride, msg) }

func (p *Printer) Infof(format string, args ...any) {
	p.Info(fmt.Sprintf(format, args...))
}

func (p *Printer) Errorf(format string, args ...any) {
	p.Error(fmt.Sprintf(format, args...))
}

// Plain prints msg without a prefix.
func (p *Printer) Plain(msg string) {
	if !p.quiet {
		fmt.Fprintln(p.out, msg)
	}
}

// Bullet prints an indented list item.
func (p *Printer) Bullet(msg string) {
	if p.quiet {
		return
	}
	marker := "-"
	if p.emoji {
		marker = "•"
	}
	fmt.Fprintf(p.out, "  %s %s\n", marker, msg)
}

func (p *Printer) Newline() {
	if !p.quiet {
		fmt.Fprintln(p.out)
	}
}

// PrintJSON writes data as indented JSON regardless of quiet mode.
func (p *Printer) PrintJSON(data any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
