// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const ruleWidth = 50

// Report writes the human-readable probe report
type Report struct {
	w io.Writer

	bannerStyle  lipgloss.Style
	sectionStyle lipgloss.Style
	labelStyle   lipgloss.Style
	okStyle      lipgloss.Style
	failStyle    lipgloss.Style
	hintStyle    lipgloss.Style
}

// NewReport creates a report writing to w. Styles are resolved against w,
// so output to a pipe or file carries no escape sequences.
func NewReport(w io.Writer) *Report {
	r := lipgloss.NewRenderer(w)
	return &Report{
		w: w,
		bannerStyle: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		sectionStyle: r.NewStyle().
			Bold(true),
		labelStyle: r.NewStyle().
			Foreground(lipgloss.Color("241")),
		okStyle: r.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true),
		failStyle: r.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true),
		hintStyle: r.NewStyle().
			Foreground(lipgloss.Color("11")),
	}
}

// Banner prints a title between two "=" rules
func (r *Report) Banner(title string) {
	r.banner(r.bannerStyle, title)
}

func (r *Report) banner(style lipgloss.Style, title string) {
	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintln(r.w, rule)
	fmt.Fprintln(r.w, style.Render(title))
	fmt.Fprintln(r.w, rule)
}

// Section prints a section heading between two "-" rules
func (r *Report) Section(title string) {
	rule := strings.Repeat("-", ruleWidth)
	fmt.Fprintln(r.w, rule)
	fmt.Fprintln(r.w, r.sectionStyle.Render(title))
	fmt.Fprintln(r.w, rule)
}

// Field prints "label: value"
func (r *Report) Field(label string, value interface{}) {
	fmt.Fprintf(r.w, "%s %v\n", r.labelStyle.Render(label+":"), value)
}

// Line prints a plain formatted line
func (r *Report) Line(format string, args ...interface{}) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

// Blank prints an empty line
func (r *Report) Blank() {
	fmt.Fprintln(r.w)
}

// Success prints a ✓ line
func (r *Report) Success(format string, args ...interface{}) {
	fmt.Fprintln(r.w, r.okStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Failure prints a ✗ line
func (r *Report) Failure(format string, args ...interface{}) {
	fmt.Fprintln(r.w, r.failStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Passed prints the final success banner
func (r *Report) Passed() {
	r.banner(r.okStyle, "✓ ALL TESTS PASSED!")
}

// Failed prints the failure banner, the raw error text and the
// troubleshooting checklist
func (r *Report) Failed(err *Error, cfg Config, ports []string) {
	r.Blank()
	r.banner(r.failStyle, "✗ CONNECTION FAILED")
	r.Blank()
	r.Line("Error: %s", err.Err)
	r.Blank()
	r.Line("Troubleshooting steps:")
	for i, hint := range troubleshootingHints(cfg) {
		r.Line("%d. %s", i+1, r.hintStyle.Render(hint))
	}
	if ports != nil {
		r.Blank()
		if len(ports) == 0 {
			r.Line("No serial ports found")
		} else {
			r.Line("Available serial ports: %s", strings.Join(ports, ", "))
		}
	}
	r.Blank()
}

func troubleshootingHints(cfg Config) []string {
	return []string{
		"Check wiring (TX to RX, RX to TX, GND to GND)",
		fmt.Sprintf("Verify UART is enabled: ls -l %s", cfg.Address),
		"Check CubeBlack SERIAL2_PROTOCOL = 2 and SERIAL2_BAUD = 921",
		"Ensure you're in the dialout group: groups",
		fmt.Sprintf("Try lower baud rate: %d", FallbackBaudRate),
	}
}
