package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}-{SEQ6}"

// FormatInvoiceNumber renders template for issuedAt and seq. It has no side
// effects; equal inputs give equal numbers.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}
	if !strings.Contains(template, "{SEQ") {
		return "", fmt.Errorf("invoice number template has no sequence token: %s", template)
	}

	out := resolveDates(template, issuedAt)
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// SequenceScope names the counter a number is drawn from: the template with
// its date tokens resolved. A yearly template restarts at 1 each year.
func SequenceScope(template string, issuedAt time.Time) string {
	return resolveDates(template, issuedAt)
}

func resolveDates(template string, at time.Time) string {
	at = at.UTC()
	out := strings.ReplaceAll(template, "{YYYY}", at.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", at.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", at.Format("01"))
	return strings.ReplaceAll(out, "{DD}", at.Format("02"))
}
