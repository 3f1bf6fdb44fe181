package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MinNotifyTier is the lowest intensity tier that is announced by speech.
const MinNotifyTier = 3

const (
	asciiSpace       = " "
	ideographicSpace = "\u3000"
	fullWidthColon   = "："
	fullWidthParen   = "（"
	preliminaryMark  = "速報"
)

// tierRe matches the first run of ASCII digits in an intensity field.
var tierRe = regexp.MustCompile(`\d+`)

// Classify extracts the intensity tier and epicenter from a post and decides
// whether it should be announced. It is pure and total: unknown accounts and
// unparseable text produce a zero-tier result with no message.
func Classify(account, text string) Result {
	p := ParsePublisher(account)

	var location string
	var tier int
	switch p {
	case PublisherYurekuru:
		location, tier = parseYurekuru(text)
	case PublisherEarthquakeJP:
		var preliminary bool
		location, tier, preliminary = parseEarthquakeJP(text)
		if preliminary {
			return Result{Publisher: p}
		}
	default:
		return Result{Publisher: PublisherUnknown}
	}

	r := Result{Publisher: p, Location: location, Tier: tier}
	if tier >= MinNotifyTier {
		r.Message = FormatNotifyMessage(tier, location)
	}
	return r
}

// FormatNotifyMessage renders the spoken announcement for a tier and epicenter.
func FormatNotifyMessage(tier int, location string) string {
	return fmt.Sprintf("地震です。震度%d、%s", tier, location)
}

// parseYurekuru reads "<label>：<value>" fields from an ASCII-space separated post.
func parseYurekuru(text string) (string, int) {
	tokens := strings.Split(text, asciiSpace)
	location := labelValue(tokenAt(tokens, 3))
	intensity := ToHalfWidth(labelValue(tokenAt(tokens, 10)))
	return location, parseTier(intensity)
}

// parseEarthquakeJP reads an ideographic-space separated post. The third return
// value is true for preliminary estimates, which are never announced.
func parseEarthquakeJP(text string) (string, int, bool) {
	tokens := strings.Split(text, ideographicSpace)
	if strings.Contains(tokenAt(tokens, 0), preliminaryMark) {
		return "", 0, true
	}
	location := beforeParen(tokenAt(tokens, 2))
	intensity := beforeParen(tokenAt(tokens, 3))
	return location, parseTier(intensity), false
}

// tokenAt returns tokens[i], or "" when the post is too short.
func tokenAt(tokens []string, i int) string {
	if i < 0 || i >= len(tokens) {
		return ""
	}
	return tokens[i]
}

// labelValue returns the text between the first and second full-width colon.
func labelValue(field string) string {
	parts := strings.SplitN(field, fullWidthColon, 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// beforeParen returns field up to the first full-width open parenthesis.
func beforeParen(field string) string {
	before, _, _ := strings.Cut(field, fullWidthParen)
	return before
}

// parseTier returns the first digit run as an integer, or 0 when there is none.
// A run too long for an int saturates at math.MaxInt so it still clears the
// notify threshold.
func parseTier(s string) int {
	digits := tierRe.FindString(s)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt
	}
	if err != nil {
		return 0
	}
	return n
}
