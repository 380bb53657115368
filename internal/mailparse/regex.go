package mailparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Phrases that force a no-result requiring human follow-up. Checked before
// any time extraction so "delayed until further notice" never yields a time.
var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brunning\s+late\b`),
	regexp.MustCompile(`\bdelayed\b`),
	regexp.MustCompile(`\bnot\s+sure\b`),
	regexp.MustCompile(`\bdon'?t\s+know\b`),
	regexp.MustCompile(`\bunknown\b`),
}

// Quoted-reply boundaries. Everything from the first match onward is
// discarded before pattern matching.
var quoteMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^on .+wrote:`),
	regexp.MustCompile(`(?i)^-+ ?original message ?-+`),
	regexp.MustCompile(`^_{8,}$`),
	regexp.MustCompile(`^--\s*$`),
}

var (
	rangeMilitary = regexp.MustCompile(`between\s+(\d{3,4})\s+and\s+(\d{3,4})`)
	rangeHourAMPM = regexp.MustCompile(`\b(\d{1,2})\s*-\s*(\d{1,2})\s*(am|pm)\b`)
	rangeClock    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)\s*-\s*(\d{1,2}):(\d{2})\s*(am|pm)\b`)

	singleMilitary = regexp.MustCompile(`\b([0-2]\d)([0-5]\d)\b(?:\s*(?:hrs|hours))?`)
	singleClock    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)\b`)
	bareClock      = regexp.MustCompile(`\b([0-2]?\d):([0-5]\d)\b`)
	singleHour     = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
)

// parseRegex is the deterministic stage: strip quoted reply text, bail on
// vague phrasing, then try ranges before single times. Ranges resolve to the
// later bound — the worst case is what dispatch plans around.
func (p *Parser) parseRegex(body string, receivedAt time.Time) Result {
	text := strings.ToLower(stripQuotedReply(body))

	for _, pat := range vaguePatterns {
		if pat.MatchString(text) {
			return noResult("vague reply, needs human follow-up")
		}
	}

	if hour, minute, ok := extractRange(text); ok {
		return finishRegex(hour, minute, receivedAt)
	}
	if hour, minute, ok := extractSingleTime(text); ok {
		return finishRegex(hour, minute, receivedAt)
	}
	return noResult("no recognizable time in email")
}

func finishRegex(hour, minute int, receivedAt time.Time) Result {
	eta, reason := resolveClock(hour, minute, receivedAt)
	if eta == nil {
		return noResult(reason)
	}
	return Result{ETA: eta, Method: MethodRegex}
}

// stripQuotedReply removes the quoted tail of a reply: everything from the
// first known boundary line down, plus any "> "-prefixed lines above it.
func stripQuotedReply(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		boundary := false
		for _, marker := range quoteMarkers {
			if marker.MatchString(trimmed) {
				boundary = true
				break
			}
		}
		if boundary {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// extractRange returns the later bound of a recognized time range.
func extractRange(text string) (hour, minute int, ok bool) {
	if m := rangeMilitary.FindStringSubmatch(text); m != nil {
		return splitMilitary(m[2])
	}
	if m := rangeHourAMPM.FindStringSubmatch(text); m != nil {
		end, _ := strconv.Atoi(m[2])
		return to24(end, m[3]), 0, true
	}
	if m := rangeClock.FindStringSubmatch(text); m != nil {
		endHour, _ := strconv.Atoi(m[4])
		endMin, _ := strconv.Atoi(m[5])
		return to24(endHour, m[6]), endMin, true
	}
	return 0, 0, false
}

func extractSingleTime(text string) (hour, minute int, ok bool) {
	if m := singleClock.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		return to24(h, m[3]), mi, true
	}
	if m := bareClock.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		return h, mi, true
	}
	if m := singleMilitary.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		return h, mi, true
	}
	if m := singleHour.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		return to24(h, m[2]), 0, true
	}
	return 0, 0, false
}

// splitMilitary handles 3- and 4-digit clock strings ("600", "1400").
func splitMilitary(s string) (hour, minute int, ok bool) {
	if len(s) == 3 {
		s = "0" + s
	}
	if len(s) != 4 {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(s[:2])
	minute, _ = strconv.Atoi(s[2:])
	return hour, minute, true
}

// to24 converts a 12-hour clock hour to 24-hour.
func to24(hour int, period string) int {
	if period == "pm" && hour != 12 {
		return hour + 12
	}
	if period == "am" && hour == 12 {
		return 0
	}
	return hour
}
