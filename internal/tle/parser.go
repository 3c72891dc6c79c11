package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const lineLength = 69

// Parse reads element text in 3-line (name + two lines) or bare 2-line form.
// Malformed entries are skipped with a warning. Bare entries are named after
// their catalog number.
func Parse(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading element text: %w", err)
	}

	var sets []ElementSet
	for i := 0; i < len(lines); {
		var name, l1, l2 string
		switch {
		case i+1 < len(lines) && isLine(lines[i], '1') && isLine(lines[i+1], '2'):
			l1, l2 = lines[i], lines[i+1]
			i += 2
		case i+2 < len(lines) && isLine(lines[i+1], '1') && isLine(lines[i+2], '2'):
			name, l1, l2 = strings.TrimSpace(lines[i]), lines[i+1], lines[i+2]
			name = strings.TrimPrefix(name, "0 ")
			i += 3
		default:
			logger.Warn("skipping unrecognised element line", "line_index", i, "line", lines[i])
			i++
			continue
		}

		es, err := parseLines(name, l1, l2)
		if err != nil {
			logger.Warn("skipping malformed element set", "name", name, "error", err)
			continue
		}
		if err := Checksum(es.Line1, es.Line2); err != nil {
			logger.Warn("element checksum mismatch", "norad_id", es.NORADID, "error", err)
		}
		sets = append(sets, es)
	}

	return sets, nil
}

func isLine(s string, n byte) bool {
	return len(s) >= 2 && s[0] == n && s[1] == ' '
}

func parseLines(name, l1, l2 string) (ElementSet, error) {
	if err := ValidateLines(l1, l2); err != nil {
		return ElementSet{}, err
	}

	id, err := strconv.Atoi(strings.TrimSpace(l1[2:7]))
	if err != nil {
		return ElementSet{}, fmt.Errorf("catalog number %q: %w", l1[2:7], err)
	}
	if id2, err := strconv.Atoi(strings.TrimSpace(l2[2:7])); err != nil || id2 != id {
		return ElementSet{}, fmt.Errorf("line 2 catalog number %q does not match %d", l2[2:7], id)
	}

	epoch, err := ParseEpoch(l1[18:32])
	if err != nil {
		return ElementSet{}, err
	}

	if name == "" {
		name = strconv.Itoa(id)
	}
	return ElementSet{
		Name:    name,
		NORADID: id,
		Line1:   l1,
		Line2:   l2,
		Epoch:   epoch,
	}, nil
}

// ValidateLines checks the fixed-column layout the SGP4 initialiser expects
// and that every field it reads parses as a number. The propagation library
// aborts the process on malformed input, so every set passes through here
// before it reaches SGP4.
func ValidateLines(l1, l2 string) error {
	l1 = strings.TrimSpace(l1)
	l2 = strings.TrimSpace(l2)

	if len(l1) != lineLength {
		return fmt.Errorf("line 1 length %d, expected %d", len(l1), lineLength)
	}
	if len(l2) != lineLength {
		return fmt.Errorf("line 2 length %d, expected %d", len(l2), lineLength)
	}
	if l1[0] != '1' {
		return fmt.Errorf("line 1 must start with '1', got %q", l1[0])
	}
	if l2[0] != '2' {
		return fmt.Errorf("line 2 must start with '2', got %q", l2[0])
	}

	for _, f := range elementFields(l1, l2) {
		var err error
		if f.integer {
			_, err = strconv.ParseInt(f.text, 10, 0)
		} else {
			_, err = strconv.ParseFloat(f.text, 64)
		}
		if err != nil {
			return fmt.Errorf("%s field %q is not numeric", f.name, f.text)
		}
	}
	return nil
}

type elementField struct {
	name    string
	text    string
	integer bool
}

// elementFields slices both lines exactly as the SGP4 initialiser does,
// including its removal of at most two spaces per signed field.
func elementFields(l1, l2 string) []elementField {
	squeeze := func(s string) string { return strings.Replace(s, " ", "", 2) }
	return []elementField{
		{"catalog number", strings.TrimSpace(l1[2:7]), true},
		{"epoch year", l1[18:20], true},
		{"epoch day", l1[20:32], false},
		{"mean motion derivative", squeeze(l1[33:43]), false},
		{"mean motion second derivative", squeeze(l1[44:45] + "." + l1[45:50] + "e" + l1[50:52]), false},
		{"bstar", squeeze(l1[53:54] + "." + l1[54:59] + "e" + l1[59:61]), false},
		{"inclination", squeeze(l2[8:16]), false},
		{"right ascension", squeeze(l2[17:25]), false},
		{"eccentricity", "." + l2[26:33], false},
		{"argument of perigee", squeeze(l2[34:42]), false},
		{"mean anomaly", squeeze(l2[43:51]), false},
		{"mean motion", squeeze(l2[52:63]), false},
	}
}

// Checksum verifies the modulo-10 check digit in column 69 of both lines.
func Checksum(l1, l2 string) error {
	for n, l := range []string{l1, l2} {
		if len(l) < lineLength {
			return fmt.Errorf("line %d too short for checksum", n+1)
		}
		want := int(l[lineLength-1] - '0')
		if got := checksum(l[:lineLength-1]); got != want {
			return fmt.Errorf("line %d checksum %d, computed %d", n+1, want, got)
		}
	}
	return nil
}

func checksum(s string) int {
	sum := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// ParseEpoch converts a YYDDD.DDDDDDDD epoch field to UTC. Years 57-99 map
// to the 1900s, 00-56 to the 2000s. Day 1.0 is January 1 00:00.
func ParseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch %q too short", s)
	}

	yy, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch year %q: %w", s[:2], err)
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}

	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch day %q: %w", s[2:], err)
	}
	if day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", day)
	}

	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}
