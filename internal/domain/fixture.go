package domain

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadMessages parses recorded posts, one per line as "account<TAB>text".
// Blank lines and lines starting with '#' are skipped. IDs are assigned from
// the line number so replays of the same file produce the same IDs.
func ReadMessages(r io.Reader) ([]Message, error) {
	var msgs []Message
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(raw) == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		account, text, ok := strings.Cut(raw, "\t")
		if !ok || account == "" {
			return nil, fmt.Errorf("line %d: want account<TAB>text", line)
		}
		msgs = append(msgs, NewMessage(fmt.Sprintf("fixture-%d", line), account, text))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return msgs, nil
}
