// Command classify runs the severity classifier over recorded posts without
// connecting to any stream or delivery target. Input is one post per line as
// "account<TAB>text"; output is one classification per line.
//
// Usage:
//
//	go run ./cmd/classify -in testdata/messages.tsv
//	go run ./cmd/classify -json < testdata/messages.tsv
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/couchcryptid/earthquake-notify/internal/domain"
)

func main() {
	in := flag.String("in", "", "file of account<TAB>text lines (default stdin)")
	asJSON := flag.Bool("json", false, "print one JSON object per line")
	flag.Parse()

	r := io.Reader(os.Stdin)
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		r = f
	}

	if err := run(r, os.Stdout, *asJSON); err != nil {
		log.Fatal(err)
	}
}

type classification struct {
	ID      string        `json:"id"`
	Account string        `json:"account"`
	Notify  bool          `json:"notify"`
	Result  domain.Result `json:"result"`
}

func run(r io.Reader, w io.Writer, asJSON bool) error {
	msgs, err := domain.ReadMessages(r)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for _, msg := range msgs {
		result := domain.Classify(msg.Account, msg.Text)
		if asJSON {
			if err := enc.Encode(classification{
				ID:      msg.ID,
				Account: msg.Account,
				Notify:  result.Notify(),
				Result:  result,
			}); err != nil {
				return fmt.Errorf("encode %s: %w", msg.ID, err)
			}
			continue
		}

		action := "beep"
		if result.Notify() {
			action = "speak"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			msg.ID, msg.Account, result.Tier, result.Location, action, result.Message); err != nil {
			return err
		}
	}
	return nil
}
