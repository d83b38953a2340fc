package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errEmptyPassphrase = errors.New("empty passphrase")

// readPassphrase reads the passphrase from file if given, from the terminal without echo if
// stdin is one, and otherwise from the first line of stdin.
func readPassphrase(cmd *cobra.Command, file, prompt string) ([]byte, error) {
	var (
		passphrase []byte
		err        error
	)
	switch {
	case file != "":
		passphrase, err = os.ReadFile(file)
		if err != nil {
			return nil, errors.WrapPrefix(err, "failed to read passphrase file", 0)
		}
	case isTerminal(cmd.InOrStdin()):
		fmt.Fprint(cmd.ErrOrStderr(), prompt+": ")
		passphrase, err = term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return nil, errors.WrapPrefix(err, "failed to read passphrase", 0)
		}
	default:
		passphrase, err = bufio.NewReader(cmd.InOrStdin()).ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, errors.WrapPrefix(err, "failed to read passphrase", 0)
		}
	}
	passphrase = bytes.TrimRight(passphrase, "\r\n")
	if len(passphrase) == 0 {
		return nil, errEmptyPassphrase
	}
	return passphrase, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && f == os.Stdin && term.IsTerminal(int(f.Fd()))
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
