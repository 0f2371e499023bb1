package admin

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errPasswordMismatch = errors.New("passwords do not match")

// getPassword prints prompt to w and reads a password from the terminal
// without echo. The caller should wipe the result when done with it.
func getPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// getNewPassword asks for a password twice and fails when the entries differ.
func getNewPassword(w io.Writer) ([]byte, error) {
	first, err := getPassword(w, "Enter password: ")
	if err != nil {
		return nil, err
	}
	second, err := getPassword(w, "Repeat password: ")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(second)
	if string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, errPasswordMismatch
	}
	return first, nil
}
