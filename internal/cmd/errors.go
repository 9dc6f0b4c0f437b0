package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/drdator/ccm/internal/client"
	"github.com/drdator/ccm/internal/style"
)

var errNotLoggedIn = withHint(errors.New("authentication required"), "run ccm login")

// hintError — ошибка с подсказкой для пользователя.
type hintError struct {
	err  error
	hint string
}

func (e *hintError) Error() string { return e.err.Error() }
func (e *hintError) Unwrap() error { return e.err }

func withHint(err error, hint string) error {
	return &hintError{err: err, hint: hint}
}

// explain добавляет подсказку к типовым ошибкам реестра.
func explain(err error) error {
	if err == nil {
		return nil
	}
	var he *hintError
	if errors.As(err, &he) {
		return err
	}
	switch {
	case errors.Is(err, client.ErrRegistryDown):
		return withHint(err, "check the registry URL: ccm config --get registry")
	case client.StatusOf(err) == http.StatusUnauthorized:
		return withHint(err, "run ccm login")
	case client.StatusOf(err) == http.StatusNotFound:
		return withHint(err, "search available commands: ccm search <query>")
	case client.StatusOf(err) == http.StatusTooManyRequests:
		return withHint(err, "too many requests, try again later")
	}
	return err
}

// PrintError выводит ошибку и подсказку.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", style.ErrorPrefix, err)
	var he *hintError
	if errors.As(err, &he) && he.hint != "" {
		fmt.Fprintf(w, "  %s\n", style.Dim.Render("hint: "+he.hint))
	}
}
