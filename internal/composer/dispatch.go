package composer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/tutaviendo/storefront/pkg/models"
)

// ErrDispatchFailed is the user-facing failure of a checkout: the WhatsApp
// link could not be built, so nothing was opened.
var ErrDispatchFailed = errors.New("no pudimos generar el enlace de WhatsApp, intentá nuevamente")

// ErrNoNavigator is returned by Dispatch on a Dispatcher built without a
// Navigator.
var ErrNoNavigator = errors.New("composer: no navigator configured")

// Navigator opens a deep link in an external client.
type Navigator interface {
	Navigate(ctx context.Context, link string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, link string) error

func (f NavigatorFunc) Navigate(ctx context.Context, link string) error {
	return f(ctx, link)
}

// WriterNavigator "opens" a link by printing it, for terminals and logs.
type WriterNavigator struct {
	W io.Writer
}

func (n WriterNavigator) Navigate(_ context.Context, link string) error {
	_, err := fmt.Fprintln(n.W, link)
	return err
}

// Logger is the subset of logging.Logger the dispatcher needs.
type Logger interface {
	Log(level models.LogLevel, message string, metadata map[string]interface{})
}

// Dispatcher validates, sanitizes and sends order messages.
type Dispatcher struct {
	host   string
	nav    Navigator
	logger Logger
}

// NewDispatcher creates a Dispatcher. An empty host means DefaultHost. A nil
// nav still allows Prepare; Dispatch then fails with ErrNoNavigator.
func NewDispatcher(host string, nav Navigator, logger Logger) *Dispatcher {
	if host == "" {
		host = DefaultHost
	}
	if nav == nil {
		nav = NavigatorFunc(func(context.Context, string) error { return ErrNoNavigator })
	}
	return &Dispatcher{host: host, nav: nav, logger: logger}
}

// Prepare returns the message that will actually be sent and its deep link.
// Messages failing ValidateMessage are sanitized first; that is logged as a
// content warning and never reported to the caller.
func (d *Dispatcher) Prepare(destinationID, message string) (string, string, error) {
	if !ValidateMessage(message) {
		sanitized := SanitizeMessage(message)
		d.logger.Log(models.LogLevelWARN, "Order message sanitized", map[string]interface{}{
			"original_length":  utf8.RuneCountInString(message),
			"sanitized_length": utf8.RuneCountInString(sanitized),
			"too_long":         utf8.RuneCountInString(sanitized) > MaxMessageLength,
		})
		message = sanitized
	}

	link, err := buildDeepLink(d.host, destinationID, message)
	if err != nil {
		return message, "", err
	}
	return message, link, nil
}

// Dispatch prepares the message and opens the link. On an EncodingError the
// navigator is never called and the returned error wraps both
// ErrDispatchFailed and the *EncodingError.
func (d *Dispatcher) Dispatch(ctx context.Context, destinationID, message string) (string, error) {
	_, link, err := d.Prepare(destinationID, message)
	if err != nil {
		d.logger.Log(models.LogLevelERROR, "Deep link construction failed", map[string]interface{}{
			"error": err.Error(),
		})
		return "", fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	if err := d.nav.Navigate(ctx, link); err != nil {
		return link, fmt.Errorf("opening deep link: %w", err)
	}
	return link, nil
}
