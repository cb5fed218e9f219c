package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goliatone/go-livestorage"
	"github.com/goliatone/go-livestorage/pkg/sqlhost"
)

// session is one storage context opened over the database for a command.
type session struct {
	host  *sqlhost.Host
	store *livestorage.Storage

	mu       sync.Mutex
	writeErr error
}

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	host, err := sqlhost.Open(opts.DB)
	if err != nil {
		return nil, err
	}
	s := &session{host: host}
	store, err := livestorage.New(host,
		livestorage.WithContextID("cli"),
		livestorage.WithLogger(opts.logger()),
		livestorage.WithErrorHandler(s.recordError),
	)
	if err != nil {
		_ = host.Close()
		return nil, err
	}
	s.store = store

	if err := store.Load(ctx, livestorage.LoadOptions{Areas: livestorage.Select(true, true, true)}); err != nil {
		_ = s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) recordError(message string, info livestorage.ErrorInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fmt.Errorf("%s %s/%s: %s", info.Action, info.Area, info.Key, message)
	s.writeErr = errors.Join(s.writeErr, err)
}

// flush waits for forwarded writes and returns the failures they reported.
func (s *session) flush() error {
	s.store.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}

func (s *session) close() error {
	return errors.Join(s.store.Close(), s.host.Close())
}

func parseArea(value string) (livestorage.Area, error) {
	area, err := livestorage.ParseArea(value)
	if err != nil {
		return "", NewExitError(ExitCommandError, err.Error())
	}
	return area, nil
}
