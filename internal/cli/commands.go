package cli

import (
	"encoding/json"
	"errors"

	"github.com/goliatone/go-livestorage"
	"github.com/spf13/cobra"
)

// NewGetCommand prints the value stored under a key.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <area> <key>",
		Short: "Print one stored value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			area, err := parseArea(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "open storage", err)
			}
			defer s.close()

			view, err := s.store.View(area)
			if err != nil {
				return err
			}
			value, ok := view.Get(args[1])
			if !ok {
				return NewExitError(ExitFailure, "key "+args[0]+"/"+args[1]+" not found")
			}
			return newFormatter(cmd, opts).value(value)
		},
	}
}

// NewSetCommand stores a value. The value is parsed as JSON and falls back to
// a plain string.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "set <area> <key> <value>",
		Short: "Store a value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			area, err := parseArea(args[0])
			if err != nil {
				return err
			}
			value := parseValue(args[2])
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "open storage", err)
			}
			defer s.close()

			if admin {
				if err := s.host.Seed(cmd.Context(), area, map[string]any{args[1]: value}); err != nil {
					return WrapExitError(ExitFailure, "seed", err)
				}
				return nil
			}
			view, err := s.store.View(area)
			if err != nil {
				return err
			}
			if err := view.Set(args[1], value); err != nil {
				if errors.Is(err, livestorage.ErrReadOnlyArea) {
					return WrapExitError(ExitFailure, "use --admin to write managed items", err)
				}
				return err
			}
			if err := s.flush(); err != nil {
				return WrapExitError(ExitFailure, "write failed", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "write as the host administrator, allowing managed items")
	return cmd
}

// NewRemoveCommand deletes a key.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <area> <key>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a stored value",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			area, err := parseArea(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "open storage", err)
			}
			defer s.close()

			view, err := s.store.View(area)
			if err != nil {
				return err
			}
			if err := view.Delete(args[1]); err != nil {
				return WrapExitError(ExitFailure, "remove", err)
			}
			if err := s.flush(); err != nil {
				return WrapExitError(ExitFailure, "remove failed", err)
			}
			return nil
		},
	}
}

// NewDumpCommand prints every item, optionally limited to some areas.
func NewDumpCommand(opts *RootOptions) *cobra.Command {
	var areas []string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every stored item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := livestorage.Areas()
			if len(areas) > 0 {
				selected = selected[:0]
				for _, name := range areas {
					area, err := parseArea(name)
					if err != nil {
						return err
					}
					selected = append(selected, area)
				}
			}
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "open storage", err)
			}
			defer s.close()

			dump := make(map[string]map[string]any, len(selected))
			for _, area := range selected {
				view, err := s.store.View(area)
				if err != nil {
					return err
				}
				dump[string(area)] = view.Snapshot()
			}
			return newFormatter(cmd, opts).dump(dump)
		},
	}
	cmd.Flags().StringSliceVar(&areas, "area", nil, "limit output to these areas")
	return cmd
}

func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}
