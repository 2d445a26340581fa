package observability

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// TailOptions selects which lines of the JSON log file Tail prints.
type TailOptions struct {
	// ProfileID keeps only entries logged for this profile. Empty keeps all.
	ProfileID string
	// Follow keeps waiting for new lines, across rotations, until ctx ends.
	Follow bool
}

// Tail copies entries of the JSON log file at path to out. Without Follow it
// stops at the end of the file.
func Tail(ctx context.Context, path string, opts TailOptions, out io.Writer) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    opts.Follow,
		ReOpen:    opts.Follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("failed to read log file: %w", line.Err)
			}
			if !matchesProfile(line.Text, opts.ProfileID) {
				continue
			}
			if _, err := fmt.Fprintln(out, line.Text); err != nil {
				return err
			}
		}
	}
}

func matchesProfile(text, profileID string) bool {
	if profileID == "" {
		return true
	}
	var entry struct {
		ProfileID string `json:"profile_id"`
	}
	if err := jsonCodec.UnmarshalFromString(text, &entry); err != nil {
		return false
	}
	return entry.ProfileID == profileID
}
